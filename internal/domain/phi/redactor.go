package phi

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/transfer"
)

// Redact produces a redacted deep copy of the dataset by replacing every
// finding's span with a typed placeholder. This is the only destructive
// transform in the package and must be invoked explicitly; the detector
// itself never touches the source data.
func Redact(ds transfer.Dataset, findings []Finding) transfer.Dataset {
	redacted := ds.Clone()

	byField := make(map[string][]Finding)
	for _, f := range findings {
		byField[f.FieldPath] = append(byField[f.FieldPath], f)
	}

	for path, fieldFindings := range byField {
		value, ok := redacted.Field(path)
		if !ok {
			continue
		}
		text, ok := value.(string)
		if !ok {
			continue
		}
		// Coalesce overlapping spans first: splicing one span shifts every
		// offset behind it, so overlapping findings must collapse into a
		// single replacement before any text is touched.
		spans := coalesce(fieldFindings)
		// Splice right to left so earlier spans keep their offsets.
		for i := len(spans) - 1; i >= 0; i-- {
			f := spans[i]
			if f.Start < 0 || f.End > len(text) || f.Start >= f.End {
				continue
			}
			text = text[:f.Start] + fmt.Sprintf("[REDACTED:%s]", f.Type) + text[f.End:]
		}
		setField(redacted.Root(), path, text)
	}
	return redacted
}

// coalesce merges overlapping findings within one field into disjoint
// spans, widest extent wins. The merged span keeps the type of its widest
// deterministic contributor; a probabilistic type stands only when no
// deterministic finding touches the span.
func coalesce(findings []Finding) []Finding {
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	var merged []Finding
	for _, f := range sorted {
		if len(merged) == 0 || f.Start >= merged[len(merged)-1].End {
			merged = append(merged, f)
			continue
		}
		last := &merged[len(merged)-1]
		if f.End > last.End {
			last.End = f.End
		}
		if last.Method != MethodDeterministic && f.Method == MethodDeterministic {
			last.Type = f.Type
			last.Method = MethodDeterministic
		}
	}
	return merged
}

func setField(root map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	var cur any = root
	for i, seg := range segments {
		last := i == len(segments)-1
		switch node := cur.(type) {
		case map[string]any:
			if last {
				node[seg] = value
				return
			}
			cur = node[seg]
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return
			}
			if last {
				node[idx] = value
				return
			}
			cur = node[idx]
		default:
			return
		}
	}
}
