package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
)

// Dataset is a fully parsed, field-path-addressable tree of scalars and
// nested structures, as delivered by the ingestion collaborator. The engine
// assumes it is already schema-valid and never mutates it.
type Dataset struct {
	root map[string]any
}

// NewDataset wraps a parsed document tree. The tree is shared, not copied;
// callers must not mutate it after handing it over.
func NewDataset(root map[string]any) Dataset {
	if root == nil {
		root = map[string]any{}
	}
	return Dataset{root: root}
}

// Root exposes the underlying tree for serialization into audit snapshots.
func (d Dataset) Root() map[string]any {
	return d.root
}

// Field resolves a dotted field path. Sequence elements are addressed by
// numeric segment, e.g. "notes.0.text".
func (d Dataset) Field(path string) (any, bool) {
	var cur any = d.root
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Flatten returns every scalar leaf keyed by its dotted path. Rule
// predicates read this map; structure (mappings, sequences) is preserved in
// the path, not in the values.
func (d Dataset) Flatten() map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", d.root)
	return out
}

func flattenInto(out map[string]any, prefix string, node any) {
	switch v := node.(type) {
	case map[string]any:
		for _, k := range sortedKeys(v) {
			flattenInto(out, joinPath(prefix, k), v[k])
		}
	case []any:
		for i, item := range v {
			flattenInto(out, joinPath(prefix, strconv.Itoa(i)), item)
		}
	default:
		if prefix != "" {
			out[prefix] = v
		}
	}
}

// WalkStrings visits every string-valued leaf in deterministic path order.
// This is the traversal the PHI detector scans: only scalar string values,
// with the original document structure preserved in the field path.
func (d Dataset) WalkStrings(fn func(path, value string)) {
	flat := d.Flatten()
	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if s, ok := flat[p].(string); ok {
			fn(p, s)
		}
	}
}

// Fingerprint returns the SHA-256 of the RFC 8785 canonical serialization
// of the tree. Audit records store this digest, never the data itself.
func (d Dataset) Fingerprint() (string, error) {
	raw, err := json.Marshal(d.root)
	if err != nil {
		return "", errors.NewInternalError("serializing dataset").WithCause(err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", errors.NewInternalError("canonicalizing dataset").WithCause(err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Clone returns a deep copy of the tree. The redactor works on clones so
// detection never has a destructive side effect.
func (d Dataset) Clone() Dataset {
	return Dataset{root: deepCopyMap(d.root)}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch node := v.(type) {
	case map[string]any:
		return deepCopyMap(node)
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinPath(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "." + seg
}
