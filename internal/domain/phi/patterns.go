package phi

import (
	"regexp"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
)

// pattern is one deterministic identifier matcher: structural/format-based,
// checksum or keyword-adjacent. Base confidence below 1.0 marks formats that
// are strong hints rather than unambiguous identifiers.
type pattern struct {
	phiType    catalog.PHIType
	re         *regexp.Regexp
	confidence float64
}

// patternCatalog is applied in fixed order to every string-valued leaf.
// The order and the set are part of the deterministic contract: changing
// them changes the catalog snapshot a deployment is certified against.
var patternCatalog = []pattern{
	{catalog.PHITypeSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), 1.0},
	{catalog.PHITypeCPF, regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`), 1.0},
	{catalog.PHITypeAadhaar, regexp.MustCompile(`\b\d{4}[\s-]\d{4}[\s-]\d{4}\b`), 0.95},
	{catalog.PHITypePAN, regexp.MustCompile(`\b[A-Z]{5}\d{4}[A-Z]\b`), 1.0},
	{catalog.PHITypeNHSNumber, regexp.MustCompile(`\b\d{3}[\s-]\d{3}[\s-]\d{4}\b`), 0.95},
	{catalog.PHITypeMRN, regexp.MustCompile(`(?i)(?:MRN|medical record number|record number|patient id|patient number)\s*[:#]?\s*[A-Z0-9-]{4,}`), 1.0},
	{catalog.PHITypeDeviceID, regexp.MustCompile(`(?i)\b(?:device id|implant id)(?:\s+is)?\s*[:#]?\s*[A-Z0-9-]{4,}`), 1.0},
	{catalog.PHITypeAddress, regexp.MustCompile(`(?i)\b\d{1,6}\s+[A-Z][A-Za-z0-9\s.,']*?\s+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Way|Court|Ct|Place|Pl)\b`), 0.8},
	{catalog.PHITypeDate, regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), 0.7},
	{catalog.PHITypeDate, regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{2,4}\b`), 0.7},
	{catalog.PHITypeDate, regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\s+\d{1,2},?\s+\d{4}\b`), 0.7},
}
