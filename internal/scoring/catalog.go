// Package scoring implements the crop health scoring engine: the static
// disease classification table, the environmental range model, the detection
// classifier, and the health scorer that composes them into one assessment.
//
// All tables are built once at construction and never mutated, so a single
// engine instance is safe for arbitrarily many concurrent scoring calls
// without locking.
package scoring

import (
	"sort"
	"strings"

	"croplens/internal/types"
)

// Default record values for labels the table cannot resolve.
// An unmatched label is never an error; it degrades to this record.
const (
	defaultImpactScore       = 50.0
	defaultTreatmentPriority = 2
)

// Catalog is the static disease classification table. Lookup resolution
// order: exact key, alias map, fuzzy fallback over sorted keys, default
// record. Read-only after construction.
type Catalog struct {
	records    map[string]types.DiseaseRecord
	aliases    map[string]string
	sortedKeys []string
}

type catalogEntry struct {
	name     string
	dtype    types.DiseaseType
	impact   float64
	priority int
	spread   types.SpreadRate
}

// catalogEntries is the authoritative taxon table. Severity is always
// derived from the impact score, so entries carry no tier of their own.
var catalogEntries = []catalogEntry{
	// Fungal
	{"anthracnose", types.DiseaseFungal, 85, 4, types.SpreadFast},
	{"blight", types.DiseaseFungal, 90, 5, types.SpreadFast},
	{"rust", types.DiseaseFungal, 75, 3, types.SpreadMedium},
	{"powdery mildew", types.DiseaseFungal, 60, 2, types.SpreadMedium},
	{"downy mildew", types.DiseaseFungal, 70, 3, types.SpreadFast},
	{"black rot", types.DiseaseFungal, 80, 4, types.SpreadMedium},
	{"gray mold", types.DiseaseFungal, 65, 3, types.SpreadFast},
	{"leaf spot", types.DiseaseFungal, 55, 2, types.SpreadSlow},
	{"scab", types.DiseaseFungal, 70, 3, types.SpreadMedium},
	{"smut", types.DiseaseFungal, 85, 4, types.SpreadMedium},
	{"mildew", types.DiseaseFungal, 55, 3, types.SpreadMedium},
	{"rot_disease", types.DiseaseFungal, 75, 4, types.SpreadMedium},

	// Bacterial
	{"bacterial spot", types.DiseaseBacterial, 80, 4, types.SpreadFast},
	{"bacterial blight", types.DiseaseBacterial, 85, 5, types.SpreadFast},
	{"bacterial wilt", types.DiseaseBacterial, 95, 5, types.SpreadFast},
	{"canker", types.DiseaseBacterial, 90, 5, types.SpreadMedium},
	{"soft rot", types.DiseaseBacterial, 75, 4, types.SpreadFast},
	{"bacterial_disease", types.DiseaseBacterial, 70, 4, types.SpreadFast},

	// Viral
	{"mosaic virus", types.DiseaseViral, 70, 3, types.SpreadMedium},
	{"curl virus", types.DiseaseViral, 75, 4, types.SpreadMedium},
	{"yellow virus", types.DiseaseViral, 80, 4, types.SpreadFast},
	{"streak disease", types.DiseaseViral, 85, 4, types.SpreadFast},
	{"virus_disease", types.DiseaseViral, 80, 4, types.SpreadFast},

	// Pests
	{"spider mite", types.DiseasePest, 60, 2, types.SpreadFast},
	{"aphid", types.DiseasePest, 50, 2, types.SpreadFast},
	{"leaf miner", types.DiseasePest, 40, 1, types.SpreadMedium},
	{"whitefly", types.DiseasePest, 55, 2, types.SpreadFast},
	{"pest_damage", types.DiseasePest, 55, 3, types.SpreadMedium},

	// Detector classes that are not pathologies.
	{"healthy", types.DiseaseEnvironmental, 0, 1, types.SpreadNone},
}

// catalogAliases maps raw detector label variants to canonical table keys.
var catalogAliases = map[string]string{
	"tomato bacterial leaf spot": "bacterial spot",
	"early blight":               "blight",
	"late blight":                "blight",
	"tomato early blight":        "blight",
	"tomato late blight":         "blight",
	"potato early blight":        "blight",
	"potato late blight":         "blight",
	"corn rust":                  "rust",
	"wheat leaf rust":            "rust",
	"leaf_spot":                  "leaf spot",
	"powdery_mildew":             "powdery mildew",
	"spider_mite":                "spider mite",
}

// NewCatalog builds the classification table. The key list is sorted once
// so fuzzy resolution is deterministic.
func NewCatalog() *Catalog {
	records := make(map[string]types.DiseaseRecord, len(catalogEntries))
	keys := make([]string, 0, len(catalogEntries))
	for _, e := range catalogEntries {
		records[e.name] = types.DiseaseRecord{
			Name:              e.name,
			Type:              e.dtype,
			SeverityTier:      types.SeverityForImpact(e.impact),
			ImpactScore:       e.impact,
			SpreadRate:        e.spread,
			TreatmentPriority: e.priority,
		}
		keys = append(keys, e.name)
	}
	sort.Strings(keys)

	return &Catalog{
		records:    records,
		aliases:    catalogAliases,
		sortedKeys: keys,
	}
}

// Lookup resolves a detector label to its disease record. It never fails:
// an unmatched label yields the default unknown record.
func (c *Catalog) Lookup(label string) types.DiseaseRecord {
	if rec, ok := c.records[label]; ok {
		return rec
	}

	if canonical, ok := c.aliases[label]; ok {
		if rec, ok := c.records[canonical]; ok {
			return rec
		}
	}

	normalized := strings.ToLower(label)
	for _, key := range c.sortedKeys {
		if strings.Contains(normalized, key) {
			return c.records[key]
		}
		for _, token := range strings.Fields(key) {
			if strings.Contains(normalized, token) {
				return c.records[key]
			}
		}
	}

	return DefaultRecord(label)
}

// DefaultRecord is the record assigned to labels no resolution step matched.
func DefaultRecord(label string) types.DiseaseRecord {
	return types.DiseaseRecord{
		Name:              label,
		Type:              types.DiseaseUnknown,
		SeverityTier:      types.SeverityMedium,
		ImpactScore:       defaultImpactScore,
		SpreadRate:        types.SpreadMedium,
		TreatmentPriority: defaultTreatmentPriority,
	}
}

// Records returns every table entry in sorted key order.
// Used by the catalog API endpoint; callers must not mutate the result.
func (c *Catalog) Records() []types.DiseaseRecord {
	out := make([]types.DiseaseRecord, 0, len(c.sortedKeys))
	for _, key := range c.sortedKeys {
		out = append(out, c.records[key])
	}
	return out
}
