package scoring

import "croplens/internal/types"

// Classifier joins raw detections against the classification table.
type Classifier struct {
	catalog *Catalog
}

// NewClassifier creates a classifier over the given catalog.
func NewClassifier(catalog *Catalog) *Classifier {
	return &Classifier{catalog: catalog}
}

// Classify enriches one detection with its disease record and weighted
// impact. It is total: labels the catalog cannot resolve degrade to the
// default record rather than failing.
func (c *Classifier) Classify(d types.Detection) types.ClassifiedDetection {
	record := c.catalog.Lookup(d.Label)
	return types.ClassifiedDetection{
		Detection:      d,
		Record:         record,
		WeightedImpact: record.ImpactScore * d.Confidence,
	}
}

// ClassifyAll classifies a detection sequence, preserving input order.
func (c *Classifier) ClassifyAll(detections []types.Detection) []types.ClassifiedDetection {
	out := make([]types.ClassifiedDetection, len(detections))
	for i, d := range detections {
		out[i] = c.Classify(d)
	}
	return out
}
