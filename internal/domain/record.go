package domain

// EntityRecord is one reference entity mention. ID is assigned by the store.
type EntityRecord struct {
	ID        string     `json:"id,omitempty"`
	Text      string     `json:"text"`
	Type      EntityType `json:"entity_type"`
	Embedding []float32  `json:"-"`
}

// SentenceRecord is one annotated example sentence. ID is assigned by the store.
type SentenceRecord struct {
	ID        string    `json:"id,omitempty"`
	Text      string    `json:"text"`
	Labels    NERLabels `json:"ner_labels"`
	Embedding []float32 `json:"-"`
}

// EntityHit is a ranked entity search result.
type EntityHit struct {
	Record   EntityRecord `json:"record"`
	Distance float64      `json:"distance"`
	Score    float64      `json:"score"`
}

// SentenceHit is a ranked sentence search result.
type SentenceHit struct {
	Record   SentenceRecord `json:"record"`
	Distance float64        `json:"distance"`
	Score    float64        `json:"score"`
	// LabelsErr is set when the stored labels could not be decoded; Record.Labels is empty then.
	LabelsErr error `json:"-"`
}

// InsertFailure explains why one record of an insert was rejected.
type InsertFailure struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// InsertReport is the per-record outcome of an insert: IDs[i] is the store ID of
// records[i], empty when that record failed.
type InsertReport struct {
	IDs      []string        `json:"ids"`
	Failures []InsertFailure `json:"failures,omitempty"`
}

// Inserted counts records that were written.
func (r InsertReport) Inserted() int {
	n := 0
	for _, id := range r.IDs {
		if id != "" {
			n++
		}
	}
	return n
}
