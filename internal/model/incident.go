package model

// Compaction placeholder written in place of the two oldest incidents.
const (
	CompactedSummary    = "Compacted Summary of older incidents"
	CompactedResolution = "See archived logs"
)

// Incident is one row of the append-only incident history.
// IDs are assigned by the persistence engine, strictly increasing and never reused.
type Incident struct {
	ID         int64  `json:"id"`
	Summary    string `json:"summary"`
	Resolution string `json:"resolution"`
}

// Fact is a learned key/value pair. Unique by key, last write wins.
type Fact struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
