package collector

// CollectionStats counts the items still alive after each stage. Counts
// never increase from one stage to the next.
type CollectionStats struct {
	GlobalTopics      int      `json:"global_topics"`
	ScopedTopics      int      `json:"scoped_topics"`
	TotalCollected    int      `json:"total_collected"`
	NormalizedCount   int      `json:"normalized_count"`
	FilteredCount     int      `json:"filtered_count"`
	DeduplicatedCount int      `json:"deduplicated_count"`
	SavedCount        int      `json:"saved_count"`
	Errors            []string `json:"errors"`
}

func newStats() *CollectionStats {
	return &CollectionStats{Errors: []string{}}
}

func (s *CollectionStats) record(err error) {
	s.Errors = append(s.Errors, err.Error())
}
