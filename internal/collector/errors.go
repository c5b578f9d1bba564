package collector

import "fmt"

// ConfigError aborts a run before any source is contacted.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

type Stage string

const (
	StageCollect   Stage = "collect"
	StageNormalize Stage = "normalize"
	StageDedup     Stage = "dedup"
	StageScore     Stage = "score"
	StagePool      Stage = "pool"
	StageCache     Stage = "cache"
)

// StageError is a recovered failure of one source or one item. Its message
// is what ends up in CollectionStats.Errors.
type StageError struct {
	Stage   Stage
	Subject string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Subject, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
