// Package store persists Job records (including their Manifest) to a
// SQLite database so job state survives process restarts.
package store

import (
	"github.com/sheetcap/sheetcap/internal/capture"
)

// Store is the persistence interface the orchestrator depends on.
type Store interface {
	Put(job *capture.Job) error
	Get(id string) (*capture.Job, error)
	List() ([]*capture.Job, error)
	Delete(id string) error
	Close() error
}
