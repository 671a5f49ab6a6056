package session

import "github.com/p-arndt/leethack/internal/store"

// HistoryStore journals executed commands.
type HistoryStore interface {
	RecordExecution(e *store.Execution) error
	ListExecutions(sessionID string, limit int) ([]*store.Execution, error)
	DeleteSessionExecutions(sessionID string) (int64, error)
}
