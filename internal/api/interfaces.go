package api

import (
	"context"

	"github.com/p-arndt/leethack/internal/challenge"
	"github.com/p-arndt/leethack/internal/session"
	"github.com/p-arndt/leethack/internal/store"
)

// SessionService abstracts the session engine operations needed by API handlers.
type SessionService interface {
	Create(ctx context.Context, challengeID string) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	List(ctx context.Context) ([]session.Session, error)
	Destroy(ctx context.Context, id string) error
	Execute(ctx context.Context, id, command string) (*session.ExecResult, error)
	ExecuteInteractive(ctx context.Context, id, command string, in <-chan string, out chan<- string) error
	History(ctx context.Context, id string, limit int) ([]*store.Execution, error)
	Challenges() []challenge.Config
}
