// Package relay pumps bytes between an attached exec stream and a pair of
// text channels for interactive terminal sessions.
package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/p-arndt/leethack/internal/runtime"
)

// Side identifies which half of the relay finished first.
type Side int

const (
	SideOutput Side = iota + 1
	SideInput
)

func (s Side) String() string {
	switch s {
	case SideOutput:
		return "output"
	case SideInput:
		return "input"
	default:
		return "none"
	}
}

// Run forwards stream output to out and in to the stream's input sink until
// either direction ends, and reports which one did. The other direction is
// abandoned, not joined: closing the stream or in lets it finish.
//
// The output side owns out and closes it when it stops. Sends on out block,
// so a slow consumer slows down reads from the stream instead of losing
// data. Cancelling ctx means the consumer is gone.
func Run(ctx context.Context, stream runtime.ExecStream, in <-chan string, out chan<- string, logger *slog.Logger) Side {
	done := make(chan Side, 2)

	go func() {
		defer func() { done <- SideOutput }()
		defer close(out)
		for {
			f, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logger.Debug("relay: read stream", "error", err)
				}
				return
			}
			if len(f.Data) == 0 {
				continue
			}
			select {
			case out <- f.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer func() { done <- SideInput }()
		for chunk := range in {
			if _, err := stream.Write([]byte(chunk)); err != nil {
				logger.Debug("relay: write stream", "error", err)
				return
			}
			if err := stream.Flush(); err != nil {
				logger.Debug("relay: flush stream", "error", err)
				return
			}
		}
	}()

	return <-done
}
