package udpm

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// servePollInterval bounds how long a Serve loop can block in Recv before
// it gets a chance to notice ctx has been cancelled. Recv itself has no
// way to wait on a context directly since it blocks on a raw fd, so
// Serve polls with a short timeout instead of an indefinite block.
const servePollInterval = 200 * time.Millisecond

// Serve runs a receive loop that calls handler for every Message until
// ctx is cancelled or Recv returns a fatal error, joining both the
// receive loop and the goroutine that closes the Transport on
// cancellation via a single errgroup.Group the way Zereker-socket's
// Conn.Run joins its read and write loops.
//
// handler must not retain a Message's Payload past the call, per Recv's
// own contract; copy out anything that needs to outlive it.
func (t *Transport) Serve(ctx context.Context, handler func(*Message)) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			msg, err := t.Recv(servePollInterval)
			if err != nil {
				if errors.Is(err, ErrAgain) {
					continue
				}
				if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			handler(msg)
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		return t.Close()
	})

	return g.Wait()
}
