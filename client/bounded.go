package client

import (
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/luma/evnsq/protocol"
)

// BoundedHandler runs h on pool and waits at most timeout for its outcome.
// Messages that can't be submitted, or whose handler runs past the timeout,
// are requeued. A handler still running when its timeout expires keeps
// running, its outcome is ignored.
//
// The pool should be non-blocking (ants.WithNonblocking), otherwise a full
// pool stalls the connection just like a slow handler would.
func BoundedHandler(pool *ants.Pool, timeout time.Duration, h Handler, log *zap.Logger) Handler {
	if log == nil {
		log = zap.NewNop()
	}

	return HandlerFunc(func(msg *protocol.Message) Outcome {
		result := make(chan Outcome, 1)

		err := pool.Submit(func() {
			result <- h.HandleMessage(msg)
		})

		if err != nil {
			log.Warn("Failed to submit message to worker pool, requeueing",
				zap.String("id", msg.ID.Hex()),
				zap.Error(err))
			return OutcomeRequeue
		}

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case outcome := <-result:
			return outcome

		case <-timer.C:
			log.Warn("Handler timed out, requeueing",
				zap.String("id", msg.ID.Hex()),
				zap.Duration("timeout", timeout))
			return OutcomeRequeue
		}
	})
}
