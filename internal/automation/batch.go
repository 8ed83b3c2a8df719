package automation

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/antonbillionaire/staffix/internal/messaging"
)

// SendOutcome is the per-item result of a batch send.
type SendOutcome struct {
	TargetID string
	Err      error
}

// delivery is one claimed message waiting to go out. onFail undoes the claim
// and records the failure on the target.
type delivery struct {
	targetID string
	out      messaging.Outbound
	onFail   func(ctx context.Context, err error)
}

var errSendFailed = errors.New("automation: send failed")

// sendBatches sends items in fixed-size batches. Sends inside a batch run
// concurrently, batches are separated by delay. A failed send never stops the
// remaining items; once ctx is done the rest are reported with ctx.Err().
func sendBatches(ctx context.Context, sender messaging.Sender, items []delivery, size int, delay time.Duration) []SendOutcome {
	if size <= 0 {
		size = 1
	}
	outcomes := make([]SendOutcome, len(items))
	for i := range items {
		outcomes[i].TargetID = items[i].targetID
	}

	for start := 0; start < len(items); start += size {
		if start > 0 && delay > 0 {
			if err := wait(ctx, delay); err != nil {
				for i := start; i < len(items); i++ {
					outcomes[i].Err = err
				}
				return outcomes
			}
		}
		end := min(start+size, len(items))

		var g errgroup.Group
		g.SetLimit(size)
		for i := start; i < end; i++ {
			g.Go(func() error {
				res := sender.Send(ctx, items[i].out)
				if !res.Success {
					err := res.Err
					if err == nil {
						err = errSendFailed
					}
					outcomes[i].Err = err
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return outcomes
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
