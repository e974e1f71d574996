package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/platform/jito"
	"github.com/alanyoungcy/sniperbot/internal/platform/solanarpc"
)

// poller bounds confirmation polling. Status reads are idempotent, so failed
// reads are retried with a doubling pause capped at four intervals.
type poller struct {
	interval time.Duration
	attempts int
	timeout  time.Duration
}

func (p poller) run(ctx context.Context, check func(ctx context.Context) (bool, error), onErr func(error)) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	wait := p.interval
	for attempt := 1; attempt <= p.attempts; attempt++ {
		done, err := check(ctx)
		if err == nil && done {
			return nil
		}
		if err != nil {
			onErr(err)
			wait = min(wait*2, 4*p.interval)
		} else {
			wait = p.interval
		}
		if attempt == p.attempts {
			break
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("execution: confirm: %w", domain.ErrConfirmTimeout)
		case <-t.C:
		}
	}
	return fmt.Errorf("execution: confirm after %d attempts: %w", p.attempts, domain.ErrConfirmTimeout)
}

// awaitSignature polls getSignatureStatuses until sig is confirmed or fails.
func (e *Executor) awaitSignature(ctx context.Context, sig string) error {
	var failed *solanarpc.SignatureStatus
	err := e.poll.run(ctx, func(ctx context.Context) (bool, error) {
		statuses, err := e.rpc.GetSignatureStatuses(ctx, sig)
		if err != nil {
			return false, err
		}
		if len(statuses) == 0 || statuses[0] == nil {
			return false, nil
		}
		st := statuses[0]
		if st.Failed() {
			failed = st
			return true, nil
		}
		return st.Confirmed(), nil
	}, func(err error) {
		e.logger.DebugContext(ctx, "signature status read failed",
			slog.String("signature", sig), slog.String("error", err.Error()))
	})
	if err != nil {
		return err
	}
	if failed != nil {
		return fmt.Errorf("execution: transaction %s: %s: %w", sig, string(failed.Err), domain.ErrTxFailed)
	}
	return nil
}

// awaitBundle polls the block engine until the bundle lands, fails or is
// dropped. The returned status is the last one observed.
func (e *Executor) awaitBundle(ctx context.Context, id string) (domain.BundleStatus, error) {
	status := domain.BundlePending
	err := e.poll.run(ctx, func(ctx context.Context) (bool, error) {
		landed, err := e.bundles.GetBundleStatuses(ctx, id)
		if err != nil {
			return false, err
		}
		if landed != nil {
			if landed.Failed() {
				status = domain.BundleFailed
				return true, nil
			}
			if landed.ConfirmationStatus == "confirmed" || landed.ConfirmationStatus == "finalized" {
				status = domain.BundleLanded
				return true, nil
			}
		}

		inflight, err := e.bundles.InflightStatus(ctx, id)
		if err != nil {
			return false, err
		}
		switch inflight {
		case domain.BundleLanded:
			status = domain.BundleLanded
			return true, nil
		case domain.BundleFailed, domain.BundleDropped:
			status = inflight
			return true, nil
		}
		return false, nil
	}, func(err error) {
		e.logger.DebugContext(ctx, "bundle status read failed",
			slog.String("bundle_id", id), slog.String("error", err.Error()))
	})
	if err != nil {
		return status, err
	}

	switch status {
	case domain.BundleFailed:
		return status, fmt.Errorf("execution: bundle %s: %w", id, domain.ErrBundleFailed)
	case domain.BundleDropped:
		return status, fmt.Errorf("execution: bundle %s: %w", id, domain.ErrBundleDropped)
	}
	return status, nil
}

var _ BundleClient = (*jito.Client)(nil)
