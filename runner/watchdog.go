package runner

import (
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-unit/types"
)

// Watchdog ends a run that outlives its time limit. Test procedures cannot be preempted,
// so when the limit expires the watchdog logs the tests still executing and calls abort,
// which is expected to terminate the process.
type Watchdog struct {
	timer *time.Timer
}

// StartWatchdog arms a watchdog. inflight is queried when the limit expires.
func StartWatchdog(timeout time.Duration, inflight func() []types.FullID, abort func(inflight []types.FullID), logger log.Logger) *Watchdog {
	if logger == nil {
		logger = log.New()
	}
	return &Watchdog{
		timer: time.AfterFunc(timeout, func() {
			ids := inflight()
			logger.Error("Run exceeded its time limit", "timeout", timeout, "inFlight", len(ids))
			for _, id := range ids {
				logger.Error("Test still running", "test", id.String())
			}
			abort(ids)
		}),
	}
}

// Stop disarms the watchdog. It reports false if the watchdog already fired.
func (w *Watchdog) Stop() bool {
	return w.timer.Stop()
}
