package activity

import (
	"context"
	"sync"
	"time"

	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

const defaultNotifyTimeout = 5 * time.Second

// Notifier delivers entries in the background. Failures are logged and
// never reach the caller.
type Notifier struct {
	recorder Recorder
	timeout  time.Duration
	logger   *logging.Logger
	wg       sync.WaitGroup
}

func NewNotifier(recorder Recorder, timeout time.Duration, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &Notifier{recorder: recorder, timeout: timeout, logger: logger}
}

// Notify starts delivery of e and returns immediately.
func (n *Notifier) Notify(e Entry) {
	if n == nil || n.recorder == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.recorder.Record(ctx, e); err != nil {
			n.logger.Warn("activity notification failed",
				"lead_id", e.LeadID,
				"template_id", e.TemplateID,
				"error", err,
			)
		}
	}()
}

// Wait blocks until every pending notification has finished.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
