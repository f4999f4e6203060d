package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/opencouncil/scribe/errors"
	"github.com/opencouncil/scribe/httpclient"
	"github.com/opencouncil/scribe/logger"
	"github.com/opencouncil/scribe/observability"
)

// Delivery is the payload POSTed to the caller's delivery address on every
// progress update and on task completion.
type Delivery struct {
	TaskID          string `json:"task_id"`
	Status          Status `json:"status"`
	Stage           string `json:"stage,omitempty"`
	ProgressPercent int    `json:"progress_percent"`
	Result          any    `json:"result,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Notifier sends best-effort deliveries to caller-supplied addresses.
// Failures are logged and counted, never retried and never surfaced to the
// running task.
type Notifier struct {
	client  *httpclient.Client
	log     *logger.Logger
	metrics *observability.Metrics
}

// NewNotifier creates a notifier. The client must not carry a retry policy;
// delivery is deliberately single-shot.
func NewNotifier(log *logger.Logger, metrics *observability.Metrics) (*Notifier, error) {
	client, err := httpclient.New(httpclient.Config{Timeout: 15 * time.Second})
	if err != nil {
		return nil, err
	}
	return &Notifier{
		client:  client,
		log:     log.WithComponent("notifier"),
		metrics: metrics,
	}, nil
}

// Send POSTs a delivery to url. The returned error is for the caller's log
// only; senders fire this from a goroutine and ignore it.
func (n *Notifier) Send(ctx context.Context, url string, d Delivery) error {
	resp, err := n.client.Do(ctx, httpclient.Request{
		Method: "POST",
		Path:   url,
		Body:   d,
	})
	if err == nil && resp.IsError() {
		err = fmt.Errorf("delivery endpoint returned status %d", resp.StatusCode)
	}
	if err != nil {
		n.metrics.DeliveryFailed(ctx, string(d.Status))
		n.log.WithError(errors.DeliveryUnreachable(url, err)).Warn("delivery failed", logger.Fields(
			logger.FieldTaskID, d.TaskID,
			logger.FieldStatus, string(d.Status),
		))
		return err
	}
	return nil
}
