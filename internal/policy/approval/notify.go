package approval

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"steward/internal/pubsub"
)

// Notifier implements the ApprovalNotifier interface on top of the event
// broker. Subscribers (CLI prompt, audit) receive approval lifecycle events.
type Notifier struct {
	broker *pubsub.Broker[ApprovalEvent]
	logger *slog.Logger
}

// NewNotifier creates a new Notifier publishing to the given broker.
func NewNotifier(broker *pubsub.Broker[ApprovalEvent]) *Notifier {
	return &Notifier{
		broker: broker,
		logger: slog.Default(),
	}
}

// SetLogger sets a custom logger.
func (n *Notifier) SetLogger(l *slog.Logger) {
	n.logger = l
}

// Broker returns the underlying event broker for subscribing.
func (n *Notifier) Broker() *pubsub.Broker[ApprovalEvent] {
	return n.broker
}

// NotifyRequest publishes a new approval request event.
func (n *Notifier) NotifyRequest(req *ApprovalRequest) error {
	if n.broker == nil {
		n.logger.Warn("notifier: broker not configured, skipping notification")
		return nil
	}

	n.broker.Publish(pubsub.EventCreated, ApprovalEvent{Request: req})

	n.logger.Debug("notifier: published approval request",
		"request_id", req.ID,
		"tool", req.ToolName,
	)

	return nil
}

// NotifyResolved publishes the resolution of an approval request.
func (n *Notifier) NotifyResolved(req *ApprovalRequest, result *ApprovalResult) error {
	if n.broker == nil {
		n.logger.Warn("notifier: broker not configured, skipping notification")
		return nil
	}

	n.broker.Publish(pubsub.EventResolved, ApprovalEvent{Request: req, Result: result})

	n.logger.Debug("notifier: published approval resolution",
		"request_id", req.ID,
		"approved", result.Approved,
	)

	return nil
}

// FormatApprovalRequestJSON formats an approval request as JSON for logging.
func FormatApprovalRequestJSON(req *ApprovalRequest) string {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Sprintf("{\"error\": \"%s\"}", err.Error())
	}
	return string(data)
}

// FormatApprovalResultJSON formats an approval result as JSON for logging.
func FormatApprovalResultJSON(result *ApprovalResult) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("{\"error\": \"%s\"}", err.Error())
	}
	return string(data)
}
