package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTransferCompleted indicates a cross-border transfer settled.
	KindTransferCompleted = "transfer_completed"
	// KindTransferFailed indicates a transfer was rolled back.
	KindTransferFailed = "transfer_failed"
	// KindDepositCompleted indicates a mobile-money collection was credited.
	KindDepositCompleted = "deposit_completed"
	// KindOperatorAlert flags a state that needs manual intervention, such as
	// a failed rollback. Never produced for routine failures.
	KindOperatorAlert = "operator_alert"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the
// logger. Operator alerts are logged at error level so they page.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	if message.Kind == KindOperatorAlert {
		n.logger.Error("operator alert", "destination", message.Destination, "body", message.Body)
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
