package notify

import (
	"context"
	"fmt"

	"github.com/smolentsev/shopbot/pkg/logger"
)

// Notifier delivers a text message to a user. The chat transport lives
// outside this module; implementations adapt whatever transport the binary
// wires in.
type Notifier interface {
	Send(ctx context.Context, userID int64, text string) error
}

// Func adapts a plain function to the Notifier interface.
type Func func(ctx context.Context, userID int64, text string) error

// Send implements Notifier.
func (f Func) Send(ctx context.Context, userID int64, text string) error {
	return f(ctx, userID, text)
}

// Best sends without letting a delivery failure escalate: the error is
// logged and swallowed. Order placement and confirmation must never fail
// because a chat message did.
func Best(ctx context.Context, logg *logger.Logger, n Notifier, userID int64, text string) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, userID, text); err != nil {
		ctx = logg.WithUserID(ctx, userID)
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "notification delivery failed")
	}
}

// LogNotifier writes messages to the log instead of a chat transport.
// Used when the binary runs without a transport attached.
type LogNotifier struct {
	logg *logger.Logger
}

// NewLogNotifier builds a log-backed notifier.
func NewLogNotifier(logg *logger.Logger) (*LogNotifier, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &LogNotifier{logg: logg}, nil
}

// Send implements Notifier.
func (n *LogNotifier) Send(ctx context.Context, userID int64, text string) error {
	ctx = n.logg.WithUserID(ctx, userID)
	n.logg.Info(n.logg.WithField(ctx, "text", text), "notification")
	return nil
}
