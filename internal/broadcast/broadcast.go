package broadcast

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smolentsev/shopbot/internal/notify"
	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
	"github.com/smolentsev/shopbot/pkg/logger"
)

type recipientLister interface {
	ListIDs(ctx context.Context) ([]int64, error)
}

type taskRunner interface {
	Submit(ctx context.Context, name string, fn func(ctx context.Context) error)
}

// Service fans an admin message out to every known user. Delivery runs as
// a background task with a fixed pause between sends so the chat transport
// rate limits are never tripped.
type Service struct {
	users    recipientLister
	notifier notify.Notifier
	runner   taskRunner
	logg     *logger.Logger
	throttle time.Duration
}

// ServiceParams configure the broadcast service.
type ServiceParams struct {
	Users    recipientLister
	Notifier notify.Notifier
	Runner   taskRunner
	Logger   *logger.Logger
	Throttle time.Duration
}

// NewService builds the broadcast service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("recipient lister required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Runner == nil {
		return nil, fmt.Errorf("task runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Throttle <= 0 {
		params.Throttle = 50 * time.Millisecond
	}
	return &Service{
		users:    params.Users,
		notifier: params.Notifier,
		runner:   params.Runner,
		logg:     params.Logger,
		throttle: params.Throttle,
	}, nil
}

// SendAll queues the broadcast and returns immediately. The initiator gets
// a delivery report when the fan-out finishes.
func (s *Service) SendAll(ctx context.Context, initiatorID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "broadcast text is empty")
	}

	s.runner.Submit(ctx, "broadcast", func(taskCtx context.Context) error {
		return s.deliver(taskCtx, initiatorID, text)
	})
	return nil
}

func (s *Service) deliver(ctx context.Context, initiatorID int64, text string) error {
	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		notify.Best(ctx, s.logg, s.notifier, initiatorID, "Broadcast failed: could not list recipients.")
		return err
	}

	var delivered, failed int
	for i, userID := range ids {
		if i > 0 {
			select {
			case <-time.After(s.throttle):
			case <-ctx.Done():
				notify.Best(ctx, s.logg, s.notifier, initiatorID,
					fmt.Sprintf("Broadcast interrupted: %d delivered, %d failed, %d pending.",
						delivered, failed, len(ids)-i))
				return ctx.Err()
			}
		}
		if err := s.notifier.Send(ctx, userID, text); err != nil {
			failed++
			s.logg.Warn(s.logg.WithField(s.logg.WithUserID(ctx, userID), "error", err.Error()),
				"broadcast delivery failed")
			continue
		}
		delivered++
	}

	notify.Best(ctx, s.logg, s.notifier, initiatorID,
		fmt.Sprintf("Broadcast finished: %d delivered, %d failed.", delivered, failed))
	return nil
}
