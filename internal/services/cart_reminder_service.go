package services

import (
	"context"
	"errors"
	"time"

	"github.com/meridian-commerce/api/internal/repositories"
)

const (
	defaultCartIdleAfter    = 24 * time.Hour
	defaultCartMaxReminders = 3
	defaultCartSweepLimit   = 100

	cartEventReminderQueued = "cart.reminder.queued"
	cartEventReminderFailed = "cart.reminder.failed"
)

var (
	errReminderCartsRequired     = errors.New("cart reminder: cart repository is required")
	errReminderUsersRequired     = errors.New("cart reminder: user repository is required")
	errReminderPublisherRequired = errors.New("cart reminder: publisher is required")
	errReminderClockRequired     = errors.New("cart reminder: clock is required")
)

// CartReminderMessage is the payload delivered to the mail worker via Pub/Sub.
type CartReminderMessage struct {
	CartID    string    `json:"cartId"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	ItemCount int       `json:"itemCount"`
	Attempt   int       `json:"attempt"`
	QueuedAt  time.Time `json:"queuedAt"`
}

// CartReminderPublisher publishes reminder messages to the background queue.
type CartReminderPublisher interface {
	PublishCartReminder(ctx context.Context, message CartReminderMessage) (string, error)
}

// CartReminderDispatcher sweeps idle carts and queues reminder emails. It is
// invoked from a scheduler endpoint, not from request handlers.
type CartReminderDispatcher interface {
	DispatchReminders(ctx context.Context) (int, error)
}

// CartReminderDeps enumerates collaborators required to construct the dispatcher.
type CartReminderDeps struct {
	Carts        repositories.CartRepository
	Users        repositories.UserRepository
	Publisher    CartReminderPublisher
	Clock        func() time.Time
	Logger       EventLogger
	IdleAfter    time.Duration
	MaxReminders int
	SweepLimit   int
}

type cartReminderDispatcher struct {
	carts        repositories.CartRepository
	users        repositories.UserRepository
	publisher    CartReminderPublisher
	now          func() time.Time
	logger       EventLogger
	idleAfter    time.Duration
	maxReminders int
	sweepLimit   int
}

// NewCartReminderDispatcher wires dependencies into a CartReminderDispatcher.
func NewCartReminderDispatcher(deps CartReminderDeps) (CartReminderDispatcher, error) {
	if deps.Carts == nil {
		return nil, errReminderCartsRequired
	}
	if deps.Users == nil {
		return nil, errReminderUsersRequired
	}
	if deps.Publisher == nil {
		return nil, errReminderPublisherRequired
	}
	if deps.Clock == nil {
		return nil, errReminderClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idleAfter := deps.IdleAfter
	if idleAfter <= 0 {
		idleAfter = defaultCartIdleAfter
	}
	maxReminders := deps.MaxReminders
	if maxReminders <= 0 {
		maxReminders = defaultCartMaxReminders
	}
	sweepLimit := deps.SweepLimit
	if sweepLimit <= 0 {
		sweepLimit = defaultCartSweepLimit
	}

	return &cartReminderDispatcher{
		carts:        deps.Carts,
		users:        deps.Users,
		publisher:    deps.Publisher,
		now:          func() time.Time { return deps.Clock().UTC() },
		logger:       logger,
		idleAfter:    idleAfter,
		maxReminders: maxReminders,
		sweepLimit:   sweepLimit,
	}, nil
}

// DispatchReminders queues one reminder per eligible idle cart and returns the
// number queued. Per-cart failures are logged and skipped so one broken cart
// cannot stall the sweep.
func (d *cartReminderDispatcher) DispatchReminders(ctx context.Context) (int, error) {
	now := d.now()
	carts, err := d.carts.ListAbandoned(ctx, now.Add(-d.idleAfter), d.maxReminders, d.sweepLimit)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, cart := range carts {
		if len(cart.Items) == 0 {
			continue
		}
		// A cart reminded more recently than the idle window waits for the
		// next sweep.
		if !cart.ReminderSentAt.IsZero() && now.Sub(cart.ReminderSentAt) < d.idleAfter {
			continue
		}

		user, err := d.users.FindByID(ctx, cart.UserID)
		if err != nil || user.Email == "" {
			d.logger(ctx, cartEventReminderFailed, map[string]any{
				"cartId": cart.ID,
				"userId": cart.UserID,
				"reason": "no deliverable address",
			})
			continue
		}

		msg := CartReminderMessage{
			CartID:    cart.ID,
			UserID:    cart.UserID,
			Email:     user.Email,
			ItemCount: len(cart.Items),
			Attempt:   cart.AbandonedReminderCount + 1,
			QueuedAt:  now,
		}
		if _, err := d.publisher.PublishCartReminder(ctx, msg); err != nil {
			d.logger(ctx, cartEventReminderFailed, map[string]any{
				"cartId": cart.ID,
				"error":  err.Error(),
			})
			continue
		}

		cart.ReminderSentAt = now
		cart.AbandonedReminderCount++
		cart.UpdatedAt = now
		if err := d.carts.Update(ctx, cart); err != nil {
			d.logger(ctx, cartEventReminderFailed, map[string]any{
				"cartId": cart.ID,
				"error":  err.Error(),
			})
			continue
		}

		d.logger(ctx, cartEventReminderQueued, map[string]any{
			"cartId":  cart.ID,
			"userId":  cart.UserID,
			"attempt": msg.Attempt,
		})
		queued++
	}
	return queued, nil
}
