package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/meridian-commerce/api/internal/services"
)

// PubSubReminderPublisher publishes abandoned-cart reminder messages to a
// Pub/Sub topic consumed by the mail worker.
type PubSubReminderPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubReminderPublisher constructs a Pub/Sub backed reminder publisher.
func NewPubSubReminderPublisher(topic *pubsub.Topic) (*PubSubReminderPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub reminder publisher: topic is required")
	}
	return &PubSubReminderPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishCartReminder enqueues one reminder message on the configured topic.
func (p *PubSubReminderPublisher) PublishCartReminder(ctx context.Context, message services.CartReminderMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub reminder publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal cart reminder: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "cartId", message.CartID)
	setAttr(attrs, "userId", message.UserID)
	setAttr(attrs, "attempt", fmt.Sprintf("%d", message.Attempt))
	// The recipient address rides in the payload only so broker metadata
	// stays free of contact details.

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish cart reminder: %w", err)
	}
	return id, nil
}

// PubSubNotificationDispatcher delivers transactional notification messages
// through a Pub/Sub topic. Templating and actual delivery happen downstream.
type PubSubNotificationDispatcher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	now     func() time.Time
}

type notificationEnvelope struct {
	To       string         `json:"to,omitempty"`
	Kind     string         `json:"kind"`
	Data     map[string]any `json:"data,omitempty"`
	QueuedAt time.Time      `json:"queuedAt"`
}

// NewPubSubNotificationDispatcher constructs a Pub/Sub backed dispatcher.
func NewPubSubNotificationDispatcher(topic *pubsub.Topic) (*PubSubNotificationDispatcher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification dispatcher: topic is required")
	}
	return &PubSubNotificationDispatcher{
		topic:   topic,
		marshal: json.Marshal,
		now:     time.Now,
	}, nil
}

// SendTransactional enqueues one notification message.
func (p *PubSubNotificationDispatcher) SendTransactional(ctx context.Context, to string, kind services.NotificationKind, data map[string]any) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub notification dispatcher: not initialised")
	}
	if strings.TrimSpace(string(kind)) == "" {
		return errors.New("pubsub notification dispatcher: kind is required")
	}

	payload, err := p.marshal(notificationEnvelope{
		To:       strings.TrimSpace(to),
		Kind:     string(kind),
		Data:     data,
		QueuedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "kind", string(kind))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// PubSubMailingListSync mirrors profile changes to the mailing-list provider
// through a Pub/Sub topic consumed by the sync worker.
type PubSubMailingListSync struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

type mailingListEnvelope struct {
	UserID        string `json:"userId"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName,omitempty"`
	MailingListID string `json:"mailingListId,omitempty"`
	Tag           string `json:"tag,omitempty"`
}

// NewPubSubMailingListSync constructs a Pub/Sub backed mailing-list sync.
func NewPubSubMailingListSync(topic *pubsub.Topic) (*PubSubMailingListSync, error) {
	if topic == nil {
		return nil, errors.New("pubsub mailing list sync: topic is required")
	}
	return &PubSubMailingListSync{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// UpsertContact enqueues one contact upsert.
func (p *PubSubMailingListSync) UpsertContact(ctx context.Context, profile services.UserProfile, tag string) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub mailing list sync: not initialised")
	}
	if strings.TrimSpace(profile.Email) == "" {
		return errors.New("pubsub mailing list sync: email is required")
	}

	payload, err := p.marshal(mailingListEnvelope{
		UserID:        profile.ID,
		Email:         profile.Email,
		DisplayName:   profile.DisplayName,
		MailingListID: profile.MailingListID,
		Tag:           strings.TrimSpace(tag),
	})
	if err != nil {
		return fmt.Errorf("marshal mailing list upsert: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "userId", profile.ID)
	setAttr(attrs, "tag", tag)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish mailing list upsert: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

var (
	_ services.CartReminderPublisher  = (*PubSubReminderPublisher)(nil)
	_ services.NotificationDispatcher = (*PubSubNotificationDispatcher)(nil)
	_ services.MailingListSync        = (*PubSubMailingListSync)(nil)
)
