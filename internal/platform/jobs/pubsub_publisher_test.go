package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/meridian-commerce/api/internal/services"
)

func newTestTopic(t *testing.T, name string) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() {
		_ = srv.Close()
	})

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	topic, err := client.CreateTopic(ctx, name)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	return srv, topic
}

func TestPubSubReminderPublisherPublishesMessage(t *testing.T) {
	srv, topic := newTestTopic(t, "cart-reminders")

	publisher, err := NewPubSubReminderPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubReminderPublisher: %v", err)
	}

	msg := services.CartReminderMessage{
		CartID:    "cart-1",
		UserID:    "user-1",
		Email:     "shopper@example.com",
		ItemCount: 2,
		Attempt:   1,
		QueuedAt:  time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
	}

	if _, err := publisher.PublishCartReminder(context.Background(), msg); err != nil {
		t.Fatalf("PublishCartReminder: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.CartReminderMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.CartID != msg.CartID || payload.Email != msg.Email {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["cartId"]; attr != "cart-1" {
		t.Fatalf("expected cartId attribute, got %q", attr)
	}
	if _, ok := messages[0].Attributes["email"]; ok {
		t.Fatalf("email attribute should not be present")
	}
}

func TestPubSubNotificationDispatcherPublishesEnvelope(t *testing.T) {
	srv, topic := newTestTopic(t, "notifications")

	dispatcher, err := NewPubSubNotificationDispatcher(topic)
	if err != nil {
		t.Fatalf("NewPubSubNotificationDispatcher: %v", err)
	}

	err = dispatcher.SendTransactional(context.Background(), "shopper@example.com", services.NotificationOrderPlaced, map[string]any{
		"orderId": "order-1",
	})
	if err != nil {
		t.Fatalf("SendTransactional: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if attr := messages[0].Attributes["kind"]; attr != string(services.NotificationOrderPlaced) {
		t.Fatalf("unexpected kind attribute %q", attr)
	}

	var envelope notificationEnvelope
	if err := json.Unmarshal(messages[0].Data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.To != "shopper@example.com" || envelope.Kind != "order_placed" {
		t.Fatalf("unexpected envelope %#v", envelope)
	}
	if envelope.Data["orderId"] != "order-1" {
		t.Fatalf("unexpected envelope data %#v", envelope.Data)
	}
}

func TestPubSubNotificationDispatcherRejectsEmptyKind(t *testing.T) {
	_, topic := newTestTopic(t, "notifications")

	dispatcher, err := NewPubSubNotificationDispatcher(topic)
	if err != nil {
		t.Fatalf("NewPubSubNotificationDispatcher: %v", err)
	}
	if err := dispatcher.SendTransactional(context.Background(), "a@b.c", "", nil); err == nil {
		t.Fatal("expected error for empty kind")
	}
}

func TestPubSubMailingListSyncPublishesUpsert(t *testing.T) {
	srv, topic := newTestTopic(t, "mailing-list-sync")

	sync, err := NewPubSubMailingListSync(topic)
	if err != nil {
		t.Fatalf("NewPubSubMailingListSync: %v", err)
	}

	profile := services.UserProfile{
		ID:            "user-1",
		Email:         "shopper@example.com",
		DisplayName:   "Shopper",
		MailingListID: "ml-9",
	}
	if err := sync.UpsertContact(context.Background(), profile, "profile_updated"); err != nil {
		t.Fatalf("UpsertContact: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if attr := messages[0].Attributes["tag"]; attr != "profile_updated" {
		t.Fatalf("unexpected tag attribute %q", attr)
	}

	var envelope mailingListEnvelope
	if err := json.Unmarshal(messages[0].Data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.UserID != "user-1" || envelope.MailingListID != "ml-9" {
		t.Fatalf("unexpected envelope %#v", envelope)
	}
}

func TestPubSubMailingListSyncRequiresEmail(t *testing.T) {
	_, topic := newTestTopic(t, "mailing-list-sync")

	sync, err := NewPubSubMailingListSync(topic)
	if err != nil {
		t.Fatalf("NewPubSubMailingListSync: %v", err)
	}
	if err := sync.UpsertContact(context.Background(), services.UserProfile{ID: "user-1"}, ""); err == nil {
		t.Fatal("expected error when email missing")
	}
}
