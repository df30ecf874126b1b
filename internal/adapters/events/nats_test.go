package events

import (
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

type published struct {
	subject string
	payload []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data any) error {
	if f.err != nil {
		return f.err
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	f.msgs = append(f.msgs, published{subject, b})
	return nil
}

func TestSubscriber_Subjects(t *testing.T) {
	pub := &fakePublisher{}
	s := newSubscriber(pub, "c1", SubscriberOptions{PublishDeltas: true}, zap.NewNop())

	s.OnStatusChanged(entities.StatusRetrieving)
	s.OnStreamDelta("Hel")
	s.OnMessageAppended(entities.Message{ID: "m1", Role: entities.RoleAssistant, Content: "Hello"})

	want := []string{
		"ragchat.conversation.c1.status",
		"ragchat.conversation.c1.delta",
		"ragchat.conversation.c1.message",
	}
	if len(pub.msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(pub.msgs))
	}
	for i, subject := range want {
		if pub.msgs[i].subject != subject {
			t.Errorf("message %d: subject %s, want %s", i, pub.msgs[i].subject, subject)
		}
	}
}

func TestSubscriber_Payload(t *testing.T) {
	pub := &fakePublisher{}
	s := newSubscriber(pub, "c1", SubscriberOptions{Prefix: "test"}, nil)

	s.OnStatusChanged(entities.StatusStreaming)

	var got struct {
		ConversationID string `json:"conversation_id"`
		Event          struct {
			Type   string `json:"type"`
			Status string `json:"status"`
		} `json:"event"`
	}
	if err := json.Unmarshal(pub.msgs[0].payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.ConversationID != "c1" || got.Event.Type != "status" || got.Event.Status != "streaming" {
		t.Errorf("unexpected payload: %s", pub.msgs[0].payload)
	}
	if pub.msgs[0].subject != "test.conversation.c1.status" {
		t.Errorf("unexpected subject: %s", pub.msgs[0].subject)
	}
}

func TestSubscriber_DeltasOptIn(t *testing.T) {
	pub := &fakePublisher{}
	s := newSubscriber(pub, "c1", SubscriberOptions{}, nil)

	s.OnStreamDelta("ignored")
	if len(pub.msgs) != 0 {
		t.Errorf("deltas should not be published by default, got %d", len(pub.msgs))
	}
}

func TestSubscriber_PublishErrorIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection closed")}
	s := newSubscriber(pub, "c1", SubscriberOptions{}, nil)

	// must not panic
	s.OnStatusChanged(entities.StatusIdle)
}
