package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"cronbeat/internal/domain"
)

func setupTestBroker(t *testing.T) (*RedisBroker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	broker, err := NewRedisBroker("redis://"+mr.Addr(), "celery")
	if err != nil {
		t.Fatalf("NewRedisBroker: %v", err)
	}
	t.Cleanup(func() { broker.Close() })
	return broker, mr
}

func TestNewRedisBrokerInvalidURL(t *testing.T) {
	if _, err := NewRedisBroker("not-a-url", ""); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestNewRedisBrokerUnreachable(t *testing.T) {
	_, err := NewRedisBroker("redis://127.0.0.1:1", "")
	if !errors.Is(err, domain.ErrDispatchUnavailable) {
		t.Fatalf("got %v, want ErrDispatchUnavailable", err)
	}
}

func TestDispatchStoresBodyAndQueuesID(t *testing.T) {
	broker, mr := setupTestBroker(t)
	ctx := context.Background()

	id, err := broker.Dispatch(ctx, Message{
		Task:   "tasks.process_user_data",
		Args:   json.RawMessage(`[42, "refresh"]`),
		Kwargs: json.RawMessage(`{"force": true}`),
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if id == "" {
		t.Fatal("empty dispatch id")
	}

	if !mr.Exists(broker.messageKey(id)) {
		t.Error("message body not stored")
	}
	queued, err := mr.List(broker.queueKey(""))
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	if len(queued) != 1 || queued[0] != id {
		t.Errorf("queue contents = %v, want [%s]", queued, id)
	}

	body, _ := mr.Get(broker.messageKey(id))
	var m Message
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if m.Task != "tasks.process_user_data" {
		t.Errorf("task = %q", m.Task)
	}
	if string(m.Args) != `[42, "refresh"]` {
		t.Errorf("args = %s", m.Args)
	}
}

func TestDispatchNamedQueue(t *testing.T) {
	broker, mr := setupTestBroker(t)

	id, err := broker.Dispatch(context.Background(), Message{Task: "tasks.report", Queue: "reports"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	queued, err := mr.List("cronbeat:queue:reports")
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	if len(queued) != 1 || queued[0] != id {
		t.Errorf("named queue contents = %v", queued)
	}
}

func TestDispatchExpiresSetsTTL(t *testing.T) {
	broker, mr := setupTestBroker(t)

	exp := time.Now().Add(time.Hour)
	id, err := broker.Dispatch(context.Background(), Message{Task: "tasks.report", Expires: &exp})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if mr.TTL(broker.messageKey(id)) <= 0 {
		t.Error("expected a TTL on the message body")
	}
}

func TestDispatchAlreadyExpired(t *testing.T) {
	broker, _ := setupTestBroker(t)

	exp := time.Now().Add(-time.Minute)
	if _, err := broker.Dispatch(context.Background(), Message{Task: "tasks.report", Expires: &exp}); err == nil {
		t.Fatal("expected error for already-expired message")
	}
}

func TestDispatchBrokerDown(t *testing.T) {
	broker, mr := setupTestBroker(t)
	mr.Close()

	_, err := broker.Dispatch(context.Background(), Message{Task: "tasks.report"})
	if !errors.Is(err, domain.ErrDispatchUnavailable) {
		t.Fatalf("got %v, want ErrDispatchUnavailable", err)
	}
}
