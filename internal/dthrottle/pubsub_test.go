package dthrottle

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryPubSub_DeliversToSubscribers(t *testing.T) {
	t.Parallel()

	ps := NewInMemoryPubSub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan []byte, 1)
	if err := ps.Subscribe(ctx, HeartbeatSubject, func(_ context.Context, payload []byte, local bool) {
		if !local {
			t.Errorf("want local delivery for an in-memory pubsub")
		}
		received <- payload
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	report := map[string]int{"john": 3}
	payload, err := EncodeReport(report)
	if err != nil {
		t.Fatalf("EncodeReport: %v", err)
	}
	if err := ps.Publish(ctx, HeartbeatSubject, payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-received:
		decoded, err := DecodeReport(got)
		if err != nil {
			t.Fatalf("DecodeReport: %v", err)
		}
		if decoded["john"] != 3 {
			t.Fatalf("decoded = %v, want john: 3", decoded)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestInMemoryPubSub_UnsubscribesOnContextDone(t *testing.T) {
	t.Parallel()

	ps := NewInMemoryPubSub()
	ctx, cancel := context.WithCancel(context.Background())

	calls := make(chan struct{}, 1)
	if err := ps.Subscribe(ctx, HeartbeatSubject, func(context.Context, []byte, bool) {
		calls <- struct{}{}
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()
	time.Sleep(10 * time.Millisecond)

	_ = ps.Publish(context.Background(), HeartbeatSubject, []byte("{}"))
	select {
	case <-calls:
		t.Fatal("handler invoked after context cancellation")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDecodeReport_Malformed(t *testing.T) {
	t.Parallel()

	if _, err := DecodeReport([]byte("not json")); err == nil {
		t.Fatal("want error for malformed payload")
	}
}
