package dthrottle

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// HeartbeatSubject is the fixed subject peer instances publish and
// subscribe to (spec.md §4.6, §6).
const HeartbeatSubject = "DThrottle.Heartbeat"

// PubSub is the narrow transport interface the heartbeat glue uses to
// move reports between peer instances. The core treats this as an opaque
// external collaborator (spec.md §1) - it knows nothing about how
// messages actually reach other hosts.
//
// Grounded on pubsub_inmemory.go and the PubSub interface declared
// alongside it in the teacher (there: invalidation-event fan-out over a
// channel string; here: report fan-out over a fixed subject).
type PubSub interface {
	// Publish delivers payload to current subscribers of subject.
	Publish(ctx context.Context, subject string, payload []byte) error
	// Subscribe registers handler to receive payloads published to
	// subject. local reports whether the delivery originated from this
	// same PubSub instance, so callers can suppress self-delivery
	// (spec.md §4.6: "this instance must not debit itself from its own
	// published report").
	Subscribe(ctx context.Context, subject string, handler func(ctx context.Context, payload []byte, local bool)) error
}

// InMemoryPubSub fans messages out to in-process subscribers only. It is
// the default PubSub for a single standalone instance and for tests; a
// real deployment supplies a PubSub backed by whatever message bus the
// fleet already runs (the spec deliberately leaves that choice to the
// operator - see spec.md §1 "the pub/sub transport... is treated as an
// opaque collaborator").
//
// Grounded on pubsub_inmemory.go's InMemoryPubSub.
type InMemoryPubSub struct {
	mu   sync.Mutex
	subs map[string]map[int]*pubsubSubscription
	next int
}

type pubsubSubscription struct {
	ctx     context.Context
	handler func(context.Context, []byte, bool)
}

// NewInMemoryPubSub constructs an in-memory PubSub.
func NewInMemoryPubSub() *InMemoryPubSub {
	return &InMemoryPubSub{subs: make(map[string]map[int]*pubsubSubscription)}
}

// Subscribe registers handler for subject. The subscription is removed
// automatically when ctx is done.
func (ps *InMemoryPubSub) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte, bool)) error {
	if ps == nil {
		return errors.New("pubsub is nil")
	}
	if subject == "" {
		return errors.New("subject is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ps.mu.Lock()
	if ps.subs == nil {
		ps.subs = make(map[string]map[int]*pubsubSubscription)
	}
	ps.next++
	id := ps.next
	if ps.subs[subject] == nil {
		ps.subs[subject] = make(map[int]*pubsubSubscription)
	}
	ps.subs[subject][id] = &pubsubSubscription{ctx: ctx, handler: handler}
	ps.mu.Unlock()

	go func() {
		<-ctx.Done()
		ps.remove(subject, id)
	}()
	return nil
}

// Publish delivers payload to every current subscriber of subject,
// synchronously, flagging the delivery as local (spec.md §4.6): every
// subscriber of an InMemoryPubSub lives in this same process, so every
// delivery it makes is by definition local.
func (ps *InMemoryPubSub) Publish(ctx context.Context, subject string, payload []byte) error {
	if ps == nil {
		return errors.New("pubsub is nil")
	}
	if subject == "" {
		return errors.New("subject is required")
	}

	ps.mu.Lock()
	subs := ps.subs[subject]
	handlers := make([]*pubsubSubscription, 0, len(subs))
	for _, sub := range subs {
		handlers = append(handlers, sub)
	}
	ps.mu.Unlock()

	for _, sub := range handlers {
		if sub.ctx.Err() != nil {
			continue
		}
		data := make([]byte, len(payload))
		copy(data, payload)
		sub.handler(sub.ctx, data, true)
	}
	return nil
}

func (ps *InMemoryPubSub) remove(subject string, id int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	subs := ps.subs[subject]
	if subs == nil {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(ps.subs, subject)
	}
}

// EncodeReport marshals a report (tag -> hit count) for publication. The
// spec leaves the wire encoding to the external collaborator (spec.md
// §6); this repo's own transports use JSON.
func EncodeReport(report map[string]int) ([]byte, error) {
	return json.Marshal(report)
}

// DecodeReport unmarshals a report published by EncodeReport. Malformed
// entries are impossible to produce with this encoding by construction;
// a transport built on a different wire format should instead decode
// leniently and drop unparseable entries, matching spec.md §7
// ("Malformed gossip entry: skip the entry, process the rest").
func DecodeReport(payload []byte) (map[string]int, error) {
	var report map[string]int
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, err
	}
	return report, nil
}
