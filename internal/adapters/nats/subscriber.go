package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/placefinder/internal/core/domain"
	"github.com/samirrijal/placefinder/internal/pkg/logging"
)

// Subscriber implements ports.EventSubscriber with plain NATS subscriptions,
// so every process receives every event.
type Subscriber struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewSubscriber wraps an existing connection.
func NewSubscriber(conn *nats.Conn) *Subscriber {
	return &Subscriber{conn: conn}
}

// SubscribePlaceRegistered calls handler for every places.registered event.
// Malformed payloads are logged and dropped.
func (s *Subscriber) SubscribePlaceRegistered(ctx context.Context, handler func(ctx context.Context, place *domain.Place) error) error {
	log := logging.FromContext(ctx)
	sub, err := s.conn.Subscribe(SubjectPlaceRegistered, func(msg *nats.Msg) {
		var place domain.Place
		if err := json.Unmarshal(msg.Data, &place); err != nil {
			log.Warn("drop malformed place event", "error", err)
			return
		}
		if err := handler(ctx, &place); err != nil {
			log.Warn("place event handler", "place_id", place.ID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectPlaceRegistered, err)
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return nil
}

// Close unsubscribes every subscription. The connection is left open.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}
