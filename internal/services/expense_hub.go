package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnshRaj112/expense-tracker-backend/internal/metrics"
	"github.com/AnshRaj112/expense-tracker-backend/internal/models"
)

const (
	expenseChannelPrefix  = "expenses:user:"
	expenseChannelPattern = expenseChannelPrefix + "*"
	subscriptionBuffer    = 16
)

// EventPublisher announces changes to a user's expenses.
type EventPublisher interface {
	Publish(ctx context.Context, event models.ExpenseEvent) error
}

// ExpenseHub delivers expense events to the owner's live connections. With a
// Redis client events go through pub/sub so every instance sees them;
// without one they are fanned out in-process.
type ExpenseHub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}

	redis *redis.Client
	log   *zap.Logger
}

// Subscription receives the events of one user until Close is called.
type Subscription struct {
	C <-chan models.ExpenseEvent

	ch     chan models.ExpenseEvent
	userID string
	hub    *ExpenseHub
	once   sync.Once
}

func NewExpenseHub(client *redis.Client, log *zap.Logger) *ExpenseHub {
	return &ExpenseHub{
		subs:  make(map[string]map[*Subscription]struct{}),
		redis: client,
		log:   log.Named("expense_hub"),
	}
}

// Subscribe registers a new listener for userID's events.
func (h *ExpenseHub) Subscribe(userID string) *Subscription {
	ch := make(chan models.ExpenseEvent, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, userID: userID, hub: h}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	metrics.WebSocketConnections.Inc()
	return sub
}

// Close unregisters the subscription and closes C. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if set, ok := h.subs[s.userID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.userID)
			}
		}
		close(s.ch)
		h.mu.Unlock()
		metrics.WebSocketConnections.Dec()
	})
}

// Subscribers returns the number of local listeners for userID.
func (h *ExpenseHub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Publish sends event to every listener of event.UserID.
func (h *ExpenseHub) Publish(ctx context.Context, event models.ExpenseEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	metrics.ExpenseEventsPublished.WithLabelValues(string(event.Type)).Inc()

	if h.redis == nil {
		h.fanOut(event)
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, expenseChannelPrefix+event.UserID, data).Err()
}

// fanOut delivers to local listeners. A listener whose buffer is full misses
// the event rather than stalling the publisher.
func (h *ExpenseHub) fanOut(event models.ExpenseEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[event.UserID] {
		select {
		case sub.ch <- event:
		default:
			h.log.Warn("dropping expense event for slow subscriber",
				zap.String("user_id", event.UserID),
				zap.String("type", string(event.Type)),
			)
		}
	}
}

// Run relays Redis messages to local listeners until ctx is done. It returns
// immediately when the hub has no Redis client.
func (h *ExpenseHub) Run(ctx context.Context) {
	if h.redis == nil {
		h.log.Info("redis not configured; expense events stay in-process")
		return
	}

	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		func() {
			pubsub := h.redis.PSubscribe(ctx, expenseChannelPattern)
			defer pubsub.Close()

			h.log.Info("expense event subscriber started", zap.String("pattern", expenseChannelPattern))

			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					h.log.Warn("redis subscriber error", zap.Error(err), zap.Duration("retry_in", backoff))
					select {
					case <-time.After(backoff):
					case <-ctx.Done():
					}
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
					return
				}

				backoff = time.Second

				var event models.ExpenseEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					h.log.Warn("failed to decode expense event", zap.Error(err))
					continue
				}
				h.fanOut(event)
			}
		}()
	}
}
