// Package notify delivers user-facing notifications through an explicit
// service interface instead of ambient lookups. The hub fans events out to
// every active subscriber of the target user.
package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"condoplex.org/internal/ids"
)

// Severity levels mirror what the dashboard renders as snackbar variants.
const (
	SeverityInfo    = "info"
	SeveritySuccess = "success"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

var ErrInvalidNotification = errors.New("notify: invalid notification")

// Notification is one message addressed to a user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Severity  string    `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// Service publishes notifications. Injected into handlers that need it.
type Service interface {
	Publish(ctx context.Context, n Notification) (Notification, error)
}

const subscriberBuffer = 16

// Hub fans notifications out to all active subscribers per user. Slow
// subscribers drop messages instead of blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan Notification
	next int
	now  func() time.Time
}

var _ Service = (*Hub)(nil)

// NewHub initialises an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[int]chan Notification),
		now:  time.Now,
	}
}

// Publish stamps and delivers a notification to every subscriber of its
// target user. A user with no subscribers is not an error; the message is
// simply not delivered anywhere.
func (h *Hub) Publish(_ context.Context, n Notification) (Notification, error) {
	n.UserID = strings.TrimSpace(n.UserID)
	n.Title = strings.TrimSpace(n.Title)
	if n.UserID == "" || n.Title == "" {
		return Notification{}, ErrInvalidNotification
	}
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}
	switch n.Severity {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
	default:
		return Notification{}, ErrInvalidNotification
	}
	if n.ID == "" {
		n.ID = ids.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = h.now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[n.UserID] {
		select {
		case ch <- n:
		default:
		}
	}
	return n, nil
}

// Subscribe registers a channel receiving the user's notifications. The
// returned function unsubscribes and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan Notification, func()) {
	ch := make(chan Notification, subscriberBuffer)

	h.mu.Lock()
	id := h.next
	h.next++
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan Notification)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if chans, ok := h.subs[userID]; ok {
			if _, ok := chans[id]; ok {
				delete(chans, id)
				close(ch)
			}
			if len(chans) == 0 {
				delete(h.subs, userID)
			}
		}
		h.mu.Unlock()
	}
}

// Subscribers reports the number of active subscribers for a user.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
