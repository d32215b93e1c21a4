package session

import (
	"time"
)

const (
	ToastError   = "error"
	ToastSuccess = "success"
	ToastInfo    = "info"

	DefaultToastTTL = 3 * time.Second
)

// Toast is a transient message dismissed automatically at ExpiresAt.
type Toast struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type toastQueue struct {
	ttl   time.Duration
	items []Toast
}

func newToastQueue(ttl time.Duration) *toastQueue {
	if ttl <= 0 {
		ttl = DefaultToastTTL
	}
	return &toastQueue{ttl: ttl}
}

func (q *toastQueue) push(kind, msg string, now time.Time) {
	q.items = append(q.items, Toast{
		Kind:      kind,
		Message:   msg,
		CreatedAt: now,
		ExpiresAt: now.Add(q.ttl),
	})
}

// active drops expired toasts and returns a copy of the rest.
func (q *toastQueue) active(now time.Time) []Toast {
	kept := q.items[:0]
	for _, t := range q.items {
		if now.Before(t.ExpiresAt) {
			kept = append(kept, t)
		}
	}
	q.items = kept
	return append([]Toast{}, kept...)
}
