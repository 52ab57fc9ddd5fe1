package testutil

import (
	"context"
	"sync"

	"modq-go/internal/modq"
)

// FakeNotifier records delivered notifications.
type FakeNotifier struct {
	mu    sync.Mutex
	sent  []modq.Notification
	Err   error
	// FailFor lists identities whose delivery should fail, for testing
	// per-notification isolation.
	FailFor map[string]error
}

var _ modq.Notifier = (*FakeNotifier)(nil)

func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{}
}

func (n *FakeNotifier) Notify(ctx context.Context, note modq.Notification) error {
	if n.Err != nil {
		return n.Err
	}
	if err, ok := n.FailFor[note.Identity]; ok {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

// Sent returns a copy of the delivered notifications.
func (n *FakeNotifier) Sent() []modq.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]modq.Notification, len(n.sent))
	copy(out, n.sent)
	return out
}
