package queue

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/core/ports"
)

// Outbox is a NotificationSender that records every message instead of
// delivering it, so development clients can fetch verification and reset
// tokens.
type Outbox struct {
	mu       sync.RWMutex
	messages map[string][]domain.Notification
	log      zerolog.Logger
}

var _ ports.NotificationSender = (*Outbox)(nil)

func NewOutbox(log zerolog.Logger) *Outbox {
	return &Outbox{messages: make(map[string][]domain.Notification), log: log}
}

func (o *Outbox) Send(_ context.Context, n domain.Notification) error {
	to := strings.ToLower(n.To)
	o.mu.Lock()
	o.messages[to] = append(o.messages[to], n)
	o.mu.Unlock()

	o.log.Info().Str("kind", string(n.Kind)).Str("to", to).Msg("notification recorded")
	return nil
}

// Messages returns the notifications recorded for an address, oldest first.
func (o *Outbox) Messages(to string) []domain.Notification {
	o.mu.RLock()
	defer o.mu.RUnlock()
	msgs := o.messages[strings.ToLower(to)]
	out := make([]domain.Notification, len(msgs))
	copy(out, msgs)
	return out
}

// Latest returns the newest notification of kind for an address.
func (o *Outbox) Latest(to string, kind domain.NotificationKind) (domain.Notification, bool) {
	msgs := o.Messages(to)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind == kind {
			return msgs[i], true
		}
	}
	return domain.Notification{}, false
}
