package twin

import (
	"context"
	"encoding/json"
	"time"
)

// Badges shown to the user for the two delivery modes.
const (
	LiveBadge     = "Live: Aggiornamento in tempo reale"
	FallbackBadge = "Fallback: Verifica ogni 1 secondo"
)

// PollInterval is how often history is re-fetched while the socket is down.
const PollInterval = time.Second

// Indicator returns the badge for the realtime connection state.
func Indicator(connected bool) string {
	if connected {
		return LiveBadge
	}
	return FallbackBadge
}

// Watcher follows one conversation: pushed events while the socket is up,
// polling every PollInterval while it is down.
type Watcher struct {
	Client         *Client
	Subscriber     *Subscriber
	ConversationID string

	// OnMessage receives new and updated messages. It may be called from
	// the subscriber goroutine.
	OnMessage func(DirectMessage)
	// OnState receives the badge whenever it changes.
	OnState func(badge string)
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	newKey, updateKey := NewKey(w.ConversationID), UpdateKey(w.ConversationID)

	go w.Subscriber.Run(ctx, func(ev Event) {
		if ev.Event != newKey && ev.Event != updateKey {
			return
		}
		var msg DirectMessage
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			return
		}
		w.emit(msg)
	})

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	badge := ""
	seen := make(map[string]string)
	for {
		connected := w.Subscriber.IsConnected()
		if b := Indicator(connected); b != badge {
			badge = b
			if w.OnState != nil {
				w.OnState(badge)
			}
		}

		if !connected {
			if page, err := w.Client.ListDirectMessages(w.ConversationID, ""); err == nil {
				var changed []DirectMessage
				changed, seen = diffPage(seen, page.Items)
				for _, msg := range changed {
					w.emit(msg)
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Watcher) emit(msg DirectMessage) {
	if w.OnMessage != nil {
		w.OnMessage(msg)
	}
}

// diffPage returns the messages of a newest-first page that are new or edited
// since prev, oldest first, along with the content by id of this page only.
func diffPage(prev map[string]string, items []DirectMessage) ([]DirectMessage, map[string]string) {
	cur := make(map[string]string, len(items))
	var changed []DirectMessage
	for i := len(items) - 1; i >= 0; i-- {
		msg := items[i]
		cur[msg.ID] = msg.Content
		if content, ok := prev[msg.ID]; ok && content == msg.Content {
			continue
		}
		changed = append(changed, msg)
	}
	return changed, cur
}
