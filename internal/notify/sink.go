package notify

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/meddesk/consultq/internal/domain"
)

// Message is one event rendered for a single recipient.
type Message struct {
	RecipientID string             `json:"-"`
	QueueItemID string             `json:"queue_item_id"`
	Type        domain.EventType   `json:"type"`
	ItemStatus  domain.QueueStatus `json:"item_status"`
	Title       string             `json:"title"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// Sink receives rendered messages. Delivery is at-least-once: a sink may
// see the same message again after a worker crash and must tolerate it.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

var titleCaser = cases.Title(language.English)

// renderTitle turns "queue_item.accepted" into "Queue Item Accepted".
func renderTitle(t domain.EventType) string {
	s := strings.NewReplacer(".", " ", "_", " ").Replace(string(t))
	return titleCaser.String(s)
}

func messageFor(item *OutboxItem, recipientID string) Message {
	return Message{
		RecipientID: recipientID,
		QueueItemID: item.QueueItemID,
		Type:        item.Type,
		ItemStatus:  item.ItemStatus,
		Title:       renderTitle(item.Type),
		OccurredAt:  item.OccurredAt,
	}
}
