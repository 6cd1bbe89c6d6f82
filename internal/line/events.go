// ABOUTME: LINE webhook decoding into conversation events
// ABOUTME: Verifies the channel signature and maps message sources to origins

package line

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/2389/photoid-gateway/internal/conversation"
)

// ErrInvalidSignature is returned when the webhook signature does not match
// the channel secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ParseRequest verifies and decodes a webhook request. Events other than
// image and text messages are skipped.
func ParseRequest(channelSecret string, r *http.Request) ([]conversation.Event, error) {
	cb, err := webhook.ParseRequest(channelSecret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("parsing webhook: %w", err)
	}

	events := make([]conversation.Event, 0, len(cb.Events))
	for _, raw := range cb.Events {
		if ev, ok := toEvent(raw); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

func toEvent(raw webhook.EventInterface) (conversation.Event, bool) {
	msg, ok := raw.(webhook.MessageEvent)
	if !ok {
		return conversation.Event{}, false
	}

	ev := conversation.Event{
		ID:         msg.WebhookEventId,
		Origin:     toOrigin(msg.Source),
		ReplyToken: msg.ReplyToken,
	}

	switch content := msg.Message.(type) {
	case webhook.ImageMessageContent:
		ev.Kind = conversation.EventImage
		ev.ImageRef = content.Id
	case webhook.TextMessageContent:
		ev.Kind = conversation.EventText
		ev.Text = content.Text
	default:
		return conversation.Event{}, false
	}
	return ev, true
}

// toOrigin copies every id the source carries. Group and room sources
// include the sender's user id when the user has consented to share it, and
// conversation.Classify gives that id precedence.
func toOrigin(src webhook.SourceInterface) conversation.Origin {
	switch s := src.(type) {
	case webhook.UserSource:
		return conversation.Origin{UserID: s.UserId}
	case webhook.GroupSource:
		return conversation.Origin{UserID: s.UserId, GroupID: s.GroupId}
	case webhook.RoomSource:
		return conversation.Origin{UserID: s.UserId, RoomID: s.RoomId}
	default:
		return conversation.Origin{}
	}
}
