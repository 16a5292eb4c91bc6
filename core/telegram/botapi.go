package telegram

import (
	"context"
	"time"

	"github.com/m3rciful/soundloader/internal/event"
)

// MessageRef identifies a sent message for later edits and deletion.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is one inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Keyboard is the transport-agnostic reply markup model used by the engine.
// At most one of Inline, Reply, or Remove should be populated.
type Keyboard struct {
	Inline [][]Button
	Reply  [][]string
	Remove bool
}

// SendOptions tunes an outbound text message.
type SendOptions struct {
	Keyboard *Keyboard
	ReplyTo  int
}

// AudioUpload carries downloaded audio bytes and their metadata.
type AudioUpload struct {
	Data      []byte
	FileName  string
	Caption   string
	Title     string
	Performer string
	Thumbnail []byte
}

// Invoice describes a payment request for the donation flow.
type Invoice struct {
	Title       string
	Description string
	Payload     string
	Currency    string
	Token       string
	Label       string
	Amount      int
}

// BotAPI is the chat-platform boundary consumed by the dispatch engine.
// FetchEvents returns the next event batch together with the advanced cursor;
// the cursor moves past every received update, including kinds the engine
// does not model.
type BotAPI interface {
	FetchEvents(ctx context.Context, cursor int, timeout time.Duration) ([]event.Event, int, error)

	SendText(ctx context.Context, chatID int64, text string, opts *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, kb *Keyboard) error
	EditKeyboard(ctx context.Context, ref MessageRef, kb *Keyboard) error
	Delete(ctx context.Context, ref MessageRef) error

	AnswerCallback(ctx context.Context, queryID string) error
	AnswerPreCheckout(ctx context.Context, queryID string, ok bool, errorMessage string) error

	SendAudio(ctx context.Context, chatID int64, audio AudioUpload) error
	SendPhoto(ctx context.Context, chatID int64, photo []byte) error
	SendInvoice(ctx context.Context, chatID int64, inv Invoice) (MessageRef, error)
}
