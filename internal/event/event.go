// Package event defines the inbound event union routed by the dispatcher and
// the control signals delivered through worker mailboxes.
package event

// Event is one inbound chat-platform event. Seq returns the transport
// sequence id used to advance the fetch cursor.
type Event interface {
	Seq() int
	sealed()
}

// UserInfo carries the sender identity needed for user registration.
type UserInfo struct {
	ID           int64
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
}

// TextMessage is a plain text message sent to the bot.
type TextMessage struct {
	Update    int
	ChatID    int64
	MessageID int
	Text      string
	Private   bool
	Sender    UserInfo
}

func (TextMessage) sealed()    {}
func (m TextMessage) Seq() int { return m.Update }

// CallbackQuery is an inline keyboard button press.
type CallbackQuery struct {
	Update   int
	QueryID  string
	SenderID int64
	Data     string
}

func (CallbackQuery) sealed()    {}
func (q CallbackQuery) Seq() int { return q.Update }

// PreCheckoutQuery is a payment confirmation request for an open invoice.
type PreCheckoutQuery struct {
	Update         int
	QueryID        string
	SenderID       int64
	InvoicePayload string
	Currency       string
	Total          int
}

func (PreCheckoutQuery) sealed()    {}
func (q PreCheckoutQuery) Seq() int { return q.Update }

// CancelSignal requests that the current wait point be abandoned.
type CancelSignal struct{}

// StopReason explains why a worker is asked to stop.
type StopReason string

const (
	// StopRequest is a stop issued by the dispatcher (new /start or shutdown).
	StopRequest StopReason = "request"
	// StopTimeout is a stop synthesized after a conversation idle timeout.
	StopTimeout StopReason = "timeout"
)

// StopSignal requests graceful worker termination.
type StopSignal struct {
	Reason StopReason
}
