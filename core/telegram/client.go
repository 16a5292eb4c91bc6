package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/soundloader/internal/event"
)

// Client implements BotAPI on top of Telebot.
type Client struct {
	bot *tele.Bot
}

// NewClient builds a Telebot-backed client and verifies the token via getMe.
func NewClient(token string) (*Client, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Client: BuildHTTPClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return &Client{bot: bot}, nil
}

// Username reports the bot account name.
func (c *Client) Username() string {
	if c.bot.Me == nil {
		return ""
	}
	return c.bot.Me.Username
}

// FetchEvents performs one long-poll getUpdates round starting at cursor.
func (c *Client) FetchEvents(_ context.Context, cursor int, timeout time.Duration) ([]event.Event, int, error) {
	params := map[string]any{
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query", "pre_checkout_query"},
	}
	if cursor != 0 {
		params["offset"] = cursor
	}

	data, err := c.bot.Raw("getUpdates", params)
	if err != nil {
		return nil, cursor, fmt.Errorf("getUpdates: %w", err)
	}

	var resp struct {
		Result []tele.Update `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, cursor, fmt.Errorf("decode updates: %w", err)
	}

	next := cursor
	events := make([]event.Event, 0, len(resp.Result))
	for _, upd := range resp.Result {
		if upd.ID >= next {
			next = upd.ID + 1
		}
		if ev, ok := convertUpdate(upd); ok {
			events = append(events, ev)
		}
	}
	return events, next, nil
}

func convertUpdate(upd tele.Update) (event.Event, bool) {
	switch {
	case upd.Message != nil:
		msg := upd.Message
		ev := event.TextMessage{
			Update:    upd.ID,
			MessageID: msg.ID,
			Text:      msg.Text,
		}
		if msg.Chat != nil {
			ev.ChatID = msg.Chat.ID
			ev.Private = msg.Chat.Type == tele.ChatPrivate
		}
		if msg.Sender != nil {
			ev.Sender = event.UserInfo{
				ID:           msg.Sender.ID,
				FirstName:    msg.Sender.FirstName,
				LastName:     msg.Sender.LastName,
				Username:     msg.Sender.Username,
				LanguageCode: msg.Sender.LanguageCode,
			}
		}
		return ev, true
	case upd.Callback != nil:
		cb := upd.Callback
		ev := event.CallbackQuery{
			Update:  upd.ID,
			QueryID: cb.ID,
			Data:    cb.Data,
		}
		if cb.Sender != nil {
			ev.SenderID = cb.Sender.ID
		}
		return ev, true
	case upd.PreCheckoutQuery != nil:
		pcq := upd.PreCheckoutQuery
		ev := event.PreCheckoutQuery{
			Update:         upd.ID,
			QueryID:        pcq.ID,
			InvoicePayload: pcq.Payload,
			Currency:       pcq.Currency,
			Total:          pcq.Total,
		}
		if pcq.Sender != nil {
			ev.SenderID = pcq.Sender.ID
		}
		return ev, true
	}
	return nil, false
}

func storedMessage(ref MessageRef) tele.StoredMessage {
	return tele.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	}
}

// SendText sends an HTML-formatted text message.
func (c *Client) SendText(_ context.Context, chatID int64, text string, opts *SendOptions) (MessageRef, error) {
	sendOpts := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if opts != nil {
		sendOpts.ReplyMarkup = Markup(opts.Keyboard)
		if opts.ReplyTo != 0 {
			sendOpts.ReplyTo = &tele.Message{ID: opts.ReplyTo, Chat: &tele.Chat{ID: chatID}}
		}
	}
	msg, err := c.bot.Send(tele.ChatID(chatID), text, sendOpts)
	if err != nil {
		return MessageRef{}, fmt.Errorf("sendMessage: %w", err)
	}
	return MessageRef{ChatID: chatID, MessageID: msg.ID}, nil
}

// EditText replaces the text and keyboard of a previously sent message.
func (c *Client) EditText(_ context.Context, ref MessageRef, text string, kb *Keyboard) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, ReplyMarkup: Markup(kb)}
	if _, err := c.bot.Edit(storedMessage(ref), text, opts); err != nil {
		return fmt.Errorf("editMessageText: %w", err)
	}
	return nil
}

// EditKeyboard replaces only the inline keyboard of a message.
func (c *Client) EditKeyboard(_ context.Context, ref MessageRef, kb *Keyboard) error {
	if _, err := c.bot.EditReplyMarkup(storedMessage(ref), Markup(kb)); err != nil {
		return fmt.Errorf("editMessageReplyMarkup: %w", err)
	}
	return nil
}

// Delete removes a previously sent message.
func (c *Client) Delete(_ context.Context, ref MessageRef) error {
	if err := c.bot.Delete(storedMessage(ref)); err != nil {
		return fmt.Errorf("deleteMessage: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges an inline keyboard press.
func (c *Client) AnswerCallback(_ context.Context, queryID string) error {
	if err := c.bot.Respond(&tele.Callback{ID: queryID}, &tele.CallbackResponse{}); err != nil {
		return fmt.Errorf("answerCallbackQuery: %w", err)
	}
	return nil
}

// AnswerPreCheckout answers a pre-checkout query positively or with an error message.
func (c *Client) AnswerPreCheckout(_ context.Context, queryID string, ok bool, errorMessage string) error {
	query := &tele.PreCheckoutQuery{ID: queryID}
	var err error
	if ok {
		err = c.bot.Accept(query)
	} else {
		err = c.bot.Accept(query, errorMessage)
	}
	if err != nil {
		return fmt.Errorf("answerPreCheckoutQuery: %w", err)
	}
	return nil
}

// SendAudio uploads audio bytes as a playable attachment.
func (c *Client) SendAudio(_ context.Context, chatID int64, audio AudioUpload) error {
	attachment := &tele.Audio{
		File:      tele.FromReader(bytes.NewReader(audio.Data)),
		Caption:   audio.Caption,
		Title:     audio.Title,
		Performer: audio.Performer,
		FileName:  audio.FileName,
	}
	if len(audio.Thumbnail) > 0 {
		attachment.Thumbnail = &tele.Photo{File: tele.FromReader(bytes.NewReader(audio.Thumbnail))}
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if _, err := c.bot.Send(tele.ChatID(chatID), attachment, opts); err != nil {
		return fmt.Errorf("sendAudio: %w", err)
	}
	return nil
}

// SendPhoto uploads an image from memory.
func (c *Client) SendPhoto(_ context.Context, chatID int64, photo []byte) error {
	attachment := &tele.Photo{File: tele.FromReader(bytes.NewReader(photo))}
	if _, err := c.bot.Send(tele.ChatID(chatID), attachment); err != nil {
		return fmt.Errorf("sendPhoto: %w", err)
	}
	return nil
}

// SendInvoice opens a payment request in the chat.
func (c *Client) SendInvoice(_ context.Context, chatID int64, inv Invoice) (MessageRef, error) {
	invoice := &tele.Invoice{
		Title:       inv.Title,
		Description: inv.Description,
		Payload:     inv.Payload,
		Currency:    inv.Currency,
		Token:       inv.Token,
		Prices:      []tele.Price{{Label: inv.Label, Amount: inv.Amount}},
	}
	msg, err := c.bot.Send(tele.ChatID(chatID), invoice)
	if err != nil {
		return MessageRef{}, fmt.Errorf("sendInvoice: %w", err)
	}
	return MessageRef{ChatID: chatID, MessageID: msg.ID}, nil
}
