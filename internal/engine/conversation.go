package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/m3rciful/soundloader/core/logger"
	"github.com/m3rciful/soundloader/core/telegram"
	"github.com/m3rciful/soundloader/internal/callbacks"
	"github.com/m3rciful/soundloader/internal/event"
	"github.com/m3rciful/soundloader/internal/locale"
	"github.com/m3rciful/soundloader/internal/media"
)

const (
	maxLinkRetries = 3
	itemsPerPage   = 15
	listColumns    = 2
)

// Callback actions. The dispatcher intercepts actionCancel and converts it
// into a cancel signal before it ever reaches a worker.
const (
	actionCancel  = "cancel"
	actionService = "service"
	actionDonate  = "donate"
	actionPage    = "page"
	actionItem    = "item"
	actionCover   = "cover"
	actionFormat  = "fmt"
	actionAmount  = "amount"
)

const serviceSoundcloud = "soundcloud"

var linkPattern = regexp.MustCompile(`https?://\S+`)

type phase int

const (
	phaseMainMenu phase = iota
	phaseAdminMenu
	phaseAwaitLink
	phaseLoading
	phaseItemList
	phaseItemDetail
	phaseDonate
	phaseExit
)

// conversation drives one worker's menu workflow as an explicit loop over a
// phase enum. Every blocking point goes through next(); a stop receipt at
// any of them ends the loop.
type conversation struct {
	w     *Worker
	admin bool

	pendingURL string
	items      []media.Item
	page       int
	listRef    telegram.MessageRef
	current    *media.Item
	fromList   bool

	stopReason event.StopReason
}

func newConversation(w *Worker, admin bool) *conversation {
	return &conversation{w: w, admin: admin}
}

// run executes phases until a stop receipt or an unrecoverable error.
func (c *conversation) run(ctx context.Context) (event.StopReason, error) {
	ph := phaseMainMenu
	if c.admin {
		ph = phaseAdminMenu
	}
	for {
		var err error
		switch ph {
		case phaseMainMenu:
			ph, err = c.mainMenu(ctx)
		case phaseAdminMenu:
			ph, err = c.adminMenu(ctx)
		case phaseAwaitLink:
			ph, err = c.awaitLink(ctx)
		case phaseLoading:
			ph, err = c.loading(ctx)
		case phaseItemList:
			ph, err = c.itemList(ctx)
		case phaseItemDetail:
			ph, err = c.itemDetail(ctx)
		case phaseDonate:
			ph, err = c.donate(ctx)
		default:
			return c.stopReason, fmt.Errorf("engine: unknown conversation phase %d", ph)
		}
		if err != nil {
			return c.stopReason, err
		}
		if ph == phaseExit {
			return c.stopReason, nil
		}
	}
}

// next blocks for the following mailbox item. Cancellation outside a
// cancellable checkpoint is discarded without disturbing the current phase.
func (c *conversation) next(ctx context.Context, cancellable bool) receipt {
	for {
		r := c.w.mbox.receive(c.w.deps.ConversationTimeout)
		if r.kind == receiptCancelled && !cancellable {
			logger.WRK.LogAttrs(ctx, slog.LevelDebug, "cancel.discarded")
			continue
		}
		if r.kind == receiptStopped {
			c.stopReason = r.reason
		}
		return r
	}
}

// waitCallback waits for an inline button press, acknowledging it. Events of
// other kinds are drained and ignored.
func (c *conversation) waitCallback(ctx context.Context, cancellable bool) (event.CallbackQuery, receipt) {
	for {
		r := c.next(ctx, cancellable)
		if r.kind != receiptDelivered {
			return event.CallbackQuery{}, r
		}
		cb, ok := r.event.(event.CallbackQuery)
		if !ok {
			continue
		}
		if err := c.w.deps.Bot.AnswerCallback(ctx, cb.QueryID); err != nil {
			logger.WRK.LogAttrs(ctx, slog.LevelWarn, "callback.answer.fail",
				slog.String("err", err.Error()),
			)
		}
		return cb, r
	}
}

// waitText waits for a free-text message. Stray button presses are
// acknowledged and ignored.
func (c *conversation) waitText(ctx context.Context, cancellable bool) (event.TextMessage, receipt) {
	for {
		r := c.next(ctx, cancellable)
		if r.kind != receiptDelivered {
			return event.TextMessage{}, r
		}
		switch ev := r.event.(type) {
		case event.TextMessage:
			return ev, r
		case event.CallbackQuery:
			if err := c.w.deps.Bot.AnswerCallback(ctx, ev.QueryID); err != nil {
				logger.WRK.LogAttrs(ctx, slog.LevelDebug, "callback.answer.fail",
					slog.String("err", err.Error()),
				)
			}
		}
	}
}

// say sends a localized message to the worker's chat.
func (c *conversation) say(ctx context.Context, kb *telegram.Keyboard, key string, subs ...string) (telegram.MessageRef, error) {
	var opts *telegram.SendOptions
	if kb != nil {
		opts = &telegram.SendOptions{Keyboard: kb}
	}
	return c.w.deps.Bot.SendText(ctx, c.w.chatID, c.w.loc.Get(key, subs...), opts)
}

func (c *conversation) mainMenu(ctx context.Context) (phase, error) {
	loc := c.w.loc
	buttons := []telegram.Button{
		{Text: loc.Get("menu_soundcloud"), Data: callbacks.Join(actionService, serviceSoundcloud)},
		{Text: loc.Get("menu_spotify"), Data: callbacks.Join(actionService, "spotify")},
		{Text: loc.Get("menu_youtube"), Data: callbacks.Join(actionService, "youtube")},
		{Text: loc.Get("menu_deezer"), Data: callbacks.Join(actionService, "deezer")},
	}
	if c.w.deps.Payments.Enabled() {
		buttons = append(buttons, telegram.Button{Text: loc.Get("menu_donate"), Data: actionDonate})
	}
	kb := &telegram.Keyboard{Inline: telegram.ChunkButtons(buttons, listColumns)}
	if _, err := c.say(ctx, kb, "conversation_open_user_menu"); err != nil {
		return 0, err
	}

	cb, r := c.waitCallback(ctx, true)
	switch r.kind {
	case receiptStopped:
		return phaseExit, nil
	case receiptCancelled:
		return phaseMainMenu, nil
	}

	switch callbacks.Action(cb.Data) {
	case actionService:
		service := callbacks.Payload(cb.Data)
		if service == serviceSoundcloud {
			return phaseAwaitLink, nil
		}
		if _, err := c.say(ctx, nil, "under_updating", "service", loc.Get("menu_"+service)); err != nil {
			return 0, err
		}
		return phaseMainMenu, nil
	case actionDonate:
		if c.w.deps.Payments.Enabled() {
			return phaseDonate, nil
		}
		return phaseMainMenu, nil
	default:
		return phaseMainMenu, nil
	}
}

func (c *conversation) adminMenu(ctx context.Context) (phase, error) {
	loc := c.w.loc
	kb := telegram.ReplyRows([]string{loc.Get("menu_user_mode")})
	if _, err := c.say(ctx, kb, "conversation_open_admin_menu"); err != nil {
		return 0, err
	}
	for {
		// A reply-keyboard wait is not a cancellation checkpoint; cancel
		// signals arriving here are discarded by next().
		msg, r := c.waitText(ctx, false)
		if r.kind == receiptStopped {
			return phaseExit, nil
		}
		if msg.Text == loc.Get("menu_user_mode") {
			if _, err := c.say(ctx, telegram.RemoveKeyboard(), "conversation_switch_to_user_mode"); err != nil {
				return 0, err
			}
			return phaseMainMenu, nil
		}
		// Anything else is not a menu action; keep waiting.
	}
}

func (c *conversation) awaitLink(ctx context.Context) (phase, error) {
	loc := c.w.loc
	kb := telegram.ReplyRows([]string{loc.Get("menu_cancel")})
	if _, err := c.say(ctx, kb, "msg_link"); err != nil {
		return 0, err
	}

	var target string
	for attempt := 1; attempt <= maxLinkRetries; attempt++ {
		msg, r := c.waitText(ctx, true)
		switch r.kind {
		case receiptStopped:
			return phaseExit, nil
		case receiptCancelled:
			if _, err := c.say(ctx, telegram.RemoveKeyboard(), "cancelled"); err != nil {
				return 0, err
			}
			return phaseMainMenu, nil
		}

		if url, ok := extractServiceLink(msg.Text); ok {
			target = url
			if attempt < maxLinkRetries {
				c.pendingURL = target
				return phaseLoading, nil
			}
			break
		}
		logger.WRK.LogAttrs(ctx, slog.LevelDebug, "link.invalid",
			slog.Int("attempt", attempt),
		)
		if _, err := c.say(ctx, nil, "invalid_link"); err != nil {
			return 0, err
		}
	}

	// The notice after the loop fires even when the last attempt produced a
	// valid link. Long-standing behavior, kept for regression compatibility.
	if _, err := c.say(ctx, telegram.RemoveKeyboard(), "invalid_link"); err != nil {
		return 0, err
	}
	if target != "" {
		c.pendingURL = target
		return phaseLoading, nil
	}
	return phaseMainMenu, nil
}

// extractServiceLink pulls the first URL out of free text and checks it
// belongs to the supported service.
func extractServiceLink(text string) (string, bool) {
	url := linkPattern.FindString(text)
	if url == "" || !strings.Contains(url, serviceSoundcloud) {
		return "", false
	}
	return url, true
}

func (c *conversation) loading(ctx context.Context) (phase, error) {
	loadRef, err := c.say(ctx, nil, "menu_loading")
	if err != nil {
		return 0, err
	}

	res, err := c.w.deps.Pipeline.Resolve(ctx, c.pendingURL)
	if err != nil {
		logger.EXT.LogAttrs(ctx, slog.LevelError, "resolve.fail",
			slog.String("url", c.pendingURL),
			slog.String("err", err.Error()),
		)
		if eerr := c.w.deps.Bot.EditText(ctx, loadRef, c.w.loc.Get("invalid_link"), nil); eerr != nil {
			return 0, eerr
		}
		return phaseMainMenu, nil
	}

	switch res.Kind {
	case media.KindSingle:
		c.deleteQuiet(ctx, loadRef)
		c.current = res.Item
		c.fromList = false
		return phaseItemDetail, nil
	case media.KindPlaylist:
		return c.loadPlaylist(ctx, loadRef, res)
	default:
		logger.EXT.LogAttrs(ctx, slog.LevelError, "resolve.unexpected_kind",
			slog.Int("kind", int(res.Kind)),
		)
		if eerr := c.w.deps.Bot.EditText(ctx, loadRef, c.w.loc.Get("invalid_link"), nil); eerr != nil {
			return 0, eerr
		}
		return phaseMainMenu, nil
	}
}

// loadPlaylist turns the loading message into an album summary and resolves
// every entry sequentially, reporting "k of n" progress on a dedicated
// message that is deleted when resolution finishes.
func (c *conversation) loadPlaylist(ctx context.Context, loadRef telegram.MessageRef, res *media.Resolved) (phase, error) {
	loc := c.w.loc
	summary := loc.Get("album_caption",
		"title", telegram.EscapeHTML(res.Title),
		"tracks", strconv.Itoa(len(res.Entries)),
		"url", res.SourceURL,
	)
	if err := c.w.deps.Bot.EditText(ctx, loadRef, summary, nil); err != nil {
		return 0, err
	}

	progRef, err := c.say(ctx, nil, "menu_loading")
	if err != nil {
		return 0, err
	}
	items, rerr := c.w.deps.Pipeline.ResolveEntries(ctx, res.Entries, func(current, total int) {
		text := loc.Get("get_information",
			"track", strconv.Itoa(current),
			"all_tracks", strconv.Itoa(total),
		)
		if err := c.w.deps.Bot.EditText(ctx, progRef, text, nil); err != nil {
			logger.WRK.LogAttrs(ctx, slog.LevelWarn, "progress.edit.fail",
				slog.String("err", err.Error()),
			)
		}
	})
	c.deleteQuiet(ctx, progRef)
	if rerr != nil {
		logger.EXT.LogAttrs(ctx, slog.LevelError, "resolve.entries.fail",
			slog.String("err", rerr.Error()),
		)
		if _, err := c.say(ctx, nil, "invalid_link"); err != nil {
			return 0, err
		}
		return phaseMainMenu, nil
	}

	c.items = items
	c.page = 0
	c.listRef = telegram.MessageRef{}
	return phaseItemList, nil
}

// listKeyboard renders one page of item titles as two-column buttons plus
// navigation. Previous appears only past page 0, Next only while more items
// remain, Cancel always.
func listKeyboard(loc *locale.Localizer, items []media.Item, page int) *telegram.Keyboard {
	start := page * itemsPerPage
	end := start + itemsPerPage
	if end > len(items) {
		end = len(items)
	}

	itemButtons := make([]telegram.Button, 0, end-start)
	for i := start; i < end; i++ {
		itemButtons = append(itemButtons, telegram.Button{
			Text: items[i].Title,
			Data: callbacks.JoinInt(actionItem, i),
		})
	}
	rows := telegram.ChunkButtons(itemButtons, listColumns)

	var nav []telegram.Button
	if page > 0 {
		nav = append(nav, telegram.Button{Text: loc.Get("menu_previous"), Data: callbacks.JoinInt(actionPage, page-1)})
	}
	if end < len(items) {
		nav = append(nav, telegram.Button{Text: loc.Get("menu_next"), Data: callbacks.JoinInt(actionPage, page+1)})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, []telegram.Button{{Text: loc.Get("menu_cancel"), Data: actionCancel}})
	return &telegram.Keyboard{Inline: rows}
}

func (c *conversation) itemList(ctx context.Context) (phase, error) {
	if c.page*itemsPerPage >= len(c.items) {
		c.page = 0
	}
	kb := listKeyboard(c.w.loc, c.items, c.page)

	if c.listRef == (telegram.MessageRef{}) {
		ref, err := c.say(ctx, kb, "list_caption")
		if err != nil {
			return 0, err
		}
		c.listRef = ref
	} else if err := c.w.deps.Bot.EditKeyboard(ctx, c.listRef, kb); err != nil {
		return 0, err
	}

	for {
		cb, r := c.waitCallback(ctx, true)
		switch r.kind {
		case receiptStopped:
			return phaseExit, nil
		case receiptCancelled:
			c.deleteQuiet(ctx, c.listRef)
			c.listRef = telegram.MessageRef{}
			return phaseMainMenu, nil
		}

		switch callbacks.Action(cb.Data) {
		case actionPage:
			p, err := callbacks.PayloadInt(cb.Data)
			if err != nil || p < 0 || p*itemsPerPage >= len(c.items) {
				continue
			}
			c.page = p
			return phaseItemList, nil
		case actionItem:
			i, err := callbacks.PayloadInt(cb.Data)
			if err != nil || i < 0 || i >= len(c.items) {
				continue
			}
			c.current = &c.items[i]
			c.fromList = true
			c.deleteQuiet(ctx, c.listRef)
			c.listRef = telegram.MessageRef{}
			return phaseItemDetail, nil
		}
	}
}

func (c *conversation) itemDetail(ctx context.Context) (phase, error) {
	loc := c.w.loc
	item := c.current
	formats := media.DedupFormats(item.Formats)
	best := media.BestThumbnail(ctx, item.Thumbnails, c.w.deps.Thumbs)

	var rows [][]telegram.Button
	if best != nil {
		rows = append(rows, []telegram.Button{{Text: loc.Get("download_cover"), Data: actionCover}})
	}
	formatButtons := make([]telegram.Button, 0, len(formats))
	for i, f := range formats {
		formatButtons = append(formatButtons, telegram.Button{
			Text: loc.Get("download_format", "format", f.Label()),
			Data: callbacks.JoinInt(actionFormat, i),
		})
	}
	rows = append(rows, telegram.ChunkButtons(formatButtons, listColumns)...)
	rows = append(rows, []telegram.Button{{Text: loc.Get("menu_cancel"), Data: actionCancel}})

	kb := &telegram.Keyboard{Inline: rows}
	ref, err := c.say(ctx, kb, "item_caption",
		"title", telegram.EscapeHTML(item.Title),
		"url", item.SourceURL,
	)
	if err != nil {
		return 0, err
	}

	for {
		cb, r := c.waitCallback(ctx, true)
		switch r.kind {
		case receiptStopped:
			return phaseExit, nil
		case receiptCancelled:
			c.deleteQuiet(ctx, ref)
			if c.fromList {
				c.page = 0
				return phaseItemList, nil
			}
			return phaseMainMenu, nil
		}

		switch callbacks.Action(cb.Data) {
		case actionCover:
			if best == nil {
				continue
			}
			if err := c.sendCover(ctx, item, best); err != nil {
				logger.WRK.LogAttrs(ctx, slog.LevelError, "cover.fail",
					slog.String("err", err.Error()),
				)
				if _, serr := c.say(ctx, nil, "invalid_link"); serr != nil {
					return 0, serr
				}
			}
			c.deleteQuiet(ctx, ref)
			return phaseMainMenu, nil
		case actionFormat:
			i, err := callbacks.PayloadInt(cb.Data)
			if err != nil || i < 0 || i >= len(formats) {
				continue
			}
			if err := c.sendAudio(ctx, item, formats[i], best); err != nil {
				logger.WRK.LogAttrs(ctx, slog.LevelError, "download.fail",
					slog.String("url", formats[i].URL),
					slog.String("err", err.Error()),
				)
				if _, serr := c.say(ctx, nil, "invalid_link"); serr != nil {
					return 0, serr
				}
			}
			c.deleteQuiet(ctx, ref)
			return phaseMainMenu, nil
		}
	}
}

func (c *conversation) sendCover(ctx context.Context, item *media.Item, best *media.Thumbnail) error {
	data, err := c.w.deps.Download.Fetch(ctx, best.URL, item.HTTPHeaders)
	if err != nil {
		return err
	}
	return c.w.deps.Bot.SendPhoto(ctx, c.w.chatID, data)
}

func (c *conversation) sendAudio(ctx context.Context, item *media.Item, f media.Format, best *media.Thumbnail) error {
	data, err := c.w.deps.Download.Fetch(ctx, f.URL, item.HTTPHeaders)
	if err != nil {
		return err
	}

	var thumb []byte
	if best != nil {
		thumb, err = c.w.deps.Download.Fetch(ctx, best.URL, item.HTTPHeaders)
		if err != nil {
			logger.WRK.LogAttrs(ctx, slog.LevelWarn, "thumbnail.fetch.fail",
				slog.String("err", err.Error()),
			)
			thumb = nil
		}
	}

	return c.w.deps.Bot.SendAudio(ctx, c.w.chatID, telegram.AudioUpload{
		Data:      data,
		FileName:  item.Title + "." + strings.ToLower(f.Container),
		Caption:   c.w.loc.Get("caption", "title", telegram.EscapeHTML(item.Title)),
		Title:     item.Title,
		Performer: item.Uploader,
		Thumbnail: thumb,
	})
}

func (c *conversation) donate(ctx context.Context) (phase, error) {
	loc := c.w.loc
	p := c.w.deps.Payments

	amountButtons := make([]telegram.Button, 0, len(p.Amounts))
	for _, a := range p.Amounts {
		amountButtons = append(amountButtons, telegram.Button{
			Text: formatAmount(a, p.Currency),
			Data: callbacks.JoinInt(actionAmount, a),
		})
	}
	rows := telegram.ChunkButtons(amountButtons, 3)
	rows = append(rows, []telegram.Button{{Text: loc.Get("menu_cancel"), Data: actionCancel}})
	if _, err := c.say(ctx, &telegram.Keyboard{Inline: rows}, "donate_choose_amount"); err != nil {
		return 0, err
	}

	cb, r := c.waitCallback(ctx, true)
	switch r.kind {
	case receiptStopped:
		return phaseExit, nil
	case receiptCancelled:
		if _, err := c.say(ctx, nil, "cancelled"); err != nil {
			return 0, err
		}
		return phaseMainMenu, nil
	}
	amount, err := callbacks.PayloadInt(cb.Data)
	if callbacks.Action(cb.Data) != actionAmount || err != nil || amount <= 0 {
		return phaseMainMenu, nil
	}

	payload := uuid.NewString()
	c.w.setInvoicePayload(payload)
	_, err = c.w.deps.Bot.SendInvoice(ctx, c.w.chatID, telegram.Invoice{
		Title:       loc.Get("donate_invoice_title"),
		Description: loc.Get("donate_invoice_description"),
		Payload:     payload,
		Currency:    p.Currency,
		Token:       p.ProviderToken,
		Label:       loc.Get("donate_label"),
		Amount:      amount,
	})
	if err != nil {
		c.w.setInvoicePayload("")
		logger.WRK.LogAttrs(ctx, slog.LevelError, "invoice.send.fail",
			slog.String("err", err.Error()),
		)
		return phaseMainMenu, nil
	}

	// Only a pre-checkout matching the recorded payload reaches the mailbox;
	// stale ones are rejected at the dispatcher.
	for {
		r := c.next(ctx, true)
		switch r.kind {
		case receiptStopped:
			c.w.setInvoicePayload("")
			return phaseExit, nil
		case receiptCancelled:
			c.w.setInvoicePayload("")
			if _, err := c.say(ctx, nil, "cancelled"); err != nil {
				return 0, err
			}
			return phaseMainMenu, nil
		}
		q, ok := r.event.(event.PreCheckoutQuery)
		if !ok {
			continue
		}
		if err := c.w.deps.Bot.AnswerPreCheckout(ctx, q.QueryID, true, ""); err != nil {
			logger.WRK.LogAttrs(ctx, slog.LevelError, "precheckout.answer.fail",
				slog.String("err", err.Error()),
			)
		}
		c.w.setInvoicePayload("")
		if _, err := c.say(ctx, nil, "donate_thanks"); err != nil {
			return 0, err
		}
		return phaseMainMenu, nil
	}
}

func formatAmount(minor int, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(minor)/100, currency)
}

func (c *conversation) deleteQuiet(ctx context.Context, ref telegram.MessageRef) {
	if ref == (telegram.MessageRef{}) {
		return
	}
	if err := c.w.deps.Bot.Delete(ctx, ref); err != nil {
		logger.WRK.LogAttrs(ctx, slog.LevelDebug, "message.delete.fail",
			slog.String("err", err.Error()),
		)
	}
}
