package engine

import (
	"fmt"
	"testing"

	"github.com/m3rciful/soundloader/internal/event"
	"github.com/m3rciful/soundloader/internal/media"
	"github.com/m3rciful/soundloader/internal/storage"
)

func existingUserSession(chatID int64) *fakeSession {
	return &fakeSession{
		user:      &storage.User{UserID: chatID, FirstName: "Test", Language: "en"},
		hasAdmins: true,
		userCount: 1,
	}
}

// driveToAwaitLink selects the live service from the main menu.
func driveToAwaitLink(t *testing.T, bot *fakeBot, w *Worker) {
	t.Helper()
	loc := testLocalizer(t)
	w.Deliver(event.CallbackQuery{Update: 10, QueryID: "q-svc", SenderID: w.chatID, Data: "service:soundcloud"})
	waitUntil(t, func() bool { return bot.countSent(loc.Get("msg_link")) == 1 })
}

func TestFirstUserPromotedOwner(t *testing.T) {
	bot := &fakeBot{}
	sess := &fakeSession{}
	deps := newTestDeps(t, bot, sess)
	loc := testLocalizer(t)

	w := startTestWorker(t, deps, 1)
	defer w.Stop(event.StopRequest)

	promoted := sess.promotedIDs()
	if len(promoted) != 1 || promoted[0] != 1 {
		t.Fatalf("promoted = %v", promoted)
	}
	waitUntil(t, func() bool { return bot.countSent(loc.Get("conversation_open_admin_menu")) == 1 })
	// The first user is the only admin; nobody else gets a broadcast.
	if got := bot.countSentTo(1); got != 1 {
		t.Fatalf("messages to chat 1 = %d", got)
	}
}

func TestNewUserBroadcastToAdmins(t *testing.T) {
	bot := &fakeBot{}
	sess := &fakeSession{
		hasAdmins: true,
		admins:    []storage.Admin{{UserID: 999, IsOwner: true}},
		userCount: 4,
	}
	deps := newTestDeps(t, bot, sess)
	loc := testLocalizer(t)

	w := startTestWorker(t, deps, 1)
	defer w.Stop(event.StopRequest)

	want := loc.Get("new_user_in", "new", "user_1 (Test)", "number", "5")
	waitUntil(t, func() bool { return bot.countSentTo(999) == 1 })
	if got := bot.countSent(want); got != 1 {
		t.Fatalf("broadcast text not found, sent: %v", bot.sentTexts())
	}
}

func TestCancelWhileAwaitingLinkReturnsToMenu(t *testing.T) {
	bot := &fakeBot{}
	deps := newTestDeps(t, bot, existingUserSession(1))
	loc := testLocalizer(t)
	menu := loc.Get("conversation_open_user_menu")

	w := startTestWorker(t, deps, 1)
	defer w.Stop(event.StopRequest)
	waitUntil(t, func() bool { return bot.countSent(menu) == 1 })
	driveToAwaitLink(t, bot, w)

	w.Cancel()
	waitUntil(t, func() bool {
		return bot.countSent(loc.Get("cancelled")) == 1 && bot.countSent(menu) == 2
	})
}

func TestAwaitLinkRetriesThenFinalNotice(t *testing.T) {
	bot := &fakeBot{}
	deps := newTestDeps(t, bot, existingUserSession(1))
	loc := testLocalizer(t)
	invalid := loc.Get("invalid_link")
	menu := loc.Get("conversation_open_user_menu")

	w := startTestWorker(t, deps, 1)
	defer w.Stop(event.StopRequest)
	waitUntil(t, func() bool { return bot.countSent(menu) == 1 })
	driveToAwaitLink(t, bot, w)

	for i := 0; i < maxLinkRetries; i++ {
		w.Deliver(event.TextMessage{Update: 20 + i, ChatID: 1, Text: "not a link", Private: true, Sender: eventSender(1)})
	}

	// One inline notice per failed attempt plus the unconditional one after
	// the loop.
	waitUntil(t, func() bool {
		return bot.countSent(invalid) == maxLinkRetries+1 && bot.countSent(menu) == 2
	})
}

func TestLinkAcceptedOnLastAttemptStillNotices(t *testing.T) {
	bot := &fakeBot{}
	deps := newTestDeps(t, bot, existingUserSession(1))
	url := "https://soundcloud.com/artist/track"
	item := media.Item{Title: "Track", SourceURL: url, Uploader: "Artist"}
	deps.Pipeline = &fakePipeline{results: map[string]*media.Resolved{
		url: {Kind: media.KindSingle, Item: &item},
	}}
	loc := testLocalizer(t)
	invalid := loc.Get("invalid_link")
	detail := loc.Get("item_caption", "title", "Track", "url", url)

	w := startTestWorker(t, deps, 1)
	defer w.Stop(event.StopRequest)
	driveToAwaitLink(t, bot, w)

	w.Deliver(event.TextMessage{Update: 20, ChatID: 1, Text: "nope", Private: true, Sender: eventSender(1)})
	w.Deliver(event.TextMessage{Update: 21, ChatID: 1, Text: "still no", Private: true, Sender: eventSender(1)})
	w.Deliver(event.TextMessage{Update: 22, ChatID: 1, Text: url, Private: true, Sender: eventSender(1)})

	waitUntil(t, func() bool { return bot.countSent(detail) == 1 })
	if got := bot.countSent(invalid); got != maxLinkRetries {
		t.Fatalf("invalid notices = %d, want %d", got, maxLinkRetries)
	}
}

func TestPlaylistResolvesWithSequentialProgress(t *testing.T) {
	bot := &fakeBot{}
	deps := newTestDeps(t, bot, existingUserSession(1))
	url := "https://soundcloud.com/artist/sets/best-of"
	deps.Pipeline = &fakePipeline{
		results: map[string]*media.Resolved{
			url: {
				Kind:      media.KindPlaylist,
				Title:     "Best Of",
				SourceURL: url,
				Entries:   []media.Entry{{URL: "e1"}, {URL: "e2"}, {URL: "e3"}},
			},
		},
		items: []media.Item{{Title: "One"}, {Title: "Two"}, {Title: "Three"}},
	}
	loc := testLocalizer(t)

	w := startTestWorker(t, deps, 1)
	defer w.Stop(event.StopRequest)
	driveToAwaitLink(t, bot, w)
	w.Deliver(event.TextMessage{Update: 20, ChatID: 1, Text: url, Private: true, Sender: eventSender(1)})

	waitUntil(t, func() bool { return bot.countSent(loc.Get("list_caption")) == 1 })

	edits := bot.editTexts()
	wantEdits := []string{
		loc.Get("album_caption", "title", "Best Of", "tracks", "3", "url", url),
		loc.Get("get_information", "track", "1", "all_tracks", "3"),
		loc.Get("get_information", "track", "2", "all_tracks", "3"),
		loc.Get("get_information", "track", "3", "all_tracks", "3"),
	}
	if len(edits) != len(wantEdits) {
		t.Fatalf("edits = %v", edits)
	}
	for i, want := range wantEdits {
		if edits[i] != want {
			t.Fatalf("edit %d = %q, want %q", i, edits[i], want)
		}
	}

	list := bot.lastSent()
	if list.opts == nil || list.opts.Keyboard == nil {
		t.Fatal("list message carries no keyboard")
	}
	rows := list.opts.Keyboard.Inline
	// Three titles in two columns plus the cancel row; no navigation at a
	// single page.
	if len(rows) != 3 {
		t.Fatalf("list rows = %d", len(rows))
	}
	if rows[0][0].Data != "item:0" || rows[0][0].Text != "One" {
		t.Fatalf("first button = %+v", rows[0][0])
	}
	if last := rows[len(rows)-1]; len(last) != 1 || last[0].Data != actionCancel {
		t.Fatalf("last row = %+v", last)
	}
}

func TestListKeyboardPaginationBounds(t *testing.T) {
	loc := testLocalizer(t)
	items := make([]media.Item, 20)
	for i := range items {
		items[i].Title = fmt.Sprintf("Track %d", i)
	}

	page0 := listKeyboard(loc, items, 0).Inline
	var page0Data []string
	for _, row := range page0 {
		for _, b := range row {
			page0Data = append(page0Data, b.Data)
		}
	}
	if contains(page0Data, "page:-1") {
		t.Fatal("previous offered at page 0")
	}
	if !contains(page0Data, "page:1") {
		t.Fatalf("next missing at page 0: %v", page0Data)
	}

	page1 := listKeyboard(loc, items, 1).Inline
	var page1Data []string
	for _, row := range page1 {
		for _, b := range row {
			page1Data = append(page1Data, b.Data)
		}
	}
	if !contains(page1Data, "page:0") {
		t.Fatalf("previous missing at last page: %v", page1Data)
	}
	if contains(page1Data, "page:2") {
		t.Fatal("next offered past the end")
	}
	if !contains(page1Data, "item:19") || contains(page1Data, "item:20") {
		t.Fatalf("wrong items on last page: %v", page1Data)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func TestDownloadSendsAudioWithMetadata(t *testing.T) {
	bot := &fakeBot{}
	deps := newTestDeps(t, bot, existingUserSession(1))
	url := "https://soundcloud.com/artist/track"
	item := media.Item{
		Title:     "Track",
		SourceURL: url,
		Uploader:  "Artist",
		Formats: []media.Format{
			{Bitrate: 320, Container: "mp3", URL: "https://cdn/a"},
			{Bitrate: 320, Container: "mp3", URL: "https://cdn/b"},
			{Bitrate: 128, Container: "mp3", URL: "https://cdn/c"},
		},
		Thumbnails: []media.Thumbnail{{Width: 500, URL: "https://img/t"}},
	}
	deps.Pipeline = &fakePipeline{results: map[string]*media.Resolved{
		url: {Kind: media.KindSingle, Item: &item},
	}}
	loc := testLocalizer(t)
	detail := loc.Get("item_caption", "title", "Track", "url", url)

	w := startTestWorker(t, deps, 1)
	defer w.Stop(event.StopRequest)
	driveToAwaitLink(t, bot, w)
	w.Deliver(event.TextMessage{Update: 20, ChatID: 1, Text: url, Private: true, Sender: eventSender(1)})
	waitUntil(t, func() bool { return bot.countSent(detail) == 1 })

	// Duplicate (bitrate, container) pairs collapse to one button.
	detailMsg := bot.lastSent()
	var formatButtons int
	for _, row := range detailMsg.opts.Keyboard.Inline {
		for _, b := range row {
			if b.Data == "fmt:0" || b.Data == "fmt:1" || b.Data == "fmt:2" {
				formatButtons++
			}
		}
	}
	if formatButtons != 2 {
		t.Fatalf("format buttons = %d, want 2", formatButtons)
	}

	w.Deliver(event.CallbackQuery{Update: 21, QueryID: "q-fmt", SenderID: 1, Data: "fmt:0"})
	waitUntil(t, func() bool { return bot.audioCount() == 1 })

	bot.mu.Lock()
	audio := bot.audios[0]
	bot.mu.Unlock()
	if audio.Title != "Track" || audio.Performer != "Artist" {
		t.Fatalf("audio metadata = %+v", audio)
	}
	if audio.FileName != "Track.mp3" {
		t.Fatalf("file name = %q", audio.FileName)
	}
	if len(audio.Thumbnail) == 0 {
		t.Fatal("audio sent without thumbnail bytes")
	}
}

func TestAdminMenuDiscardsCancel(t *testing.T) {
	bot := &fakeBot{}
	sess := existingUserSession(1)
	sess.admin = &storage.Admin{UserID: 1, IsOwner: true}
	deps := newTestDeps(t, bot, sess)
	loc := testLocalizer(t)

	w := startTestWorker(t, deps, 1)
	defer w.Stop(event.StopRequest)
	waitUntil(t, func() bool { return bot.countSent(loc.Get("conversation_open_admin_menu")) == 1 })

	w.Cancel()
	w.Deliver(event.TextMessage{Update: 20, ChatID: 1, Text: loc.Get("menu_user_mode"), Private: true, Sender: eventSender(1)})

	waitUntil(t, func() bool {
		return bot.countSent(loc.Get("conversation_switch_to_user_mode")) == 1 &&
			bot.countSent(loc.Get("conversation_open_user_menu")) == 1
	})
	if got := bot.countSent(loc.Get("cancelled")); got != 0 {
		t.Fatalf("cancel was not discarded, notices = %d", got)
	}
}

func TestDonateFlow(t *testing.T) {
	bot := &fakeBot{}
	deps := newTestDeps(t, bot, existingUserSession(1))
	deps.Payments = Payments{ProviderToken: "tok", Currency: "EUR", Amounts: []int{100, 500}}
	loc := testLocalizer(t)

	w := startTestWorker(t, deps, 1)
	defer w.Stop(event.StopRequest)
	waitUntil(t, func() bool { return bot.countSent(loc.Get("conversation_open_user_menu")) == 1 })

	w.Deliver(event.CallbackQuery{Update: 10, QueryID: "q-d", SenderID: 1, Data: actionDonate})
	waitUntil(t, func() bool { return bot.countSent(loc.Get("donate_choose_amount")) == 1 })

	w.Deliver(event.CallbackQuery{Update: 11, QueryID: "q-a", SenderID: 1, Data: "amount:500"})
	waitUntil(t, func() bool { return len(bot.invoiceList()) == 1 })

	inv := bot.invoiceList()[0]
	if inv.Amount != 500 || inv.Currency != "EUR" || inv.Payload == "" {
		t.Fatalf("invoice = %+v", inv)
	}
	if w.InvoicePayload() != inv.Payload {
		t.Fatalf("worker payload %q, invoice payload %q", w.InvoicePayload(), inv.Payload)
	}

	w.Deliver(event.PreCheckoutQuery{Update: 12, QueryID: "q-pc", SenderID: 1, InvoicePayload: inv.Payload, Currency: "EUR", Total: 500})
	waitUntil(t, func() bool { return bot.countSent(loc.Get("donate_thanks")) == 1 })

	answers := bot.precheckAnswers()
	if len(answers) != 1 || !answers[0].ok {
		t.Fatalf("pre-checkout answers = %+v", answers)
	}
	if w.InvoicePayload() != "" {
		t.Fatal("invoice payload not cleared after checkout")
	}
}
