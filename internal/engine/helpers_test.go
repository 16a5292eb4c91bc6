package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/soundloader/core/telegram"
	"github.com/m3rciful/soundloader/internal/event"
	"github.com/m3rciful/soundloader/internal/locale"
	"github.com/m3rciful/soundloader/internal/media"
	"github.com/m3rciful/soundloader/internal/storage"
)

type sentMsg struct {
	chatID int64
	text   string
	opts   *telegram.SendOptions
	ref    telegram.MessageRef
}

type editMsg struct {
	ref  telegram.MessageRef
	text string
}

type precheckoutAnswer struct {
	queryID string
	ok      bool
	message string
}

// fakeBot records every outbound call. Workers run on their own goroutines,
// so all access is guarded.
type fakeBot struct {
	mu        sync.Mutex
	nextMsgID int
	sent      []sentMsg
	edits     []editMsg
	deleted   []telegram.MessageRef
	answered  []string
	precheck  []precheckoutAnswer
	photos    [][]byte
	audios    []telegram.AudioUpload
	invoices  []telegram.Invoice
}

func (b *fakeBot) FetchEvents(_ context.Context, cursor int, _ time.Duration) ([]event.Event, int, error) {
	return nil, cursor, nil
}

func (b *fakeBot) SendText(_ context.Context, chatID int64, text string, opts *telegram.SendOptions) (telegram.MessageRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextMsgID++
	ref := telegram.MessageRef{ChatID: chatID, MessageID: b.nextMsgID}
	b.sent = append(b.sent, sentMsg{chatID: chatID, text: text, opts: opts, ref: ref})
	return ref, nil
}

func (b *fakeBot) EditText(_ context.Context, ref telegram.MessageRef, text string, _ *telegram.Keyboard) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edits = append(b.edits, editMsg{ref: ref, text: text})
	return nil
}

func (b *fakeBot) EditKeyboard(_ context.Context, ref telegram.MessageRef, _ *telegram.Keyboard) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edits = append(b.edits, editMsg{ref: ref})
	return nil
}

func (b *fakeBot) Delete(_ context.Context, ref telegram.MessageRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, ref)
	return nil
}

func (b *fakeBot) AnswerCallback(_ context.Context, queryID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answered = append(b.answered, queryID)
	return nil
}

func (b *fakeBot) AnswerPreCheckout(_ context.Context, queryID string, ok bool, errorMessage string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.precheck = append(b.precheck, precheckoutAnswer{queryID: queryID, ok: ok, message: errorMessage})
	return nil
}

func (b *fakeBot) SendAudio(_ context.Context, _ int64, audio telegram.AudioUpload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audios = append(b.audios, audio)
	return nil
}

func (b *fakeBot) SendPhoto(_ context.Context, _ int64, photo []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.photos = append(b.photos, photo)
	return nil
}

func (b *fakeBot) SendInvoice(_ context.Context, chatID int64, inv telegram.Invoice) (telegram.MessageRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextMsgID++
	b.invoices = append(b.invoices, inv)
	return telegram.MessageRef{ChatID: chatID, MessageID: b.nextMsgID}, nil
}

func (b *fakeBot) sentTexts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.sent))
	for i, m := range b.sent {
		out[i] = m.text
	}
	return out
}

func (b *fakeBot) countSent(text string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.sent {
		if m.text == text {
			n++
		}
	}
	return n
}

func (b *fakeBot) countSentTo(chatID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.sent {
		if m.chatID == chatID {
			n++
		}
	}
	return n
}

func (b *fakeBot) lastSent() sentMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) == 0 {
		return sentMsg{}
	}
	return b.sent[len(b.sent)-1]
}

func (b *fakeBot) editTexts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.edits))
	for i, e := range b.edits {
		out[i] = e.text
	}
	return out
}

func (b *fakeBot) precheckAnswers() []precheckoutAnswer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]precheckoutAnswer(nil), b.precheck...)
}

func (b *fakeBot) invoiceList() []telegram.Invoice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]telegram.Invoice(nil), b.invoices...)
}

func (b *fakeBot) audioCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.audios)
}

// fakeSession is an in-memory StoreSession shared by every worker of a test.
type fakeSession struct {
	mu        sync.Mutex
	user      *storage.User
	admin     *storage.Admin
	hasAdmins bool
	admins    []storage.Admin
	userCount int
	promoted  []int64
	closed    int
}

func (s *fakeSession) GetUser(_ context.Context, userID int64) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != nil && s.user.UserID == userID {
		return s.user, nil
	}
	return nil, nil
}

func (s *fakeSession) CreateUser(_ context.Context, u *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
	s.userCount++
	return nil
}

func (s *fakeSession) GetAdmin(_ context.Context, userID int64) (*storage.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admin != nil && s.admin.UserID == userID {
		return s.admin, nil
	}
	return nil, nil
}

func (s *fakeSession) HasAdmins(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasAdmins, nil
}

func (s *fakeSession) ListAdmins(_ context.Context) ([]storage.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.Admin(nil), s.admins...), nil
}

func (s *fakeSession) CountUsers(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userCount, nil
}

func (s *fakeSession) PromoteAdmin(_ context.Context, userID int64, isOwner bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promoted = append(s.promoted, userID)
	s.admin = &storage.Admin{UserID: userID, IsOwner: isOwner}
	s.hasAdmins = true
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) closedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) promotedIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.promoted...)
}

type fakeStore struct {
	session *fakeSession
}

func (s *fakeStore) Session(_ context.Context) (StoreSession, error) {
	return s.session, nil
}

// fakePipeline maps URLs to scripted resolutions.
type fakePipeline struct {
	results map[string]*media.Resolved
	items   []media.Item
}

func (p *fakePipeline) Resolve(_ context.Context, url string) (*media.Resolved, error) {
	if res, ok := p.results[url]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("no scripted result for %s", url)
}

func (p *fakePipeline) ResolveEntries(_ context.Context, entries []media.Entry, progress media.Progress) ([]media.Item, error) {
	for i := range entries {
		if progress != nil {
			progress(i+1, len(entries))
		}
	}
	return p.items, nil
}

type fetcherFunc func(ctx context.Context, url string, headers map[string]string) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return f(ctx, url, headers)
}

type thumbValidator bool

func (v thumbValidator) Valid(context.Context, string) bool { return bool(v) }

func newTestDeps(t *testing.T, bot *fakeBot, sess *fakeSession) *Deps {
	t.Helper()
	outbox := telegram.NewOutbox(telegram.OutboxOptions{QueueSize: 32, Workers: 1})
	t.Cleanup(outbox.Close)
	return &Deps{
		Bot:      bot,
		Outbox:   outbox,
		Store:    &fakeStore{session: sess},
		Pipeline: &fakePipeline{results: map[string]*media.Resolved{}},
		Download: fetcherFunc(func(context.Context, string, map[string]string) ([]byte, error) {
			return []byte("payload"), nil
		}),
		Thumbs:              thumbValidator(true),
		DefaultLanguage:     "en",
		FallbackLanguage:    "en",
		ConversationTimeout: 5 * time.Second,
	}
}

func testLocalizer(t *testing.T) *locale.Localizer {
	t.Helper()
	loc, err := locale.New("en", "en")
	if err != nil {
		t.Fatalf("localizer: %v", err)
	}
	return loc
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func eventSender(id int64) event.UserInfo {
	return event.UserInfo{ID: id, FirstName: "Test", LanguageCode: "en"}
}

func startTestWorker(t *testing.T, deps *Deps, chatID int64) *Worker {
	t.Helper()
	w := NewWorker(chatID, eventSender(chatID), deps)
	w.Start(context.Background())
	waitUntil(t, func() bool { return w.IsReady() || w.IsStopped() })
	if !w.IsReady() {
		t.Fatal("worker stopped during bootstrap")
	}
	return w
}
