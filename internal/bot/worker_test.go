package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/askbase/askbase/internal/engine"
	"github.com/askbase/askbase/internal/model"
	appErr "github.com/askbase/askbase/internal/pkg/errors"
	"github.com/askbase/askbase/internal/pkg/password"
	"github.com/askbase/askbase/internal/session"
)

type sentMessage struct {
	chatID  int64
	text    string
	contact bool
}

type fakePlatform struct {
	connectErr error
	updates    chan Update

	mu   sync.Mutex
	sent []sentMessage
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{updates: make(chan Update, 16)}
}

func (f *fakePlatform) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakePlatform) Updates(ctx context.Context) (<-chan Update, error) {
	return f.updates, nil
}

func (f *fakePlatform) SendText(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakePlatform) RequestContact(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, contact: true})
	return nil
}

func (f *fakePlatform) Close() error { return nil }

func (f *fakePlatform) lastSent() (sentMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}, false
	}
	return f.sent[len(f.sent)-1], true
}

func (f *fakePlatform) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeSubscriberStore struct {
	mu   sync.Mutex
	subs map[string]*model.Subscriber
}

func newFakeSubscriberStore() *fakeSubscriberStore {
	return &fakeSubscriberStore{subs: make(map[string]*model.Subscriber)}
}

func (f *fakeSubscriberStore) GetByPhone(ctx context.Context, projectID, phone string) (*model.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.ProjectID == projectID && sub.Phone == phone {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeSubscriberStore) GetByChatID(ctx context.Context, projectID string, chatID int64) (*model.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.ProjectID == projectID && sub.ChatID == chatID {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeSubscriberStore) GetByID(ctx context.Context, subID string) (*model.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[subID]; ok {
		copied := *sub
		return &copied, nil
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeSubscriberStore) Create(ctx context.Context, sub *model.Subscriber) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *sub
	f.subs[sub.ID] = &copied
	return nil
}

func (f *fakeSubscriberStore) Update(ctx context.Context, subID string, update map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[subID]
	if !ok {
		return appErr.ErrNotFound
	}
	if v, ok := update["chat_id"]; ok {
		sub.ChatID = v.(int64)
	}
	if v, ok := update["status"]; ok {
		sub.Status = model.SubscriberStatus(v.(string))
	}
	return nil
}

func (f *fakeSubscriberStore) setStatus(t *testing.T, phone string, status model.SubscriberStatus) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.Phone == phone {
			sub.Status = status
			return
		}
	}
	t.Fatalf("no subscriber with phone %s", phone)
}

type fakeProjectSource struct {
	project *model.Project
}

func (f *fakeProjectSource) GetByID(ctx context.Context, projectID string) (*model.Project, error) {
	copied := *f.project
	return &copied, nil
}

type fakeSettingsSource struct{}

func (f *fakeSettingsSource) Get(ctx context.Context) (*model.ModelSettings, error) {
	return &model.ModelSettings{PrimaryModel: "model-a"}, nil
}

type fakeAnswerer struct {
	mu       sync.Mutex
	err      error
	requests []*engine.Request
}

func (f *fakeAnswerer) Answer(ctx context.Context, req *engine.Request) (*engine.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &engine.Answer{Text: "answer to: " + req.Question}, nil
}

type workerFixture struct {
	platform *fakePlatform
	subs     *fakeSubscriberStore
	answerer *fakeAnswerer
	worker   *Worker
	cancel   context.CancelFunc
	done     chan error
}

func startWorker(t *testing.T) *workerFixture {
	t.Helper()
	return startWorkerWith(t, Config{StopGrace: time.Second})
}

func startWorkerWith(t *testing.T, cfg Config) *workerFixture {
	t.Helper()
	hash, err := password.Hash("secret")
	require.NoError(t, err)
	project := &model.Project{
		ID:             "p1",
		Name:           "kb",
		AccessPassword: hash,
		BotToken:       "t1",
		Active:         true,
	}
	fx := &workerFixture{
		platform: newFakePlatform(),
		subs:     newFakeSubscriberStore(),
		answerer: &fakeAnswerer{},
		done:     make(chan error, 1),
	}
	fx.worker = NewWorker(
		project,
		fx.platform,
		fx.answerer,
		session.NewStore(project.ID, session.Config{}),
		fx.subs,
		&fakeProjectSource{project: project},
		&fakeSettingsSource{},
		cfg,
	)
	ctx, cancel := context.WithCancel(context.Background())
	fx.cancel = cancel
	go func() { fx.done <- fx.worker.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-fx.done:
		case <-time.After(3 * time.Second):
			t.Error("worker did not stop")
		}
	})
	return fx
}

func (fx *workerFixture) send(upd Update) {
	fx.platform.updates <- upd
}

func (fx *workerFixture) waitReply(t *testing.T, want int) sentMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fx.platform.sentCount() >= want {
			msg, _ := fx.platform.lastSent()
			return msg
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d replies, got %d", want, fx.platform.sentCount())
	return sentMessage{}
}

func (fx *workerFixture) authenticate(t *testing.T, chatID int64, phone string) int {
	t.Helper()
	fx.send(Update{ChatID: chatID, Text: "/start"})
	reply := fx.waitReply(t, 1)
	require.Equal(t, msgAskPassword, reply.text)

	fx.send(Update{ChatID: chatID, Text: "secret"})
	reply = fx.waitReply(t, 2)
	require.Equal(t, msgAskContact, reply.text)
	require.True(t, reply.contact)

	fx.send(Update{ChatID: chatID, Contact: &Contact{Phone: phone, FirstName: "Sam"}})
	reply = fx.waitReply(t, 3)
	require.Equal(t, msgWelcome, reply.text)
	return 3
}

func TestWorker_FailsFastOnBadToken(t *testing.T) {
	platform := newFakePlatform()
	platform.connectErr = errors.New("401 unauthorized")
	w := NewWorker(
		&model.Project{ID: "p1", BotToken: "bad"},
		platform,
		&fakeAnswerer{},
		session.NewStore("p1", session.Config{}),
		newFakeSubscriberStore(),
		&fakeProjectSource{project: &model.Project{ID: "p1"}},
		&fakeSettingsSource{},
		Config{},
	)
	err := w.Run(context.Background())
	require.ErrorContains(t, err, "401")
}

func TestWorker_FullAuthFlowAndAnswer(t *testing.T) {
	fx := startWorker(t)
	sent := fx.authenticate(t, 100, "+15550100")

	fx.send(Update{ChatID: 100, Text: "what is the refund policy?"})
	reply := fx.waitReply(t, sent+1)
	require.Equal(t, "answer to: what is the refund policy?", reply.text)

	// The turn lands in the dialogue history of the next request.
	fx.send(Update{ChatID: 100, Text: "and for digital goods?"})
	fx.waitReply(t, sent+2)
	fx.answerer.mu.Lock()
	defer fx.answerer.mu.Unlock()
	require.Len(t, fx.answerer.requests, 2)
	require.Len(t, fx.answerer.requests[1].History, 1)
	require.Equal(t, "what is the refund policy?", fx.answerer.requests[1].History[0].Question)
}

func TestWorker_WrongPassword(t *testing.T) {
	fx := startWorker(t)
	fx.send(Update{ChatID: 7, Text: "/start"})
	fx.waitReply(t, 1)

	fx.send(Update{ChatID: 7, Text: "nope"})
	reply := fx.waitReply(t, 2)
	require.Equal(t, msgWrongPassword, reply.text)

	// Still at the password stage; the correct one proceeds.
	fx.send(Update{ChatID: 7, Text: "secret"})
	reply = fx.waitReply(t, 3)
	require.Equal(t, msgAskContact, reply.text)
}

func TestWorker_MessageBeforeStart(t *testing.T) {
	fx := startWorker(t)
	fx.send(Update{ChatID: 9, Text: "hello?"})
	reply := fx.waitReply(t, 1)
	require.Equal(t, msgUseStart, reply.text)
}

func TestWorker_BlockedSubscriberGated(t *testing.T) {
	fx := startWorker(t)
	sent := fx.authenticate(t, 100, "+15550100")

	fx.subs.setStatus(t, "+15550100", model.SubscriberStatusBlocked)
	fx.send(Update{ChatID: 100, Text: "still there?"})
	reply := fx.waitReply(t, sent+1)
	require.Equal(t, msgAccessRevoked, reply.text)

	fx.answerer.mu.Lock()
	defer fx.answerer.mu.Unlock()
	require.Empty(t, fx.answerer.requests, "blocked users never reach the answer engine")
}

func TestWorker_UnblockedSubscriberServedAgain(t *testing.T) {
	fx := startWorker(t)
	sent := fx.authenticate(t, 100, "+15550100")

	fx.subs.setStatus(t, "+15550100", model.SubscriberStatusBlocked)
	fx.send(Update{ChatID: 100, Text: "q1"})
	fx.waitReply(t, sent+1)

	fx.subs.setStatus(t, "+15550100", model.SubscriberStatusActive)
	fx.send(Update{ChatID: 100, Text: "q2"})
	reply := fx.waitReply(t, sent+2)
	require.Equal(t, "answer to: q2", reply.text)
}

func TestWorker_AnswerFailureRepliesGenerically(t *testing.T) {
	fx := startWorker(t)
	sent := fx.authenticate(t, 100, "+15550100")

	fx.answerer.mu.Lock()
	fx.answerer.err = errors.New("engine exploded")
	fx.answerer.mu.Unlock()

	fx.send(Update{ChatID: 100, Text: "q1"})
	reply := fx.waitReply(t, sent+1)
	require.Equal(t, msgGenericFailure, reply.text)

	// The loop survives the failure.
	fx.answerer.mu.Lock()
	fx.answerer.err = nil
	fx.answerer.mu.Unlock()
	fx.send(Update{ChatID: 100, Text: "q2"})
	reply = fx.waitReply(t, sent+2)
	require.Equal(t, "answer to: q2", reply.text)
}

func TestWorker_KnownSubscriberResumesWithoutReauth(t *testing.T) {
	fx := startWorker(t)
	require.NoError(t, fx.subs.Create(context.Background(), &model.Subscriber{
		ID:        "sub1",
		ProjectID: "p1",
		ChatID:    100,
		Phone:     "+15550100",
		Status:    model.SubscriberStatusActive,
	}))

	fx.send(Update{ChatID: 100, Text: "straight to business"})
	reply := fx.waitReply(t, 1)
	require.Equal(t, "answer to: straight to business", reply.text)
}

func TestWorker_ContactReusedAcrossChats(t *testing.T) {
	fx := startWorker(t)
	fx.authenticate(t, 100, "+15550100")
	sent := fx.platform.sentCount()

	// Same phone from a new chat reuses the subscriber row.
	fx.send(Update{ChatID: 200, Text: "/start"})
	fx.waitReply(t, sent+1)
	fx.send(Update{ChatID: 200, Text: "secret"})
	fx.waitReply(t, sent+2)
	fx.send(Update{ChatID: 200, Contact: &Contact{Phone: "+15550100"}})
	fx.waitReply(t, sent+3)

	fx.subs.mu.Lock()
	defer fx.subs.mu.Unlock()
	require.Len(t, fx.subs.subs, 1)
	for _, sub := range fx.subs.subs {
		require.Equal(t, int64(200), sub.ChatID)
	}
}

func TestWorker_IdleMailboxReclaimed(t *testing.T) {
	fx := startWorkerWith(t, Config{StopGrace: time.Second, MailboxIdle: 20 * time.Millisecond})
	sent := fx.authenticate(t, 100, "+15550100")

	mailboxes := func() int {
		fx.worker.mu.Lock()
		defer fx.worker.mu.Unlock()
		return len(fx.worker.mailboxes)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && mailboxes() > 0 {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 0, mailboxes(), "idle chat should release its mailbox")

	// The next message from the same chat is served as usual.
	fx.send(Update{ChatID: 100, Text: "still here?"})
	reply := fx.waitReply(t, sent+1)
	require.Equal(t, "answer to: still here?", reply.text)
}

func TestWorker_PerChatOrdering(t *testing.T) {
	fx := startWorker(t)
	sent := fx.authenticate(t, 100, "+15550100")

	for i := 0; i < 5; i++ {
		fx.send(Update{ChatID: 100, Text: fmt.Sprintf("q%d", i)})
	}
	fx.waitReply(t, sent+5)

	fx.platform.mu.Lock()
	defer fx.platform.mu.Unlock()
	replies := fx.platform.sent[sent:]
	require.Len(t, replies, 5)
	for i, msg := range replies {
		require.Equal(t, fmt.Sprintf("answer to: q%d", i), msg.text)
	}
	require.True(t, strings.HasPrefix(replies[0].text, "answer to: q0"))
}
