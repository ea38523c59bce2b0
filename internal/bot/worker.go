package bot

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/askbase/askbase/internal/engine"
	"github.com/askbase/askbase/internal/model"
	appErr "github.com/askbase/askbase/internal/pkg/errors"
	"github.com/askbase/askbase/internal/pkg/password"
	"github.com/askbase/askbase/internal/session"
)

const (
	msgAskPassword     = "Welcome! Please enter the access password for this knowledge base."
	msgWrongPassword   = "Wrong password, please try again."
	msgTooManyAttempts = "Too many password attempts. Please wait a few minutes and try again."
	msgAskContact      = "Password accepted. Please share your phone number using the button below."
	msgNeedContact     = "Please share your phone number using the button below to finish signing in."
	msgWelcome         = "You're all set. Ask me anything about the loaded documents."
	msgAccessRevoked   = "Your access has been revoked. Contact the administrator."
	msgGenericFailure  = "Something went wrong while handling your message, please try again."
	msgUseStart        = "Send /start to begin."
)

const (
	defaultMailboxSize = 16
	defaultMailboxIdle = 30 * time.Minute
)

// Answerer is the answer pipeline entry point the worker calls on
// authenticated turns.
type Answerer interface {
	Answer(ctx context.Context, req *engine.Request) (*engine.Answer, error)
}

// SubscriberStore is the persistence the worker needs for bot users.
// *repo.SubscriberRepo satisfies it.
type SubscriberStore interface {
	GetByPhone(ctx context.Context, projectID, phone string) (*model.Subscriber, error)
	GetByChatID(ctx context.Context, projectID string, chatID int64) (*model.Subscriber, error)
	GetByID(ctx context.Context, subID string) (*model.Subscriber, error)
	Create(ctx context.Context, sub *model.Subscriber) error
	Update(ctx context.Context, subID string, update map[string]interface{}) error
}

// ProjectSource provides a fresh project row so password/template edits
// take effect without a worker restart.
type ProjectSource interface {
	GetByID(ctx context.Context, projectID string) (*model.Project, error)
}

// SettingsSource provides the global model assignment, read fresh per turn.
type SettingsSource interface {
	Get(ctx context.Context) (*model.ModelSettings, error)
}

type Config struct {
	StopGrace   time.Duration
	MailboxSize int
	MailboxIdle time.Duration
}

// Worker is the receive loop for one bot token. Messages of one chat are
// handled in arrival order on a dedicated mailbox goroutine; different
// chats proceed independently.
type Worker struct {
	project  *model.Project
	platform Platform
	answerer Answerer
	sessions *session.Store
	subs     SubscriberStore
	projects ProjectSource
	settings SettingsSource
	cfg      Config

	mu        sync.Mutex
	mailboxes map[int64]chan Update
	closed    bool
	wg        sync.WaitGroup
}

func NewWorker(project *model.Project, platform Platform, answerer Answerer,
	sessions *session.Store, subs SubscriberStore, projects ProjectSource,
	settings SettingsSource, cfg Config) *Worker {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 5 * time.Second
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = defaultMailboxSize
	}
	if cfg.MailboxIdle <= 0 {
		cfg.MailboxIdle = defaultMailboxIdle
	}
	return &Worker{
		project:   project,
		platform:  platform,
		answerer:  answerer,
		sessions:  sessions,
		subs:      subs,
		projects:  projects,
		settings:  settings,
		cfg:       cfg,
		mailboxes: make(map[int64]chan Update),
	}
}

// CleanupSessions sweeps this worker's expired sessions.
func (w *Worker) CleanupSessions() int { return w.sessions.CleanupExpired() }

// Run connects and pumps updates until ctx is cancelled or the platform
// stream ends. An authentication failure returns immediately; the worker
// never retries a bad token on its own.
func (w *Worker) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx).With(
		zap.String("project_id", w.project.ID),
		zap.String("project", w.project.Name),
	)
	if err := w.platform.Connect(ctx); err != nil {
		logger.Error("bot connect failed", zap.Error(err))
		return err
	}
	defer func() { _ = w.platform.Close() }()

	updates, err := w.platform.Updates(ctx)
	if err != nil {
		logger.Error("bot update stream failed", zap.Error(err))
		return err
	}
	logger.Info("bot worker started")

	for {
		select {
		case <-ctx.Done():
			w.drain(logger)
			logger.Info("bot worker stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				w.drain(logger)
				logger.Info("bot update stream closed")
				return nil
			}
			w.dispatch(ctx, upd)
		}
	}
}

// dispatch routes an update to its chat mailbox, creating the mailbox
// goroutine on first contact. A full mailbox drops the update; ordering
// within the chat is preserved either way. The non-blocking send happens
// under the lock so a retiring mailbox can never swallow a message.
func (w *Worker) dispatch(ctx context.Context, upd Update) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	box, ok := w.mailboxes[upd.ChatID]
	if !ok {
		box = make(chan Update, w.cfg.MailboxSize)
		w.mailboxes[upd.ChatID] = box
		w.wg.Add(1)
		go w.chatLoop(ctx, upd.ChatID, box)
	}

	select {
	case box <- upd:
	default:
		logutil.GetLogger(ctx).Warn("chat mailbox full, dropping message",
			zap.String("project_id", w.project.ID), zap.Int64("chat_id", upd.ChatID))
	}
}

func (w *Worker) chatLoop(ctx context.Context, chatID int64, box chan Update) {
	defer w.wg.Done()
	idle := time.NewTimer(w.cfg.MailboxIdle)
	defer idle.Stop()
	for {
		select {
		case upd, ok := <-box:
			if !ok {
				return
			}
			w.handleOne(ctx, upd)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(w.cfg.MailboxIdle)
		case <-idle.C:
			if w.retire(chatID, box) {
				return
			}
			idle.Reset(w.cfg.MailboxIdle)
		}
	}
}

// retire removes the mailbox of a chat that stayed idle for the configured
// period so quiet chats do not pin a goroutine and map entry for the life
// of the worker. It refuses when a message slipped in or when drain already
// owns the mailboxes.
func (w *Worker) retire(chatID int64, box chan Update) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || len(box) > 0 {
		return false
	}
	delete(w.mailboxes, chatID)
	return true
}

// drain closes all mailboxes and waits for in-flight handling up to the
// grace period, then gives up so the token can be reused.
func (w *Worker) drain(logger *zap.Logger) {
	w.mu.Lock()
	w.closed = true
	for _, box := range w.mailboxes {
		close(box)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(w.cfg.StopGrace):
		logger.Warn("bot worker stop grace exceeded, abandoning in-flight messages")
	}
}

// handleOne processes a single update. Any failure is logged and answered
// with a generic message; it never terminates the worker.
func (w *Worker) handleOne(ctx context.Context, upd Update) {
	logger := logutil.GetLogger(ctx).With(
		zap.String("project_id", w.project.ID),
		zap.Int64("chat_id", upd.ChatID),
	)
	if err := w.process(ctx, upd); err != nil {
		logger.Error("message handling failed", zap.Error(err))
		if err := w.platform.SendText(ctx, upd.ChatID, msgGenericFailure); err != nil {
			logger.Error("failure reply not delivered", zap.Error(err))
		}
	}
}

func (w *Worker) process(ctx context.Context, upd Update) error {
	sess := w.sessions.GetOrCreate(upd.ChatID)
	w.maybeResume(ctx, sess, upd.ChatID)

	switch sess.Stage() {
	case session.StageUnauthenticated:
		if isStartCommand(upd.Text) {
			sess.Advance(session.EventStart)
			return w.platform.SendText(ctx, upd.ChatID, msgAskPassword)
		}
		return w.platform.SendText(ctx, upd.ChatID, msgUseStart)
	case session.StageAwaitingPassword:
		return w.handlePassword(ctx, sess, upd)
	case session.StageAwaitingContact:
		return w.handleContact(ctx, sess, upd)
	case session.StageAuthenticated:
		return w.handleQuestion(ctx, sess, upd)
	default:
		return fmt.Errorf("unknown session stage: %v", sess.Stage())
	}
}

// maybeResume re-binds a known subscriber after a worker restart so users
// do not re-authenticate every deploy. Sessions live in memory only.
func (w *Worker) maybeResume(ctx context.Context, sess *session.Session, chatID int64) {
	if sess.Stage() != session.StageUnauthenticated || sess.SubscriberID() != "" {
		return
	}
	sub, err := w.subs.GetByChatID(ctx, w.project.ID, chatID)
	if err != nil {
		if !appErr.IsNotFound(err) {
			logutil.GetLogger(ctx).Warn("subscriber lookup failed", zap.Error(err))
		}
		return
	}
	sess.BindSubscriber(sub.ID)
	sess.Advance(session.EventStart)
	sess.Advance(session.EventPasswordOK)
	sess.Advance(session.EventContactShared)
}

func (w *Worker) handlePassword(ctx context.Context, sess *session.Session, upd Update) error {
	if isStartCommand(upd.Text) {
		sess.Advance(session.EventStart)
		return w.platform.SendText(ctx, upd.ChatID, msgAskPassword)
	}
	if !sess.PasswordAttemptAllowed() {
		return w.platform.SendText(ctx, upd.ChatID, msgTooManyAttempts)
	}
	project, err := w.freshProject(ctx)
	if err != nil {
		return err
	}
	if !password.Verify(project.AccessPassword, strings.TrimSpace(upd.Text)) {
		sess.Advance(session.EventPasswordBad)
		return w.platform.SendText(ctx, upd.ChatID, msgWrongPassword)
	}
	sess.Advance(session.EventPasswordOK)
	return w.platform.RequestContact(ctx, upd.ChatID, msgAskContact)
}

func (w *Worker) handleContact(ctx context.Context, sess *session.Session, upd Update) error {
	if upd.Contact == nil || strings.TrimSpace(upd.Contact.Phone) == "" {
		return w.platform.RequestContact(ctx, upd.ChatID, msgNeedContact)
	}
	sub, err := w.upsertSubscriber(ctx, upd.ChatID, upd.Contact)
	if err != nil {
		return fmt.Errorf("register subscriber: %w", err)
	}
	if sub.Status == model.SubscriberStatusBlocked {
		return w.platform.SendText(ctx, upd.ChatID, msgAccessRevoked)
	}
	sess.BindSubscriber(sub.ID)
	sess.Advance(session.EventContactShared)
	return w.platform.SendText(ctx, upd.ChatID, msgWelcome)
}

// upsertSubscriber creates the subscriber on first login or reuses the
// existing row for the phone, refreshing its chat binding.
func (w *Worker) upsertSubscriber(ctx context.Context, chatID int64, contact *Contact) (*model.Subscriber, error) {
	phone := strings.TrimSpace(contact.Phone)
	existing, err := w.subs.GetByPhone(ctx, w.project.ID, phone)
	if err == nil {
		if existing.ChatID != chatID {
			update := map[string]interface{}{"chat_id": chatID}
			if err := w.subs.Update(ctx, existing.ID, update); err != nil {
				return nil, err
			}
			existing.ChatID = chatID
		}
		return existing, nil
	}
	if !appErr.IsNotFound(err) {
		return nil, err
	}
	now := time.Now().Unix()
	sub := &model.Subscriber{
		ID:             newSubscriberID(),
		ProjectID:      w.project.ID,
		ChatID:         chatID,
		Phone:          phone,
		DisplayName:    contact.DisplayName,
		Status:         model.SubscriberStatusActive,
		FirstLoginTime: now,
		Ctime:          now,
	}
	if err := w.subs.Create(ctx, sub); err != nil {
		if appErr.IsConflict(err) {
			// Two chats raced on the same phone; the stored row wins.
			return w.subs.GetByPhone(ctx, w.project.ID, phone)
		}
		return nil, err
	}
	return sub, nil
}

func (w *Worker) handleQuestion(ctx context.Context, sess *session.Session, upd Update) error {
	// Blocked is checked on every turn so an admin block applies on the
	// subscriber's next message, not their next login.
	sub, err := w.subs.GetByID(ctx, sess.SubscriberID())
	if err != nil {
		return fmt.Errorf("subscriber gate: %w", err)
	}
	if sub.Status == model.SubscriberStatusBlocked {
		return w.platform.SendText(ctx, upd.ChatID, msgAccessRevoked)
	}

	question := strings.TrimSpace(upd.Text)
	if question == "" || isStartCommand(question) {
		sess.Touch()
		return w.platform.SendText(ctx, upd.ChatID, msgWelcome)
	}

	project, err := w.freshProject(ctx)
	if err != nil {
		return err
	}
	settings, err := w.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load model settings: %w", err)
	}
	answer, err := w.answerer.Answer(ctx, &engine.Request{
		Project:  project,
		Settings: *settings,
		History:  sess.History(),
		Question: question,
	})
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}
	if err := w.platform.SendText(ctx, upd.ChatID, answer.Text); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	if !answer.Unavailable {
		sess.RecordTurn(question, answer.Text)
	}
	return nil
}

// freshProject reads the current project row so password and template
// edits apply without a restart; the startup snapshot is the fallback
// when the read fails.
func (w *Worker) freshProject(ctx context.Context) (*model.Project, error) {
	project, err := w.projects.GetByID(ctx, w.project.ID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, err
		}
		logutil.GetLogger(ctx).Warn("project refresh failed, using snapshot", zap.Error(err))
		return w.project, nil
	}
	return project, nil
}

func isStartCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/start")
}

func newSubscriberID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
