package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	telegramPollTimeout  = 30
	telegramSendAttempts = 3
)

type telegramPlatform struct {
	token string
	api   *tgbotapi.BotAPI
}

// NewTelegramPlatform returns a Platform backed by the Telegram Bot API
// with long polling.
func NewTelegramPlatform(token string) Platform {
	return &telegramPlatform{token: token}
}

func (t *telegramPlatform) Connect(ctx context.Context) error {
	_ = ctx
	// NewBotAPI calls getMe, so a revoked token fails here, not later.
	api, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram auth: %w", err)
	}
	t.api = api
	return nil
}

func (t *telegramPlatform) Updates(ctx context.Context) (<-chan Update, error) {
	if t.api == nil {
		return nil, fmt.Errorf("telegram: not connected")
	}
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = telegramPollTimeout
	raw := t.api.GetUpdatesChan(cfg)

	out := make(chan Update)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-raw:
				if !ok {
					return
				}
				if upd.Message == nil {
					continue
				}
				msg := upd.Message
				converted := Update{
					ChatID: msg.Chat.ID,
					Text:   msg.Text,
				}
				if msg.Contact != nil {
					converted.Contact = &Contact{
						Phone:       msg.Contact.PhoneNumber,
						FirstName:   msg.Contact.FirstName,
						LastName:    msg.Contact.LastName,
						DisplayName: strings.TrimSpace(msg.Contact.FirstName + " " + msg.Contact.LastName),
					}
				}
				select {
				case out <- converted:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *telegramPlatform) SendText(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	return t.send(ctx, msg)
}

func (t *telegramPlatform) RequestContact(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonContact("Share phone number"),
		),
	)
	return t.send(ctx, msg)
}

// send delivers one message, backing off on platform rate limiting instead
// of failing the turn outright.
func (t *telegramPlatform) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	if t.api == nil {
		return fmt.Errorf("telegram: not connected")
	}
	var lastErr error
	for attempt := 0; attempt < telegramSendAttempts; attempt++ {
		_, err := t.api.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		wait := time.Duration(attempt+1) * time.Second
		if tgErr, ok := err.(*tgbotapi.Error); ok && tgErr.RetryAfter > 0 {
			wait = time.Duration(tgErr.RetryAfter) * time.Second
		}
		logutil.GetLogger(ctx).Warn("telegram send failed, backing off",
			zap.Int64("chat_id", msg.ChatID), zap.Duration("wait", wait), zap.Error(err))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (t *telegramPlatform) Close() error {
	if t.api != nil {
		t.api.StopReceivingUpdates()
	}
	return nil
}
