// Package notify доставляет уведомления пользователям через Telegram.
// telegram.go отправляет сообщения и отвечает на /start, чтобы пользователь
// узнал свой chat id для привязки в профиле.
package notify

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// maxInflight ограничивает число одновременно обрабатываемых апдейтов.
const maxInflight = 16

// Telegram — клиент бота напоминаний.
type Telegram struct {
	bot      *telego.Bot
	inflight chan struct{}
}

// NewTelegram создаёт клиента по токену бота.
func NewTelegram(token string) (*Telegram, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram-бота: %w", err)
	}
	return &Telegram{bot: bot, inflight: make(chan struct{}, maxInflight)}, nil
}

// Send отправляет текст в чат.
func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	if _, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		return fmt.Errorf("ошибка отправки в чат %d: %w", chatID, err)
	}
	return nil
}

// Run слушает апдейты до отмены ctx. Блокирующий вызов.
func (t *Telegram) Run(ctx context.Context) error {
	updates, err := t.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка запуска long polling: %w", err)
	}

	log.Info("Telegram-бот напоминаний запущен")
	for {
		select {
		case <-ctx.Done():
			log.Info("Telegram-бот останавливается (ctx done)...")
			return nil
		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return nil
			}
			t.inflight <- struct{}{}
			go func(upd telego.Update) {
				defer func() { <-t.inflight }()
				defer recoverFromPanic()
				t.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update telego.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}

	log.WithFields(log.Fields{
		"chat_id": msg.Chat.ID,
		"text":    msg.Text,
	}).Debug("Входящее сообщение")

	if reply, ok := StartReply(msg.Chat.ID, msg.Text); ok {
		if err := t.Send(ctx, msg.Chat.ID, reply); err != nil {
			log.WithError(err).Warn("Не удалось ответить на /start")
		}
	}
}

// StartReply возвращает ответ на команду /start (в том числе /start@bot).
func StartReply(chatID int64, text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	if cmd != "/start" {
		return "", false
	}
	return fmt.Sprintf(
		"👋 Привет! Твой chat id: %d\nУкажи его в профиле трекера привычек, и я буду напоминать об огоньках, которые вот-вот погаснут.",
		chatID,
	), true
}

func recoverFromPanic() {
	if r := recover(); r != nil {
		log.WithFields(log.Fields{
			"panic": r,
			"stack": string(debug.Stack()),
		}).Error("ПАНИКА в обработчике Telegram, восстановлено")
	}
}
