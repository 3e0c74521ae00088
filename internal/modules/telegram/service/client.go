package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jonkers71/unified-trading-system/internal/modules/config"
	"github.com/jonkers71/unified-trading-system/pkg/logger"
)

// AlertSink принимает сырые посты каналов. Сток — движок; интерфейс
// разрывает цикл конструкторов телеграм ↔ движок.
type AlertSink interface {
	OnAlert(text string, channelID int64)
}

// Telegram слушает посты отслеживаемых каналов и шлёт уведомления
// владельцу в личный чат.
type Telegram struct {
	bot   *tgbot.BotAPI
	cfg   *config.Config
	admin int64

	mu   sync.RWMutex
	sink AlertSink
}

func NewTelegram(cfg *config.Config) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	logger.Info("telegram connected as @%s", b.Self.UserName)

	return &Telegram{
		bot:   b,
		cfg:   cfg,
		admin: cfg.Telegram.AdminChatID,
	}, nil
}

// SetSink подключает получателя алертов. Вызывается до Start.
func (t *Telegram) SetSink(s AlertSink) {
	t.mu.Lock()
	t.sink = s
	t.mu.Unlock()
}

// Send — notify.Notifier: уведомление в личный чат владельца.
func (t *Telegram) Send(msg string) {
	if t.admin == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.admin, msg)); err != nil {
		logger.Error("telegram send: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...any) {
	t.Send(fmt.Sprintf(format, args...))
}

// Start блокируется на канале обновлений до Stop.
func (t *Telegram) Start(ctx context.Context) error {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "channel_post"}
	updates := t.bot.GetUpdatesChan(u)
	for update := range updates {
		t.handleUpdate(update)
	}
	return nil
}

func (t *Telegram) Stop() {
	t.bot.StopReceivingUpdates()
}

func (t *Telegram) handleUpdate(update tgbot.Update) {
	// Сигналы приходят постами каналов. Фильтр по id — в движке.
	if post := update.ChannelPost; post != nil && post.Text != "" {
		t.mu.RLock()
		sink := t.sink
		t.mu.RUnlock()
		if sink != nil {
			sink.OnAlert(post.Text, post.Chat.ID)
		}
		return
	}

	// Личные сообщения: служебные команды, только от владельца.
	if msg := update.Message; msg != nil && msg.IsCommand() {
		if msg.Chat.ID != t.admin {
			return
		}
		switch msg.Command() {
		case "start":
			t.Send("🤖 Движок на связи. /channels — список каналов.")
		case "channels":
			t.Send(t.channelList())
		}
	}
}

func (t *Telegram) channelList() string {
	var b strings.Builder
	b.WriteString("📥 Каналы под наблюдением:\n")
	for _, ch := range t.cfg.Channels {
		fmt.Fprintf(&b, "- %s (%s) %d\n", ch.Name, ch.Type, ch.ID)
	}
	return b.String()
}
