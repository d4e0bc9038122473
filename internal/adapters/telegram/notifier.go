package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"safety-map/internal/domain"
	"safety-map/internal/infra/metrics"
	"safety-map/internal/usecase/views"
)

// Sender — часть tgbotapi.BotAPI, нужная для отправки сообщений.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier отправляет модераторам сообщения о переходах историй.
type Notifier struct {
	bot        Sender
	chatID     int64
	consoleURL string
	log        zerolog.Logger
}

var _ domain.Notifier = (*Notifier)(nil)

// NewNotifier создаёт уведомителя для чата модераторов.
// consoleURL, если задан, добавляется ссылкой к уведомлениям о новых историях.
func NewNotifier(bot Sender, chatID int64, consoleURL string, logger zerolog.Logger) *Notifier {
	return &Notifier{bot: bot, chatID: chatID, consoleURL: consoleURL, log: logger}
}

// Notify форматирует событие и отправляет его частями в чат модераторов.
func (n *Notifier) Notify(ctx context.Context, event domain.StoryEvent) error {
	text := FormatEvent(event, n.consoleURL)
	if text == "" {
		return nil
	}
	for _, part := range SplitMessage(text, 0) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(n.chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram", "send_message", "moderators", start, err)
		metrics.ObserveNotification(string(event.Type), err)
		if err != nil {
			return fmt.Errorf("send notification: %w", err)
		}
	}
	n.log.Debug().Str("event_id", event.ID).Int64("story_id", event.StoryID).Msg("telegram: уведомление отправлено")
	return nil
}

// FormatEvent возвращает HTML-текст уведомления или пустую строку для неизвестного типа.
func FormatEvent(event domain.StoryEvent, consoleURL string) string {
	var title string
	switch event.Type {
	case domain.StoryEventSubmitted:
		title = "📝 <b>Новая история на модерации</b>"
	case domain.StoryEventApproved:
		title = "✅ <b>История опубликована на карте</b>"
	case domain.StoryEventRejected:
		title = "🚫 <b>История отклонена</b>"
	case domain.StoryEventDeleted:
		title = "🗑 <b>История удалена с карты</b>"
	default:
		return ""
	}

	lines := []string{title, fmt.Sprintf("ID: <code>%d</code>", event.StoryID)}
	if s := event.Story; s != nil {
		if text := strings.TrimSpace(s.Text); text != "" {
			lines = append(lines, "", html.EscapeString(text), "")
		}
		if s.Location != nil {
			lines = append(lines, "📍 "+views.FormatLocation(*s.Location))
		}
		if !s.SubmittedAt.IsZero() {
			lines = append(lines, "🕒 "+s.SubmittedAt.UTC().Format("2006-01-02 15:04 MST"))
		}
	}
	if event.Type == domain.StoryEventSubmitted && consoleURL != "" {
		lines = append(lines, fmt.Sprintf("<a href=\"%s\">Открыть консоль модерации</a>", html.EscapeString(consoleURL)))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
