package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/sniperbot/internal/platform/httpx"
)

const telegramAPI = "https://api.telegram.org"

var telegramBadges = map[Severity]string{
	SeverityInfo:  "🟢",
	SeverityWarn:  "🟡",
	SeverityError: "🔴",
}

// TelegramSender sends HTML-formatted messages through the Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *resty.Client
}

func NewTelegramSender(token, chatID string) *TelegramSender {
	return newTelegramSender(telegramAPI, token, chatID)
}

func newTelegramSender(baseURL, token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: httpx.NewClient(baseURL, deliveryTimeout),
	}
}

// telegramText renders msg as Bot API HTML. Every user-supplied string is
// escaped; token mints and error text routinely contain '<' or '&'.
func telegramText(msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>", telegramBadges[msg.Severity], html.EscapeString(msg.Title))
	if msg.Body != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(msg.Body))
	}
	for _, f := range msg.Fields {
		if f.Value == "" {
			continue
		}
		fmt.Fprintf(&b, "\n<b>%s</b>: <code>%s</code>", html.EscapeString(f.Name), html.EscapeString(f.Value))
	}
	return b.String()
}

func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetPathParam("token", t.token).
		SetBody(map[string]any{
			"chat_id":                  t.chatID,
			"text":                     telegramText(msg),
			"parse_mode":               "HTML",
			"disable_web_page_preview": true,
		}).
		Post("/bot{token}/sendMessage")
	if err := httpx.Decode("telegram", resp, err, nil); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }
