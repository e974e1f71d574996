package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/sniperbot/internal/platform/httpx"
)

// Embed colours by severity.
var discordColors = map[Severity]int{
	SeverityInfo:  0x2ecc71,
	SeverityWarn:  0xf1c40f,
	SeverityError: 0xe74c3c,
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// DiscordSender posts one embed per message to a webhook.
type DiscordSender struct {
	webhookURL string
	client     *resty.Client
	now        func() time.Time
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     httpx.NewClient("", deliveryTimeout),
		now:        time.Now,
	}
}

func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	embed := discordEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		Color:       discordColors[msg.Severity],
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	}
	for _, f := range msg.Fields {
		if f.Value == "" {
			continue
		}
		embed.Fields = append(embed.Fields, discordField{Name: f.Name, Value: f.Value, Inline: true})
	}

	// Webhooks answer 204 No Content.
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(discordPayload{Embeds: []discordEmbed{embed}}).
		Post(d.webhookURL)
	if err := httpx.Decode("discord", resp, err, nil); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }
