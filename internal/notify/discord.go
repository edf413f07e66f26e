package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Embed colors per event kind.
const (
	colorGreen = 0x2ecc71
	colorRed   = 0xe74c3c
	colorBlue  = 0x3498db
)

// Discord delivers events to a Discord webhook. Each Notify call runs the
// HTTP request in its own goroutine; errors are logged only.
type Discord struct {
	session   *discordgo.Session
	webhookID string
	token     string
	logger    *slog.Logger
}

// NewDiscord builds a Discord notifier from a full webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>.
func NewDiscord(webhookURL string, logger *slog.Logger) (*Discord, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}

	// Webhook execution needs no bot token; an unauthenticated session
	// carries the HTTP client and rate limiter.
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}

	return &Discord{
		session:   session,
		webhookID: id,
		token:     token,
		logger:    logger,
	}, nil
}

func parseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// .../api/webhooks/<id>/<token>
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", "", fmt.Errorf("webhook url %q missing id/token", raw)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

// Notify sends the event asynchronously and returns immediately.
func (d *Discord) Notify(ctx context.Context, ev Event) {
	embed := d.embedFor(ev)

	go func() {
		_, err := d.session.WebhookExecute(d.webhookID, d.token, false, &discordgo.WebhookParams{
			Embeds: []*discordgo.MessageEmbed{embed},
		})
		if err != nil {
			d.logger.Warn("webhook delivery failed",
				slog.String("kind", string(ev.Kind)),
				slog.Any("error", err),
			)
		}
	}()
}

func (d *Discord) embedFor(ev Event) *discordgo.MessageEmbed {
	switch ev.Kind {
	case EventPurchase:
		return &discordgo.MessageEmbed{
			Title: "Purchase",
			Color: colorGreen,
			Description: fmt.Sprintf("**%s** bought **%s** from **%s** for %s",
				ev.BuyerName, ev.ItemName, ev.SellerName, ev.Price.StringFixed(2)),
		}
	case EventBlackMarketPurchase:
		return &discordgo.MessageEmbed{
			Title: "Black Market Purchase",
			Color: colorRed,
			Description: fmt.Sprintf("**%s** bought **%s** from **%s** for %s",
				ev.BuyerName, ev.ItemName, ev.SellerName, ev.Price.StringFixed(2)),
		}
	case EventBlackMarketRefresh:
		return &discordgo.MessageEmbed{
			Title:       "Black Market Refresh",
			Color:       colorRed,
			Description: fmt.Sprintf("The black market rotated with **%d** discounted items", ev.ItemCount),
		}
	default:
		return &discordgo.MessageEmbed{
			Title: "Item Listed",
			Color: colorBlue,
			Description: fmt.Sprintf("**%s** listed **%s** for %s",
				ev.SellerName, ev.ItemName, ev.Price.StringFixed(2)),
		}
	}
}
