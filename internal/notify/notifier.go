package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"shipping-bot/internal/rating"
)

// Notification carries one quote result to a chat channel.
type Notification struct {
	Destination string
	CountryCode string
	CountryName string
	WeightKg    decimal.Decimal
	Offers      []rating.Offer
	Warnings    []string
	RequestedAt time.Time
}

// Notifier delivers quote results.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier posts messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered quote.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().
		Str("country", note.CountryCode).
		Str("weight_kg", note.WeightKg.String()).
		Int("offers", len(note.Offers)).
		Msg("quote sent to telegram")
	return nil
}

// RenderMessage formats a quote as plain text, cheapest first.
func RenderMessage(note Notification) string {
	var b strings.Builder
	dest := note.CountryName
	if dest == "" {
		dest = note.Destination
	}
	if note.CountryCode != "" {
		dest = fmt.Sprintf("%s (%s)", dest, note.CountryCode)
	}
	fmt.Fprintf(&b, "Shipping quotes: %skg -> %s\n", note.WeightKg.String(), dest)

	if len(note.Offers) == 0 {
		b.WriteString("No carrier available for this destination and weight.\n")
	}
	for i, o := range note.Offers {
		fmt.Fprintf(&b, "%d. %s %s: %s %s", i+1, o.CarrierName, o.ServiceLabel, o.Total.StringFixed(2), o.Currency)
		if !o.Surcharges.IsZero() {
			fmt.Fprintf(&b, " (freight %s, surcharges %s)", o.Freight.StringFixed(2), signed(o.Surcharges))
		}
		if o.DeliveryDays != "" {
			fmt.Fprintf(&b, " [%s days]", o.DeliveryDays)
		}
		if o.Suspended {
			b.WriteString(" SUSPENDED")
		}
		b.WriteString("\n")
		if o.Warning != "" {
			fmt.Fprintf(&b, "   ! %s\n", o.Warning)
		}
	}
	for _, w := range note.Warnings {
		fmt.Fprintf(&b, "Note: %s\n", w)
	}
	return b.String()
}

func signed(v decimal.Decimal) string {
	if v.IsNegative() {
		return v.StringFixed(2)
	}
	return "+" + v.StringFixed(2)
}

var _ Notifier = (*TelegramNotifier)(nil)
