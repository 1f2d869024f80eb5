package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"PriceSentinel/internal/model"
)

const defaultAPIBase = "https://api.telegram.org"

// TelegramNotifier delivers alerts via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	// Recipients maps an alert recipient (rule owner) to a chat id. Unmapped recipients go to ChatID.
	Recipients map[string]string
	MaxRetries int
	Client     *http.Client

	apiBase string
	limiter *rate.Limiter
}

// NewTelegramNotifier creates a notifier with optional proxy support.
// Telegram allows about one message per second per chat.
func NewTelegramNotifier(botToken, chatID, proxyURL string) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken:   botToken,
		ChatID:     chatID,
		MaxRetries: 3,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		apiBase: defaultAPIBase,
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

// Send sends a message to chatID.
func (t *TelegramNotifier) Send(ctx context.Context, chatID, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.BotToken)
	payload := map[string]string{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, chatID, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := t.Send(ctx, chatID, text); err != nil {
			lastErr = err
			if i == maxRetries {
				break
			}
			backoff := time.Duration(1<<uint(i)) * time.Second
			log.Warn().Err(err).Int("attempt", i+1).Int("max", maxRetries+1).Dur("backoff", backoff).Msg("telegram send failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}

// Deliver formats an alert and sends it to the recipient's chat.
func (t *TelegramNotifier) Deliver(ctx context.Context, a model.Alert) error {
	chatID := t.ChatID
	if id, ok := t.Recipients[a.Recipient]; ok {
		chatID = id
	}
	if chatID == "" {
		return fmt.Errorf("no chat configured for recipient %q", a.Recipient)
	}
	return t.SendWithRetry(ctx, chatID, FormatAlert(a), t.MaxRetries)
}
