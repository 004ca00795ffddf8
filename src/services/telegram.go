package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/username/portfoliopulse/backend/src/logger"
)

const telegramAPIBaseURL = "https://api.telegram.org"

// TelegramNotifier posts run reports to a Telegram chat through the Bot API.
// With an empty token the notifier is disabled and Notify is a no-op.
type TelegramNotifier struct {
	token      string
	chatID     string
	baseURL    string
	httpClient http.Client
}

// NewTelegramNotifier creates a notifier for the given bot token and chat.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:      token,
		chatID:     chatID,
		baseURL:    telegramAPIBaseURL,
		httpClient: http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends a plain-text message. Failures are returned for the caller to
// log; they are never fatal to an update run.
func (t *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if t.token == "" || t.chatID == "" {
		logger.L.Debug("Telegram notifier disabled, skipping notification")
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	logger.L.Info("Telegram notification sent", "chatID", t.chatID)
	return nil
}
