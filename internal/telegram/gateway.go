// Package telegram implements the conversation gateway against the
// Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/pdfbot/internal/types"
)

// Gateway bridges the core to Telegram: file-URL resolution and download
// on the way in, sendMessage/sendDocument on the way out. Every remote
// call is bounded by the configured timeout via the underlying client.
type Gateway struct {
	bot           *tgbotapi.BotAPI
	client        *http.Client
	maxFetchBytes int64
}

var _ types.ConversationGateway = (*Gateway)(nil)

// New creates a Gateway. maxFetchBytes caps a single file download;
// zero means the Telegram bot API limit of 20 MiB.
func New(token string, timeout time.Duration, maxFetchBytes int64) (*Gateway, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxFetchBytes <= 0 {
		maxFetchBytes = 20 << 20
	}
	client := &http.Client{Timeout: timeout}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Gateway{
		bot:           bot,
		client:        client,
		maxFetchBytes: maxFetchBytes,
	}, nil
}

// ResolveFileURL turns a Telegram file ID into a direct download URL.
func (g *Gateway) ResolveFileURL(_ context.Context, fileID string) (string, error) {
	url, err := g.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file %s: %w", fileID, err)
	}
	return url, nil
}

// FetchBytes downloads url into memory, rejecting bodies past the
// configured cap so an oversized upload never transits the buffer.
func (g *Gateway) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch file: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, g.maxFetchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}
	if int64(len(data)) > g.maxFetchBytes {
		return nil, fmt.Errorf("fetch file: larger than the %d byte limit", g.maxFetchBytes)
	}
	return data, nil
}

// SendText delivers a plain text message to a chat.
func (g *Gateway) SendText(_ context.Context, chatID types.ChatID, text string) error {
	msg := tgbotapi.NewMessage(int64(chatID), text)
	if _, err := g.bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendDocument uploads data to a chat as a named document.
func (g *Gateway) SendDocument(_ context.Context, chatID types.ChatID, filename string, data []byte) error {
	doc := tgbotapi.NewDocument(int64(chatID), tgbotapi.FileBytes{
		Name:  filename,
		Bytes: data,
	})
	if _, err := g.bot.Send(doc); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}
