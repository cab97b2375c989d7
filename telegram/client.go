// Package telegram adapts the Telegram Bot API to chatbridge.Platform and
// feeds incoming updates to a chatbridge.Dispatcher.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/meikuraledutech/chatbridge"
)

// maxDownload caps attachment downloads. The Bot API refuses files larger
// than 20 MB anyway.
const maxDownload = 20 << 20

// api is the part of *bot.Bot the client calls.
type api interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	FileDownloadLink(f *models.File) string
}

// Client implements chatbridge.Platform on a Telegram bot.
type Client struct {
	api  api
	http *http.Client
}

// NewClient wraps b. A nil httpClient uses http.DefaultClient for
// attachment downloads.
func NewClient(b *bot.Bot, httpClient *http.Client) *Client {
	return newClient(b, httpClient)
}

func newClient(a api, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{api: a, http: httpClient}
}

// Reply sends text as a reply to the request's message.
func (c *Client) Reply(ctx context.Context, req *chatbridge.Request, text string, mode chatbridge.ParseMode) (*chatbridge.MessageRef, error) {
	params := &bot.SendMessageParams{
		ChatID:    req.ChatID,
		Text:      text,
		ParseMode: models.ParseMode(mode),
	}
	if req.MessageID != 0 {
		params.ReplyParameters = &models.ReplyParameters{
			MessageID:                req.MessageID,
			AllowSendingWithoutReply: true,
		}
	}

	msg, err := c.api.SendMessage(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("telegram: send message: %w", err)
	}
	return &chatbridge.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ID}, nil
}

// Edit replaces the text of a sent message. Telegram rejects edits that
// change nothing; those come back as chatbridge.ErrNotModified.
func (c *Client) Edit(ctx context.Context, ref chatbridge.MessageRef, text string, mode chatbridge.ParseMode) error {
	_, err := c.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    ref.ChatID,
		MessageID: ref.MessageID,
		Text:      text,
		ParseMode: models.ParseMode(mode),
	})
	if err == nil {
		return nil
	}
	if isNotModified(err) {
		return chatbridge.ErrNotModified
	}
	return fmt.Errorf("telegram: edit message: %w", err)
}

// Delete removes a sent message.
func (c *Client) Delete(ctx context.Context, ref chatbridge.MessageRef) error {
	ok, err := c.api.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    ref.ChatID,
		MessageID: ref.MessageID,
	})
	if err != nil {
		return fmt.Errorf("telegram: delete message: %w", err)
	}
	if !ok {
		return errors.New("telegram: delete message: not deleted")
	}
	return nil
}

// Download resolves fileID to a download link and fetches it.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.api.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("telegram: get file: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api.FileDownloadLink(file), nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: download request: %w", err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("telegram: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: download: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("telegram: download: %w", err)
	}
	if len(data) > maxDownload {
		return nil, fmt.Errorf("telegram: download: file exceeds %d bytes", maxDownload)
	}
	return data, nil
}

func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

// Ensure Client implements chatbridge.Platform at compile time.
var _ chatbridge.Platform = (*Client)(nil)
