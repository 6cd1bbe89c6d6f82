// ABOUTME: LINE Messaging API client for replies and message content downloads
// ABOUTME: Implements the conversation Replier and Fetcher contracts

package line

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// DefaultMaxContentBytes caps a downloaded image.
const DefaultMaxContentBytes = 20 << 20

// FetchError reports a failed content download.
type FetchError struct {
	MessageID string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching content of message %s: %v", e.MessageID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// replyAPI is the part of *messaging_api.MessagingApiAPI the client uses.
type replyAPI interface {
	ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
}

// contentAPI is the part of *messaging_api.MessagingApiBlobAPI the client uses.
type contentAPI interface {
	GetMessageContent(messageID string) (*http.Response, error)
}

// Client talks to the LINE Messaging API.
type Client struct {
	replies         replyAPI
	content         contentAPI
	maxContentBytes int64
	logger          *slog.Logger
}

// NewClient creates a client authenticated with a channel access token.
// maxContentBytes <= 0 uses DefaultMaxContentBytes.
func NewClient(channelAccessToken string, maxContentBytes int64, logger *slog.Logger) (*Client, error) {
	if channelAccessToken == "" {
		return nil, errors.New("channel access token is required")
	}

	api, err := messaging_api.NewMessagingApiAPI(channelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating messaging api client: %w", err)
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(channelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating messaging blob client: %w", err)
	}

	return newClient(api, blob, maxContentBytes, logger), nil
}

func newClient(replies replyAPI, content contentAPI, maxContentBytes int64, logger *slog.Logger) *Client {
	if maxContentBytes <= 0 {
		maxContentBytes = DefaultMaxContentBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		replies:         replies,
		content:         content,
		maxContentBytes: maxContentBytes,
		logger:          logger.With("component", "line"),
	}
}

// Reply sends one plain-text message using a reply token.
// The SDK call is not cancelable; ctx is checked before sending.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := c.replies.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: text},
		},
	})
	if err != nil {
		return fmt.Errorf("replying: %w", err)
	}
	return nil
}

// Fetch downloads the binary content of a message. Any failure, including an
// oversized body, is returned as *FetchError.
func (c *Client) Fetch(ctx context.Context, messageID string) ([]byte, error) {
	data, err := c.fetch(ctx, messageID)
	if err != nil {
		return nil, &FetchError{MessageID: messageID, Err: err}
	}
	c.logger.Debug("fetched message content", "message_id", messageID, "size", len(data))
	return data, nil
}

func (c *Client) fetch(ctx context.Context, messageID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if messageID == "" {
		return nil, errors.New("empty message id")
	}

	resp, err := c.content.GetMessageContent(messageID)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxContentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(data)) > c.maxContentBytes {
		return nil, fmt.Errorf("content exceeds %d bytes", c.maxContentBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("empty content")
	}
	return data, nil
}
