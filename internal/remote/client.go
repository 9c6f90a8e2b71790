// Package remote is the REST side of the messaging server: history pages,
// the conversation list and media uploads.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/models"
)

var (
	ErrUnauthorized = errors.New("remote: unauthorized")
	ErrNotFound     = errors.New("remote: not found")
	ErrServer       = errors.New("remote: server error")
)

type Client struct {
	base  string
	token string
	http  *http.Client
	log   *slog.Logger
}

func New(baseURL, token string, hc *http.Client, logger *slog.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  hc,
		log:   logger.With("component", "remote"),
	}
}

// FetchMessages returns up to limit messages of a conversation sent before
// the given time, oldest first.
func (c *Client) FetchMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]models.Message, error) {
	q := url.Values{}
	if !before.IsZero() {
		q.Set("before", before.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages?" + q.Encode()

	var out []models.Message
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, fmt.Errorf("fetch messages %s: %w", conversationID, err)
	}
	return out, nil
}

func (c *Client) FetchConversations(ctx context.Context) ([]models.Conversation, error) {
	var out []models.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations", "", nil, &out); err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}
	return out, nil
}

// UploadMedia posts a file as multipart form data and returns the
// reference to put on a media message.
func (c *Client) UploadMedia(ctx context.Context, name string, r io.Reader) (models.MediaRef, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return models.MediaRef{}, err
	}
	n, err := io.Copy(part, r)
	if err != nil {
		return models.MediaRef{}, fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return models.MediaRef{}, err
	}

	var ref models.MediaRef
	if err := c.do(ctx, http.MethodPost, "/media", w.FormDataContentType(), &body, &ref); err != nil {
		return models.MediaRef{}, fmt.Errorf("upload %s: %w", name, err)
	}
	if ref.Name == "" {
		ref.Name = name
	}
	if ref.Size == 0 {
		ref.Size = n
	}
	return ref, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError turns a non-2xx reply into an error. The server answers
// errors as {"error": "..."}.
func statusError(resp *http.Response) error {
	var e struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&e)
	msg := e.Error
	if msg == "" {
		msg = resp.Status
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	default:
		return fmt.Errorf("%w: %d %s", ErrServer, resp.StatusCode, msg)
	}
}
