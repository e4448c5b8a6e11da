// Package client is the viewer side of the chat API: a typed HTTP client,
// the unread-count poller, the conversation view-model and the push hint
// listener.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/welldanyogia/webrana-confchat/internal/api/response"
	"github.com/welldanyogia/webrana-confchat/internal/attachment"
	"github.com/welldanyogia/webrana-confchat/internal/models"
)

// DefaultTimeout bounds every API call made with the default HTTP client
const DefaultTimeout = 30 * time.Second

// ErrNotAuthenticated is returned when the token source has no token
var ErrNotAuthenticated = errors.New("not authenticated")

// TokenSource yields the viewer's bearer token. ok is false once the viewer
// has logged out.
type TokenSource interface {
	Token() (token string, ok bool)
}

// StaticToken is a TokenSource for a fixed token
type StaticToken string

// Token returns the token; an empty StaticToken is unauthenticated
func (t StaticToken) Token() (string, bool) {
	return string(t), t != ""
}

// APIError carries a non-2xx response of the chat API
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return e.Message
}

// ServerMessage returns the message the server gave for err, or fallback
// when err does not carry one.
func ServerMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// UnreadSummary is the decoded unread-counts response
type UnreadSummary struct {
	Entries []models.UnreadSummaryEntry
	Total   int64
}

// Client talks to the chat API on behalf of one viewer
type Client struct {
	baseURL *url.URL
	tokens  TokenSource
	http    *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a client for the API at baseURL
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}
	if tokens == nil {
		tokens = StaticToken("")
	}

	c := &Client{
		baseURL: u,
		tokens:  tokens,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Authenticated reports whether the token source still has a token
func (c *Client) Authenticated() bool {
	_, ok := c.tokens.Token()
	return ok
}

// UnreadCounts fetches the viewer's unread summary
func (c *Client) UnreadCounts(ctx context.Context) (*UnreadSummary, error) {
	var resp response.UnreadSummaryResponse
	if err := c.getJSON(ctx, "/api/chat/unread-counts", &resp); err != nil {
		return nil, err
	}
	return &UnreadSummary{Entries: resp.UnreadSummary, Total: resp.TotalUnread}, nil
}

// Paper fetches conversation header metadata
func (c *Client) Paper(ctx context.Context, paperID string) (*models.Paper, error) {
	var resp response.PaperResponse
	if err := c.getJSON(ctx, "/api/papers/"+url.PathEscape(paperID), &resp); err != nil {
		return nil, err
	}
	return resp.Paper, nil
}

// Messages fetches a conversation. The server treats this as reading it.
func (c *Client) Messages(ctx context.Context, paperID string) ([]models.ChatMessage, error) {
	var resp response.MessagesResponse
	if err := c.getJSON(ctx, messagesPath(paperID), &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage posts body and files as one message and returns the stored
// message
func (c *Client) SendMessage(ctx context.Context, paperID, body string, files []attachment.File) (*models.ChatMessage, error) {
	payload, contentType, err := encodeSend(body, files)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, messagesPath(paperID), payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	var resp response.ChatMessageResponse
	if err := c.doJSON(req, &resp); err != nil {
		return nil, err
	}
	if resp.ChatMessage == nil {
		return nil, fmt.Errorf("send response carried no message")
	}
	return resp.ChatMessage, nil
}

// Attachment streams one attachment. The caller closes the returned body.
func (c *Client) Attachment(ctx context.Context, paperID string, messageID uint, index int, download bool) (io.ReadCloser, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, attachmentPath(paperID, messageID, index, download), nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch attachment: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, "", decodeError(resp)
	}

	var fileName string
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		fileName = params["filename"]
	}
	return resp.Body, fileName, nil
}

// AttachmentURL returns the view or download URL of an attachment
func (c *Client) AttachmentURL(paperID string, messageID uint, index int, download bool) string {
	return c.resolve(attachmentPath(paperID, messageID, index, download)).String()
}

// PushURL returns the websocket URL of the push hint channel, with the
// bearer token in the query string since browsers cannot set headers on
// upgrade requests
func (c *Client) PushURL() (string, error) {
	token, ok := c.tokens.Token()
	if !ok {
		return "", ErrNotAuthenticated
	}

	u := c.resolve("/api/chat/ws")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

func messagesPath(paperID string) string {
	return "/api/chat/papers/" + url.PathEscape(paperID) + "/messages"
}

func attachmentPath(paperID string, messageID uint, index int, download bool) string {
	action := "view"
	if download {
		action = "download"
	}
	return fmt.Sprintf("%s/%d/attachments/%d/%s", messagesPath(paperID), messageID, index, action)
}

// resolve appends an already escaped path to the base URL
func (c *Client) resolve(path string) *url.URL {
	u, err := url.Parse(strings.TrimRight(c.baseURL.String(), "/") + path)
	if err != nil {
		base := *c.baseURL
		return &base
	}
	return u
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	token, ok := c.tokens.Token()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path).String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// decodeError reads the error envelope; bodies that are not one still yield
// an APIError with the status
func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var envelope response.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &envelope) == nil {
		apiErr.Message = envelope.Error
		apiErr.Code = envelope.Code
	}
	return apiErr
}

// encodeSend builds the multipart body of a send request. Each file part
// carries the file's own content type so the server can check it.
func encodeSend(body string, files []attachment.File) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("message", body); err != nil {
		return nil, "", err
	}

	for _, f := range files {
		if f.Open == nil {
			return nil, "", fmt.Errorf("%s: no content", f.Name)
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
			"name":     "attachments",
			"filename": f.Name,
		}))
		h.Set("Content-Type", f.MIMEType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if err := copyFile(part, f); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func copyFile(dst io.Writer, f attachment.File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	if _, err := io.Copy(dst, rc); err != nil {
		return fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return nil
}
