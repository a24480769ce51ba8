// Package api provides a typed client for the portal's REST API.
// It covers the document detail/edit endpoints used by the editor plus the
// login, listing and search endpoints that lead into it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"classics-portal/internal/logger"
	"classics-portal/internal/types"
)

const (
	// DefaultTimeout is the default HTTP client timeout for API calls
	DefaultTimeout = 30 * time.Second
	// MaxFileSize caps the size of a document file fetched from storage
	MaxFileSize = 256 << 20
	// maxErrorBody caps how much of an error response is read
	maxErrorBody = 64 << 10
	// rateBurst is the burst size of the request limiter
	rateBurst = 2
)

// UpdateResponse is the body returned by PUT /doc-edit/{id}
type UpdateResponse struct {
	Message string `json:"message"`
}

// LoginResponse is the body returned by POST /login
type LoginResponse struct {
	Token   string      `json:"token"`
	User    *types.User `json:"user,omitempty"`
	Message string      `json:"message,omitempty"`
}

type updateRequest struct {
	Pages []types.Page `json:"pages"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type errorBody struct {
	Message string `json:"message"`
}

// Client talks to the portal API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu    sync.RWMutex
	token string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the request timeout of the default http.Client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithToken sets the initial bearer token
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithRateLimit paces requests to at most rps per second. rps <= 0 disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), rateBurst)
		} else {
			c.limiter = nil
		}
	}
}

// NewClient creates a Client for the API rooted at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root without trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// GetDocument fetches GET /doc-detail/{id}
func (c *Client) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, types.NewAppError(types.ErrInvalidInput, "document id is empty", nil)
	}

	var doc types.Document
	if err := c.doJSON(ctx, http.MethodGet, "/doc-detail/"+url.PathEscape(id), nil, false, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdatePages replaces every page of a document with PUT /doc-edit/{id}.
// The request is authenticated with the bearer token.
func (c *Client) UpdatePages(ctx context.Context, id string, pages []types.Page) (*UpdateResponse, error) {
	if strings.TrimSpace(id) == "" {
		return nil, types.NewAppError(types.ErrInvalidInput, "document id is empty", nil)
	}
	if pages == nil {
		pages = []types.Page{}
	}

	var resp UpdateResponse
	if err := c.doJSON(ctx, http.MethodPut, "/doc-edit/"+url.PathEscape(id), updateRequest{Pages: pages}, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login exchanges credentials for a bearer token with POST /login.
// On success the token is kept on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/login", loginRequest{Email: email, Password: password}, false, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		msg := resp.Message
		if msg == "" {
			msg = "ログインに失敗しました"
		}
		return nil, types.NewAppError(types.ErrUnauthorized, msg, nil)
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// ListDocuments fetches GET /doc-list
func (c *Client) ListDocuments(ctx context.Context) ([]types.DocumentSummary, error) {
	var docs []types.DocumentSummary
	if err := c.doJSON(ctx, http.MethodGet, "/doc-list", nil, false, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// DocumentURL returns the storage URL of a document's raw file
func (c *Client) DocumentURL(title string) string {
	return c.baseURL + "/storage/documents/" + url.PathEscape(title)
}

// ThumbnailURL returns the cover thumbnail URL of a document
func (c *Client) ThumbnailURL(title string) string {
	return c.baseURL + "/storage/thumbnails/" + url.PathEscape(TitleStem(title)) + "/1.jpg"
}

// TitleStem returns the title up to its first dot, which names the thumbnail directory
func TitleStem(title string) string {
	if i := strings.Index(title, "."); i >= 0 {
		return title[:i]
	}
	return title
}

// FetchDocumentFile downloads the raw PDF or image of a document
func (c *Client) FetchDocumentFile(ctx context.Context, title string) ([]byte, error) {
	if title == "" {
		return nil, types.NewAppError(types.ErrInvalidInput, "document title is empty", nil)
	}

	resp, err := c.send(ctx, http.MethodGet, "/storage/documents/"+url.PathEscape(title), nil, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSize+1))
	if err != nil {
		return nil, types.NewAppError(types.ErrNetwork, "failed to read document file", err)
	}
	if len(data) > MaxFileSize {
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "document file too large", title, nil)
	}
	return data, nil
}

// doJSON sends a JSON request and decodes a JSON response into out
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, auth bool, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return types.NewAppError(types.ErrInvalidInput, "failed to encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := c.send(ctx, method, path, reader, auth)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppErrorWithDetails(types.ErrAPI, "invalid response body", method+" "+path, err)
	}
	return nil
}

// send performs the request and maps transport failures and error statuses
// to AppErrors. The caller owns the body of a successful response.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader, auth bool) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, types.NewAppError(types.ErrNetwork, "request cancelled", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" && auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger.Debug("api request", logger.String("method", method), logger.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("api request failed", logger.String("method", method), logger.String("path", path), logger.Err(err))
		return nil, types.NewAppErrorWithDetails(types.ErrNetwork, "request failed", method+" "+path, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	msg := readErrorMessage(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		// the stored token is no longer accepted
		c.SetToken("")
		logger.Warn("api rejected credentials", logger.String("path", path))
		return nil, types.NewAppErrorWithDetails(types.ErrUnauthorized, "unauthorized access", msg, nil)
	}

	logger.Warn("api returned error status",
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode))
	return nil, &StatusError{
		AppError: types.AppError{
			Code:    types.ErrAPI,
			Message: fmt.Sprintf("%s %s returned status %d", method, path, resp.StatusCode),
			Details: msg,
		},
		StatusCode: resp.StatusCode,
	}
}

// StatusError is returned for non-2xx responses other than 401
type StatusError struct {
	types.AppError
	StatusCode int
}

// Unwrap exposes the embedded AppError to errors.As
func (e *StatusError) Unwrap() error {
	return &e.AppError
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body errorBody
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(data))
}
