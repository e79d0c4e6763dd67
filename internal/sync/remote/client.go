package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/abhishek150-rt/offline-notes-app/internal/logging"
	"github.com/abhishek150-rt/offline-notes-app/internal/models"
	"github.com/abhishek150-rt/offline-notes-app/internal/uuid"
)

// HTTPClient talks to the notes REST API. Transport errors, 429 and 5xx
// responses are retried with exponential backoff.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logging.Logger
	now        func() time.Time
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var _ Service = (*HTTPClient)(nil)

// NewHTTPClient creates a client for baseURL. An empty token sends no
// Authorization header.
func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:3001"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		logger:     logging.Get().With(map[string]interface{}{"component": "remote"}),
		now:        time.Now,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

// SetRetryPolicy overrides the retry count and delays.
func (c *HTTPClient) SetRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) {
	c.maxRetries = maxRetries
	c.baseDelay = baseDelay
	c.maxDelay = maxDelay
}

// SetLogger replaces the client logger.
func (c *HTTPClient) SetLogger(logger *logging.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// BaseURL returns the API root.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// FetchAll implements Service.
func (c *HTTPClient) FetchAll(ctx context.Context) ([]*models.Note, error) {
	var notes []*models.Note
	if err := c.doJSON(ctx, http.MethodGet, "/notes", nil, &notes); err != nil {
		return nil, err
	}
	now := c.now()
	out := make([]*models.Note, 0, len(notes))
	for _, n := range notes {
		if n == nil || n.ID == "" {
			continue
		}
		out = append(out, models.Normalize(n, now))
	}
	return out, nil
}

// Get fetches a single note.
func (c *HTTPClient) Get(ctx context.Context, id string) (*models.Note, error) {
	var note models.Note
	if err := c.doJSON(ctx, http.MethodGet, notePath(id), nil, &note); err != nil {
		return nil, err
	}
	return models.Normalize(&note, c.now()), nil
}

// CreateOrUpdate implements Service. The note is PUT to its own path; a 404
// means the server only creates through the collection, so it is POSTed.
func (c *HTTPClient) CreateOrUpdate(ctx context.Context, note *models.Note) (*models.Note, error) {
	if err := note.Validate(); err != nil {
		return nil, err
	}
	payload := wireNote(note)

	var stored models.Note
	err := c.doJSON(ctx, http.MethodPut, notePath(note.ID), payload, &stored)
	if IsNotFound(err) {
		c.logger.Debug("PUT returned 404, creating via POST", map[string]interface{}{"note_id": note.ID})
		stored = models.Note{}
		err = c.doJSON(ctx, http.MethodPost, "/notes", payload, &stored)
	}
	if err != nil {
		return nil, err
	}
	if stored.ID == "" {
		// Empty 2xx body: the server accepted the request as sent.
		stored = *payload
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = payload.UpdatedAt
	}
	return models.Normalize(&stored, c.now()), nil
}

// Delete implements Service. Deleting an id the remote does not have
// succeeds.
func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	err := c.doJSON(ctx, http.MethodDelete, notePath(id), nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// Ping checks that the API is reachable.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.doOnce(ctx, http.MethodGet, "/health")
}

// wireNote strips client-local sync state from an outgoing note.
func wireNote(note *models.Note) *models.Note {
	return &models.Note{
		ID:        note.ID,
		Title:     note.Title,
		Body:      note.Body,
		UpdatedAt: note.UpdatedAt,
	}
}

func notePath(id string) string {
	return "/notes/" + url.PathEscape(id)
}

func (c *HTTPClient) newRequest(ctx context.Context, method, requestPath string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-Id", uuid.New())
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doOnce sends a request without retries and discards the body.
func (c *HTTPClient) doOnce(ctx context.Context, method, requestPath string) error {
	req, err := c.newRequest(ctx, method, requestPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, payload)
	}
	return nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := c.newRequest(ctx, method, requestPath, bodyReader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				c.logger.Debug("Remote request failed, retrying", map[string]interface{}{
					"method": method, "path": requestPath, "attempt": attempt + 1, "error": err.Error(),
				})
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(bytes.TrimSpace(payload)) == 0 {
				return nil
			}
			if err := json.Unmarshal(payload, out); err != nil {
				return fmt.Errorf("decode %s %s response: %w", method, requestPath, err)
			}
			return nil
		}

		if retryableStatus(resp.StatusCode) && attempt < c.maxRetries {
			c.logger.Debug("Remote returned retryable status", map[string]interface{}{
				"method": method, "path": requestPath, "status": resp.StatusCode, "attempt": attempt + 1,
			})
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}
		return decodeAPIError(resp.StatusCode, payload)
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

func decodeAPIError(status int, payload []byte) *APIError {
	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	if errPayload.Message == "" {
		errPayload.Message = http.StatusText(status)
	}
	return &APIError{
		StatusCode: status,
		Code:       errPayload.Code,
		Message:    errPayload.Message,
	}
}

func (c *HTTPClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
