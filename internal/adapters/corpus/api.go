package corpus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/triage/internal/domain/model"
)

// RequestsPath is the backend endpoint listing support requests.
const RequestsPath = "/api/requests"

const maxErrorBody = 512

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Body       string
	retryAfter string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend HTTP %d: %s", e.StatusCode, e.Body)
}

// APISource fetches the corpus from the backend API with Bearer auth.
// 429 and 5xx responses are retried with exponential backoff.
type APISource struct {
	baseURL string
	token   string
	client  *http.Client
	sel     *selector
	backoff time.Duration
	retries int
	maxBody int64
}

// NewAPISource creates an APISource. An empty token sends no
// Authorization header.
func NewAPISource(baseURL, token string, opts ...Option) (*APISource, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	sel, err := newSelector(o.selector)
	if err != nil {
		return nil, err
	}
	return &APISource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: o.timeout},
		sel:     sel,
		backoff: o.backoff,
		retries: o.retries,
		maxBody: o.maxBody,
	}, nil
}

// Records implements Source.
func (a *APISource) Records(ctx context.Context) ([]model.Record, error) {
	body, err := a.get(ctx, RequestsPath)
	if err != nil {
		return nil, err
	}
	return decodeJSON(ctx, body, a.sel)
}

func (a *APISource) get(ctx context.Context, path string) ([]byte, error) {
	url := a.baseURL + path

	var lastErr *APIError
	for attempt := 0; attempt <= a.retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(a.delay(attempt, lastErr))
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if a.token != "" {
			req.Header.Set("Authorization", "Bearer "+a.token)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		ok := resp.StatusCode >= 200 && resp.StatusCode < 300
		limit := int64(maxErrorBody)
		if ok {
			limit = a.maxBody
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", url, err)
		}

		if ok {
			if int64(len(body)) > a.maxBody {
				return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, url, a.maxBody)
			}
			return body, nil
		}

		apiErr := &APIError{StatusCode: resp.StatusCode, Body: truncate(body, maxErrorBody)}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			apiErr.retryAfter = resp.Header.Get("Retry-After")
			lastErr = apiErr
		case resp.StatusCode >= 500:
			lastErr = apiErr
		default:
			return nil, apiErr
		}
	}
	return nil, lastErr
}

// delay honours Retry-After on 429, otherwise doubles the base each attempt.
func (a *APISource) delay(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.retryAfter != "" {
		if secs, err := strconv.Atoi(lastErr.retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return a.backoff << (attempt - 1)
}

// truncate cuts b to at most n bytes without splitting a UTF-8 sequence.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	b = b[:n]
	for len(b) > 0 && !utf8.Valid(b) {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			break
		}
		b = b[:len(b)-1]
	}
	return string(b)
}
