package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-playground/validator/v10"

	"laynote-sync-client/internal/domain"
)

// Client is the non-real-time fallback path to the note records: create, list
// and patch over plain HTTP. The sync engine never calls it; the host does,
// e.g. to open a note before binding it. Transient failures are retried with
// capped exponential backoff, client errors are not.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	validate   *validator.Validate

	retryInterval time.Duration
	maxRetries    uint64
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		token:         token,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		validate:      validator.New(),
		retryInterval: 500 * time.Millisecond,
		maxRetries:    3,
	}
}

// SetRetryInterval adjusts the initial backoff interval. Tests shorten it.
func (c *Client) SetRetryInterval(interval time.Duration) {
	c.retryInterval = interval
}

func (c *Client) CreateNote(ctx context.Context, req *domain.CreateNoteRequest) (*domain.Note, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid create request: %w", err)
	}

	var note domain.Note
	if err := c.do(ctx, http.MethodPost, "/notes", req, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (c *Client) ListNotes(ctx context.Context) ([]domain.Note, error) {
	var notes []domain.Note
	if err := c.do(ctx, http.MethodGet, "/notes", nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (c *Client) UpdateNote(ctx context.Context, noteID string, req *domain.UpdateNoteRequest) (*domain.Note, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid update request: %w", err)
	}

	var note domain.Note
	if err := c.do(ctx, http.MethodPatch, "/notes/"+noteID, req, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	operation := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("%s %s: server error: %s", method, path, resp.Status)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("%s %s: request failed: %s", method, path, resp.Status))
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx))
}
