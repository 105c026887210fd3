package dashboard

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/handler/identity"
	"github.com/webitel/im-support-service/internal/handler/marshaller"
)

// Snapshot is the body of GET /v1/dashboard/snapshot.
type Snapshot struct {
	Presence *model.PresenceSnapshot `json:"presence"`
	Sessions *model.SessionSnapshot  `json:"sessions"`
	Hub      model.HubStats          `json:"hub"`
}

// Update is one decoded frame of the dashboard stream. Exactly one field is set.
type Update struct {
	Presence *marshaller.PresenceFrame
	Sessions *marshaller.SessionsFrame
}

// Client reads the dashboard endpoints on behalf of one viewer.
type Client struct {
	baseURL string
	viewer  model.UserIdentity
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New builds a client for baseURL (e.g. http://localhost:8080). The viewer
// must be a listener or an admin.
func New(baseURL string, viewer model.UserIdentity, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		viewer:  viewer,
		http:    &http.Client{Timeout: 0},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := c.get(ctx, "/v1/dashboard/snapshot")
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var snap Snapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("dashboard: decode snapshot: %w", err)
	}
	return &snap, nil
}

// Stream follows the dashboard SSE stream and hands every snapshot frame to
// fn until ctx is done, the server hangs up, or fn returns an error.
func (c *Client) Stream(ctx context.Context, fn func(Update) error) error {
	res, err := c.get(ctx, "/v1/dashboard/stream")
	if err != nil {
		return err
	}
	defer res.Body.Close()

	sc := bufio.NewScanner(res.Body)
	sc.Buffer(make([]byte, 64<<10), 4<<20)

	var name, data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if err := dispatch(name, data, fn); err != nil {
				return err
			}
			name, data = "", ""
		case strings.HasPrefix(line, ":"):
			// keep-alive comment
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}

	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("dashboard: stream: %w", err)
	}
	if ctx.Err() != nil {
		return nil
	}
	return io.ErrUnexpectedEOF
}

func dispatch(name, data string, fn func(Update) error) error {
	switch name {
	case marshaller.TypePresenceSnapshot:
		var f marshaller.PresenceFrame
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			return fmt.Errorf("dashboard: decode %s: %w", name, err)
		}
		return fn(Update{Presence: &f})
	case marshaller.TypeSessionSnapshot:
		var f marshaller.SessionsFrame
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			return fmt.Errorf("dashboard: decode %s: %w", name, err)
		}
		return fn(Update{Sessions: &f})
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	req.Header.Set(identity.HeaderUserID, c.viewer.ID.String())
	req.Header.Set(identity.HeaderRole, c.viewer.Role.String())

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %s: %w", path, err)
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		res.Body.Close()
		return nil, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return res, nil
}

type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dashboard: unexpected status %d: %s", e.Code, e.Body)
}

// IsForbidden reports a viewer without dashboard access.
func IsForbidden(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && (se.Code == http.StatusForbidden || se.Code == http.StatusUnauthorized)
}
