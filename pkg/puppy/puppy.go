// Package puppy drives the robot's face, sound, and state API.
//
// Every action is a POST with a small JSON body; 200 and 204 mean the
// robot accepted it. Actions can also be written as text
// ("play_sound:bark", "set_face:happy", "state:wink", "reset"), which is
// how the voice loop signals listening and thinking.
package puppy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-pupper/internal/httpc"
)

// API paths.
const (
	PathSound  = "/api/v1/sound"
	PathFace   = "/api/v1/face"
	PathState  = "/api/v1/state"
	PathReset  = "/api/v1/reset"
	PathStates = "/api/v1/states"
	PathFaces  = "/api/v1/faces"
	PathSounds = "/api/v1/sounds"
)

// Acknowledgement is fired after each LLM response.
const Acknowledgement = "state:wink"

// ErrUnknownAction is returned by ParseAction for text it does not recognize.
var ErrUnknownAction = errors.New("puppy: unknown action")

// StatusError is returned when the robot rejects an action.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("puppy: %s returned %d: %s", e.Path, e.Status, e.Body)
}

// Actor performs robot actions. *Client implements it.
type Actor interface {
	Do(ctx context.Context, action string) error
}

// Client talks to the robot action API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = httpc.DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpc.NewClient(timeout),
		logger:  logger.With("component", "puppy"),
	}
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PlaySound plays a named sound.
func (c *Client) PlaySound(ctx context.Context, sound string) error {
	return c.post(ctx, PathSound, map[string]string{"sound": sound})
}

// SetFace shows a named face.
func (c *Client) SetFace(ctx context.Context, face string) error {
	return c.post(ctx, PathFace, map[string]string{"face": face})
}

// SetState transitions to a named state.
func (c *Client) SetState(ctx context.Context, state string) error {
	return c.post(ctx, PathState, map[string]string{"state": state})
}

// Reset returns the robot to its idle state.
func (c *Client) Reset(ctx context.Context) error {
	return c.post(ctx, PathReset, map[string]string{})
}

// Options lists what the robot offers at one of PathStates, PathFaces,
// or PathSounds. The body is returned as-is.
func (c *Client) Options(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("puppy: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("puppy: read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("puppy: %s returned invalid JSON", path)
	}
	return body, nil
}

// Do parses and performs a textual action.
func (c *Client) Do(ctx context.Context, action string) error {
	a, err := ParseAction(action)
	if err != nil {
		c.logger.Warn("unknown action", "action", action)
		return err
	}
	c.logger.Debug("action", "kind", a.Kind, "value", a.Value)

	switch a.Kind {
	case KindSound:
		return c.PlaySound(ctx, a.Value)
	case KindFace:
		return c.SetFace(ctx, a.Value)
	case KindState:
		return c.SetState(ctx, a.Value)
	default:
		return c.Reset(ctx)
	}
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	resp, err := httpc.PostJSON(ctx, c.http, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("puppy: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err = &StatusError{Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	c.logger.Warn("action rejected", "path", path, "status", resp.StatusCode, "body", err.Body)
	return err
}

var _ Actor = (*Client)(nil)
