package xrpl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var xrplLog zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	xrplLog = zerolog.New(out).With().Timestamp().Str("component", "xrpl").Logger()
}

// commandCaller sends one XRPL websocket command and decodes the result
// object. Split out so adapter tests can stub the wire.
type commandCaller interface {
	Call(ctx context.Context, command string, params map[string]any, result any) error
}

// Client speaks the XRPL websocket API. Each call dials a fresh connection:
// request volume is low and the rippled public endpoints drop idle sockets
// anyway, so a persistent connection buys nothing.
type Client struct {
	endpoint string
	dialer   *websocket.Dialer
	nextID   atomic.Uint64
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

type wsResponse struct {
	ID           uint64          `json:"id"`
	Status       string          `json:"status"`
	ErrorCode    string          `json:"error"`
	ErrorMessage string          `json:"error_message"`
	Result       json.RawMessage `json:"result"`
}

// Call issues a single command and decodes result into the given value.
// Responses are matched by id; stray messages on the socket are skipped.
func (c *Client) Call(ctx context.Context, command string, params map[string]any, result any) error {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.endpoint, err)
	}
	defer conn.Close()

	id := c.nextID.Add(1)
	payload := map[string]any{
		"id":      id,
		"command": command,
	}
	for k, v := range params {
		payload[k] = v
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Now().Add(15 * time.Second))
		_ = conn.SetReadDeadline(time.Now().Add(15 * time.Second))
	}

	if err := conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("failed to send %s command: %w", command, err)
	}

	for {
		var resp wsResponse
		if err := conn.ReadJSON(&resp); err != nil {
			return fmt.Errorf("failed to read %s response: %w", command, err)
		}
		if resp.ID != id {
			xrplLog.Debug().Uint64("id", resp.ID).Msg("Skipping unrelated websocket message")
			continue
		}
		if resp.Status != "success" {
			return fmt.Errorf("%s command failed: %s (%s)", command, resp.ErrorMessage, resp.ErrorCode)
		}
		if result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", command, err)
			}
		}
		return nil
	}
}
