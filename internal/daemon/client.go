package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/theirongolddev/printmeter/internal/sensor"
)

func writeWS(ctx context.Context, conn *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}

// Client talks to a running daemon.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the daemon listening on addr.
func NewClient(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 3 * time.Second},
	}
}

// Status fetches /v1/status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &st)
	return st, err
}

// Reset resets one printer's statistics.
func (c *Client) Reset(ctx context.Context, printerID string) (PrinterStatus, error) {
	var ps PrinterStatus
	err := c.do(ctx, http.MethodPost, "/v1/printers/"+printerID+"/reset", nil, &ps)
	return ps, err
}

// Printer fetches one printer's status.
func (c *Client) Printer(ctx context.Context, printerID string) (PrinterStatus, error) {
	var ps PrinterStatus
	err := c.do(ctx, http.MethodGet, "/v1/printers/"+printerID, nil, &ps)
	return ps, err
}

// SetCosts replaces a printer's cost parameters without restarting the daemon.
func (c *Client) SetCosts(ctx context.Context, printerID string, u CostUpdate) (PrinterStatus, error) {
	var ps PrinterStatus
	err := c.do(ctx, http.MethodPut, "/v1/printers/"+printerID+"/costs", u, &ps)
	return ps, err
}

// SetState pushes an entity state into the daemon's hub.
func (c *Client) SetState(ctx context.Context, u StateUpdate) error {
	return c.do(ctx, http.MethodPost, "/v1/states", u, nil)
}

// States lists the states known to the daemon.
func (c *Client) States(ctx context.Context) ([]sensor.State, error) {
	var out []sensor.State
	err := c.do(ctx, http.MethodGet, "/v1/states", nil, &out)
	return out, err
}

// Subscribe opens the websocket stream and delivers events to fn until ctx
// ends or the connection drops.
func (c *Client) Subscribe(ctx context.Context, fn func(Event)) error {
	url := "ws" + strings.TrimPrefix(c.base, "http") + "/v1/ws"
	conn, resp, err := websocket.Dial(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("connecting to daemon stream: %w", err)
	}
	defer func() { _ = conn.CloseNow() }()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return err
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		fn(ev)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon: HTTP %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed daemon response: %w", err)
	}
	return nil
}
