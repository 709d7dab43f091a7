package driver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// maxCDPMessageSize bounds a single DevTools frame. Screenshots arrive
// base64-encoded in one message, so this has to be generous.
const maxCDPMessageSize = 64 << 20

// defaultCommandTimeout applies when the caller's context carries no
// deadline of its own.
const defaultCommandTimeout = 30 * time.Second

// CDP attaches to an already-running browser over its DevTools
// WebSocket endpoint and speaks the raw protocol. Commands are issued
// one at a time; events interleaved in the stream are skipped.
type CDP struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
	logger *slog.Logger
}

// CDPOption configures a CDP driver.
type CDPOption func(*CDP)

// WithCDPLogger sets a custom logger.
func WithCDPLogger(l *slog.Logger) CDPOption {
	return func(d *CDP) { d.logger = l }
}

// DialCDP connects to a page's DevTools WebSocket URL
// (ws://host:port/devtools/page/<target>).
func DialCDP(ctx context.Context, wsURL string, opts ...CDPOption) (*CDP, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial devtools endpoint: %w", err)
	}
	conn.SetReadLimit(maxCDPMessageSize)

	d := &CDP{conn: conn, logger: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	d.logger.Info("attached to browser", "endpoint", wsURL)
	return d, nil
}

type cdpRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type cdpResponse struct {
	ID     int64           `json:"id"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *cdpError       `json:"error,omitempty"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call issues a single command and reads frames until its response
// arrives, discarding any protocol events in between.
func (d *CDP) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultCommandTimeout)
	}
	if err := d.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%s: set deadline: %w", method, err)
	}

	d.nextID++
	id := d.nextID
	if err := d.conn.WriteJSON(cdpRequest{ID: id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("%s: write: %w", method, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, data, err := d.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%s: read: %w", method, err)
		}
		var resp cdpResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("%s: decode frame: %w", method, err)
		}
		if resp.Method != "" || resp.ID != id {
			// Event or stale response; skip.
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%s: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
		}
		return resp.Result, nil
	}
}

// ExecuteScript evaluates a JS function expression with args in the
// page context. Arguments cross the boundary as a JSON argument list
// applied to the function.
func (d *CDP) ExecuteScript(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	argList, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal script args: %w", err)
	}
	expr := fmt.Sprintf("(%s).apply(null, %s)", fn, argList)

	result, err := d.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
		"awaitPromise":  true,
	})
	if err != nil {
		return nil, err
	}

	var eval struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(result, &eval); err != nil {
		return nil, fmt.Errorf("decode evaluate result: %w", err)
	}
	if ed := eval.ExceptionDetails; ed != nil {
		msg := ed.Text
		if ed.Exception != nil && ed.Exception.Description != "" {
			msg = ed.Exception.Description
		}
		return nil, fmt.Errorf("script threw: %s", msg)
	}
	return eval.Result.Value, nil
}

// Screenshot captures the current viewport as PNG bytes.
func (d *CDP) Screenshot(ctx context.Context) ([]byte, error) {
	result, err := d.call(ctx, "Page.captureScreenshot", map[string]any{
		"format": "png",
	})
	if err != nil {
		return nil, err
	}
	var shot struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(result, &shot); err != nil {
		return nil, fmt.Errorf("decode screenshot result: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(shot.Data)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot payload: %w", err)
	}
	return data, nil
}

// Navigate loads a URL and polls document.readyState until the page
// has finished loading.
func (d *CDP) Navigate(ctx context.Context, url string) error {
	if _, err := d.call(ctx, "Page.navigate", map[string]any{"url": url}); err != nil {
		return err
	}
	for {
		raw, err := d.ExecuteScript(ctx, `() => document.readyState`)
		if err != nil {
			return fmt.Errorf("poll ready state: %w", err)
		}
		var state string
		if err := json.Unmarshal(raw, &state); err == nil && state == "complete" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Close detaches from the browser without closing it.
func (d *CDP) Close() error {
	return d.conn.Close()
}

var (
	_ Driver    = (*CDP)(nil)
	_ Navigator = (*CDP)(nil)
)
