package driver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// fakeDevtools answers Runtime.evaluate and Page.captureScreenshot the
// way Chrome's DevTools endpoint does, with an unrelated event frame
// pushed in front of each response.
func fakeDevtools(t *testing.T, shot []byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			var req struct {
				ID     int64          `json:"id"`
				Method string         `json:"method"`
				Params map[string]any `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			// Interleave an event; the client must skip it.
			_ = conn.WriteJSON(map[string]any{
				"method": "Page.frameNavigated",
				"params": map[string]any{},
			})

			switch req.Method {
			case "Runtime.evaluate":
				expr, _ := req.Params["expression"].(string)
				if !strings.Contains(expr, ".apply(null,") {
					_ = conn.WriteJSON(map[string]any{
						"id": req.ID,
						"error": map[string]any{
							"code": -32000, "message": "arguments not applied",
						},
					})
					continue
				}
				_ = conn.WriteJSON(map[string]any{
					"id": req.ID,
					"result": map[string]any{
						"result": map[string]any{"type": "string", "value": "evaluated"},
					},
				})
			case "Page.captureScreenshot":
				_ = conn.WriteJSON(map[string]any{
					"id": req.ID,
					"result": map[string]any{
						"data": base64.StdEncoding.EncodeToString(shot),
					},
				})
			default:
				_ = conn.WriteJSON(map[string]any{
					"id": req.ID,
					"error": map[string]any{
						"code": -32601, "message": "unknown method " + req.Method,
					},
				})
			}
		}
	}))
}

func dialFake(t *testing.T, srv *httptest.Server) *CDP {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	d, err := DialCDP(context.Background(), wsURL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestCDP_ExecuteScript(t *testing.T) {
	srv := fakeDevtools(t, nil)
	defer srv.Close()
	d := dialFake(t, srv)

	raw, err := d.ExecuteScript(context.Background(), `(a, b) => a + b`, 1, 2)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var got string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "evaluated" {
		t.Errorf("result %q", got)
	}
}

func TestCDP_Screenshot(t *testing.T) {
	shot := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	srv := fakeDevtools(t, shot)
	defer srv.Close()
	d := dialFake(t, srv)

	got, err := d.Screenshot(context.Background())
	if err != nil {
		t.Fatalf("screenshot: %v", err)
	}
	if string(got) != string(shot) {
		t.Errorf("screenshot bytes %v, want %v", got, shot)
	}
}

func TestCDP_CommandError(t *testing.T) {
	srv := fakeDevtools(t, nil)
	defer srv.Close()
	d := dialFake(t, srv)

	_, err := d.call(context.Background(), "Nope.nothing", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown method") {
		t.Fatalf("expected protocol error, got %v", err)
	}
}
