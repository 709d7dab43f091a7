package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Rod drives a Chrome instance it launches itself, via go-rod.
type Rod struct {
	browser  *rod.Browser
	page     *rod.Page
	headless bool
	stealth  bool
	logger   *slog.Logger
}

// RodOption configures a Rod driver.
type RodOption func(*Rod)

// WithHeadless sets headless mode (default true).
func WithHeadless(h bool) RodOption {
	return func(d *Rod) { d.headless = h }
}

// WithStealth creates pages through go-rod/stealth, for sites that
// fingerprint headless Chrome.
func WithStealth(s bool) RodOption {
	return func(d *Rod) { d.stealth = s }
}

// WithRodLogger sets a custom logger.
func WithRodLogger(l *slog.Logger) RodOption {
	return func(d *Rod) { d.logger = l }
}

// NewRod creates a Rod driver with options. Call Start before use.
func NewRod(opts ...RodOption) *Rod {
	d := &Rod{
		headless: true,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Start launches Chrome and opens a blank page.
func (d *Rod) Start(ctx context.Context) error {
	if d.browser != nil {
		return fmt.Errorf("browser already running")
	}

	l := launcher.New().
		Headless(d.headless).
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check")

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch Chrome: %w", err)
	}

	d.logger.Info("Chrome launched", "cdp", controlURL, "headless", d.headless)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to Chrome: %w", err)
	}
	d.browser = b

	var page *rod.Page
	if d.stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		d.browser.Close()
		d.browser = nil
		return fmt.Errorf("create page: %w", err)
	}
	d.page = page
	return nil
}

// Navigate loads a URL and waits for the page to stabilize.
func (d *Rod) Navigate(ctx context.Context, url string) error {
	if d.page == nil {
		return fmt.Errorf("driver not started")
	}
	page := d.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitStable(300 * time.Millisecond); err != nil {
		return fmt.Errorf("wait stable after navigate: %w", err)
	}
	return nil
}

// ExecuteScript evaluates a JS function expression with args in the
// page context.
func (d *Rod) ExecuteScript(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	if d.page == nil {
		return nil, fmt.Errorf("driver not started")
	}
	res, err := d.page.Context(ctx).Eval(fn, args...)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	raw, err := json.Marshal(res.Value)
	if err != nil {
		return nil, fmt.Errorf("marshal eval result: %w", err)
	}
	return raw, nil
}

// Screenshot captures the current viewport as PNG bytes.
func (d *Rod) Screenshot(ctx context.Context) ([]byte, error) {
	if d.page == nil {
		return nil, fmt.Errorf("driver not started")
	}
	return d.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Stop closes the browser.
func (d *Rod) Stop() error {
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	d.page = nil
	return err
}

var (
	_ Driver    = (*Rod)(nil)
	_ Navigator = (*Rod)(nil)
)
