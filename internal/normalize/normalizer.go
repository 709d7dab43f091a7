// Package normalize performs a reversible transformation of live page
// state around a screenshot capture: volatile text nodes are replaced
// with baseline-captured text and volatile elements are hidden, then
// everything is put back.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/snapdiff/pkg/driver"
)

// Normalizer mutates and restores page state through an injected
// script-execution capability.
type Normalizer struct {
	drv    driver.Driver
	logger *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) { n.logger = l }
}

// New creates a Normalizer on top of a page driver.
func New(drv driver.Driver, opts ...Option) *Normalizer {
	n := &Normalizer{
		drv:    drv,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// MatchedTexts resolves the selectors to a union of elements and
// returns the content of every text node beneath them, in document
// order. An empty selector list yields an empty result without a
// round trip.
func (n *Normalizer) MatchedTexts(ctx context.Context, selectors []string) ([]string, error) {
	if len(selectors) == 0 {
		return nil, nil
	}
	raw, err := n.drv.ExecuteScript(ctx, collectTextsScript, selectors)
	if err != nil {
		return nil, fmt.Errorf("collect texts: %w", err)
	}
	var texts []string
	if err := json.Unmarshal(raw, &texts); err != nil {
		return nil, fmt.Errorf("decode collected texts: %w", err)
	}
	return texts, nil
}

// SetMatchedTexts overwrites the matched text nodes positionally with
// texts. When the live node count no longer equals len(texts) the page
// is left untouched and a warning is logged: DOM drift between runs is
// expected and must not crash the assertion; the downstream pixel
// comparison is the signal.
func (n *Normalizer) SetMatchedTexts(ctx context.Context, selectors, texts []string) error {
	if len(selectors) == 0 {
		return nil
	}
	if texts == nil {
		texts = []string{}
	}
	raw, err := n.drv.ExecuteScript(ctx, setTextsScript, selectors, texts)
	if err != nil {
		return fmt.Errorf("set texts: %w", err)
	}
	var res struct {
		Applied bool `json:"applied"`
		Found   int  `json:"found"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("decode set-texts result: %w", err)
	}
	if !res.Applied {
		n.logger.Warn("text substitution skipped: node count changed since snapshot",
			"snapshot", len(texts), "live", res.Found)
	}
	return nil
}

// SetHiddenElements toggles visibility of the matched elements. Hiding
// installs one global style rule and tags matches with a marker class;
// unhiding removes the style element and strips the marker from every
// element carrying it. Repeating a call with the same hidden value is
// a no-op beyond redundant class toggles.
func (n *Normalizer) SetHiddenElements(ctx context.Context, selectors []string, hidden bool) error {
	if selectors == nil {
		selectors = []string{}
	}
	if _, err := n.drv.ExecuteScript(ctx, setHiddenScript, selectors, hidden); err != nil {
		return fmt.Errorf("set hidden=%v: %w", hidden, err)
	}
	return nil
}

// CaptureNormalized takes a screenshot with the page temporarily
// normalized: baseline texts substituted in (when a snapshot exists),
// volatile elements hidden. Restoration runs on every exit path,
// including a failed capture, so no mutated state leaks into the next
// scenario.
//
// Text restoration deliberately re-reads the current (possibly
// substituted) DOM just before writing back, rather than using a
// pristine pre-substitution copy. Substitution happens on live text
// nodes without a separate snapshot; existing baselines depend on this
// exact ordering.
func (n *Normalizer) CaptureNormalized(ctx context.Context, preserveTexts, hideElements, baselineTexts []string) (shot []byte, err error) {
	restoreTexts := false
	restoreHidden := false

	defer func() {
		if restoreTexts {
			if rerr := n.restoreTexts(ctx, preserveTexts); rerr != nil {
				n.logger.Warn("text restoration failed", "error", rerr)
				if err == nil {
					err = rerr
				}
			}
		}
		if restoreHidden {
			if rerr := n.SetHiddenElements(ctx, hideElements, false); rerr != nil {
				n.logger.Warn("unhide failed", "error", rerr)
				if err == nil {
					err = rerr
				}
			}
		}
	}()

	if len(preserveTexts) > 0 {
		if len(baselineTexts) > 0 {
			if serr := n.SetMatchedTexts(ctx, preserveTexts, baselineTexts); serr != nil {
				return nil, serr
			}
		}
		restoreTexts = true
	}

	if len(hideElements) > 0 {
		if herr := n.SetHiddenElements(ctx, hideElements, true); herr != nil {
			return nil, herr
		}
		restoreHidden = true
	}

	shot, err = n.drv.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return shot, nil
}

func (n *Normalizer) restoreTexts(ctx context.Context, selectors []string) error {
	current, err := n.MatchedTexts(ctx, selectors)
	if err != nil {
		return err
	}
	return n.SetMatchedTexts(ctx, selectors, current)
}
