// Package visual asserts that a page looks the same as it did when its
// baseline screenshot was recorded. It composes page normalization,
// baseline storage, and pixel comparison behind one entry point.
package visual

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/snapdiff/internal/baseline"
	"github.com/nextlevelbuilder/snapdiff/internal/history"
	"github.com/nextlevelbuilder/snapdiff/internal/normalize"
	"github.com/nextlevelbuilder/snapdiff/pkg/driver"
	"github.com/nextlevelbuilder/snapdiff/pkg/pixeldiff"
)

// DefaultAllowedMismatchedPixelsPercent tolerates 1% of differing
// pixels before an assertion fails.
const DefaultAllowedMismatchedPixelsPercent = 1.0

// Options tune a single assertion.
type Options struct {
	// AllowedMismatchedPixelsPercent is the maximum tolerated share of
	// differing pixels, in percent. Values <= 0 select the default.
	AllowedMismatchedPixelsPercent float64

	// PreserveTexts lists selectors whose text content is replaced
	// with baseline-captured text before the candidate screenshot.
	PreserveTexts []string

	// HideElements lists selectors whose matches are hidden before the
	// capture and unhidden after.
	HideElements []string
}

// Config configures an Asserter.
type Config struct {
	// BaseFolder holds baseline images and ignored-text snapshots.
	BaseFolder string
	// DiffFolder holds failure diff artifacts.
	DiffFolder string
	// UpdateBaselines selects update mode: baselines are (re)written
	// instead of compared against.
	UpdateBaselines bool
	// Threshold is the per-channel perceptual threshold on a 0–1
	// scale; <= 0 selects pixeldiff.DefaultThreshold.
	Threshold float64
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// History, when set, records every assertion outcome.
	History *history.Store
}

// Asserter runs visual assertions against a single page. Callers must
// serialize assertions per page: normalization mutates shared page
// state.
type Asserter struct {
	norm      *normalize.Normalizer
	store     *baseline.Store
	hist      *history.Store
	update    bool
	threshold float64
	logger    *slog.Logger
}

// New creates an Asserter on top of a page driver.
func New(drv driver.Driver, cfg Config) (*Asserter, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store, err := baseline.NewStore(cfg.BaseFolder, cfg.DiffFolder, baseline.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &Asserter{
		norm:      normalize.New(drv, normalize.WithLogger(logger)),
		store:     store,
		hist:      cfg.History,
		update:    cfg.UpdateBaselines,
		threshold: cfg.Threshold,
		logger:    logger,
	}, nil
}

// DontSeeVisualChanges captures a normalized screenshot of the current
// page and compares it against the stored baseline for name. In update
// mode the baseline is (re)written instead. It returns ErrInvalidName
// for an empty name, ErrBaselineMissing when comparing without a
// baseline, and a *MismatchError when the difference exceeds the
// allowed tolerance.
func (a *Asserter) DontSeeVisualChanges(ctx context.Context, name string, opts *Options) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	o := opts
	if o == nil {
		o = &Options{}
	}
	allowed := o.AllowedMismatchedPixelsPercent
	if allowed <= 0 {
		allowed = DefaultAllowedMismatchedPixelsPercent
	}

	if a.update {
		return a.updateBaseline(ctx, name, o)
	}
	return a.compare(ctx, name, o, allowed)
}

// updateBaseline captures with no baseline texts to borrow (hiding
// still applies), persists the image, then snapshots the matched texts
// from the freshly restored page for the next compare run.
func (a *Asserter) updateBaseline(ctx context.Context, name string, o *Options) error {
	shot, err := a.norm.CaptureNormalized(ctx, o.PreserveTexts, o.HideElements, nil)
	if err != nil {
		return err
	}
	if err := a.store.SaveBaseline(name, shot); err != nil {
		return err
	}

	texts, err := a.norm.MatchedTexts(ctx, o.PreserveTexts)
	if err != nil {
		return fmt.Errorf("snapshot matched texts: %w", err)
	}
	if err := a.store.SaveIgnoredTexts(name, texts); err != nil {
		return err
	}

	a.logger.Info("baseline updated", "name", name, "path", a.store.BaselinePath(name), "ignoredTexts", len(texts))
	a.record(history.Run{Name: name, Mode: "update", Passed: true})
	return nil
}

func (a *Asserter) compare(ctx context.Context, name string, o *Options, allowed float64) error {
	baselineTexts, err := a.store.LoadIgnoredTexts(name)
	if err != nil {
		return err
	}

	shot, err := a.norm.CaptureNormalized(ctx, o.PreserveTexts, o.HideElements, baselineTexts)
	if err != nil {
		return err
	}

	baseImg, err := a.store.LoadBaselineImage(name)
	if err != nil {
		return err
	}
	candImg, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return fmt.Errorf("decode candidate screenshot: %w", err)
	}

	res, err := pixeldiff.Compare(baseImg, candImg, a.threshold)
	if err != nil {
		return fmt.Errorf("compare %q: %w", name, err)
	}

	allowedRatio := allowed / 100
	if res.MismatchRatio > allowedRatio {
		var buf bytes.Buffer
		if err := png.Encode(&buf, res.Diff); err != nil {
			return fmt.Errorf("encode diff %q: %w", name, err)
		}
		if err := a.store.SaveDiff(name, buf.Bytes()); err != nil {
			return err
		}
		mismatchErr := &MismatchError{
			Name:          name,
			MismatchRatio: res.MismatchRatio,
			AllowedRatio:  allowedRatio,
			DiffPath:      a.store.DiffPath(name),
		}
		a.record(history.Run{
			Name: name, Mode: "compare",
			MismatchRatio: res.MismatchRatio, AllowedRatio: allowedRatio,
			DiffPath: a.store.DiffPath(name),
		})
		return mismatchErr
	}

	a.logger.Debug("visual assertion passed", "name", name, "mismatchRatio", res.MismatchRatio)
	a.record(history.Run{
		Name: name, Mode: "compare",
		MismatchRatio: res.MismatchRatio, AllowedRatio: allowedRatio,
		Passed: true,
	})
	return nil
}

// record is nil-safe: history is an optional collaborator and a
// recording failure never fails the assertion.
func (a *Asserter) record(run history.Run) {
	if a.hist == nil {
		return
	}
	if err := a.hist.Record(run); err != nil {
		a.logger.Warn("history record failed", "name", run.Name, "error", err)
	}
}
