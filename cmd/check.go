package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/snapdiff/internal/config"
	"github.com/nextlevelbuilder/snapdiff/internal/history"
	"github.com/nextlevelbuilder/snapdiff/pkg/driver"
	"github.com/nextlevelbuilder/snapdiff/pkg/visual"
)

func checkCmd() *cobra.Command {
	var update, watch bool
	cmd := &cobra.Command{
		Use:   "check [scenario...]",
		Short: "Compare configured scenarios against their baselines",
		Long: `Runs the named scenarios (all scenarios when none are given) in compare
mode. With --update, baselines are (re)written instead of compared.
With --watch, scenarios re-run whenever the config file changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(args, updateModeRequested(update), watch)
		},
	}
	cmd.Flags().BoolVarP(&update, "update", "u", false, "update baselines instead of comparing (also: SNAPDIFF_UPDATE_BASELINES=1)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-run on config file changes")
	return cmd
}

func runCheck(names []string, update, watch bool) error {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drv, cleanup, err := openDriver(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var hist *history.Store
	if cfg.HistoryDB != "" {
		hist, err = history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer hist.Close()
	}

	failed, err := runScenarios(ctx, cfg, drv, hist, names, update)
	if err != nil {
		return err
	}

	if !watch {
		if failed > 0 {
			return fmt.Errorf("%d scenario(s) failed", failed)
		}
		return nil
	}

	reloaded := make(chan *config.Config, 1)
	watcher, err := config.NewWatcher(path)
	if err != nil {
		return err
	}
	watcher.OnChange(func(next *config.Config) {
		select {
		case reloaded <- next:
		default:
		}
	})
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Println(dimStyle.Render("watching " + path + ", press Ctrl+C to stop"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case next := <-reloaded:
			if _, err := runScenarios(ctx, next, drv, hist, names, update); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
	}
}

// openDriver attaches to a running browser when cdp_url is configured,
// otherwise launches Chrome through rod.
func openDriver(ctx context.Context, cfg *config.Config) (driver.Driver, func(), error) {
	if cfg.Browser.CDPURL != "" {
		d, err := driver.DialCDP(ctx, cfg.Browser.CDPURL)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { d.Close() }, nil
	}

	d := driver.NewRod(
		driver.WithHeadless(*cfg.Browser.Headless),
		driver.WithStealth(cfg.Browser.Stealth),
	)
	if err := d.Start(ctx); err != nil {
		return nil, nil, err
	}
	return d, func() { d.Stop() }, nil
}

// runScenarios runs sequentially: assertions mutate shared page state,
// so they never overlap within one session.
func runScenarios(ctx context.Context, cfg *config.Config, drv driver.Driver, hist *history.Store, names []string, update bool) (failed int, err error) {
	scenarios, err := selectScenarios(cfg, names)
	if err != nil {
		return 0, err
	}

	asserter, err := visual.New(drv, visual.Config{
		BaseFolder:      cfg.BaseFolder,
		DiffFolder:      cfg.DiffFolder,
		UpdateBaselines: update,
		Threshold:       cfg.Threshold,
		History:         hist,
	})
	if err != nil {
		return 0, err
	}

	nav, canNavigate := drv.(driver.Navigator)
	for _, sc := range scenarios {
		if canNavigate {
			if err := nav.Navigate(ctx, sc.URL); err != nil {
				return failed, fmt.Errorf("scenario %q: %w", sc.Name, err)
			}
		}

		err := asserter.DontSeeVisualChanges(ctx, sc.Name, &visual.Options{
			AllowedMismatchedPixelsPercent: sc.AllowedMismatchedPixelsPercent,
			PreserveTexts:                  sc.PreserveTexts,
			HideElements:                   sc.HideElements,
		})
		switch {
		case err == nil && update:
			fmt.Printf("%s %s %s\n", passStyle.Render("UPDATED"), sc.Name, dimStyle.Render(sc.URL))
		case err == nil:
			fmt.Printf("%s %s %s\n", passStyle.Render("PASS"), sc.Name, dimStyle.Render(sc.URL))
		default:
			failed++
			fmt.Printf("%s %s %s\n", failStyle.Render("FAIL"), sc.Name, dimStyle.Render(err.Error()))
		}
	}
	return failed, nil
}

func selectScenarios(cfg *config.Config, names []string) ([]config.Scenario, error) {
	if len(names) == 0 {
		return cfg.Scenarios, nil
	}
	byName := make(map[string]config.Scenario, len(cfg.Scenarios))
	for _, sc := range cfg.Scenarios {
		byName[sc.Name] = sc
	}
	out := make([]config.Scenario, 0, len(names))
	for _, name := range names {
		sc, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		out = append(out, sc)
	}
	return out, nil
}
