package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/snapdiff/internal/config"
	"github.com/nextlevelbuilder/snapdiff/internal/history"
)

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [scenario]",
		Short: "Show recent assertion runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runHistory(name, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show")
	return cmd
}

func runHistory(name string, limit int) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return fmt.Errorf("history_db is not configured")
	}

	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(name, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSCENARIO\tMODE\tRESULT\tMISMATCH\tDIFF")
	for _, r := range runs {
		result := failStyle.Render("FAIL")
		if r.Passed {
			result = passStyle.Render("PASS")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f%%\t%s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.Name, r.Mode, result, r.MismatchRatio*100, r.DiffPath)
	}
	return w.Flush()
}
