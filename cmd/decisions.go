package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/busalloc/app/plugins"
	"github.com/kilianp07/busalloc/core/decisionlog"
	"github.com/kilianp07/busalloc/core/model"
	"github.com/kilianp07/busalloc/pkg/export"
)

var (
	exportFormat string
	exportOut    string
	exportStatus string
	exportStop   string
	exportSince  time.Duration
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Decision log commands",
}

var decisionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the configured decision log as JSON or CSV",
	RunE:  runDecisionsExport,
}

func init() {
	f := decisionsExportCmd.Flags()
	f.StringVar(&exportFormat, "format", "csv", "output format: csv or json")
	f.StringVarP(&exportOut, "output", "o", "", "output file (default stdout)")
	f.StringVar(&exportStatus, "status", "", "only decisions with this status")
	f.StringVar(&exportStop, "stop", "", "only decisions for this stop id")
	f.DurationVar(&exportSince, "since", 0, "only decisions newer than this duration")
	decisionsCmd.AddCommand(decisionsExportCmd)
	rootCmd.AddCommand(decisionsCmd)
}

func runDecisionsExport(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := plugins.NewDecisionLog(cfg.DecisionLog)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	q := decisionlog.Query{Status: model.DecisionStatus(exportStatus), StopID: exportStop}
	if exportSince > 0 {
		q.Start = time.Now().Add(-exportSince)
	}
	decisions, err := store.Query(context.Background(), q)
	if err != nil {
		return fmt.Errorf("query decisions: %w", err)
	}

	out := cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return export.Write(out, exportFormat, decisions)
}
