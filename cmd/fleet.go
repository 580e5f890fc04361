package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/busalloc/core/fleet"
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Fleet related commands",
}

var fleetLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the buses and routes of the configured fleet",
	RunE:  runFleetLs,
}

func init() {
	fleetCmd.AddCommand(fleetLsCmd)
	rootCmd.AddCommand(fleetCmd)
}

func runFleetLs(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	seed := fleet.DefaultSeed()
	if cfg.Fleet.SeedPath != "" {
		if seed, err = fleet.LoadSeed(cfg.Fleet.SeedPath); err != nil {
			return fmt.Errorf("fleet seed: %w", err)
		}
	}
	reg, err := fleet.NewMemoryRegistry(seed)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROUTE\tNAME\tSTOPS")
	for _, r := range reg.Routes() {
		fmt.Fprintf(w, "%s\t%s\t%v\n", r.ID, r.Name, r.StopIDs)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "BUS\tROUTE\tSTATUS\tLOAD")
	for _, b := range reg.Buses() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\n", b.ID, b.RouteID, b.Status, b.CurrentPassengers, b.Capacity)
	}
	return w.Flush()
}
