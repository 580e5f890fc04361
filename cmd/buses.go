package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/busalloc/infra/mqtt"
)

var (
	busesBroker   string
	busesBusID    string
	busesDelay    time.Duration
	busesDropRate float64
)

var simulateBusesCmd = &cobra.Command{
	Use:   "buses",
	Short: "Acknowledge reassignment orders on behalf of the fleet",
	RunE:  runSimulateBuses,
}

func init() {
	simulateBusesCmd.Flags().StringVar(&busesBroker, "broker", "", "MQTT broker URL, overrides the configuration")
	simulateBusesCmd.Flags().StringVar(&busesBusID, "bus", "", "only answer orders for this bus")
	simulateBusesCmd.Flags().DurationVar(&busesDelay, "delay", 0, "delay before each acknowledgment")
	simulateBusesCmd.Flags().Float64Var(&busesDropRate, "drop-rate", 0, "probability of ignoring an order")
	simulateCmd.AddCommand(simulateBusesCmd)
}

func runSimulateBuses(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	mcfg := cfg.MQTT.Client
	if busesBroker != "" {
		mcfg.Broker = busesBroker
	}
	if mcfg.Broker == "" {
		return fmt.Errorf("no MQTT broker configured")
	}
	mcfg.ClientID = ""
	if busesDropRate < 0 || busesDropRate > 1 {
		return fmt.Errorf("drop-rate must be within [0,1]")
	}

	var strategy mqtt.AckStrategy = mqtt.AutoAck{Delay: busesDelay}
	if busesDropRate > 0 {
		strategy = mqtt.NewRandomAck(busesDelay, busesDropRate, time.Now().UnixNano())
	}
	var opts []mqtt.BusAgentOption
	if busesBusID != "" {
		opts = append(opts, mqtt.WithBusID(busesBusID))
	}
	agent, err := mqtt.NewBusAgent(mcfg, strategy, opts...)
	if err != nil {
		return fmt.Errorf("connect bus agent: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	agent.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "received %d orders\n", len(agent.Orders()))
	return nil
}
