package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/busalloc/core/model"
	"github.com/kilianp07/busalloc/core/simulator"
	"github.com/kilianp07/busalloc/infra/logger"
)

var (
	simAPI       string
	simFrequency time.Duration
	simCount     int
	simSeed      int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Post generated reallocation requests to a running service",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simAPI, "api", "http://localhost:8080", "base URL of the service")
	simulateCmd.Flags().DurationVar(&simFrequency, "frequency", 5*time.Second, "interval between requests")
	simulateCmd.Flags().IntVar(&simCount, "count", 0, "send this many requests at once and exit; 0 runs until interrupted")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", time.Now().UnixNano(), "random seed")
	rootCmd.AddCommand(simulateCmd)
}

// httpIntake submits requests through the HTTP API.
type httpIntake struct {
	url    string
	client *http.Client
}

func newHTTPIntake(base string) *httpIntake {
	return &httpIntake{
		url:    strings.TrimSuffix(base, "/") + "/api/reallocation/requests",
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *httpIntake) Submit(r model.ReallocationRequest) (string, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	resp, err := h.client.Post(h.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out struct {
		RequestID string `json:"request_id"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response (%d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("submit rejected (%d): %s", resp.StatusCode, out.Error)
	}
	return out.RequestID, nil
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	runner, err := simulator.NewRunner(simulator.NewGenerator(simSeed), newHTTPIntake(simAPI), simFrequency, logger.New("simulator"))
	if err != nil {
		return err
	}
	if simCount > 0 {
		ids, err := runner.Bulk(simCount)
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runner.Start(ctx)
	<-ctx.Done()
	runner.Stop()
	fmt.Fprintf(cmd.OutOrStdout(), "sent %d requests\n", runner.Sent())
	return nil
}
