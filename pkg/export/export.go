// Package export writes decision log entries as JSON or CSV for offline
// analysis.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/busalloc/core/model"
)

// Header lists the CSV columns in order.
var Header = []string{
	"decision_id", "timestamp", "stop_id", "status", "executed_by", "reviewed_by",
	"bus_id", "from_route_id", "to_route_id", "request_ids", "oracle_success", "reasoning",
}

// WriteJSON writes the decisions to w as a JSON array.
func WriteJSON(w io.Writer, decisions []model.Decision) error {
	if decisions == nil {
		decisions = []model.Decision{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(decisions)
}

// WriteCSV writes one row per decision. Request ids are joined with ';'.
func WriteCSV(w io.Writer, decisions []model.Decision) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, d := range decisions {
		rec := []string{
			d.ID,
			d.CreatedAt.UTC().Format(time.RFC3339),
			d.StopID,
			string(d.Status),
			string(d.ExecutedBy),
			d.ReviewedBy,
			d.BusID,
			d.FromRouteID,
			d.ToRouteID,
			strings.Join(requestIDs(d), ";"),
			strconv.FormatBool(d.Verdict.Success),
			d.Verdict.Reasoning,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write dispatches on format: "json" or "csv".
func Write(w io.Writer, format string, decisions []model.Decision) error {
	switch strings.ToLower(format) {
	case "json":
		return WriteJSON(w, decisions)
	case "csv":
		return WriteCSV(w, decisions)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func requestIDs(d model.Decision) []string {
	if len(d.RequestIDs) > 0 {
		return d.RequestIDs
	}
	if d.RequestID != "" {
		return []string{d.RequestID}
	}
	return nil
}
