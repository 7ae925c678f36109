package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/rpcgate/internal/gateway/health"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show endpoint health of a running gateway",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "gateway base URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(statusAddr + "/health/detailed")
	if err != nil {
		slog.Error("Failed to reach gateway", "addr", statusAddr, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var report health.HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		slog.Error("Failed to decode health report", "error", err)
		os.Exit(1)
	}

	printReport(os.Stdout, &report)
}

func printReport(out io.Writer, report *health.HealthReport) {
	_, _ = fmt.Fprintf(out, "System: %s\n\n", report.SystemStatus)

	names := make([]string, 0, len(report.Networks))
	for name := range report.Networks {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "NETWORK\tSTATUS\tENDPOINT\tHEALTHY\tFAILURES\tLATENCY\tCOOLDOWN")

	for _, name := range names {
		nh := report.Networks[name]
		for _, ep := range nh.Endpoints {
			healthy, failures, latency, cooldown := "-", "-", "-", "-"
			if ep.Record != nil {
				healthy = fmt.Sprintf("%t", ep.Record.Healthy)
				failures = fmt.Sprintf("%d", ep.Record.ConsecutiveFailures)
				latency = ep.Record.ResponseTime.Round(time.Millisecond).String()
			}
			if ep.InCooldown && ep.Record != nil {
				cooldown = ep.Record.CooldownUntil.Format(time.RFC3339)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				name, nh.Status, ep.URL, healthy, failures, latency, cooldown)
		}
	}
	_ = w.Flush()
}
