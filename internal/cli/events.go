package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/rpcgate/internal/core/domain"
	"github.com/vietddude/rpcgate/internal/infra/storage/postgres"
)

var (
	eventsNetwork string
	eventsLimit   int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent fallback events from the journal database",
	Run:   runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsNetwork, "network", "devnet", "mainnet-beta, testnet or devnet")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "maximum number of events")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("database.url is not configured")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	network := domain.NormalizeNetwork(eventsNetwork)
	events, err := postgres.NewEventRepo(db).Recent(ctx, network, eventsLimit)
	if err != nil {
		slog.Error("Failed to query fallback events", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tURL\tDETAIL\tOCCURRED")
	for _, ev := range events {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			ev.ID, ev.Kind, ev.URL, ev.Detail, ev.OccurredAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
