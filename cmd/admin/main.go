package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/janitor"
	"strangerchat/backend/internal/pubsub"
	"strangerchat/backend/internal/storage"

	"github.com/joho/godotenv"
)

const usage = `Usage: admin <command> [args]

Commands:
  queue                      list waiting participants, oldest first
  end-session <session_id>   end a session and notify both participants
  sweep                      run one janitor sweep
  purge-messages <duration>  delete messages older than duration (e.g. 24h)`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fatal("invalid configuration: %v", err)
	}

	db, err := storage.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		fatal("failed to connect database: %v", err)
	}
	storageSvc := storage.NewStorageService(db, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Notifications only reach running servers through a shared broker.
	broker, err := pubsub.Open(ctx, cfg, db, logger)
	if err != nil {
		fatal("failed to start pub/sub: %v", err)
	}
	defer broker.Close()
	sessions := chathub.NewSessionRegistry(storageSvc, broker, logger)

	command := os.Args[1]
	if warning := notifyWarning(command, cfg.PubSubDriver); warning != "" {
		fmt.Fprintln(os.Stderr, warning)
	}

	switch command {
	case "queue":
		if err := listQueue(ctx, os.Stdout, storageSvc); err != nil {
			fatal("error listing queue: %v", err)
		}
	case "end-session":
		if len(os.Args) != 3 {
			fatal("Usage: admin end-session <session_id>")
		}
		session, err := sessions.End(ctx, os.Args[2], "")
		if err != nil {
			fatal("error ending session: %v", err)
		}
		fmt.Printf("Session %s is %s.\n", session.ID, session.Status)
	case "sweep":
		sweeper := janitor.New(storageSvc, sessions, logger)
		sweeper.StaleAfter = cfg.StaleAfter
		sweeper.Retention = cfg.MessageRetention
		report, err := sweeper.Sweep(ctx)
		if err != nil {
			fatal("sweep failed: %v", err)
		}
		fmt.Printf("Evicted %d queue entries, ended %d sessions, purged %d messages.\n",
			report.EvictedEntries, report.EndedSessions, report.PurgedMessages)
	case "purge-messages":
		if len(os.Args) != 3 {
			fatal("Usage: admin purge-messages <duration>")
		}
		age, err := time.ParseDuration(os.Args[2])
		if err != nil || age <= 0 {
			fatal("Invalid duration. Please provide a positive Go duration such as 24h.")
		}
		n, err := storageSvc.PurgeMessagesBefore(ctx, time.Now().UTC().Add(-age))
		if err != nil {
			fatal("error purging messages: %v", err)
		}
		fmt.Printf("Purged %d messages.\n", n)
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func listQueue(ctx context.Context, w io.Writer, s storage.Storage) error {
	entries, err := s.QueueEntries(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARTICIPANT\tENQUEUED\tWAITING")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ParticipantID, e.EnqueuedAt.Format(time.RFC3339), time.Since(e.EnqueuedAt).Round(time.Second))
	}
	return tw.Flush()
}

// notifyWarning explains when a command's notifications cannot reach the
// server: the local broker only lives inside this process.
func notifyWarning(command, driver string) string {
	if driver != "local" {
		return ""
	}
	switch command {
	case "end-session", "sweep":
		return "warning: PUBSUB_DRIVER=local, connected participants will not be notified; " +
			"use the redis or postgres driver shared with the server"
	}
	return ""
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
