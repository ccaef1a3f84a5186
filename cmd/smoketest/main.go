package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/myrjola/taleweaver/internal/e2etest"
	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/myrjola/taleweaver/internal/game"
	"github.com/myrjola/taleweaver/internal/logging"
)

// TestSessionLifecycle exercises the session API against a live deployment:
// create, fetch, list, and delete, leaving nothing behind.
func TestSessionLifecycle(client *e2etest.Client) error {
	ctx := context.Background()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second) //nolint:mnd // 10 seconds
	defer cancel()

	if err := client.WaitForReady(ctx, "/api/healthy"); err != nil {
		return errors.Wrap(err, "wait for healthy")
	}

	var state game.WorldState
	if err := client.PostJSON(ctx, "/api/sessions", nil, http.StatusCreated, &state); err != nil {
		return errors.Wrap(err, "create session")
	}
	if state.SessionID == "" {
		return errors.New("created session has no id")
	}

	var fetched game.WorldState
	if err := client.GetJSON(ctx, "/api/sessions/"+state.SessionID, &fetched); err != nil {
		return errors.Wrap(err, "fetch session")
	}

	var listing struct {
		Sessions []string `json:"sessions"`
	}
	if err := client.GetJSON(ctx, "/api/sessions", &listing); err != nil {
		return errors.Wrap(err, "list sessions")
	}

	if err := client.Delete(ctx, "/api/sessions/"+state.SessionID, http.StatusNoContent); err != nil {
		return errors.Wrap(err, "delete session")
	}
	return nil
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only the server URL to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <server-url>")
		os.Exit(1)
	}

	url := os.Args[1]
	ctx = logging.WithAttrs(ctx, slog.String("url", url))

	client := e2etest.NewClient(url)
	if err := TestSessionLifecycle(client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing session lifecycle", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}
