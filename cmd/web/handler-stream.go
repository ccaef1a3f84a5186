package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/myrjola/taleweaver/internal/errors"
)

// streamSession serves the session's narrative over Server-Sent Events: first a
// transcript snapshot, then every chunk committed while the client stays
// connected.
func (app *application) streamSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		app.serverError(w, r, errors.New("response writer does not support flushing"))
		return
	}

	// Subscribe before reading the snapshot so that a chunk committed in
	// between is not lost; at worst it is delivered twice, once in the snapshot
	// and once as an event.
	chunks := app.broker.Subscribe(sessionID)
	defer app.broker.Unsubscribe(sessionID, chunks)

	transcript, err := app.store.Transcript(ctx, sessionID)
	if err != nil {
		app.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err = writeEvent(w, "transcript", transcript); err != nil {
		app.logger.LogAttrs(ctx, slog.LevelDebug, "write transcript snapshot", errors.SlogError(err))
		return
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, open := <-chunks:
			if !open {
				return
			}
			if err = writeEvent(w, "chunk", chunk); err != nil {
				app.logger.LogAttrs(ctx, slog.LevelDebug, "write chunk event", errors.SlogError(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode event payload")
	}
	if _, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return errors.Wrap(err, "write event")
	}
	return nil
}
