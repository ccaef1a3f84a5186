package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/myrjola/taleweaver/internal/game"
)

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error",
		slog.String("method", method), slog.String("uri", uri), errors.SlogError(err))
	app.writeJSON(w, r, http.StatusInternalServerError,
		map[string]string{"error": http.StatusText(http.StatusInternalServerError)})
}

func (app *application) clientError(w http.ResponseWriter, r *http.Request, status int, message string) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.Debug(message, "method", method, "uri", uri, "status", status)
	app.writeJSON(w, r, status, map[string]string{"error": message})
}

// handleError maps domain errors onto HTTP statuses. Anything unrecognised is a
// server error.
func (app *application) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *game.ValidationError
	switch {
	case errors.As(err, &validationErr):
		app.writeJSON(w, r, http.StatusBadRequest, map[string]any{
			"error":  "invalid request",
			"issues": validationErr.Issues,
		})
	case errors.Is(err, game.ErrNotFound):
		app.clientError(w, r, http.StatusNotFound, "session not found")
	case errors.Is(err, game.ErrCollaborator):
		app.clientError(w, r, http.StatusBadGateway, "collaborator unavailable")
	default:
		app.serverError(w, r, err)
	}
}

func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelError, "write response", errors.SlogError(err))
	}
}

// maxRequestBody bounds request bodies. World seeds are small and player
// actions are a sentence or two.
const maxRequestBody = 1 << 20

func (app *application) readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}
