package main

import (
	"io"
	"net/http"

	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/myrjola/taleweaver/internal/game"
)

type createSessionRequest struct {
	// Scenario selects an authored starting world by id. Mutually exclusive
	// with Seed.
	Scenario string `json:"scenario,omitempty"`
	// Seed is an inline starting world. An absent seed creates an empty world.
	Seed *game.Seed `json:"seed,omitempty"`
}

func (app *application) createSession(w http.ResponseWriter, r *http.Request) {
	var request createSessionRequest
	if err := app.readJSON(w, r, &request); err != nil {
		// An empty body is a valid request for an empty world.
		if !errors.Is(err, io.EOF) {
			app.clientError(w, r, http.StatusBadRequest, "malformed request body")
			return
		}
	}

	seed := request.Seed
	if request.Scenario != "" {
		if seed != nil {
			app.clientError(w, r, http.StatusBadRequest, "scenario and seed are mutually exclusive")
			return
		}
		loaded, err := app.scenarios.Get(request.Scenario)
		if err != nil {
			app.clientError(w, r, http.StatusBadRequest, "unknown scenario")
			return
		}
		seed = loaded.Seed()
	}

	state, err := app.store.Create(r.Context(), seed)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusCreated, state)
}

func (app *application) listSessions(w http.ResponseWriter, r *http.Request) {
	sessionIDs, err := app.store.List(r.Context())
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	if sessionIDs == nil {
		sessionIDs = []string{}
	}
	app.writeJSON(w, r, http.StatusOK, map[string][]string{"sessions": sessionIDs})
}

func (app *application) getSession(w http.ResponseWriter, r *http.Request) {
	state, err := app.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, state)
}

func (app *application) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := app.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		app.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) listScenarios(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, r, http.StatusOK, map[string]any{"scenarios": app.scenarios.List()})
}
