package main

import (
	"net/http"

	"github.com/myrjola/taleweaver/internal/game"
)

// playerAction runs one turn of the storytelling loop and responds with the
// combined narrative chunk plus any advisory consistency issues.
func (app *application) playerAction(w http.ResponseWriter, r *http.Request) {
	var action game.Action
	if err := app.readJSON(w, r, &action); err != nil {
		app.clientError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := app.coordinator.Turn(r.Context(), r.PathValue("id"), action)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, result)
}
