package main

import (
	"net/http"

	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	// Generated audio files never change once written.
	mediaServer := http.FileServer(http.Dir(app.mediaDir))
	mux.Handle("/media/", cacheForeverHeaders(http.StripPrefix("/media", mediaServer)))

	mux.HandleFunc("GET /api/healthy", app.healthy)
	mux.Handle("GET /metrics", promhttp.HandlerFor(app.metrics, promhttp.HandlerOpts{})) //nolint:exhaustruct // defaults suffice

	mux.HandleFunc("GET /api/scenarios", app.listScenarios)

	mux.HandleFunc("POST /api/sessions", app.createSession)
	mux.HandleFunc("GET /api/sessions", app.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}", app.getSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", app.deleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/action", app.playerAction)
	mux.HandleFunc("GET /api/sessions/{id}/stream", app.streamSession)

	return alice.New(app.recoverPanic, app.logRequest, secureHeaders).Then(mux)
}
