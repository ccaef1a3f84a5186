package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/myrjola/taleweaver/internal/e2etest"
	"github.com/myrjola/taleweaver/internal/engine"
	"github.com/myrjola/taleweaver/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newOpenAIStub fakes the chat completions endpoint. Every completion narrates
// one line and asks for an inventory update through the update_state tool.
func newOpenAIStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write([]byte(`{
			"id": "chatcmpl-test",
			"object": "chat.completion",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "You light the lantern and the cellar shadows retreat.",
					"tool_calls": [{
						"id": "call-1",
						"type": "function",
						"function": {
							"name": "update_state",
							"arguments": "{\"diff\":{\"inventory\":[\"lit lantern\"]}}"
						}
					}]
				}
			}]
		}`))
		assert.NoError(t, err)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func startTestServer(t *testing.T, envOverrides ...map[string]string) *e2etest.Server {
	t.Helper()

	scenarioDir := t.TempDir()
	scenarioYAML := `title: The Cellar
description: You wake up in a dark cellar.
inventory:
  - lantern
`
	require.NoError(t, os.WriteFile(filepath.Join(scenarioDir, "cellar.yaml"), []byte(scenarioYAML), 0o600))

	openAIStub := newOpenAIStub(t)
	env := map[string]string{
		"TALEWEAVER_ADDR":            "localhost:0",
		"TALEWEAVER_SQLITE_URL":      "memory",
		"TALEWEAVER_MEDIA_DIR":       t.TempDir(),
		"TALEWEAVER_SCENARIO_DIR":    scenarioDir,
		"TALEWEAVER_OPENAI_BASE_URL": openAIStub.URL + "/v1",
		"OPENAI_API_KEY":             "test-key",
	}
	for _, overrides := range envOverrides {
		for key, value := range overrides {
			env[key] = value
		}
	}
	lookupEnv := func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	server, err := e2etest.StartServer(ctx, io.Discard, lookupEnv, run)
	require.NoError(t, err)
	return server
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	server := startTestServer(t)
	client := server.Client()

	// No sessions at first.
	var listing struct {
		Sessions []string `json:"sessions"`
	}
	require.NoError(t, client.GetJSON(ctx, "/api/sessions", &listing))
	assert.Empty(t, listing.Sessions)

	// Create a session from an inline seed.
	var state game.WorldState
	require.NoError(t, client.PostJSON(ctx, "/api/sessions", map[string]any{
		"seed": map[string]any{"inventory": []string{"matchbox"}},
	}, http.StatusCreated, &state))
	require.NotEmpty(t, state.SessionID)
	assert.Equal(t, []string{"matchbox"}, state.Inventory)

	// It is listed and fetchable.
	require.NoError(t, client.GetJSON(ctx, "/api/sessions", &listing))
	assert.Equal(t, []string{state.SessionID}, listing.Sessions)
	var fetched game.WorldState
	require.NoError(t, client.GetJSON(ctx, "/api/sessions/"+state.SessionID, &fetched))
	assert.Equal(t, state.SessionID, fetched.SessionID)

	// Delete it; a second delete reports not found.
	require.NoError(t, client.Delete(ctx, "/api/sessions/"+state.SessionID, http.StatusNoContent))
	assert.Error(t, client.Delete(ctx, "/api/sessions/"+state.SessionID, http.StatusNoContent))
}

// The SQLite store is the default configuration, so the server must come up
// with it and run the same lifecycle the in-memory tests cover.
func TestServerBootsWithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	server := startTestServer(t, map[string]string{
		"TALEWEAVER_SQLITE_URL": filepath.Join(t.TempDir(), "taleweaver.sqlite"),
	})
	client := server.Client()

	var state game.WorldState
	require.NoError(t, client.PostJSON(ctx, "/api/sessions", map[string]any{
		"scenario": "cellar",
	}, http.StatusCreated, &state))
	assert.Equal(t, []string{"lantern"}, state.Inventory)

	var result engine.TurnResult
	require.NoError(t, client.PostJSON(ctx, "/api/sessions/"+state.SessionID+"/action", map[string]any{
		"playerInput": "light the lantern",
	}, http.StatusOK, &result))
	assert.Equal(t, "You light the lantern and the cellar shadows retreat.", result.Chunk.Text)

	var fetched game.WorldState
	require.NoError(t, client.GetJSON(ctx, "/api/sessions/"+state.SessionID, &fetched))
	assert.Equal(t, []string{"lit lantern"}, fetched.Inventory)

	require.NoError(t, client.Delete(ctx, "/api/sessions/"+state.SessionID, http.StatusNoContent))
}

func TestCreateSessionFromScenario(t *testing.T) {
	ctx := context.Background()
	server := startTestServer(t)
	client := server.Client()

	var scenarios struct {
		Scenarios []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"scenarios"`
	}
	require.NoError(t, client.GetJSON(ctx, "/api/scenarios", &scenarios))
	require.Len(t, scenarios.Scenarios, 1)
	assert.Equal(t, "cellar", scenarios.Scenarios[0].ID)

	var state game.WorldState
	require.NoError(t, client.PostJSON(ctx, "/api/sessions", map[string]any{
		"scenario": "cellar",
	}, http.StatusCreated, &state))
	assert.Equal(t, []string{"lantern"}, state.Inventory)

	// Unknown scenario is rejected.
	err := client.PostJSON(ctx, "/api/sessions", map[string]any{
		"scenario": "attic",
	}, http.StatusCreated, nil)
	assert.Error(t, err)
}

func TestPlayerActionTurn(t *testing.T) {
	ctx := context.Background()
	server := startTestServer(t)
	client := server.Client()

	var state game.WorldState
	require.NoError(t, client.PostJSON(ctx, "/api/sessions", map[string]any{
		"scenario": "cellar",
	}, http.StatusCreated, &state))

	var result engine.TurnResult
	require.NoError(t, client.PostJSON(ctx, "/api/sessions/"+state.SessionID+"/action", map[string]any{
		"playerInput": "light the lantern",
	}, http.StatusOK, &result))
	assert.Equal(t, "You light the lantern and the cellar shadows retreat.", result.Chunk.Text)
	assert.Empty(t, result.Issues)

	// The update_state tool call took effect.
	var fetched game.WorldState
	require.NoError(t, client.GetJSON(ctx, "/api/sessions/"+state.SessionID, &fetched))
	assert.Equal(t, []string{"lit lantern"}, fetched.Inventory)

	// Empty input never reaches the model.
	err := client.PostJSON(ctx, "/api/sessions/"+state.SessionID+"/action", map[string]any{
		"playerInput": "",
	}, http.StatusOK, nil)
	assert.Error(t, err)

	// Unknown session is not found.
	err = client.PostJSON(ctx, "/api/sessions/nope/action", map[string]any{
		"playerInput": "look around",
	}, http.StatusOK, nil)
	assert.Error(t, err)
}

func TestStreamDeliversCommittedChunks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server := startTestServer(t)
	client := server.Client()

	var state game.WorldState
	require.NoError(t, client.PostJSON(ctx, "/api/sessions", nil, http.StatusCreated, &state))

	events, err := client.StreamEvents(ctx, "/api/sessions/"+state.SessionID+"/stream")
	require.NoError(t, err)

	// First event is the transcript snapshot.
	var transcript []game.TranscriptEntry
	require.NoError(t, json.Unmarshal([]byte(<-events), &transcript))
	assert.Empty(t, transcript)

	require.NoError(t, client.PostJSON(ctx, "/api/sessions/"+state.SessionID+"/action", map[string]any{
		"playerInput": "light the lantern",
	}, http.StatusOK, nil))

	var chunk game.NarrativeChunk
	select {
	case payload := <-events:
		require.NoError(t, json.Unmarshal([]byte(payload), &chunk))
	case <-ctx.Done():
		t.Fatal("timed out waiting for chunk event")
	}
	assert.Equal(t, "You light the lantern and the cellar shadows retreat.", chunk.Text)

	// A chunk committed before connecting shows up in the snapshot, so nothing
	// is lost between snapshot and subscription.
	events, err = client.StreamEvents(ctx, "/api/sessions/"+state.SessionID+"/stream")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(<-events), &transcript))
	require.Len(t, transcript, 2)
	assert.Equal(t, game.RoleNarrator, transcript[1].Role)
	assert.Equal(t, "You light the lantern and the cellar shadows retreat.", transcript[1].Content)
}

func TestMetricsExposed(t *testing.T) {
	ctx := context.Background()
	server := startTestServer(t)
	client := server.Client()

	// Label sets only materialise once observed, so run one turn first.
	var state game.WorldState
	require.NoError(t, client.PostJSON(ctx, "/api/sessions", nil, http.StatusCreated, &state))
	require.NoError(t, client.PostJSON(ctx, "/api/sessions/"+state.SessionID+"/action", map[string]any{
		"playerInput": "light the lantern",
	}, http.StatusOK, nil))

	resp, err := client.Get(ctx, "/metrics")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "taleweaver_turn_duration_seconds")
	assert.Contains(t, string(body), "taleweaver_tool_calls_total")
}
