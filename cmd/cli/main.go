// Command cli is a terminal client for the taleweaver API. It speaks plain
// JSON over HTTP, so it works against any running server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/myrjola/taleweaver/internal/engine"
	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/myrjola/taleweaver/internal/game"
	"github.com/spf13/cobra"
)

type cli struct {
	serverURL string
	client    *http.Client
	out       io.Writer
}

func main() {
	c := cli{
		serverURL: "",
		client:    &http.Client{Timeout: 2 * time.Minute},
		out:       os.Stdout,
	}

	root := &cobra.Command{
		Use:           "taleweaver",
		Short:         "Play interactive stories against a taleweaver server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&c.serverURL, "server", "http://localhost:4000", "taleweaver server URL")

	root.AddCommand(
		c.scenariosCommand(),
		c.sessionsCommand(),
		c.playCommand(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func (c *cli) scenariosCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the scenarios the server offers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var listing struct {
				Scenarios []struct {
					ID          string `json:"id"`
					Title       string `json:"title"`
					Description string `json:"description"`
				} `json:"scenarios"`
			}
			if err := c.getJSON(cmd.Context(), "/api/scenarios", &listing); err != nil {
				return err
			}
			for _, s := range listing.Scenarios {
				fmt.Fprintf(c.out, "%s\t%s\n", s.ID, s.Title)
				if s.Description != "" {
					fmt.Fprintf(c.out, "\t%s\n", s.Description)
				}
			}
			return nil
		},
	}
}

func (c *cli) sessionsCommand() *cobra.Command {
	sessions := &cobra.Command{
		Use:   "sessions",
		Short: "Manage storytelling sessions",
	}

	var scenarioID string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a new session, optionally from a scenario",
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{}
			if scenarioID != "" {
				body["scenario"] = scenarioID
			}
			var state game.WorldState
			if err := c.postJSON(cmd.Context(), "/api/sessions", body, http.StatusCreated, &state); err != nil {
				return err
			}
			fmt.Fprintln(c.out, state.SessionID)
			return nil
		},
	}
	create.Flags().StringVar(&scenarioID, "scenario", "", "scenario id to seed the world from")

	list := &cobra.Command{
		Use:   "list",
		Short: "List session ids",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var listing struct {
				Sessions []string `json:"sessions"`
			}
			if err := c.getJSON(cmd.Context(), "/api/sessions", &listing); err != nil {
				return err
			}
			for _, id := range listing.Sessions {
				fmt.Fprintln(c.out, id)
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the session's world state as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var state json.RawMessage
			if err := c.getJSON(cmd.Context(), "/api/sessions/"+args[0], &state); err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, state, "", "  "); err != nil {
				return errors.Wrap(err, "indent state")
			}
			fmt.Fprintln(c.out, pretty.String())
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.delete(cmd.Context(), "/api/sessions/"+args[0])
		},
	}

	sessions.AddCommand(create, list, show, remove)
	return sessions
}

func (c *cli) playCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "play <session-id> <input...>",
		Short: "Take one turn: send the player input and print the narration",
		Args:  cobra.MinimumNArgs(2), //nolint:mnd // session id plus at least one input word.
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			input := ""
			for i, word := range args[1:] {
				if i > 0 {
					input += " "
				}
				input += word
			}

			var result engine.TurnResult
			err := c.postJSON(cmd.Context(), "/api/sessions/"+sessionID+"/action",
				map[string]any{"playerInput": input}, http.StatusOK, &result)
			if err != nil {
				return err
			}

			if result.Chunk.Text != "" {
				fmt.Fprintln(c.out, result.Chunk.Text)
			}
			for _, descriptor := range result.Chunk.Media {
				fmt.Fprintf(c.out, "[%s] %s\n", descriptor.Kind, descriptor.URL)
			}
			for _, issue := range result.Issues {
				fmt.Fprintf(c.out, "note (%s): %s\n", issue.Kind, issue.Message)
			}
			return nil
		},
	}
}

func (c *cli) getJSON(ctx context.Context, urlPath string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+urlPath, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	return c.do(req, http.StatusOK, out)
}

func (c *cli) postJSON(ctx context.Context, urlPath string, body any, wantStatus int, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+urlPath, bytes.NewReader(encoded))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, wantStatus, out)
}

func (c *cli) delete(ctx context.Context, urlPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.serverURL+urlPath, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	return c.do(req, http.StatusNoContent, nil)
}

func (c *cli) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != wantStatus {
		var apiError struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiError); decodeErr == nil && apiError.Error != "" {
			return errors.New(apiError.Error)
		}
		return errors.New(resp.Status)
	}
	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
