package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/pinewire/internal/api"
	"github.com/user/pinewire/internal/journal"
	"github.com/user/pinewire/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionCreateCmd, sessionShowCmd, sessionTraceCmd)
	sessionTraceCmd.Flags().Int("limit", 20, "number of trailing frames to show")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions on the service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := api.New(cfg.BaseURL, cfg.APIKey)

		list, err := client.ListSessions(context.Background())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tTITLE\tCREATED")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				s.ID,
				s.State,
				s.Title,
				s.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a new session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := api.New(cfg.BaseURL, cfg.APIKey)

		var title string
		if len(args) > 0 {
			title = args[0]
		}
		info, err := client.CreateSession(context.Background(), title)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		fmt.Printf("Created session %s\n", info.ID)
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := api.New(cfg.BaseURL, cfg.APIKey)

		info, err := client.GetSession(context.Background(), types.SessionID(args[0]))
		if err != nil {
			if api.NotFound(err) {
				return fmt.Errorf("session not found: %s", args[0])
			}
			return fmt.Errorf("get session: %w", err)
		}
		fmt.Printf("ID:      %s\n", info.ID)
		fmt.Printf("Title:   %s\n", info.Title)
		fmt.Printf("State:   %s\n", info.State)
		fmt.Printf("Created: %s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

var sessionTraceCmd = &cobra.Command{
	Use:   "trace <id>",
	Short: "Show journaled raw frames for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		limit, _ := cmd.Flags().GetInt("limit")

		j := journal.New(cfg.DataDir)
		entries, err := j.Tail(types.SessionID(args[0]), limit)
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No journaled frames. Enable journal_enabled in the config.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "AT\tKIND\tDATA")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				e.At.Format("15:04:05.000"),
				e.Frame.Kind,
				string(e.Frame.Payload.Data),
			)
		}
		return w.Flush()
	},
}
