package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/pinewire/internal/api"
	"github.com/user/pinewire/internal/config"
	"github.com/user/pinewire/internal/delivery"
	"github.com/user/pinewire/internal/scheduler"
	"github.com/user/pinewire/internal/telegram"
	"github.com/user/pinewire/internal/types"
)

// scheduledRunTimeout bounds one scheduled prompt's session from join to
// terminal event.
const scheduledRunTimeout = 5 * time.Minute

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().String("session", "", "join an existing session instead of creating one")
}

var bridgeCmd = &cobra.Command{
	Use:   "serve-bridge",
	Short: "Mirror a session to Telegram and run scheduled prompts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram token and chat_id must be configured")
		}

		client := api.New(cfg.BaseURL, cfg.APIKey)
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sessionID := types.SessionID(cmd.Flag("session").Value.String())
		if sessionID == "" {
			info, err := client.CreateSession(ctx, "telegram bridge")
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			sessionID = info.ID
		}

		mux, err := openSession(ctx, cfg, client, sessionID)
		if err != nil {
			return err
		}

		bridge, err := telegram.New(cfg.Telegram.Token, mux, cfg.Telegram.ChatID, slog.Default())
		if err != nil {
			return fmt.Errorf("create bridge: %w", err)
		}

		registry := delivery.NewRegistry()
		registry.Register("telegram:", bridge.Deliverer())

		sched := scheduler.New(cfg.Schedules, func(target, prompt string) {
			output, err := runScheduledPrompt(ctx, cfg, client, prompt)
			if err != nil {
				slog.Error("scheduled prompt failed", "target", target, "error", err)
				return
			}
			if output == "" {
				return
			}
			if err := registry.Deliver(target, output); err != nil {
				slog.Error("deliver scheduled output failed", "target", target, "error", err)
			}
		})
		if err := sched.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()

		slog.Info("bridge started", "session_id", string(sessionID), "chat_id", cfg.Telegram.ChatID)
		return bridge.Run(ctx)
	},
}

// runScheduledPrompt opens a throwaway session, sends the prompt, and
// collects the reply text. Collection ends at a terminal event, at the
// overall timeout, or once the server has been quiet for the response
// idle window after the first reply arrived.
func runScheduledPrompt(ctx context.Context, cfg *config.Config, client *api.Client, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, scheduledRunTimeout)
	defer cancel()

	info, err := client.CreateSession(ctx, "scheduled: "+truncate(prompt, 40))
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	mux, err := openSession(ctx, cfg, client, info.ID)
	if err != nil {
		return "", err
	}
	defer mux.Disconnect()

	if err := mux.Chat(ctx, prompt); err != nil {
		return "", fmt.Errorf("send prompt: %w", err)
	}

	responseIdle := time.Duration(cfg.ResponseIdleMS) * time.Millisecond
	if responseIdle <= 0 {
		responseIdle = 2 * time.Second
	}
	idle := time.NewTimer(time.Hour)
	idle.Stop()
	defer idle.Stop()
	var idleCh <-chan time.Time

	var parts []string
	for {
		select {
		case <-ctx.Done():
			return strings.Join(parts, "\n\n"), nil
		case <-idleCh:
			return strings.Join(parts, "\n\n"), nil
		case ev, ok := <-mux.Events():
			if !ok {
				return strings.Join(parts, "\n\n"), nil
			}
			switch ev.Kind {
			case types.OutputText:
				parts = append(parts, ev.Text)
				// Quiet period after a reply ends the run; more text
				// rearms the wait.
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(responseIdle)
				idleCh = idle.C
			case types.OutputError:
				return strings.Join(parts, "\n\n"), ev.Err
			case types.OutputTerminal:
				return strings.Join(parts, "\n\n"), nil
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
