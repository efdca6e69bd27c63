package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/pinewire/internal/api"
	"github.com/user/pinewire/internal/config"
	"github.com/user/pinewire/internal/journal"
	"github.com/user/pinewire/internal/render"
	"github.com/user/pinewire/internal/stream"
	"github.com/user/pinewire/internal/transcript"
	"github.com/user/pinewire/internal/transport"
	"github.com/user/pinewire/internal/types"
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("session", "", "join an existing session instead of creating one")
	chatCmd.Flags().String("title", "", "title for a newly created session")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with a Pine session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := api.New(cfg.BaseURL, cfg.APIKey)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sessionID := types.SessionID(cmd.Flag("session").Value.String())
		if sessionID == "" {
			title, _ := cmd.Flags().GetString("title")
			info, err := client.CreateSession(ctx, title)
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			sessionID = info.ID
			fmt.Printf("Created session %s\n", sessionID)
		}

		mux, err := openSession(ctx, cfg, client, sessionID)
		if err != nil {
			return err
		}

		tr := newTranscript(cfg)
		defer tr.Reset()

		// Event printer.
		go func() {
			for ev := range mux.Events() {
				printEvent(ev, tr)
			}
		}()

		// Ctrl-C disconnects cleanly.
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			fmt.Println("\nDisconnecting...")
			mux.Disconnect()
			cancel()
		}()

		fmt.Println("Type a message and press enter. /history shows recent turns. Ctrl-C to quit.")
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if line == "/history" {
				fmt.Print(historyView(tr.Tail(cfg.Tokenizer.TailBudget)))
				continue
			}
			tr.Add(transcript.RoleUser, line, "")
			if err := mux.Chat(ctx, line); err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
			select {
			case <-mux.Done():
				return nil
			default:
			}
		}

		mux.Disconnect()
		return scanner.Err()
	},
}

// openSession dials the websocket and joins the session with the
// configured options.
func openSession(ctx context.Context, cfg *config.Config, client *api.Client, sessionID types.SessionID) (*stream.Mux, error) {
	link, err := transport.Dial(ctx, cfg.SocketURL, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	opts := []stream.Option{
		stream.WithStater(client),
		stream.WithDebounceWindow(time.Duration(cfg.DebounceWindowMS) * time.Millisecond),
		stream.WithIdleTimeout(time.Duration(cfg.IdleTimeoutMS) * time.Millisecond),
	}
	if cfg.JournalEnabled {
		opts = append(opts, stream.WithRecorder(journal.New(cfg.DataDir)))
	}

	mux := stream.New(link, opts...)
	if err := mux.Join(ctx, sessionID); err != nil {
		link.Close()
		return nil, err
	}
	return mux, nil
}

// newTranscript builds the token-counting transcript, degrading to the
// approximate counter when tokenizer data is unavailable.
func newTranscript(cfg *config.Config) *transcript.Transcript {
	if cfg.Tokenizer.Approximate {
		return transcript.NewApproximate()
	}
	tr, err := transcript.New(cfg.Tokenizer.Model)
	if err != nil {
		slog.Warn("tokenizer unavailable, using approximate counting", "error", err)
		return transcript.NewApproximate()
	}
	return tr
}

// historyView renders a token-budgeted tail of the session's turns.
func historyView(turns []transcript.Turn) string {
	if len(turns) == 0 {
		return "No turns yet.\n"
	}
	var sb strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", turn.At.Format("15:04:05"), turn.Role, turn.Text)
	}
	return sb.String()
}

func printEvent(ev types.OutputEvent, tr *transcript.Transcript) {
	switch ev.Kind {
	case types.OutputText:
		text := render.Normalize(ev.Text)
		tr.Add(transcript.RoleAgent, text, ev.MessageID)
		fmt.Printf("\n%s\n\n", text)
	case types.OutputWorkLogPart:
		title := ev.WorkLog.Title
		if title == "" {
			title = string(ev.WorkLog.StepID)
		}
		if ev.WorkLog.Status != "" {
			title += " [" + ev.WorkLog.Status + "]"
		}
		fmt.Printf("  · %s\n", title)
		if ev.WorkLog.Text != "" {
			fmt.Printf("    %s\n", ev.WorkLog.Text)
		}
	case types.OutputStateChanged:
		slog.Debug("session state", "state", ev.State)
	case types.OutputError:
		fmt.Fprintf(os.Stderr, "session error: %v\n", ev.Err)
	case types.OutputTerminal:
		fmt.Printf("Session ended: %s (%d tokens this session)\n", ev.State, tr.TotalTokens())
	}
}
