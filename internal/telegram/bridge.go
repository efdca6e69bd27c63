// internal/telegram/bridge.go
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/pinewire/internal/render"
	"github.com/user/pinewire/internal/stream"
	"github.com/user/pinewire/internal/types"
)

const maxTelegramMessage = 4096

// Bridge mirrors a session's output events to a Telegram chat and
// forwards chat replies into the session.
type Bridge struct {
	bot    *tgbotapi.BotAPI
	mux    *stream.Mux
	chatID int64
	log    *slog.Logger
}

// New creates a bridge between the given session multiplexer and chat.
func New(token string, mux *stream.Mux, chatID int64, log *slog.Logger) (*Bridge, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{bot: bot, mux: mux, chatID: chatID, log: log}, nil
}

// Run pumps both directions until the session ends or ctx is cancelled.
// Output events flow to the chat; text replies flow into the session.
func (b *Bridge) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.bot.GetUpdatesChan(u)
	defer b.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return b.mux.Disconnect()

		case ev, ok := <-b.mux.Events():
			if !ok {
				return nil
			}
			if msg := formatEvent(ev); msg != "" {
				b.send(msg)
			}

		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			if update.Message.Chat.ID != b.chatID {
				continue
			}
			if update.Message.IsCommand() {
				b.handleCommand(update.Message)
				continue
			}
			if err := b.mux.Chat(ctx, update.Message.Text); err != nil {
				b.log.Error("forward to session failed", "error", err)
				b.send("Could not deliver your message to the session.")
			}
		}
	}
}

// formatEvent renders one output event as chat text. Non-displayable
// events return an empty string.
func formatEvent(ev types.OutputEvent) string {
	switch ev.Kind {
	case types.OutputText:
		return render.Normalize(ev.Text)
	case types.OutputWorkLogPart:
		var sb strings.Builder
		sb.WriteString("⚙ ")
		if ev.WorkLog.Title != "" {
			sb.WriteString(ev.WorkLog.Title)
		} else {
			sb.WriteString(string(ev.WorkLog.StepID))
		}
		if ev.WorkLog.Status != "" {
			sb.WriteString(" [" + ev.WorkLog.Status + "]")
		}
		if ev.WorkLog.Text != "" {
			sb.WriteString("\n" + ev.WorkLog.Text)
		}
		return sb.String()
	case types.OutputError:
		return "Error: " + ev.Err.Error()
	case types.OutputTerminal:
		return "Session ended: " + ev.State
	default:
		// state_changed is noise in a chat.
		return ""
	}
}

func (b *Bridge) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.send("Connected to session " + string(b.mux.SessionID()) + ". Send a message to talk to it.")
	case "status":
		b.send(fmt.Sprintf("Session: %s\nState: %s", b.mux.SessionID(), b.mux.State()))
	case "stop":
		if err := b.mux.Disconnect(); err != nil {
			b.send("Disconnect failed: " + err.Error())
			return
		}
		b.send("Disconnected.")
	default:
		b.send("Unknown command. Available: /start, /status, /stop")
	}
}

func (b *Bridge) send(text string) {
	parts := splitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(b.chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := b.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := b.bot.Send(msg); err != nil {
				b.log.Error("send message failed", "error", err)
			}
		}
	}
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

// TargetKey identifies a chat for the delivery registry.
func TargetKey(chatID int64) string {
	return "telegram:" + strconv.FormatInt(chatID, 10)
}

// ParseTargetKey extracts the chat ID from a "telegram:<chatID>" key.
func ParseTargetKey(key string) (int64, error) {
	rest, ok := strings.CutPrefix(key, "telegram:")
	if !ok {
		return 0, fmt.Errorf("not a telegram target key: %s", key)
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad chat id in target key %q: %w", key, err)
	}
	return id, nil
}

// Deliverer returns a delivery handler that pushes scheduler output to
// the keyed chat.
func (b *Bridge) Deliverer() func(targetKey, message string) error {
	return func(targetKey, message string) error {
		chatID, err := ParseTargetKey(targetKey)
		if err != nil {
			return err
		}
		parts := splitMessage(render.Normalize(message))
		for _, part := range parts {
			msg := tgbotapi.NewMessage(chatID, part)
			msg.ParseMode = "Markdown"
			if _, err := b.bot.Send(msg); err != nil {
				msg.ParseMode = ""
				if _, err := b.bot.Send(msg); err != nil {
					return fmt.Errorf("send to chat %d: %w", chatID, err)
				}
			}
		}
		return nil
	}
}
