package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/user/pinewire/internal/scheduler"
)

type Config struct {
	DataDir          string `json:"data_dir"`
	LogLevel         string `json:"log_level"`
	BaseURL          string `json:"base_url"`
	SocketURL        string `json:"socket_url"`
	APIKey           string `json:"api_key"`
	DebounceWindowMS int    `json:"debounce_window_ms"`
	IdleTimeoutMS    int    `json:"idle_timeout_ms"`
	ResponseIdleMS   int    `json:"response_idle_ms"`
	JournalEnabled   bool   `json:"journal_enabled"`
	Tokenizer        struct {
		Model       string `json:"model"`
		TailBudget  int    `json:"tail_budget"`
		Approximate bool   `json:"approximate"`
	} `json:"tokenizer"`
	Telegram struct {
		Token  string `json:"token"`
		ChatID int64  `json:"chat_id"`
	} `json:"telegram"`
	Schedules []scheduler.Entry `json:"schedules"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:          filepath.Join(os.Getenv("HOME"), ".pinewire"),
		LogLevel:         "info",
		BaseURL:          "https://api.pine.town",
		SocketURL:        "wss://api.pine.town/socket",
		DebounceWindowMS: 3000,
		IdleTimeoutMS:    120000,
		ResponseIdleMS:   2000,
	}
	cfg.Tokenizer.Model = "gpt-4"
	cfg.Tokenizer.TailBudget = 8000

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("PINE_API_KEY"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	if baseURL := os.Getenv("PINE_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if socketURL := os.Getenv("PINE_SOCKET_URL"); socketURL != "" {
		cfg.SocketURL = socketURL
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}

	return cfg, nil
}

// DefaultPath is the standard config location.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".pinewire", "config.json")
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}
