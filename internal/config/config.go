package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultConfig []byte

// BotConfig controls batching, pacing, and the bot's identity.
type BotConfig struct {
	OwnerID        int64  `yaml:"owner_id" env:"TGSFORGE_BOT_OWNER_ID"`
	Language       string `yaml:"language" env:"TGSFORGE_BOT_LANGUAGE"`
	BatchWait      string `yaml:"batch_wait" env:"TGSFORGE_BOT_BATCH_WAIT"`
	BatchTimeout   string `yaml:"batch_timeout" env:"TGSFORGE_BOT_BATCH_TIMEOUT"`
	FileDelay      string `yaml:"file_delay" env:"TGSFORGE_BOT_FILE_DELAY"`
	BroadcastDelay string `yaml:"broadcast_delay" env:"TGSFORGE_BOT_BROADCAST_DELAY"`
	MaxBatchSize   int    `yaml:"max_batch_size" env:"TGSFORGE_BOT_MAX_BATCH_SIZE"`
}

// GetBatchWait returns the parsed debounce window.
func (b *BotConfig) GetBatchWait() time.Duration {
	return durationOr(b.BatchWait, 3*time.Second)
}

// GetBatchTimeout returns the parsed ceiling on one batch's processing time.
func (b *BotConfig) GetBatchTimeout() time.Duration {
	return durationOr(b.BatchTimeout, 5*time.Minute)
}

// GetFileDelay returns the parsed pacing delay between files of a batch.
func (b *BotConfig) GetFileDelay() time.Duration {
	return durationOr(b.FileDelay, 500*time.Millisecond)
}

// GetBroadcastDelay returns the parsed delay between broadcast sends.
func (b *BotConfig) GetBroadcastDelay() time.Duration {
	return durationOr(b.BroadcastDelay, 100*time.Millisecond)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// ConverterConfig controls the external lottie conversion process.
type ConverterConfig struct {
	Command  string `yaml:"command" env:"TGSFORGE_CONVERTER_COMMAND"`
	FPS      int    `yaml:"fps"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	Optimize int    `yaml:"optimize"`
	Sanitize bool   `yaml:"sanitize"`
}

// LimitsConfig holds upload ceilings.
type LimitsConfig struct {
	MaxFileSize int64 `yaml:"max_file_size" env:"TGSFORGE_MAX_FILE_SIZE"`
}

type Config struct {
	Log struct {
		Level string `yaml:"level" env:"TGSFORGE_LOG_LEVEL"`
	} `yaml:"log"`
	Server struct {
		ListenPort string `yaml:"listen_port" env:"TGSFORGE_SERVER_PORT"`
	} `yaml:"server"`
	Telegram struct {
		Token    string `yaml:"token" env:"TGSFORGE_TELEGRAM_TOKEN"`
		ProxyURL string `yaml:"proxy_url" env:"TGSFORGE_TELEGRAM_PROXY_URL"`
	} `yaml:"telegram"`
	Bot       BotConfig       `yaml:"bot"`
	Converter ConverterConfig `yaml:"converter"`
	Limits    LimitsConfig    `yaml:"limits"`
}

// Load loads configuration from the specified file path.
// It first loads the embedded default configuration, then merges the user
// config on top. Finally, it overrides values with environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfig, &cfg); err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			// File doesn't exist, just use defaults. Log this so users know
			// their config wasn't loaded.
			slog.Warn("config file not found, using defaults", "path", path)
		} else {
			// Expand environment variables in user config (legacy support)
			expandedData := []byte(os.ExpandEnv(string(data)))

			// Unmarshal user config on top of defaults (merges non-zero values)
			if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
				return nil, err
			}
			slog.Info("loaded user config", "path", path)
		}
	}

	// Override with environment variables using cleanenv
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDefault loads the embedded default configuration.
func LoadDefault() (*Config, error) {
	return Load("")
}

// Validate checks configuration for required fields and valid ranges.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []error

	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.Bot.OwnerID == 0 {
		errs = append(errs, errors.New("bot.owner_id is required"))
	}
	if c.Limits.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_file_size must be positive, got %d", c.Limits.MaxFileSize))
	}
	if c.Bot.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("bot.max_batch_size must be positive, got %d", c.Bot.MaxBatchSize))
	}

	for key, val := range map[string]string{
		"bot.batch_wait":      c.Bot.BatchWait,
		"bot.batch_timeout":   c.Bot.BatchTimeout,
		"bot.file_delay":      c.Bot.FileDelay,
		"bot.broadcast_delay": c.Bot.BroadcastDelay,
	} {
		if val == "" {
			continue
		}
		if _, err := time.ParseDuration(val); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid duration format %q: %w", key, val, err))
		}
	}

	if c.Converter.FPS < 0 {
		errs = append(errs, fmt.Errorf("converter.fps must not be negative, got %d", c.Converter.FPS))
	}
	if c.Converter.Width < 0 || c.Converter.Height < 0 {
		errs = append(errs, errors.New("converter.width and converter.height must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
