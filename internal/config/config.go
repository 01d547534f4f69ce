package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	LogModeDebug = "debug"
	LogModeDev   = "dev"
	LogModeProd  = "prod"
)

type App struct {
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	LogMode         string        `env:"LOG_MODE" env-default:"debug"` // debug, dev or prod
}

type ServerConfig struct {
	Enabled      bool          `env:"SERVER_ENABLED" env-default:"true"`
	Host         string        `env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port         string        `env:"HTTP_PORT" env-default:"8080"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
}

type Telegram struct {
	BotToken       string  `env:"TELEGRAM_BOT_TOKEN" env-required:"true" env-description:"bot token issued by @BotFather"`
	ChannelID      string  `env:"TELEGRAM_CHANNEL_ID" env-required:"true" env-description:"destination channel: numeric id or @username"`
	APIEndpoint    string  `env:"TELEGRAM_API_ENDPOINT" env-default:"https://api.telegram.org/bot%s/%s"`
	MaxUploadMB    int     `env:"TELEGRAM_MAX_UPLOAD_MB" env-default:"50"`
	AllowedUserIDs []int64 `env:"TELEGRAM_ALLOWED_USER_IDS" env-separator:","`
	UpdateTimeout  int     `env:"TELEGRAM_UPDATE_TIMEOUT" env-default:"60"`
}

type Archive struct {
	BaseURL           string        `env:"ARCHIVE_BASE_URL" env-default:"https://archive.org"`
	RequestTimeout    time.Duration `env:"ARCHIVE_REQUEST_TIMEOUT" env-default:"60s"`
	RequestsPerSecond float64       `env:"ARCHIVE_REQUESTS_PER_SECOND" env-default:"2"`
	MinPayloadBytes   int64         `env:"ARCHIVE_MIN_PAYLOAD_BYTES" env-default:"1024"`
	CoverMaxBytes     int64         `env:"ARCHIVE_COVER_MAX_BYTES" env-default:"20971520"`
	UserAgent         string        `env:"ARCHIVE_USER_AGENT" env-default:"archive-relay-bot/1.0"`
}

type Workflow struct {
	WorkDir            string        `env:"WORK_DIR"`
	SessionTTL         time.Duration `env:"SESSION_TTL" env-default:"30m"`
	MaxConcurrentJobs  int           `env:"MAX_CONCURRENT_JOBS" env-default:"2"`
	PublishMaxAttempts int           `env:"PUBLISH_MAX_ATTEMPTS" env-default:"5"`
}

type Config struct {
	Server   ServerConfig
	App      App
	Telegram Telegram
	Archive  Archive
	Workflow Workflow
}

// Load reads the full configuration. envFile is preloaded when it exists.
func Load(envFile string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadArchive reads only the catalog settings, for commands that never talk
// to Telegram.
func LoadArchive(envFile string) (*Archive, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}
	var cfg Archive
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return &cfg, nil
}

// Usage describes every supported variable.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}

func loadDotEnv(envFile string) error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is empty")
	}
	if strings.TrimSpace(c.Telegram.ChannelID) == "" {
		return errors.New("TELEGRAM_CHANNEL_ID is empty")
	}
	if c.Workflow.MaxConcurrentJobs < 1 {
		c.Workflow.MaxConcurrentJobs = 1
	}
	if c.Workflow.PublishMaxAttempts < 1 {
		c.Workflow.PublishMaxAttempts = 1
	}
	if c.Workflow.WorkDir == "" {
		c.Workflow.WorkDir = os.TempDir()
	}
	return nil
}

// MaxUploadBytes converts MaxUploadMB to bytes.
func (t Telegram) MaxUploadBytes() int64 {
	return int64(t.MaxUploadMB) * 1024 * 1024
}

func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
