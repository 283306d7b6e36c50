package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath        = "config.toml"
	DefaultHTTPAddr          = ":8080"
	DefaultJWTExpiresIn      = "24h"
	DefaultPGHost            = "127.0.0.1"
	DefaultPGPort            = 5432
	DefaultPGUser            = "postgres"
	DefaultPGDatabase        = "forum"
	DefaultPGSSLMode         = "disable"
	DefaultMaxBodyRunes      = 50000
	DefaultShortPreviewRunes = 100
	DefaultLongPreviewRunes  = 500
	DefaultPageSize          = 25
	DefaultSaveRetries       = 3
	DefaultHandlerTimeout    = "5s"
	DefaultFailureCooldown   = "1h"
	DefaultPurgeSchedule     = "@hourly"
	DefaultFetchRate         = 10.0
	DefaultFetchBurst        = 5
	DefaultImgurAPIBase      = "https://api.imgur.com/3"
	DefaultYouTubeOEmbed     = "https://www.youtube.com/oembed"
	DefaultUserAgent         = "forum-link-preview/1.0"
)

type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Auth       AuthConfig       `toml:"auth"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Processing ProcessingConfig `toml:"processing"`
	Embed      EmbedConfig      `toml:"embed"`
	Batch      BatchConfig      `toml:"batch"`
	Smileys    SmileysConfig    `toml:"smileys"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the connection string accepted by pgx and golang-migrate.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

type ProcessingConfig struct {
	MaxBodyRunes      int `toml:"max_body_runes"`
	ShortPreviewRunes int `toml:"short_preview_runes"`
	LongPreviewRunes  int `toml:"long_preview_runes"`
}

type EmbedConfig struct {
	HandlerTimeout  string  `toml:"handler_timeout"`
	FailureCooldown string  `toml:"failure_cooldown"`
	MaxAge          string  `toml:"max_age"`
	PurgeSchedule   string  `toml:"purge_schedule"`
	FetchRate       float64 `toml:"fetch_rate"`
	FetchBurst      int     `toml:"fetch_burst"`
	UserAgent       string  `toml:"user_agent"`
	ImgurClientID   string  `toml:"imgur_client_id"`
	ImgurAPIBase    string  `toml:"imgur_api_base"`
	YouTubeOEmbed   string  `toml:"youtube_oembed"`
}

type BatchConfig struct {
	PageSize    int    `toml:"page_size"`
	SaveRetries int    `toml:"save_retries"`
	StateSecret string `toml:"state_secret"`
}

type SmileysConfig struct {
	SeedFile string `toml:"seed_file"`
}

// Durations holds parsed duration fields of EmbedConfig.
type Durations struct {
	HandlerTimeout  time.Duration
	FailureCooldown time.Duration
	MaxAge          time.Duration
}

// Durations parses the textual durations. An empty max_age means entries never expire.
func (c EmbedConfig) Durations() (Durations, error) {
	var d Durations
	var err error
	if d.HandlerTimeout, err = parseDuration(c.HandlerTimeout, DefaultHandlerTimeout); err != nil {
		return d, fmt.Errorf("embed.handler_timeout: %w", err)
	}
	if d.FailureCooldown, err = parseDuration(c.FailureCooldown, DefaultFailureCooldown); err != nil {
		return d, fmt.Errorf("embed.failure_cooldown: %w", err)
	}
	if c.MaxAge != "" {
		if d.MaxAge, err = time.ParseDuration(c.MaxAge); err != nil {
			return d, fmt.Errorf("embed.max_age: %w", err)
		}
	}
	return d, nil
}

func parseDuration(raw, fallback string) (time.Duration, error) {
	if raw == "" {
		raw = fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", raw)
	}
	return d, nil
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Processing: ProcessingConfig{
			MaxBodyRunes:      DefaultMaxBodyRunes,
			ShortPreviewRunes: DefaultShortPreviewRunes,
			LongPreviewRunes:  DefaultLongPreviewRunes,
		},
		Embed: EmbedConfig{
			HandlerTimeout:  DefaultHandlerTimeout,
			FailureCooldown: DefaultFailureCooldown,
			PurgeSchedule:   DefaultPurgeSchedule,
			FetchRate:       DefaultFetchRate,
			FetchBurst:      DefaultFetchBurst,
			UserAgent:       DefaultUserAgent,
			ImgurAPIBase:    DefaultImgurAPIBase,
			YouTubeOEmbed:   DefaultYouTubeOEmbed,
		},
		Batch: BatchConfig{
			PageSize:    DefaultPageSize,
			SaveRetries: DefaultSaveRetries,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
