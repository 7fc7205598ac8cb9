// Package config loads settings for the allegro binaries from a YAML file and
// ALLEGRO_* environment variables. Credentials and the WebAPI key are read
// from the environment only.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/and161185/allegro-webapi/internal/errs"
	"github.com/and161185/allegro-webapi/internal/journal"
)

// Config is the resolved configuration.
type Config struct {
	Endpoint   string
	CACert     string
	SkipVerify bool
	Plaintext  bool

	WebAPIKey    string
	CountryID    int
	Login        string
	Password     string
	PasswordHash string

	PollInterval time.Duration
	InfoType     int
	Dedup        bool
	DatabaseURL  string
	Consumer     string

	KafkaBrokers []string
	KafkaTopic   string
	MetricsAddr  string

	LogLevel    string
	Development bool
}

type configFile struct {
	Endpoint struct {
		Addr       string `yaml:"addr"`
		CACert     string `yaml:"ca_cert"`
		SkipVerify bool   `yaml:"skip_verify"`
		Plaintext  bool   `yaml:"plaintext"`
	} `yaml:"endpoint"`
	Account struct {
		CountryID int    `yaml:"country_id"`
		Login     string `yaml:"login"`
	} `yaml:"account"`
	Journal struct {
		Interval    time.Duration `yaml:"interval"`
		InfoType    int           `yaml:"info_type"`
		Dedup       bool          `yaml:"dedup"`
		DatabaseURL string        `yaml:"database_url"`
		Consumer    string        `yaml:"consumer"`
	} `yaml:"journal"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Endpoint:     "localhost:8443",
		PollInterval: journal.DefaultInterval,
		InfoType:     journal.DefaultInfoType,
		Consumer:     "allegro-watch",
		KafkaTopic:   "allegro.journal",
		LogLevel:     "info",
	}
}

// Load reads path (optional; a missing file is not an error) and applies
// environment overrides.
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config file: %w", err)
		default:
			var f configFile
			if err := yaml.Unmarshal(raw, &f); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
			cfg.merge(f)
		}
	}

	env := envReader{get: getenv}
	cfg.Endpoint = env.str("ALLEGRO_ENDPOINT", cfg.Endpoint)
	cfg.CACert = env.str("ALLEGRO_CA_CERT", cfg.CACert)
	cfg.SkipVerify = env.flag("ALLEGRO_SKIP_VERIFY", cfg.SkipVerify)
	cfg.Plaintext = env.flag("ALLEGRO_PLAINTEXT", cfg.Plaintext)
	cfg.WebAPIKey = env.str("ALLEGRO_WEBAPI_KEY", cfg.WebAPIKey)
	cfg.CountryID = env.num("ALLEGRO_COUNTRY_ID", cfg.CountryID)
	cfg.Login = env.str("ALLEGRO_LOGIN", cfg.Login)
	cfg.Password = env.str("ALLEGRO_PASSWORD", cfg.Password)
	cfg.PasswordHash = env.str("ALLEGRO_PASSWORD_HASH", cfg.PasswordHash)
	cfg.PollInterval = env.dur("ALLEGRO_POLL_INTERVAL", cfg.PollInterval)
	cfg.InfoType = env.num("ALLEGRO_INFO_TYPE", cfg.InfoType)
	cfg.Dedup = env.flag("ALLEGRO_DEDUP", cfg.Dedup)
	cfg.DatabaseURL = env.str("ALLEGRO_DB_URL", cfg.DatabaseURL)
	cfg.KafkaBrokers = env.list("ALLEGRO_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = env.str("ALLEGRO_KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.MetricsAddr = env.str("ALLEGRO_METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = env.str("ALLEGRO_LOG_LEVEL", cfg.LogLevel)
	if env.err != nil {
		return Config{}, env.err
	}
	return cfg, nil
}

func (c *Config) merge(f configFile) {
	if f.Endpoint.Addr != "" {
		c.Endpoint = f.Endpoint.Addr
	}
	c.CACert = f.Endpoint.CACert
	c.SkipVerify = f.Endpoint.SkipVerify
	c.Plaintext = f.Endpoint.Plaintext
	if f.Account.CountryID != 0 {
		c.CountryID = f.Account.CountryID
	}
	c.Login = f.Account.Login
	if f.Journal.Interval > 0 {
		c.PollInterval = f.Journal.Interval
	}
	if f.Journal.InfoType != 0 {
		c.InfoType = f.Journal.InfoType
	}
	c.Dedup = f.Journal.Dedup
	c.DatabaseURL = f.Journal.DatabaseURL
	if f.Journal.Consumer != "" {
		c.Consumer = f.Journal.Consumer
	}
	if len(f.Kafka.Brokers) > 0 {
		c.KafkaBrokers = trimNonEmpty(f.Kafka.Brokers)
	}
	if f.Kafka.Topic != "" {
		c.KafkaTopic = f.Kafka.Topic
	}
	c.MetricsAddr = f.Metrics.Addr
	if f.Log.Level != "" {
		c.LogLevel = f.Log.Level
	}
	c.Development = f.Log.Development
}

// Validate checks the fields a client needs to log in.
func (c Config) Validate() error {
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "ALLEGRO_ENDPOINT")
	}
	if c.WebAPIKey == "" {
		missing = append(missing, "ALLEGRO_WEBAPI_KEY")
	}
	if c.CountryID == 0 {
		missing = append(missing, "ALLEGRO_COUNTRY_ID")
	}
	if c.Login == "" {
		missing = append(missing, "ALLEGRO_LOGIN")
	}
	if c.Password == "" && c.PasswordHash == "" {
		missing = append(missing, "ALLEGRO_PASSWORD or ALLEGRO_PASSWORD_HASH")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", errs.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// Logger builds a zap logger for the configured level.
func (c Config) Logger() (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: log level: %w", errs.ErrConfiguration, err)
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = lvl
	return zc.Build()
}

// envReader keeps the first parse error so Load can report it once.
type envReader struct {
	get func(string) string
	err error
}

func (e *envReader) str(name, fallback string) string {
	if v := strings.TrimSpace(e.get(name)); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) num(name string, fallback int) int {
	raw := strings.TrimSpace(e.get(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.fail(name, err)
		return fallback
	}
	return v
}

func (e *envReader) flag(name string, fallback bool) bool {
	raw := strings.TrimSpace(e.get(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.fail(name, err)
		return fallback
	}
	return v
}

func (e *envReader) dur(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(e.get(name))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.fail(name, err)
		return fallback
	}
	return v
}

func (e *envReader) list(name string, fallback []string) []string {
	raw := strings.TrimSpace(e.get(name))
	if raw == "" {
		return fallback
	}
	return trimNonEmpty(strings.Split(raw, ","))
}

func (e *envReader) fail(name string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s: %w", errs.ErrConfiguration, name, err)
	}
}

func trimNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
