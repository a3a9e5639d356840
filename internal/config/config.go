// Package config loads racecoind settings from flags, environment, an
// optional YAML file and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "RACECOIN"

	FlagConfig      = "config"
	FlagEnvFile     = "env-file"
	FlagDatabaseURL = "database-url"
	FlagHTTPAddr    = "http-addr"
	FlagGRPCAddr    = "grpc-addr"
	FlagEnv         = "env"
	FlagLogLevel    = "log-level"

	defaultEnvFile       = ".env"
	defaultDatabaseURL   = "sqlite:///tmp/racecoin.db"
	defaultHTTPAddr      = ":8080"
	defaultGRPCAddr      = ":7000"
	defaultEnv           = "production"
	defaultTimeZone      = "Asia/Tokyo"
	defaultSessionIssuer = "tauth"
	defaultSessionCookie = "app_session"
	defaultRaceTopic     = "race_results"
	defaultBetTopic      = "bet_events"
	defaultGroupID       = "racecoin-settlement"
	defaultCacheTTL      = 30 * time.Second
	defaultLocalSize     = 256
	defaultLocalTTL      = 5 * time.Second
)

// Config aggregates runtime settings for racecoind.
type Config struct {
	Env           string       `mapstructure:"env" validate:"required"`
	LogLevel      string       `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	DatabaseURL   string       `mapstructure:"database_url" validate:"required"`
	BonusTimeZone string       `mapstructure:"bonus_time_zone" validate:"required"`
	HTTP          HTTPConfig   `mapstructure:"http"`
	GRPC          GRPCConfig   `mapstructure:"grpc"`
	Auth          AuthConfig   `mapstructure:"auth" validate:"-"`
	Redis         RedisConfig  `mapstructure:"redis"`
	Cache         CacheConfig  `mapstructure:"cache"`
	Kafka         KafkaConfig  `mapstructure:"kafka"`
	Rules         ledger.Rules `mapstructure:"rules"`

	location *time.Location
}

// HTTPConfig configures the player facing API.
type HTTPConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr" validate:"required"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// GRPCConfig configures the admin surface.
type GRPCConfig struct {
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`
	AdminToken string `mapstructure:"admin_token"`
}

// AuthConfig holds the session cookie settings shared with TAuth.
type AuthConfig struct {
	SigningKey string `mapstructure:"signing_key" validate:"required"`
	Issuer     string `mapstructure:"issuer" validate:"required"`
	CookieName string `mapstructure:"cookie_name" validate:"required"`
}

// RedisConfig enables the shared race cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

// CacheConfig sizes the in-process race cache.
type CacheConfig struct {
	LocalSize int           `mapstructure:"local_size" validate:"gte=1"`
	LocalTTL  time.Duration `mapstructure:"local_ttl" validate:"gt=0"`
}

// KafkaConfig enables race result consumption and bet event publishing.
type KafkaConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	Brokers          []string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	RaceResultsTopic string   `mapstructure:"race_results_topic" validate:"required"`
	BetEventsTopic   string   `mapstructure:"bet_events_topic" validate:"required"`
	GroupID          string   `mapstructure:"group_id" validate:"required"`
}

// Location returns the zone used to decide bonus calendar days.
func (cfg Config) Location() *time.Location {
	if cfg.location == nil {
		return time.UTC
	}
	return cfg.location
}

// RegisterFlags adds the persistent flags every subcommand understands.
func RegisterFlags(command *cobra.Command) {
	flags := command.PersistentFlags()
	flags.String(FlagConfig, "", "path to a YAML config file")
	flags.String(FlagEnvFile, defaultEnvFile, "path to an optional .env file")
	flags.String(FlagDatabaseURL, defaultDatabaseURL, "postgres:// URL or sqlite path")
	flags.String(FlagHTTPAddr, defaultHTTPAddr, "HTTP listen address")
	flags.String(FlagGRPCAddr, defaultGRPCAddr, "gRPC admin listen address")
	flags.String(FlagEnv, defaultEnv, "deployment environment (local selects console logs)")
	flags.String(FlagLogLevel, "", "log level override")
}

// Load resolves the configuration for command. Precedence, highest first:
// flags set on the command line, RACECOIN_* environment, the YAML file,
// defaults.
func Load(command *cobra.Command) (Config, error) {
	flags := command.Flags()
	envFile, _ := flags.GetString(FlagEnvFile)
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path, _ := flags.GetString(FlagConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	bindings := map[string]string{
		"database_url":     FlagDatabaseURL,
		"http.listen_addr": FlagHTTPAddr,
		"grpc.listen_addr": FlagGRPCAddr,
		"env":              FlagEnv,
		"log_level":        FlagLogLevel,
	}
	for key, flagName := range bindings {
		flag := flags.Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.HTTP.AllowedOrigins = normalizeList(cfg.HTTP.AllowedOrigins)
	cfg.Kafka.Brokers = normalizeList(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints and the game rules, and resolves the
// bonus time zone.
func (cfg *Config) Validate() error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Rules.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	location, err := time.LoadLocation(cfg.BonusTimeZone)
	if err != nil {
		return fmt.Errorf("invalid config: bonus_time_zone %q: %w", cfg.BonusTimeZone, err)
	}
	cfg.location = location
	return nil
}

// ValidateServe adds the checks only the serve command needs.
func (cfg Config) ValidateServe() error {
	if err := validator.New().Struct(cfg.Auth); err != nil {
		return fmt.Errorf("invalid auth config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	rules := ledger.DefaultRules()
	defaults := map[string]any{
		"env":                        defaultEnv,
		"log_level":                  "",
		"database_url":               defaultDatabaseURL,
		"bonus_time_zone":            defaultTimeZone,
		"http.listen_addr":           defaultHTTPAddr,
		"http.allowed_origins":       []string{},
		"grpc.listen_addr":           defaultGRPCAddr,
		"grpc.admin_token":           "",
		"auth.signing_key":           "",
		"auth.issuer":                defaultSessionIssuer,
		"auth.cookie_name":           defaultSessionCookie,
		"redis.addr":                 "",
		"redis.password":             "",
		"redis.db":                   0,
		"redis.ttl":                  defaultCacheTTL,
		"cache.local_size":           defaultLocalSize,
		"cache.local_ttl":            defaultLocalTTL,
		"kafka.enabled":              false,
		"kafka.brokers":              []string{},
		"kafka.race_results_topic":   defaultRaceTopic,
		"kafka.bet_events_topic":     defaultBetTopic,
		"kafka.group_id":             defaultGroupID,
		"rules.initial_coins":        rules.InitialCoins,
		"rules.daily_bonus":          rules.DailyBonus,
		"rules.bonus_3_days":         rules.Bonus3,
		"rules.bonus_7_days":         rules.Bonus7,
		"rules.bonus_14_days":        rules.Bonus14,
		"rules.bonus_30_days":        rules.Bonus30,
		"rules.ad_view_bonus":        rules.AdViewBonus,
		"rules.max_ad_views_per_day": rules.MaxAdViewsPerDay,
		"rules.min_bet":              rules.MinBet,
		"rules.max_bet":              rules.MaxBet,
		"rules.premium_max_bet":      rules.PremiumMaxBet,
		"rules.place_positions":      rules.PlacePositions,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// normalizeList trims entries and splits comma separated values that arrive
// as a single string from the environment.
func normalizeList(values []string) []string {
	normalized := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				normalized = append(normalized, trimmed)
			}
		}
	}
	return normalized
}
