package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Database   DatabaseConfig
	Simulation SimulationConfig
	Completion CompletionConfig
	Redis      RedisConfig
	Metrics    MetricsConfig
	Log        LogConfig
}

// DatabaseConfig selects and locates the store.
type DatabaseConfig struct {
	Driver string // memory, postgres or sqlite
	DSN    string
	Path   string
}

// SimulationConfig defines the default pacing and outcome settings.
type SimulationConfig struct {
	EventStartDelay      time.Duration `mapstructure:"event_start_delay"`
	FightStartDelay      time.Duration `mapstructure:"fight_start_delay"`
	RoundDuration        time.Duration `mapstructure:"round_duration"`
	BetweenRoundsDelay   time.Duration `mapstructure:"between_rounds_delay"`
	PostFightDelay       time.Duration `mapstructure:"post_fight_delay"`
	SpeedMultiplier      float64       `mapstructure:"speed_multiplier"`
	AutoGenerateOutcomes bool          `mapstructure:"auto_generate_outcomes"`
	Seed                 int64
}

// CompletionConfig defines the completion sweep schedule.
type CompletionConfig struct {
	Enabled  bool
	Interval time.Duration
}

// RedisConfig defines the simulation lease. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LeaseKey string        `mapstructure:"lease_key"`
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

// MetricsConfig defines the Prometheus listener.
type MetricsConfig struct {
	Addr string
}

// LogConfig defines the logger.
type LogConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.path", "livecard.db")

	v.SetDefault("simulation.event_start_delay", 5*time.Second)
	v.SetDefault("simulation.fight_start_delay", 10*time.Second)
	v.SetDefault("simulation.round_duration", 30*time.Second)
	v.SetDefault("simulation.between_rounds_delay", 5*time.Second)
	v.SetDefault("simulation.post_fight_delay", 8*time.Second)
	v.SetDefault("simulation.speed_multiplier", 1.0)
	v.SetDefault("simulation.auto_generate_outcomes", true)
	v.SetDefault("simulation.seed", 0)

	v.SetDefault("completion.enabled", true)
	v.SetDefault("completion.interval", 5*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lease_key", "livecard:simulation:lease")
	v.SetDefault("redis.lease_ttl", 10*time.Minute)

	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// New returns a viper instance with defaults and LIVECARD_ environment
// overrides. Callers may bind flags to it before calling Load.
func New(path string) *viper.Viper {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("livecard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

// Load reads the config file, if present, and unmarshals v.
func Load(v *viper.Viper) (config Config, err error) {
	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
	}

	err = v.Unmarshal(&config)
	return
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (Config, error) {
	return Load(New(path))
}
