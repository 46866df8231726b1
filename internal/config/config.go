package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

var ErrConfigNotFound = errors.New("config file does not exist")

type Config struct {
	Env     string  `yaml:"env" env-default:"local" env:"ENV"`
	HTTP    HTTP    `yaml:"http"`
	Storage Storage `yaml:"storage"`
	Watch   Watch   `yaml:"watch"`
}

type HTTP struct {
	Address        string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"127.0.0.1:35035"`
	MaxConnections int           `yaml:"max_connections" env:"HTTP_MAX_CONNECTIONS" env-default:"16"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT" env-default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-separator:","`
}

// Storage selects the workspace state backend: "bolt" or "sqlite".
type Storage struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"bolt"`
	Path   string `yaml:"path" env:"STORAGE_PATH" env-default:"./deskd.db"`
}

// Watch holds defaults for the change notifier. Root may be empty; the
// watch:start channel then has to name one.
type Watch struct {
	Root               string        `yaml:"root" env:"WATCH_ROOT"`
	Ignore             []string      `yaml:"ignore" env:"WATCH_IGNORE" env-separator:","`
	Persistent         bool          `yaml:"persistent" env:"WATCH_PERSISTENT"`
	IgnoreInitial      bool          `yaml:"ignore_initial" env:"WATCH_IGNORE_INITIAL"`
	UsePolling         bool          `yaml:"use_polling" env:"WATCH_USE_POLLING" env-default:"false"`
	PollingInterval    time.Duration `yaml:"polling_interval" env:"WATCH_POLLING_INTERVAL" env-default:"1s"`
	StabilityThreshold time.Duration `yaml:"stability_threshold" env:"WATCH_STABILITY_THRESHOLD" env-default:"200ms"`
	PollInterval       time.Duration `yaml:"poll_interval" env:"WATCH_POLL_INTERVAL" env-default:"100ms"`
}

// defaults covers the booleans that are on unless turned off. cleanenv
// applies env-default to any zero field, so a tag would also override an
// explicit false from the file.
func defaults() Config {
	return Config{
		Watch: Watch{
			Persistent:    true,
			IgnoreInitial: true,
		},
	}
}

// Load reads configPath and overlays the environment. An empty path reads
// the environment and defaults only.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("cannot read config from env: %w", err)
		}
		return &cfg, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	return &cfg, nil
}

func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// Path resolves the config path.
// Priority: flag > env > default.
// default value is empty string.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("CONFIG_PATH")
}
