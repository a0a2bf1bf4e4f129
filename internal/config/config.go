package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/iceman/internal/errors"
	"codeberg.org/mutker/iceman/internal/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath = "/etc/iceman.toml"
	DefaultEnvPrefix  = "ICEMAN"
	DefaultLogLevel   = string(LogLevelInfo)
)

// Config is read once at process start and handed by value or pointer to
// each component constructor. Nothing in it changes at runtime.
type Config struct {
	HotTemp         float64       `mapstructure:"hot_temp"`
	MaxDutyCycle    float64       `mapstructure:"max_duty_cycle"`
	MinDutyCycle    float64       `mapstructure:"min_duty_cycle"`
	ControlInterval time.Duration `mapstructure:"control_interval"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
	LogLevel        string        `mapstructure:"log_level"`
	PIDDir          string        `mapstructure:"pid_dir"`

	PWM        PWMConfig        `mapstructure:"pwm"`
	Tach       TachConfig       `mapstructure:"tach"`
	Probe      ProbeConfig      `mapstructure:"probe"`
	Board      BoardConfig      `mapstructure:"board"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	History    HistoryConfig    `mapstructure:"history"`
}

type PWMConfig struct {
	Pin       int `mapstructure:"pin"`
	Frequency int `mapstructure:"frequency"`
}

type TachConfig struct {
	Chip                string  `mapstructure:"chip"`
	Pin                 int     `mapstructure:"pin"`
	PulsesPerRevolution float64 `mapstructure:"pulses_per_revolution"`
}

type ProbeConfig struct {
	DevicesDir string `mapstructure:"devices_dir"`
	Prefix     string `mapstructure:"prefix"`
}

type BoardConfig struct {
	Path string `mapstructure:"path"`
}

type MetricsConfig struct {
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Location string        `mapstructure:"location"`
	Fan      string        `mapstructure:"fan"`
	Probe    string        `mapstructure:"probe"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PrometheusConfig struct {
	Listen string `mapstructure:"listen"`
}

type HistoryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	DBPath    string `mapstructure:"db_path"`
	BatchSize int    `mapstructure:"batch_size"`
}

var defaults = map[string]any{
	"hot_temp":                   78.0,
	"max_duty_cycle":             1.0,
	"min_duty_cycle":             0.65,
	"control_interval":           2 * time.Second,
	"metrics_interval":           5 * time.Second,
	"log_level":                  DefaultLogLevel,
	"pid_dir":                    os.TempDir(),
	"pwm.pin":                    18,
	"pwm.frequency":              25000,
	"tach.chip":                  "gpiochip0",
	"tach.pin":                   17,
	"tach.pulses_per_revolution": 2.0,
	"probe.devices_dir":          "/sys/bus/w1/devices",
	"probe.prefix":               "28-",
	"board.path":                 "/sys/class/thermal/thermal_zone0/temp",
	"metrics.url":                "http://localhost:8086/write",
	"metrics.username":           "",
	"metrics.password":           "",
	"metrics.location":           "kitchen",
	"metrics.fan":                "fan1",
	"metrics.probe":              "probe1",
	"metrics.timeout":            10 * time.Second,
	"prometheus.listen":          "",
	"history.enabled":            false,
	"history.db_path":            "/var/lib/iceman/history.db",
	"history.batch_size":         12,
}

// Environment names kept from earlier deployments. Everything else is
// reachable as <PREFIX>_<KEY> with dots replaced by underscores.
var envAliases = map[string]string{
	"metrics.url":      "GRAFANA_API_INFLUXDB_URL",
	"metrics.username": "GRAFANA_API_USERNAME",
	"metrics.password": "GRAFANA_API_PASSWORD",
	"log_level":        "LOG_LEVEL",
}

// Load builds the configuration from defaults, an optional TOML file, the
// environment and the given command line arguments, in increasing order of
// precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix, lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := pflag.NewFlagSet("iceman", pflag.ContinueOnError)
	configFlag := fs.String("config", "", "Path to configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, o.envPrefix+"_"+envKey(key), env); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	if err := v.BindPFlag("log_level", fs.Lookup("log-level")); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	if err := readConfigFile(v, resolveConfigPath(*configFlag, o)); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func resolveConfigPath(flagPath string, o options) string {
	if flagPath != "" {
		return flagPath
	}
	if o.configPath != "" {
		return o.configPath
	}
	if p, ok := o.lookupEnv(o.envPrefix + "_CONFIG"); ok && p != "" {
		return p
	}

	return DefaultConfigPath
}

func readConfigFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return errors.New().Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

// Level returns the configured log level. An unrecognised name falls back
// to info rather than stopping the daemon.
func (c *Config) Level() logger.LogLevel {
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return logger.InfoLevel
	}
	return level
}

// Validate checks value ranges and required settings.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Metrics.Username == "" || c.Metrics.Password == "" {
		return errFactory.WithData(errors.ErrMissingConfig,
			"GRAFANA_API_USERNAME and GRAFANA_API_PASSWORD must be set")
	}

	var problems []ValidationError
	check := func(ok bool, field string, value any, reason string) {
		if !ok {
			problems = append(problems, ValidationError{Field: field, Value: value, Reason: reason})
		}
	}

	check(c.MaxDutyCycle >= 0 && c.MaxDutyCycle <= 1, "max_duty_cycle", c.MaxDutyCycle, "must be within [0, 1]")
	check(c.MinDutyCycle >= 0 && c.MinDutyCycle <= 1, "min_duty_cycle", c.MinDutyCycle, "must be within [0, 1]")
	check(c.MinDutyCycle <= c.MaxDutyCycle, "min_duty_cycle", c.MinDutyCycle, "must not exceed max_duty_cycle")
	check(c.ControlInterval > 0, "control_interval", c.ControlInterval, "must be positive")
	check(c.MetricsInterval > 0, "metrics_interval", c.MetricsInterval, "must be positive")
	check(c.PWM.Frequency > 0, "pwm.frequency", c.PWM.Frequency, "must be positive")
	check(c.Tach.PulsesPerRevolution > 0, "tach.pulses_per_revolution", c.Tach.PulsesPerRevolution, "must be positive")
	check(c.Metrics.URL != "", "metrics.url", c.Metrics.URL, "must be set")
	check(!c.History.Enabled || c.History.DBPath != "", "history.db_path", c.History.DBPath, "must be set when history is enabled")

	if len(problems) > 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprint(problems))
	}

	return nil
}
