// Package config loads walkthrough settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"dev/bravebird/guest-registration-walkthrough/pkg/browser"
	"dev/bravebird/guest-registration-walkthrough/pkg/logging"
	"dev/bravebird/guest-registration-walkthrough/pkg/wait"
	"dev/bravebird/guest-registration-walkthrough/pkg/walkthrough"
)

// EnvPrefix prefixes every automatically bound environment variable
const EnvPrefix = "WALKTHROUGH"

// Config holds all settings shared by the CLI, the worker and the API
type Config struct {
	Target     TargetConfig     `mapstructure:"target"`
	Form       FormConfig       `mapstructure:"form"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Wait       WaitConfig       `mapstructure:"wait"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot"`
	Logger     logging.Config   `mapstructure:"logger"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
	Database   DatabaseConfig   `mapstructure:"database"`
	API        APIConfig        `mapstructure:"api"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type TargetConfig struct {
	URL           string `mapstructure:"url"`
	Title         string `mapstructure:"title"`
	URLFragment   string `mapstructure:"url_fragment"`
	SuccessPhrase string `mapstructure:"success_phrase"`
}

type FormConfig struct {
	FirstName   string `mapstructure:"first_name"`
	LastName    string `mapstructure:"last_name"`
	Email       string `mapstructure:"email"`
	Gender      string `mapstructure:"gender"`
	DateOfBirth string `mapstructure:"date_of_birth"`
	Nationality string `mapstructure:"nationality"`
	Phone       string `mapstructure:"phone"`
	Country     string `mapstructure:"country"`
}

type BrowserConfig struct {
	Driver   string `mapstructure:"driver"` // rod or chromedp
	Headless bool   `mapstructure:"headless"`
	Bin      string `mapstructure:"bin"`
	Width    int    `mapstructure:"width"`
	Height   int    `mapstructure:"height"`
}

type WaitConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Interval    time.Duration `mapstructure:"interval"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
}

type ScreenshotConfig struct {
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type APIConfig struct {
	Port string `mapstructure:"port"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	target := walkthrough.DefaultTarget()
	v.SetDefault("target.url", target.URL)
	v.SetDefault("target.title", target.Title)
	v.SetDefault("target.url_fragment", target.URLFragment)
	v.SetDefault("target.success_phrase", target.SuccessPhrase)

	form := walkthrough.DefaultRegistration()
	v.SetDefault("form.first_name", form.FirstName)
	v.SetDefault("form.last_name", form.LastName)
	v.SetDefault("form.email", form.Email)
	v.SetDefault("form.gender", form.Gender)
	v.SetDefault("form.date_of_birth", form.DateOfBirth)
	v.SetDefault("form.nationality", form.Nationality)
	v.SetDefault("form.phone", form.Phone)
	v.SetDefault("form.country", form.Country)

	v.SetDefault("browser.driver", string(browser.KindRod))
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.width", 1920)
	v.SetDefault("browser.height", 1080)

	v.SetDefault("wait.timeout", wait.DefaultTimeout)
	v.SetDefault("wait.interval", wait.DefaultInterval)
	v.SetDefault("wait.max_interval", time.Duration(0))

	v.SetDefault("screenshot.dir", "screenshots")
	v.SetDefault("screenshot.prefix", "registration")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "guest-registration")

	v.SetDefault("database.dsn", "")
	v.SetDefault("api.port", "8080")
	v.SetDefault("metrics.addr", "")
}

// bindLegacyEnv maps the deployment environment variables onto config keys
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("temporal.host_port", EnvPrefix+"_TEMPORAL_HOST_PORT", "TEMPORAL_HOST")
	_ = v.BindEnv("database.dsn", EnvPrefix+"_DATABASE_DSN", "MYSQL_DSN")
	_ = v.BindEnv("api.port", EnvPrefix+"_API_PORT", "PORT")
	_ = v.BindEnv("screenshot.dir", EnvPrefix+"_SCREENSHOT_DIR", "SCREENSHOT_DIR")
	_ = v.BindEnv("browser.bin", EnvPrefix+"_BROWSER_BIN", "CHROME_BIN")
	_ = v.BindEnv("metrics.addr", EnvPrefix+"_METRICS_ADDR", "METRICS_ADDR")
}

// New returns a viper instance with defaults and environment binding applied
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)
	return v
}

// Load reads path when given, or ./config.yaml when present, then applies the environment
func Load(path string) (*Config, error) {
	v := New()
	if err := ReadFile(v, path); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// ReadFile merges path into v, or ./config.yaml when path is empty and the file exists
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// FromViper decodes and validates the configuration held by v
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values
func (c *Config) Validate() error {
	switch browser.Kind(c.Browser.Driver) {
	case browser.KindRod, browser.KindChromedp:
	default:
		return fmt.Errorf("browser.driver must be %q or %q, got %q", browser.KindRod, browser.KindChromedp, c.Browser.Driver)
	}
	if c.Target.URL == "" {
		return fmt.Errorf("target.url is required")
	}
	if c.Wait.Timeout < 0 || c.Wait.Interval < 0 {
		return fmt.Errorf("wait durations must not be negative")
	}
	if c.Screenshot.Dir == "" {
		return fmt.Errorf("screenshot.dir is required")
	}
	if c.Temporal.TaskQueue == "" {
		return fmt.Errorf("temporal.task_queue is required")
	}
	return nil
}

// WaitPolicy returns the bounded wait policy for every locate and wait
func (c *Config) WaitPolicy() wait.Policy {
	return wait.Policy{
		Timeout:     c.Wait.Timeout,
		Interval:    c.Wait.Interval,
		MaxInterval: c.Wait.MaxInterval,
	}
}

// BrowserOptions returns the launch options for the configured driver
func (c *Config) BrowserOptions() browser.Options {
	return browser.Options{
		Kind:     browser.Kind(c.Browser.Driver),
		Headless: c.Browser.Headless,
		Bin:      c.Browser.Bin,
		Width:    c.Browser.Width,
		Height:   c.Browser.Height,
	}
}

// WalkthroughOptions returns the target, guest values and screenshot store
func (c *Config) WalkthroughOptions() walkthrough.Options {
	return walkthrough.Options{
		Target: walkthrough.Target{
			URL:           c.Target.URL,
			Title:         c.Target.Title,
			URLFragment:   c.Target.URLFragment,
			SuccessPhrase: c.Target.SuccessPhrase,
		},
		Form: walkthrough.Registration{
			FirstName:   c.Form.FirstName,
			LastName:    c.Form.LastName,
			Email:       c.Form.Email,
			Gender:      c.Form.Gender,
			DateOfBirth: c.Form.DateOfBirth,
			Nationality: c.Form.Nationality,
			Phone:       c.Form.Phone,
			Country:     c.Form.Country,
		},
		Screenshots: walkthrough.ScreenshotStore{
			Dir:    c.Screenshot.Dir,
			Prefix: c.Screenshot.Prefix,
		},
	}
}
