package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/awaistahir/smart-heat/internal/engine"
	"github.com/awaistahir/smart-heat/internal/prices"
	"github.com/awaistahir/smart-heat/internal/publish"
	"github.com/spf13/viper"
)

// Config is the process configuration shared by the CLI and the daemon
type Config struct {
	LogLevel    string         `mapstructure:"log_level"`
	DBPath      string         `mapstructure:"db_path"`
	Timezone    string         `mapstructure:"timezone"`
	RefreshCron string         `mapstructure:"refresh_cron"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	Octopus     OctopusConfig  `mapstructure:"octopus"`
	MQTT        publish.Config `mapstructure:"mqtt"`
	Heating     HeatingConfig  `mapstructure:"heating"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type OctopusConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	ProductCode string `mapstructure:"product_code"`
	TariffCode  string `mapstructure:"tariff_code"`
	Region      string `mapstructure:"region"`
}

// HeatingConfig seeds the default profile; comfort windows are HH:mm-HH:mm
type HeatingConfig struct {
	PreheatSlots int      `mapstructure:"preheat_slots"`
	RetainSlots  int      `mapstructure:"retain_slots"`
	PowerKW      float64  `mapstructure:"power_kw"`
	Strategy     string   `mapstructure:"strategy"`
	Comfort      []string `mapstructure:"comfort"`
}

// DefaultDir is $HOME/.smartheat
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".smartheat"
	}
	return filepath.Join(home, ".smartheat")
}

// SetDefaults registers defaults on v. Every key needs one, otherwise
// AutomaticEnv never consults its SMARTHEAT_ variable during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("db_path", filepath.Join(DefaultDir(), "smartheat.db"))
	v.SetDefault("timezone", "Europe/London")
	v.SetDefault("refresh_cron", "*/30 * * * *")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("octopus.base_url", "https://api.octopus.energy/v1")
	v.SetDefault("octopus.api_key", "")
	v.SetDefault("octopus.tariff_code", "")
	v.SetDefault("octopus.product_code", "AGILE-24-10-01")
	v.SetDefault("octopus.region", "C")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "smartheat")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "smartheat")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("heating.preheat_slots", 2)
	v.SetDefault("heating.retain_slots", 4)
	v.SetDefault("heating.power_kw", 1.0)
	v.SetDefault("heating.strategy", string(engine.StrategyGreedy))
	v.SetDefault("heating.comfort", []string{"07:00-09:00", "17:00-22:00"})
}

// Load reads cfgFile (or config.yaml from the default dir when empty), applies
// SMARTHEAT_ environment overrides, and validates the result. A missing
// default config file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(DefaultDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SMARTHEAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the engine and collaborators cannot recover from
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", engine.ErrInvalidConfig, c.Timezone, err)
	}
	if _, err := c.Heating.ComfortWindows(); err != nil {
		return err
	}
	return c.Heating.EngineConfig().Validate()
}

// Location returns the configured timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Tariff returns the explicit tariff code or the regional one for the product
func (c *Config) Tariff() string {
	if c.Octopus.TariffCode != "" {
		return c.Octopus.TariffCode
	}
	return prices.RegionTariff(c.Octopus.ProductCode, c.Octopus.Region)
}

// EngineConfig converts the heating section into scheduler tunables
func (h HeatingConfig) EngineConfig() engine.Config {
	return engine.Config{
		PreheatSlots: h.PreheatSlots,
		RetainSlots:  h.RetainSlots,
		Strategy:     engine.Strategy(h.Strategy),
	}
}

// Comfort parses the configured comfort windows
func (h HeatingConfig) ComfortWindows() ([]engine.TimeWindow, error) {
	windows := make([]engine.TimeWindow, 0, len(h.Comfort))
	for _, s := range h.Comfort {
		w, err := engine.ParseWindow(s)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// DefaultProfile builds the profile written by `init`
func (c *Config) DefaultProfile() (*engine.Profile, error) {
	comfort, err := c.Heating.ComfortWindows()
	if err != nil {
		return nil, err
	}
	return &engine.Profile{
		ID:       "default",
		Name:     "My Home",
		Comfort:  comfort,
		Config:   c.Heating.EngineConfig(),
		PowerKW:  c.Heating.PowerKW,
		Timezone: c.Timezone,
	}, nil
}
