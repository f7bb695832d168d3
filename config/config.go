// Package config loads race settings from a file and the environment.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/st-keller/namerace"
	"github.com/st-keller/namerace/calibrate"
	"github.com/st-keller/namerace/race"
	"github.com/st-keller/namerace/resolve"
	"github.com/st-keller/namerace/schedule"
	"github.com/st-keller/namerace/transport"
	"github.com/st-keller/namerace/wire"
)

// EnvPrefix prefixes environment overrides, e.g. NAMERACE_ACCOUNT_TOKEN.
const EnvPrefix = "NAMERACE"

// Config mirrors the config file. Keys are grouped by section and can be
// overridden from the environment.
type Config struct {
	Account struct {
		Token    string `mapstructure:"token"`
		AuthTime string `mapstructure:"auth_time"`
	} `mapstructure:"account"`

	Race struct {
		Names              []string      `mapstructure:"names"`
		Mode               string        `mapstructure:"mode"`
		SpreadMs           int           `mapstructure:"spread_ms"`
		OffsetMs           int           `mapstructure:"offset_ms"`
		AutoOffset         bool          `mapstructure:"auto_offset"`
		Lead               time.Duration `mapstructure:"lead"`
		Host               string        `mapstructure:"host"`
		Port               int           `mapstructure:"port"`
		Addr               string        `mapstructure:"addr"`
		CalibrationSamples int           `mapstructure:"calibration_samples"`
		CalibrationPolicy  string        `mapstructure:"calibration_policy"`
		DialTimeout        time.Duration `mapstructure:"dial_timeout"`
		ReadTimeout        time.Duration `mapstructure:"read_timeout"`
		MaxAuthAge         time.Duration `mapstructure:"max_auth_age"`
		EventBuffer        int           `mapstructure:"event_buffer"`
		CheckEligibility   bool          `mapstructure:"check_eligibility"`
	} `mapstructure:"race"`

	Resolver struct {
		BaseURL        string        `mapstructure:"base_url"`
		ServicesURL    string        `mapstructure:"services_url"`
		PreviousHolder string        `mapstructure:"previous_holder"`
		Release        string        `mapstructure:"release"`
		Timeout        time.Duration `mapstructure:"timeout"`
	} `mapstructure:"resolver"`

	TLS struct {
		Roots       []string `mapstructure:"roots"`
		SystemRoots bool     `mapstructure:"system_roots"`
	} `mapstructure:"tls"`

	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// setDefaults registers every key. Keys unknown to viper are not read
// from the environment, so keys without a real default get a zero one.
func setDefaults(v *viper.Viper) {
	v.SetDefault("account.token", "")
	v.SetDefault("account.auth_time", "")
	v.SetDefault("race.names", []string{})
	v.SetDefault("race.spread_ms", 0)
	v.SetDefault("race.offset_ms", 0)
	v.SetDefault("race.auto_offset", false)
	v.SetDefault("race.addr", "")
	v.SetDefault("race.event_buffer", 0)
	v.SetDefault("race.check_eligibility", true)
	v.SetDefault("resolver.previous_holder", "")
	v.SetDefault("resolver.release", "")
	v.SetDefault("resolver.services_url", resolve.DefaultServicesURL)
	v.SetDefault("tls.roots", []string{})
	v.SetDefault("log.development", false)
	v.SetDefault("race.mode", "regular")
	v.SetDefault("race.lead", schedule.DefaultLead)
	v.SetDefault("race.host", wire.DefaultHost)
	v.SetDefault("race.port", transport.DefaultPort)
	v.SetDefault("race.calibration_samples", calibrate.DefaultSamples)
	v.SetDefault("race.calibration_policy", "abort")
	v.SetDefault("race.dial_timeout", transport.DefaultDialTimeout)
	v.SetDefault("race.read_timeout", race.DefaultReadTimeout)
	v.SetDefault("race.max_auth_age", schedule.DefaultMaxAuthAge)
	v.SetDefault("resolver.base_url", resolve.DefaultBaseURL)
	v.SetDefault("resolver.timeout", transport.DefaultAPITimeout)
	v.SetDefault("tls.system_roots", true)
	v.SetDefault("log.level", "info")
}

// Load reads the file at path. The format follows the extension and
// defaults to TOML.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("toml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Account.Token == "" {
		return fmt.Errorf("account.token required")
	}
	if len(c.Race.Names) == 0 {
		return fmt.Errorf("race.names required (at least one name)")
	}
	if c.Race.SpreadMs < 0 {
		return fmt.Errorf("race.spread_ms must be >= 0")
	}
	if _, err := race.ParseMode(c.Race.Mode); err != nil {
		return err
	}
	if _, err := calibrate.ParsePolicy(c.Race.CalibrationPolicy); err != nil {
		return err
	}
	if _, err := c.AuthTime(); err != nil {
		return err
	}
	if _, err := c.StaticRelease(); err != nil {
		return err
	}
	return nil
}

// AuthTime parses account.auth_time; zero when unset.
func (c *Config) AuthTime() (time.Time, error) {
	return parseInstant("account.auth_time", c.Account.AuthTime)
}

// StaticRelease parses resolver.release; zero when unset.
func (c *Config) StaticRelease() (time.Time, error) {
	return parseInstant("resolver.release", c.Resolver.Release)
}

func parseInstant(key, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", key, err)
	}
	return t.UTC(), nil
}

// Credential returns the configured credential.
func (c *Config) Credential() namerace.Credential {
	at, _ := c.AuthTime()
	return namerace.Credential{Token: c.Account.Token, IssuedAt: at}
}

// RaceConfig maps the file onto a client configuration. TLS roots and the
// logger are wired by the caller.
func (c *Config) RaceConfig() namerace.Config {
	mode, _ := race.ParseMode(c.Race.Mode)
	policy, _ := calibrate.ParsePolicy(c.Race.CalibrationPolicy)

	return namerace.Config{
		Host:               c.Race.Host,
		Port:               c.Race.Port,
		Addr:               c.Race.Addr,
		Mode:               mode,
		Spread:             time.Duration(c.Race.SpreadMs) * time.Millisecond,
		Lead:               c.Race.Lead,
		OffsetMs:           c.Race.OffsetMs,
		AutoOffset:         c.Race.AutoOffset,
		CalibrationSamples: c.Race.CalibrationSamples,
		CalibrationPolicy:  policy,
		DialTimeout:        c.Race.DialTimeout,
		ReadTimeout:        c.Race.ReadTimeout,
		MaxAuthAge:         c.Race.MaxAuthAge,
		EventBuffer:        c.Race.EventBuffer,
	}
}
