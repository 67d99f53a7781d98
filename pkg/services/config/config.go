package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Bank is one upstream endpoint the relay polls.
type Bank struct {
	Code string `mapstructure:"code"`
	Name string `mapstructure:"name"`
}

type Config struct {
	DiscordToken     string   `mapstructure:"discord_token"`
	DiscordChannelID string   `mapstructure:"discord_channel_id"`
	UpstreamBaseURL  string   `mapstructure:"upstream_base_url"`
	AllowedUserIDs   []string `mapstructure:"allowed_user_ids"`
	Timezone         string   `mapstructure:"timezone"`
	DailyFire        string   `mapstructure:"daily_fire"`
	Banks            []Bank   `mapstructure:"banks"`

	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CacheSweep      time.Duration `mapstructure:"cache_sweep"`
	MaxSpanDays     int           `mapstructure:"max_span_days"`
	RetryMax        int           `mapstructure:"retry_max"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
	DegradedLatency time.Duration `mapstructure:"degraded_latency"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	CleanupMaxAge   time.Duration `mapstructure:"cleanup_max_age"`
	CleanupMaxCount int           `mapstructure:"cleanup_max_count"`
	SessionIdle     time.Duration `mapstructure:"session_idle"`
	OpsListenAddr   string        `mapstructure:"ops_listen_addr"`
}

// DefaultBanks mirrors the production poll list.
var DefaultBanks = []Bank{
	{Code: "006", Name: "KTB"},
	{Code: "014", Name: "SCB"},
	{Code: "004", Name: "KBANK"},
	{Code: "034", Name: "BAAC"},
	{Code: "998", Name: "ThaiPost"},
	{Code: "709", Name: "CS Counter"},
	{Code: "030", Name: "GSB"},
}

// Load reads configuration from the environment (TXRELAY_ prefix) and, when
// path is non-empty, a YAML file. Environment values win.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Required keys get empty defaults so AutomaticEnv can see them during
	// Unmarshal; Validate rejects the empty values.
	v.SetDefault("discord_token", "")
	v.SetDefault("discord_channel_id", "")
	v.SetDefault("upstream_base_url", "")
	v.SetDefault("allowed_user_ids", []string{})
	v.SetDefault("ops_listen_addr", "")
	v.SetDefault("timezone", "Asia/Bangkok")
	v.SetDefault("daily_fire", "07:30")
	v.SetDefault("cache_ttl", 5*time.Minute)
	v.SetDefault("cache_sweep", time.Minute)
	v.SetDefault("max_span_days", 7)
	v.SetDefault("retry_max", 3)
	v.SetDefault("upstream_timeout", 8*time.Second)
	v.SetDefault("degraded_latency", 3*time.Second)
	v.SetDefault("max_concurrent", 5)
	v.SetDefault("cleanup_max_age", 24*time.Hour)
	v.SetDefault("cleanup_max_count", 20)
	v.SetDefault("session_idle", 10*time.Minute)

	v.SetEnvPrefix("TXRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// The env form is a comma-separated list; normalize whitespace and drop
	// empty entries regardless of which source produced the slice.
	cfg.AllowedUserIDs = splitList(strings.Join(cfg.AllowedUserIDs, ","))
	if len(cfg.Banks) == 0 {
		cfg.Banks = DefaultBanks
	}

	return &cfg, nil
}

// Validate reports every missing or malformed required value at once so a
// broken deployment fails with the full list, not one key per restart.
func (c *Config) Validate() error {
	var problems []string
	if c.DiscordToken == "" {
		problems = append(problems, "discord_token is required")
	}
	if c.DiscordChannelID == "" {
		problems = append(problems, "discord_channel_id is required")
	}
	if c.UpstreamBaseURL == "" {
		problems = append(problems, "upstream_base_url is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("timezone %q is invalid", c.Timezone))
	}
	if _, _, err := ParseFireTime(c.DailyFire); err != nil {
		problems = append(problems, fmt.Sprintf("daily_fire %q is invalid, want HH:MM", c.DailyFire))
	}
	if c.MaxSpanDays < 1 {
		problems = append(problems, "max_span_days must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location resolves the configured timezone. Call Validate first.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseFireTime parses a HH:MM wall-clock value.
func ParseFireTime(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
