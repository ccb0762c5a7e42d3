// Package config loads anytoggl settings from
// ~/.config/anytoggl/config.yaml and the environment. Environment
// variables win over the file and the file wins over defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	AppName  = "anytoggl"
	FileName = "config.yaml"
)

type Config struct {
	Anytype   AnytypeConfig   `mapstructure:"anytype"`
	Toggl     TogglConfig     `mapstructure:"toggl"`
	Plan      PlanConfig      `mapstructure:"plan"`
	Google    GoogleConfig    `mapstructure:"google"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sync      SyncConfig      `mapstructure:"sync"`
}

type AnytypeConfig struct {
	APIURL  string `mapstructure:"api_url"`
	Token   string `mapstructure:"token"`
	SpaceID string `mapstructure:"space_id"`
	Tag     string `mapstructure:"tag"`
}

type TogglConfig struct {
	APIToken    string `mapstructure:"api_token"`
	WorkspaceID int64  `mapstructure:"workspace_id"`
}

type PlanConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	WorkspaceID  int64  `mapstructure:"workspace_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
}

type GoogleConfig struct {
	// Credentials is the OAuth client secrets file downloaded from the
	// Google Cloud console.
	Credentials  string `mapstructure:"credentials"`
	LookbackDays int    `mapstructure:"lookback_days"`
}

type SchedulerConfig struct {
	StartHour       int  `mapstructure:"start_hour"`
	EndHour         int  `mapstructure:"end_hour"`
	DurationHours   int  `mapstructure:"duration_hours"`
	RespectExisting bool `mapstructure:"respect_existing"`
}

type SyncConfig struct {
	DefaultProject   string        `mapstructure:"default_project"`
	EstimatedMinutes int           `mapstructure:"estimated_minutes"`
	Interval         time.Duration `mapstructure:"interval"`
	Timezone         string        `mapstructure:"timezone"`
	TokenDB          string        `mapstructure:"token_db"`
	RefreshBuffer    time.Duration `mapstructure:"refresh_buffer"`
}

var defaults = map[string]any{
	"anytype.api_url":            "http://localhost:31009",
	"anytype.token":              "",
	"anytype.space_id":           "",
	"anytype.tag":                "Toggl",
	"toggl.api_token":            "",
	"toggl.workspace_id":         0,
	"plan.base_url":              "https://api.plan.toggl.com/api/v5",
	"plan.workspace_id":          0,
	"plan.client_id":             "",
	"plan.client_secret":         "",
	"plan.username":              "",
	"plan.password":              "",
	"google.credentials":         "",
	"google.lookback_days":       30,
	"scheduler.start_hour":       8,
	"scheduler.end_hour":         20,
	"scheduler.duration_hours":   1,
	"scheduler.respect_existing": false,
	"sync.default_project":       "Anytype Sync",
	"sync.estimated_minutes":     60,
	"sync.interval":              5 * time.Minute,
	"sync.timezone":              "UTC",
	"sync.token_db":              "~/.anytoggl/tokens.db",
	"sync.refresh_buffer":        5 * time.Minute,
}

// Well-known variable names. Every other key is also readable as
// ANYTOGGL_<SECTION>_<KEY>, e.g. ANYTOGGL_SYNC_INTERVAL.
var envNames = map[string]string{
	"anytype.api_url":      "ANYTYPE_API_URL",
	"anytype.token":        "ANYTYPE_TOKEN",
	"anytype.space_id":     "ANYTYPE_SPACE_ID",
	"toggl.api_token":      "TOGGL_API_TOKEN",
	"toggl.workspace_id":   "TOGGL_WORKSPACE_ID",
	"plan.workspace_id":    "TOGGL_PLAN_WORKSPACE_ID",
	"plan.client_id":       "TOGGL_PLAN_CLIENT_ID",
	"plan.client_secret":   "TOGGL_PLAN_CLIENT_SECRET",
	"plan.username":        "TOGGL_PLAN_USERNAME",
	"plan.password":        "TOGGL_PLAN_PASSWORD",
	"google.credentials":   "GOOGLE_CREDENTIALS",
	"sync.default_project": "DEFAULT_PROJECT_NAME",
}

// Dir returns ~/.config/anytoggl.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName), nil
}

// DefaultPath returns the config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	return v, nil
}

// Load reads the config at path (DefaultPath when empty). A missing file
// is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("ANYTOGGL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envNames {
		if err := v.BindEnv(key, env, "ANYTOGGL_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Google.Credentials == "" {
		if dir, err := Dir(); err == nil {
			cfg.Google.Credentials = filepath.Join(dir, "credentials.json")
		}
	}
	cfg.Google.Credentials = expandHome(cfg.Google.Credentials)
	cfg.Sync.TokenDB = expandHome(cfg.Sync.TokenDB)
	return &cfg, nil
}

// Set writes one key into the config file at path, keeping the others.
func Set(path, key, value string) error {
	if _, ok := defaults[key]; !ok {
		return fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(Keys(), ", "))
	}
	v, err := newViper(path)
	if err != nil {
		return err
	}
	v.Set(key, value)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// Keys lists every known key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Targets accepted by Missing.
const (
	TargetTrack    = "track"
	TargetPlan     = "plan"
	TargetCalendar = "calendar"
)

// Missing lists the unset keys target needs.
func (c *Config) Missing(target string) []string {
	var missing []string
	need := func(key string, ok bool) {
		if !ok {
			missing = append(missing, key)
		}
	}
	need("anytype.token", c.Anytype.Token != "")
	need("anytype.space_id", c.Anytype.SpaceID != "")

	switch target {
	case TargetTrack:
		need("toggl.api_token", c.Toggl.APIToken != "")
		need("toggl.workspace_id", c.Toggl.WorkspaceID != 0)
	case TargetPlan:
		need("plan.workspace_id", c.Plan.WorkspaceID != 0)
		need("plan.client_id", c.Plan.ClientID != "")
		need("plan.client_secret", c.Plan.ClientSecret != "")
		need("plan.username", c.Plan.Username != "")
		need("plan.password", c.Plan.Password != "")
	case TargetCalendar:
		need("google.credentials", c.Google.Credentials != "")
	}
	return missing
}

// Location resolves Sync.Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid sync.timezone %q: %w", c.Sync.Timezone, err)
	}
	return loc, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
