// Package config provides Viper-based configuration loading for the hunting bot.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level" json:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format" json:"format"`
}

// DetectionConfig holds target classification settings.
type DetectionConfig struct {
	// Threshold is the minimum similarity in [0,1] for a name to count as a match.
	Threshold float64 `mapstructure:"threshold" json:"threshold"`
	// Mobs lists the monster names to hunt, in priority order.
	Mobs []string `mapstructure:"mobs" json:"mobs"`
	// Drops lists the ground item names to pick up, in priority order.
	Drops []string `mapstructure:"drops" json:"drops"`
	// TargetsDir optionally names a directory of YAML target list files merged
	// after Mobs and Drops. Empty disables file loading.
	TargetsDir string `mapstructure:"targets_dir" json:"targets_dir,omitempty"`
	// ReplayFile is the text file replayed by the dry-run text source.
	ReplayFile string `mapstructure:"replay_file" json:"replay_file,omitempty"`
	// ReplayHold is how long each replayed line stays on screen.
	ReplayHold time.Duration `mapstructure:"replay_hold" json:"replay_hold"`
}

// IntervalsConfig holds the per-worker tick cadence.
type IntervalsConfig struct {
	Detector time.Duration `mapstructure:"detector" json:"detector"`
	Heal     time.Duration `mapstructure:"heal" json:"heal"`
	Skills   time.Duration `mapstructure:"skills" json:"skills"`
	Observer time.Duration `mapstructure:"observer" json:"observer"`
	Loot     time.Duration `mapstructure:"loot" json:"loot"`
	Escape   time.Duration `mapstructure:"escape" json:"escape"`
}

// WorkersConfig holds worker coordination settings.
type WorkersConfig struct {
	// Pinned names the always-on workers exempt from PauseAllExcept.
	Pinned []string `mapstructure:"pinned" json:"pinned"`
	// StopTimeout bounds how long Stop waits for workers to exit.
	StopTimeout time.Duration `mapstructure:"stop_timeout" json:"stop_timeout"`
	// ExclusiveStall is how long an exclusive action may stay flagged before a
	// warning is logged.
	ExclusiveStall time.Duration `mapstructure:"exclusive_stall" json:"exclusive_stall"`
	// Intervals holds the per-worker tick cadence.
	Intervals IntervalsConfig `mapstructure:"intervals" json:"intervals"`
}

// InputConfig holds input injection timing.
type InputConfig struct {
	// KeyHold is how long a key stays pressed.
	KeyHold time.Duration `mapstructure:"key_hold" json:"key_hold"`
}

// LootConfig holds the loot-on-kill sequence settings.
type LootConfig struct {
	// Key is the pickup key.
	Key string `mapstructure:"key" json:"key"`
	// Repetitions is the number of presses; 0 disables the presses.
	Repetitions int `mapstructure:"repetitions" json:"repetitions"`
	// Interval is the pause between presses.
	Interval time.Duration `mapstructure:"interval" json:"interval"`
}

// Point is a window-relative click position.
type Point struct {
	X int `mapstructure:"x" json:"x"`
	Y int `mapstructure:"y" json:"y"`
}

// String returns the point in "(x, y)" format.
func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// EscapeConfig holds the stuck-mob escape settings.
type EscapeConfig struct {
	// Timeout is the default MOB dwell time before an escape fires.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
	// Overrides maps a matched mob name to its own dwell timeout.
	Overrides map[string]time.Duration `mapstructure:"overrides" json:"overrides,omitempty"`
	// Points are the escape click positions, used round robin.
	Points []Point `mapstructure:"points" json:"points"`
	// Recenter is the follow-up click position.
	Recenter Point `mapstructure:"recenter" json:"recenter"`
	// Clicks is the number of clicks at the selected point.
	Clicks int `mapstructure:"clicks" json:"clicks"`
	// Duration is the total time the escape clicks are spread across.
	Duration time.Duration `mapstructure:"duration" json:"duration"`
	// Settle is the pause between the escape clicks and the recenter clicks.
	Settle time.Duration `mapstructure:"settle" json:"settle"`
	// RecenterClicks is the number of follow-up clicks at Recenter.
	RecenterClicks int `mapstructure:"recenter_clicks" json:"recenter_clicks"`
	// RecenterPause is the pause between follow-up clicks.
	RecenterPause time.Duration `mapstructure:"recenter_pause" json:"recenter_pause"`
}

// Skill is one entry of the skill rotation.
type Skill struct {
	Key      string        `mapstructure:"key" json:"key"`
	Enabled  bool          `mapstructure:"enabled" json:"enabled"`
	Cooldown time.Duration `mapstructure:"cooldown" json:"cooldown"`
}

// SkillsConfig holds the attack worker settings.
type SkillsConfig struct {
	// AttackKey is pressed on every tick while the target is a mob.
	AttackKey string `mapstructure:"attack_key" json:"attack_key"`
	// Between is the pause after each skill press.
	Between time.Duration `mapstructure:"between" json:"between"`
	// Rotation is the ordered skill list.
	Rotation []Skill `mapstructure:"rotation" json:"rotation"`
}

// Color is an RGB triple.
type Color struct {
	R uint8 `mapstructure:"r" json:"r"`
	G uint8 `mapstructure:"g" json:"g"`
	B uint8 `mapstructure:"b" json:"b"`
}

// BarConfig describes one resource bar probe.
type BarConfig struct {
	// X and Y locate the probed pixel.
	X int `mapstructure:"x" json:"x"`
	Y int `mapstructure:"y" json:"y"`
	// Keys are pressed whenever the bar is empty at the probe.
	Keys []string `mapstructure:"keys" json:"keys"`
	// CombatKeys are pressed only while the target is a mob.
	CombatKeys []string `mapstructure:"combat_keys" json:"combat_keys,omitempty"`
	// IntervalOK is the recheck delay while the bar is present.
	IntervalOK time.Duration `mapstructure:"interval_ok" json:"interval_ok"`
	// IntervalLow is the recheck delay after pressing.
	IntervalLow time.Duration `mapstructure:"interval_low" json:"interval_low"`
	// DryRunColor is the colour reported at the probe by the dry-run pixel reader.
	DryRunColor Color `mapstructure:"dry_run_color" json:"dry_run_color"`
}

// HealConfig holds the self-heal worker settings.
type HealConfig struct {
	Health BarConfig `mapstructure:"health" json:"health"`
	Mana   BarConfig `mapstructure:"mana" json:"mana"`
}

// ObserverConfig holds the target acquisition worker settings.
type ObserverConfig struct {
	// SelectKey selects the nearest target.
	SelectKey string `mapstructure:"select_key" json:"select_key"`
	// ReselectDelay is the wait after pressing SelectKey.
	ReselectDelay time.Duration `mapstructure:"reselect_delay" json:"reselect_delay"`
}

// StatusConfig holds the status surface settings.
type StatusConfig struct {
	// Enabled toggles the HTTP/websocket and gRPC health listeners.
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// HTTPAddr is the bind address for the JSON and websocket endpoints.
	HTTPAddr string `mapstructure:"http_addr" json:"http_addr"`
	// GRPCAddr is the bind address for the gRPC health service.
	GRPCAddr string `mapstructure:"grpc_addr" json:"grpc_addr"`
	// Interval is the status publication cadence.
	Interval time.Duration `mapstructure:"interval" json:"interval"`
	// Username and PasswordHash enable HTTP basic auth on the status
	// endpoints. PasswordHash is a bcrypt hash (see "huntbot passwd").
	Username     string `mapstructure:"username" json:"username,omitempty"`
	PasswordHash string `mapstructure:"password_hash" json:"password_hash,omitempty"`
}

// DatabaseConfig holds PostgreSQL connection settings for the action journal.
type DatabaseConfig struct {
	// Enabled selects the Postgres journal sink; false logs actions instead.
	Enabled         bool          `mapstructure:"enabled" json:"enabled"`
	Host            string        `mapstructure:"host" json:"host"`
	Port            int           `mapstructure:"port" json:"port"`
	User            string        `mapstructure:"user" json:"user"`
	Password        string        `mapstructure:"password" json:"password"`
	Name            string        `mapstructure:"name" json:"name"`
	SSLMode         string        `mapstructure:"sslmode" json:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns" json:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns" json:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" json:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// ScriptingConfig holds Lua hook settings.
type ScriptingConfig struct {
	// EscapeScript is a Lua file defining escape_timeout(name, default_seconds).
	// Empty disables scripting.
	EscapeScript string `mapstructure:"escape_script" json:"escape_script,omitempty"`
	// InstructionLimit caps opcodes per hook call; 0 uses the default.
	InstructionLimit int `mapstructure:"instruction_limit" json:"instruction_limit"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging"`
	Detection DetectionConfig `mapstructure:"detection" json:"detection"`
	Workers   WorkersConfig   `mapstructure:"workers" json:"workers"`
	Input     InputConfig     `mapstructure:"input" json:"input"`
	Loot      LootConfig      `mapstructure:"loot" json:"loot"`
	Escape    EscapeConfig    `mapstructure:"escape" json:"escape"`
	Skills    SkillsConfig    `mapstructure:"skills" json:"skills"`
	Heal      HealConfig      `mapstructure:"heal" json:"heal"`
	Observer  ObserverConfig  `mapstructure:"observer" json:"observer"`
	Status    StatusConfig    `mapstructure:"status" json:"status"`
	Database  DatabaseConfig  `mapstructure:"database" json:"database"`
	Scripting ScriptingConfig `mapstructure:"scripting" json:"scripting"`
}

// Validate checks all configuration invariants.
//
// Empty target lists and an empty escape point list are not errors: the
// dependent feature degrades to a no-op at runtime.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	checks := []func() error{
		func() error { return validateLogging(c.Logging) },
		func() error { return validateDetection(c.Detection) },
		func() error { return validateWorkers(c.Workers) },
		func() error { return validateLoot(c.Loot) },
		func() error { return validateEscape(c.Escape) },
		func() error { return validateSkills(c.Skills) },
		func() error { return validateHeal(c.Heal) },
		func() error { return validateStatus(c.Status) },
		func() error { return validateDatabase(c.Database) },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Input.KeyHold < 0 {
		errs = append(errs, "input.key_hold must not be negative")
	}
	if c.Observer.ReselectDelay < 0 {
		errs = append(errs, "observer.reselect_delay must not be negative")
	}
	if c.Scripting.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("scripting.instruction_limit must be >= 0, got %d", c.Scripting.InstructionLimit))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateDetection(d DetectionConfig) error {
	var errs []string
	if d.Threshold < 0 || d.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("detection.threshold must be in [0, 1], got %g", d.Threshold))
	}
	if d.ReplayHold < 0 {
		errs = append(errs, "detection.replay_hold must not be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateWorkers(w WorkersConfig) error {
	var errs []string
	if w.StopTimeout <= 0 {
		errs = append(errs, "workers.stop_timeout must be > 0")
	}
	if w.ExclusiveStall <= 0 {
		errs = append(errs, "workers.exclusive_stall must be > 0")
	}
	intervals := map[string]time.Duration{
		"detector": w.Intervals.Detector,
		"heal":     w.Intervals.Heal,
		"skills":   w.Intervals.Skills,
		"observer": w.Intervals.Observer,
		"loot":     w.Intervals.Loot,
		"escape":   w.Intervals.Escape,
	}
	for _, name := range []string{"detector", "heal", "skills", "observer", "loot", "escape"} {
		if intervals[name] <= 0 {
			errs = append(errs, fmt.Sprintf("workers.intervals.%s must be > 0", name))
		}
	}
	for _, p := range w.Pinned {
		if p == "" {
			errs = append(errs, "workers.pinned must not contain empty names")
			break
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLoot(l LootConfig) error {
	var errs []string
	if l.Repetitions < 0 {
		errs = append(errs, fmt.Sprintf("loot.repetitions must be >= 0, got %d", l.Repetitions))
	}
	if l.Repetitions > 0 && l.Key == "" {
		errs = append(errs, "loot.key must not be empty when loot.repetitions > 0")
	}
	if l.Interval < 0 {
		errs = append(errs, "loot.interval must not be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateEscape(e EscapeConfig) error {
	var errs []string
	if e.Timeout <= 0 {
		errs = append(errs, "escape.timeout must be > 0")
	}
	for name, d := range e.Overrides {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("escape.overrides[%q] must be > 0", name))
		}
	}
	if e.Clicks < 1 {
		errs = append(errs, fmt.Sprintf("escape.clicks must be >= 1, got %d", e.Clicks))
	}
	if e.RecenterClicks < 0 {
		errs = append(errs, fmt.Sprintf("escape.recenter_clicks must be >= 0, got %d", e.RecenterClicks))
	}
	if e.Duration < 0 || e.Settle < 0 || e.RecenterPause < 0 {
		errs = append(errs, "escape durations must not be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateSkills(s SkillsConfig) error {
	var errs []string
	if s.Between < 0 {
		errs = append(errs, "skills.between must not be negative")
	}
	for i, sk := range s.Rotation {
		if sk.Key == "" {
			errs = append(errs, fmt.Sprintf("skills.rotation[%d].key must not be empty", i))
		}
		if sk.Cooldown < 0 {
			errs = append(errs, fmt.Sprintf("skills.rotation[%d].cooldown must not be negative", i))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateHeal(h HealConfig) error {
	var errs []string
	for name, bar := range map[string]BarConfig{"health": h.Health, "mana": h.Mana} {
		if bar.IntervalOK <= 0 {
			errs = append(errs, fmt.Sprintf("heal.%s.interval_ok must be > 0", name))
		}
		if bar.IntervalLow <= 0 {
			errs = append(errs, fmt.Sprintf("heal.%s.interval_low must be > 0", name))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateStatus(s StatusConfig) error {
	if s.Interval <= 0 {
		return errors.New("status.interval must be > 0")
	}
	if !s.Enabled {
		return nil
	}
	var errs []string
	if s.HTTPAddr == "" {
		errs = append(errs, "status.http_addr must not be empty when status.enabled")
	}
	if s.GRPCAddr == "" {
		errs = append(errs, "status.grpc_addr must not be empty when status.enabled")
	}
	if (s.Username == "") != (s.PasswordHash == "") {
		errs = append(errs, "status.username and status.password_hash must be set together")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	if !d.Enabled {
		return nil
	}
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := NewViper(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// NewViper returns a Viper instance bound to path with defaults and HUNTBOT_
// environment overrides applied. The file is not read.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with HUNTBOT_ prefix
	v.SetEnvPrefix("HUNTBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration produced by the built-in defaults alone.
//
// Postcondition: Returns a Config that passes Validate.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode; a failure here is a programming error.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config.Default: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("detection.threshold", 0.70)
	v.SetDefault("detection.mobs", []string{})
	v.SetDefault("detection.drops", []string{})
	v.SetDefault("detection.replay_hold", "2s")

	v.SetDefault("workers.pinned", []string{"detector", "heal"})
	v.SetDefault("workers.stop_timeout", "2s")
	v.SetDefault("workers.exclusive_stall", "30s")
	v.SetDefault("workers.intervals.detector", "10ms")
	v.SetDefault("workers.intervals.heal", "100ms")
	v.SetDefault("workers.intervals.skills", "300ms")
	v.SetDefault("workers.intervals.observer", "100ms")
	v.SetDefault("workers.intervals.loot", "100ms")
	v.SetDefault("workers.intervals.escape", "100ms")

	v.SetDefault("input.key_hold", "50ms")

	v.SetDefault("loot.key", "F")
	v.SetDefault("loot.repetitions", 3)
	v.SetDefault("loot.interval", "500ms")

	v.SetDefault("escape.timeout", "20s")
	v.SetDefault("escape.recenter", map[string]int{"x": 405, "y": 360})
	v.SetDefault("escape.clicks", 3)
	v.SetDefault("escape.duration", "3s")
	v.SetDefault("escape.settle", "200ms")
	v.SetDefault("escape.recenter_clicks", 3)
	v.SetDefault("escape.recenter_pause", "300ms")

	v.SetDefault("skills.attack_key", "R")
	v.SetDefault("skills.between", "100ms")

	v.SetDefault("heal.health.x", 128)
	v.SetDefault("heal.health.y", 62)
	v.SetDefault("heal.health.keys", []string{"0"})
	v.SetDefault("heal.health.interval_ok", "1s")
	v.SetDefault("heal.health.interval_low", "500ms")
	v.SetDefault("heal.health.dry_run_color", map[string]int{"r": 255, "g": 0, "b": 0})
	v.SetDefault("heal.mana.x", 45)
	v.SetDefault("heal.mana.y", 80)
	v.SetDefault("heal.mana.keys", []string{"9"})
	v.SetDefault("heal.mana.interval_ok", "1s")
	v.SetDefault("heal.mana.interval_low", "500ms")
	v.SetDefault("heal.mana.dry_run_color", map[string]int{"r": 0, "g": 0, "b": 255})

	v.SetDefault("observer.select_key", "E")
	v.SetDefault("observer.reselect_delay", "1500ms")

	v.SetDefault("status.enabled", true)
	v.SetDefault("status.http_addr", "127.0.0.1:8420")
	v.SetDefault("status.grpc_addr", "127.0.0.1:8421")
	v.SetDefault("status.interval", "500ms")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "huntbot")
	v.SetDefault("database.password", "huntbot")
	v.SetDefault("database.name", "huntbot")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("scripting.instruction_limit", 0)
}
