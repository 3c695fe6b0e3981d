package main

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Gamemode selection values for Config.Gamemode
const (
	GamemodeSettingDeathmatch  = "deathmatch"
	GamemodeSettingElimination = "elimination"
	GamemodeSettingRandom      = "random"
)

// Config holds every tunable of the server
type Config struct {
	Addr     string
	DevMode  bool
	LogLevel string

	TickInterval time.Duration

	// Lobby
	CountdownSeconds int
	VoteOptions      int
	Gamemode         string

	// Match
	MatchDuration    time.Duration
	RespawnDelay     time.Duration
	ProtectionWindow time.Duration
	Lives            int
	ProjectileSpeed  float64 // arena units per second
	ProjectileDamage float64
	RamDamage        float64
	RamCooldown      time.Duration
	MaxAmmo          int
	ReloadTime       time.Duration // per round

	// Collaborators
	ArenasFile string
	DBPath     string
	JWTSecret  string
}

// DefaultConfig returns production defaults
func DefaultConfig() *Config {
	return &Config{
		Addr:             ":8080",
		LogLevel:         "info",
		TickInterval:     50 * time.Millisecond,
		CountdownSeconds: 10,
		VoteOptions:      3,
		Gamemode:         GamemodeSettingDeathmatch,
		MatchDuration:    5 * time.Minute,
		RespawnDelay:     7500 * time.Millisecond,
		ProtectionWindow: 3000 * time.Millisecond,
		Lives:            3,
		ProjectileSpeed:  30,
		ProjectileDamage: 0.25,
		RamDamage:        0.5,
		RamCooldown:      time.Second,
		MaxAmmo:          5,
		ReloadTime:       800 * time.Millisecond,
	}
}

// development overrides
const (
	devCountdownSeconds = 3
	devRespawnDelay     = 2500 * time.Millisecond
)

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("addr", d.Addr)
	v.SetDefault("dev", false)
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("tickInterval", d.TickInterval)

	v.SetDefault("lobby.countdownSeconds", d.CountdownSeconds)
	v.SetDefault("lobby.voteOptions", d.VoteOptions)
	v.SetDefault("lobby.gamemode", d.Gamemode)

	v.SetDefault("match.duration", d.MatchDuration)
	v.SetDefault("match.respawnDelay", d.RespawnDelay)
	v.SetDefault("match.protectionWindow", d.ProtectionWindow)
	v.SetDefault("match.lives", d.Lives)
	v.SetDefault("match.projectileSpeed", d.ProjectileSpeed)
	v.SetDefault("match.projectileDamage", d.ProjectileDamage)
	v.SetDefault("match.ramDamage", d.RamDamage)
	v.SetDefault("match.ramCooldown", d.RamCooldown)
	v.SetDefault("match.maxAmmo", d.MaxAmmo)
	v.SetDefault("match.reloadTime", d.ReloadTime)

	v.SetDefault("development.countdownSeconds", devCountdownSeconds)
	v.SetDefault("development.respawnDelay", devRespawnDelay)

	v.SetDefault("arenasFile", "")
	v.SetDefault("dbPath", "")
	v.SetDefault("jwtSecret", "")
}

// LoadConfig reads defaults, an optional config file and ARENA_* environment
// overrides. Development mode swaps in the shorter development.* timings.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, eris.Wrapf(err, "reading config file %s", path)
		}
	}

	cfg := &Config{
		Addr:             v.GetString("addr"),
		DevMode:          v.GetBool("dev"),
		LogLevel:         v.GetString("logLevel"),
		TickInterval:     v.GetDuration("tickInterval"),
		CountdownSeconds: v.GetInt("lobby.countdownSeconds"),
		VoteOptions:      v.GetInt("lobby.voteOptions"),
		Gamemode:         strings.ToLower(v.GetString("lobby.gamemode")),
		MatchDuration:    v.GetDuration("match.duration"),
		RespawnDelay:     v.GetDuration("match.respawnDelay"),
		ProtectionWindow: v.GetDuration("match.protectionWindow"),
		Lives:            v.GetInt("match.lives"),
		ProjectileSpeed:  v.GetFloat64("match.projectileSpeed"),
		ProjectileDamage: v.GetFloat64("match.projectileDamage"),
		RamDamage:        v.GetFloat64("match.ramDamage"),
		RamCooldown:      v.GetDuration("match.ramCooldown"),
		MaxAmmo:          v.GetInt("match.maxAmmo"),
		ReloadTime:       v.GetDuration("match.reloadTime"),
		ArenasFile:       v.GetString("arenasFile"),
		DBPath:           v.GetString("dbPath"),
		JWTSecret:        v.GetString("jwtSecret"),
	}
	if cfg.DevMode {
		cfg.CountdownSeconds = v.GetInt("development.countdownSeconds")
		cfg.RespawnDelay = v.GetDuration("development.respawnDelay")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TickInterval <= 0 {
		return eris.Errorf("tickInterval must be positive, got %s", c.TickInterval)
	}
	if c.CountdownSeconds < 1 {
		return eris.Errorf("lobby.countdownSeconds must be at least 1, got %d", c.CountdownSeconds)
	}
	if c.VoteOptions < 1 {
		return eris.Errorf("lobby.voteOptions must be at least 1, got %d", c.VoteOptions)
	}
	switch c.Gamemode {
	case GamemodeSettingDeathmatch, GamemodeSettingElimination, GamemodeSettingRandom:
	default:
		return eris.Errorf("unknown lobby.gamemode %q", c.Gamemode)
	}
	if c.Lives < 1 {
		return eris.Errorf("match.lives must be at least 1, got %d", c.Lives)
	}
	return nil
}
