// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process-wide configuration. Everything under Guild can be
// overridden per guild through the config command.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN"`
	OwnerID      string `env:"OWNER_ID"`

	CommandDir     string `env:"COMMAND_DIR" envDefault:"commands"`
	GlobalDir      string `env:"GLOBAL_DIR" envDefault:"data/global"`
	GuildsDir      string `env:"GUILDS_DIR" envDefault:"data/guilds"`
	MemoryFile     string `env:"MEMORY_FILE" envDefault:"memory.json"`
	MarkovFile     string `env:"MARKOV_FILE" envDefault:"markov.txt"`
	BaseMarkovData string `env:"BASE_MARKOV_DATA" envDefault:"data/base_markov.txt"`

	SaveInterval     time.Duration `env:"SAVE_INTERVAL" envDefault:"5m"`
	GuildDataTimeout time.Duration `env:"GUILD_DATA_TIMEOUT" envDefault:"72h"`
	QuitGrace        time.Duration `env:"QUIT_GRACE" envDefault:"1500ms"`
	WatchCommands    bool          `env:"WATCH_COMMANDS" envDefault:"true"`
	BackupCount      int           `env:"BACKUP_COUNT" envDefault:"3"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	Guild GuildConfig `envPrefix:"GUILD_"`
}

// Load reads an optional .env file and parses the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Defaults returns the configuration built from tag defaults only, ignoring
// the process environment.
func Defaults() *Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("config defaults do not parse: %v", err))
	}
	return &cfg
}

// MemoryPath is the location of the durable snapshot.
func (c *Config) MemoryPath() string {
	return filepath.Join(c.GlobalDir, c.MemoryFile)
}

// GuildDir is the data directory of a single guild.
func (c *Config) GuildDir(guildID string) string {
	return filepath.Join(c.GuildsDir, guildID)
}

func (c *Config) validate() error {
	if c.SaveInterval <= 0 {
		return fmt.Errorf("SAVE_INTERVAL must be positive, got %v", c.SaveInterval)
	}
	if c.GuildDataTimeout < time.Hour {
		// an outage shorter than this would wipe guild data
		return fmt.Errorf("GUILD_DATA_TIMEOUT must be at least 1h, got %v", c.GuildDataTimeout)
	}
	if err := c.Guild.Validate(); err != nil {
		return fmt.Errorf("GUILD_ settings: %w", err)
	}
	return nil
}
