package config

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidGuildConfig is returned for guild settings that would break
// message handling.
var ErrInvalidGuildConfig = errors.New("invalid guild config")

// GuildConfig is the part of the configuration that guilds may override.
// JSON names are the keys accepted in a guild's config_override map.
type GuildConfig struct {
	Prefix     string `json:"prefix" env:"PREFIX" envDefault:"m!"`
	IgnoreBots bool   `json:"ignore_bots" env:"IGNORE_BOTS" envDefault:"true"`

	RandomMarkov          bool    `json:"random_markov" env:"RANDOM_MARKOV" envDefault:"false"`
	MarkovMinMessages     int     `json:"markov_min_messages" env:"MARKOV_MIN_MESSAGES" envDefault:"10"`
	MarkovChance          float64 `json:"markov_chance" env:"MARKOV_CHANCE" envDefault:"2"`
	MarkovChanceIncrease  float64 `json:"markov_chance_increase" env:"MARKOV_CHANCE_INCREASE" envDefault:"0.5"`
	MarkovMaxLength       int     `json:"markov_max_length" env:"MARKOV_MAX_LENGTH" envDefault:"400"`
	MarkovDefaultMaxWords int     `json:"markov_default_max_words" env:"MARKOV_DEFAULT_MAX_WORDS" envDefault:"30"`
	PassiveCommand        string  `json:"passive_command" env:"PASSIVE_COMMAND" envDefault:"markov"`

	AllowHooks         bool `json:"allow_hooks" env:"ALLOW_HOOKS" envDefault:"true"`
	MaxHooksPerMessage int  `json:"max_hooks_per_message" env:"MAX_HOOKS_PER_MESSAGE" envDefault:"10"`
}

// Override returns a copy of g with the keys of overrides applied on top.
// Unknown keys are ignored. The receiver is never modified; if the overrides
// cannot be applied or the result fails Validate, the unmodified defaults
// are returned with the error.
func (g GuildConfig) Override(overrides map[string]any) (GuildConfig, error) {
	if len(overrides) == 0 {
		return g, nil
	}

	base, err := json.Marshal(g)
	if err != nil {
		return g, fmt.Errorf("marshal guild config: %w", err)
	}
	merged := map[string]any{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return g, fmt.Errorf("unmarshal guild config: %w", err)
	}
	for k, v := range overrides {
		merged[k] = v
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return g, fmt.Errorf("marshal overrides: %w", err)
	}
	var out GuildConfig
	if err := json.Unmarshal(data, &out); err != nil {
		return g, fmt.Errorf("invalid config override: %w", err)
	}
	if err := out.Validate(); err != nil {
		return g, err
	}
	return out, nil
}

// Validate rejects settings that no guild may run with.
func (g GuildConfig) Validate() error {
	switch {
	case g.Prefix == "":
		return fmt.Errorf("%w: prefix must not be empty", ErrInvalidGuildConfig)
	case g.MaxHooksPerMessage < 1:
		return fmt.Errorf("%w: max_hooks_per_message must be at least 1, got %d", ErrInvalidGuildConfig, g.MaxHooksPerMessage)
	case g.MarkovMinMessages < 0:
		return fmt.Errorf("%w: markov_min_messages must not be negative", ErrInvalidGuildConfig)
	case g.MarkovChance < 0 || g.MarkovChanceIncrease < 0:
		return fmt.Errorf("%w: markov chances must not be negative", ErrInvalidGuildConfig)
	case g.MarkovMaxLength < 1 || g.MarkovDefaultMaxWords < 1:
		return fmt.Errorf("%w: markov lengths must be at least 1", ErrInvalidGuildConfig)
	}
	return nil
}

// Keys lists the override keys a guild may set.
func (g GuildConfig) Keys() []string {
	return []string{
		"prefix", "ignore_bots",
		"random_markov", "markov_min_messages", "markov_chance", "markov_chance_increase",
		"markov_max_length", "markov_default_max_words", "passive_command",
		"allow_hooks", "max_hooks_per_message",
	}
}
