package markov

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var spaces = regexp.MustCompile(`\s+`)

// Config describes where corpus files live.
type Config struct {
	// GuildsDir holds one directory per guild.
	GuildsDir string
	// FileName is the corpus file name inside a guild directory.
	FileName string
	// BasePath is an optional template copied into new corpus files.
	BasePath string
	Rand     *rand.Rand
	Logger   zerolog.Logger
}

// Corpus is the append-only training data of every guild plus the chains
// loaded from it.
type Corpus struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	chains map[string]*Chain
}

// NewCorpus returns a corpus with no chains loaded.
func NewCorpus(cfg Config) *Corpus {
	return &Corpus{cfg: cfg, log: cfg.Logger, chains: map[string]*Chain{}}
}

// Path returns the corpus file of a guild.
func (c *Corpus) Path(guildID string) string {
	return filepath.Join(c.cfg.GuildsDir, guildID, c.cfg.FileName)
}

// Sanitize removes mentions of selfID and collapses whitespace.
func Sanitize(text, selfID string) string {
	if selfID != "" {
		text = strings.ReplaceAll(text, "<@!"+selfID+">", "")
		text = strings.ReplaceAll(text, "<@"+selfID+">", "")
	}
	return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
}

// Feed appends text to the guild's corpus, creating the file from the
// template if needed, and teaches it to the loaded chain.
func (c *Corpus) Feed(guildID, text, selfID string) error {
	line := Sanitize(text, selfID)
	if line == "" {
		return nil
	}

	c.mu.Lock()
	if ch, ok := c.chains[guildID]; ok {
		ch.Seed(line)
	}
	c.mu.Unlock()

	path := c.Path(guildID)
	if err := c.ensureFile(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString("\n" + line); err != nil {
		return fmt.Errorf("append corpus: %w", err)
	}
	return nil
}

func (c *Corpus) ensureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create guild dir: %w", err)
	}
	var base []byte
	if c.cfg.BasePath != "" {
		data, err := os.ReadFile(c.cfg.BasePath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read base corpus: %w", err)
		}
		base = data
	}
	if err := os.WriteFile(path, base, 0o644); err != nil {
		return fmt.Errorf("create corpus: %w", err)
	}
	c.log.Info().Str("file", path).Msg("created corpus")
	return nil
}

// Chain returns the guild's chain, loading it from disk on first use.
func (c *Corpus) Chain(guildID string) (*Chain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.chains[guildID]; ok {
		return ch, nil
	}

	path := c.Path(guildID)
	if err := c.ensureFile(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	ch := NewChain(c.cfg.Rand)
	ch.Seed(string(data))
	c.chains[guildID] = ch
	c.log.Debug().Str("guild", guildID).Int("words", ch.Size()).Msg("loaded chain")
	return ch, nil
}

// Generate produces text for a guild. Errors are logged and yield "".
func (c *Corpus) Generate(guildID string, seed []string, maxWords, maxLen int) string {
	ch, err := c.Chain(guildID)
	if err != nil {
		c.log.Error().Err(err).Str("guild", guildID).Msg("cannot load chain")
		return ""
	}
	return ch.Generate(seed, maxWords, maxLen)
}

// Drop forgets the loaded chain of a guild.
func (c *Corpus) Drop(guildID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.chains, guildID)
}
