// Package markov keeps the per-guild text corpus and a word chain built
// from it.
package markov

import (
	"math/rand"
	"strings"
	"sync"
)

const end = ""

// Chain is a first order word chain. It is safe for concurrent use.
type Chain struct {
	mu     sync.Mutex
	next   map[string][]string
	starts []string
	rnd    *rand.Rand
}

// NewChain returns an empty chain. A nil rnd uses a time seeded source.
func NewChain(rnd *rand.Rand) *Chain {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Chain{next: map[string][]string{}, rnd: rnd}
}

// Seed learns every line of text.
func (c *Chain) Seed(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range strings.Split(text, "\n") {
		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}
		c.starts = append(c.starts, words[0])
		for i, w := range words {
			n := end
			if i+1 < len(words) {
				n = words[i+1]
			}
			c.next[w] = append(c.next[w], n)
		}
	}
}

// Size returns the number of distinct words known.
func (c *Chain) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.next)
}

// Generate walks the chain. It starts from a random seed word the chain
// knows, or from a random line start, and stops at the end of a line,
// after maxWords words or before exceeding maxLen characters. A limit of
// zero or less means no limit.
func (c *Chain) Generate(seed []string, maxWords, maxLen int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.starts) == 0 {
		return ""
	}

	var known []string
	for _, w := range seed {
		if _, ok := c.next[w]; ok {
			known = append(known, w)
		}
	}
	word := c.starts[c.rnd.Intn(len(c.starts))]
	if len(known) > 0 {
		word = known[c.rnd.Intn(len(known))]
	}

	var b strings.Builder
	for n := 0; word != end; n++ {
		if maxWords > 0 && n >= maxWords {
			break
		}
		extra := len(word)
		if b.Len() > 0 {
			extra++
		}
		if maxLen > 0 && b.Len()+extra > maxLen {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)

		options := c.next[word]
		if len(options) == 0 {
			break
		}
		word = options[c.rnd.Intn(len(options))]
	}
	return b.String()
}
