package retrieval

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	logx "github.com/ragbot-core-v1/server/pkg/logger"
)

// TokenCounter counts generation-input tokens for one context snippet.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts with a BPE encoding. The encoding is loaded once
// and shared; loading failure falls back to whitespace word counting so a
// turn never fails on tokenizer availability.
type TiktokenCounter struct {
	Encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

const defaultEncoding = "cl100k_base"

func (c *TiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		name := c.Encoding
		if name == "" {
			name = defaultEncoding
		}
		enc, err := tiktoken.GetEncoding(name)
		if err != nil {
			logx.Warn().Err(err).Str("encoding", name).Msg("tiktoken unavailable, falling back to word counting")
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return WordCounter{}.Count(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// WordCounter approximates tokens by whitespace-separated words.
// Deterministic and dependency-free; used as the tokenizer fallback and in
// tests.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// TruncateContexts keeps the highest-ranked results whose cumulative token
// count fits the budget, dropping the lowest-ranked first. The input is
// expected already ranked. The top result is always kept so generation has
// at least one context even when it alone exceeds the budget.
func TruncateContexts(results []model.RetrievalResult, budget int, counter TokenCounter) []model.RetrievalResult {
	if len(results) == 0 || budget <= 0 {
		return results
	}
	kept := make([]model.RetrievalResult, 0, len(results))
	used := 0
	for i, r := range results {
		cost := counter.Count(r.Content)
		if i > 0 && used+cost > budget {
			break
		}
		kept = append(kept, r)
		used += cost
	}
	return kept
}

// ContextsAndSources flattens results into the positionally aligned
// contexts/sources sequences carried on the turn state.
func ContextsAndSources(results []model.RetrievalResult) (contexts, sources []string) {
	contexts = make([]string, 0, len(results))
	sources = make([]string, 0, len(results))
	for _, r := range results {
		contexts = append(contexts, r.Content)
		sources = append(sources, r.Source())
	}
	return contexts, sources
}
