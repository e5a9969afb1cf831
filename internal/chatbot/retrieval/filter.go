package retrieval

import (
	"github.com/ragbot-core-v1/server/internal/chatbot/model"
)

// Filter drops every result scoring below threshold, preserving the
// original relative order. An empty outcome is valid, not an error; the
// graph treats it as the trigger for the fast-reply path.
func Filter(results []model.RetrievalResult, threshold float64) []model.RetrievalResult {
	filtered := make([]model.RetrievalResult, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
