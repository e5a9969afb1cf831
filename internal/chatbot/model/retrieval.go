package model

// IndexType distinguishes the two workspace indexing strategies.
type IndexType string

const (
	// IndexTypeQQ matches the user question against stored questions.
	IndexTypeQQ IndexType = "qq"
	// IndexTypeQD matches the user question against document chunks.
	IndexTypeQD IndexType = "qd"
)

// Workspace is a tenant retrieval namespace, looked up by id from the
// workspace store. Immutable for the duration of a turn.
type Workspace struct {
	ID                string         `json:"id"`
	IndexType         IndexType      `json:"index_type"`
	EmbeddingEndpoint string         `json:"embedding_endpoint,omitempty"`
	RetrievalParams   map[string]any `json:"retrieval_params,omitempty"`
}

// RetrievalResult is one retrieved snippet with its relevance score and
// provenance.
type RetrievalResult struct {
	Content     string         `json:"content"`
	Score       float64        `json:"score"`
	WorkspaceID string         `json:"workspace_id"`
	DocMetadata map[string]any `json:"doc_metadata,omitempty"`
}

// Source returns the provenance identifier for the result, preferring the
// document metadata over the workspace id.
func (r RetrievalResult) Source() string {
	if r.DocMetadata != nil {
		if s, ok := r.DocMetadata["source"].(string); ok && s != "" {
			return s
		}
	}
	return r.WorkspaceID
}

// Answer returns the stored answer for question-question results. Falls back
// to the content when the metadata carries none.
func (r RetrievalResult) Answer() string {
	if r.DocMetadata != nil {
		if a, ok := r.DocMetadata["answer"].(string); ok && a != "" {
			return a
		}
	}
	return r.Content
}

// IntentExample is one ingested intent example returned by the intent index.
type IntentExample struct {
	Question string  `json:"question"`
	Intent   string  `json:"intent"`
	Score    float64 `json:"score"`
}
