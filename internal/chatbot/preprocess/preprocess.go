// Package preprocess runs the query preparation stage: history-aware query
// rewriting followed by language detection, translation, API-query
// classification and service-name extraction.
package preprocess

import (
	"context"

	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/core/errx"
	logx "github.com/ragbot-core-v1/server/pkg/logger"
)

// Rewriter is the conversation-aware query rewrite collaborator.
type Rewriter interface {
	Rewrite(ctx context.Context, query string, history []*schema.Message) (string, error)
}

// LanguageTools groups the language utility collaborators.
type LanguageTools interface {
	LanguageCheck(ctx context.Context, query string) (string, error)
	Translate(ctx context.Context, query, lang string) (string, error)
	IsAPIQuery(ctx context.Context, query string) (bool, error)
	ServiceNames(ctx context.Context, query string) ([]string, error)
}

// Preprocessor drives the QUERY_PREPROCESS stage over a turn state.
type Preprocessor struct {
	rewriter Rewriter
	lang     LanguageTools
}

func New(rewriter Rewriter, lang LanguageTools) *Preprocessor {
	return &Preprocessor{rewriter: rewriter, lang: lang}
}

// Process rewrites the query, then fans the language utilities out over the
// rewritten query. A single-turn query (empty history) skips the rewrite
// entirely: the raw query passes through unchanged.
//
// Translation consumes the detected language, so detection completes before
// the remaining three utilities are dispatched concurrently and joined.
func (p *Preprocessor) Process(ctx context.Context, s *model.ConversationState) error {
	if len(s.ChatHistory) == 0 {
		s.RewrittenQuery = s.Query
	} else {
		rewritten, err := p.rewriter.Rewrite(ctx, s.Query, s.ChatHistory)
		if err != nil {
			return errx.Upstream("query rewrite", err)
		}
		s.RewrittenQuery = rewritten
	}

	query := s.RewrittenQuery

	lang, err := p.lang.LanguageCheck(ctx, query)
	if err != nil {
		return errx.Upstream("language check", err)
	}
	s.QueryLang = lang

	var (
		translated   string
		isAPI        bool
		serviceNames []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		translated, err = p.lang.Translate(gctx, query, lang)
		return err
	})
	g.Go(func() error {
		var err error
		isAPI, err = p.lang.IsAPIQuery(gctx, query)
		return err
	})
	g.Go(func() error {
		var err error
		serviceNames, err = p.lang.ServiceNames(gctx, query)
		return err
	})
	if err := g.Wait(); err != nil {
		return errx.Upstream("query preprocess", err)
	}

	s.TranslatedText = translated
	s.IsAPIQuery = isAPI
	s.ServiceNames = serviceNames

	logx.Debug().
		Str("query_lang", s.QueryLang).
		Bool("is_api_query", s.IsAPIQuery).
		Strs("service_names", s.ServiceNames).
		Msg("query preprocess done")
	return nil
}
