package api

import (
	"context"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/search"
	"github.com/matheus3301/tgvault/internal/store"
)

// SearchService exposes the three search modes.
type SearchService struct {
	engine *search.Engine
	logger *zap.Logger
}

// NewSearchService creates a search service.
func NewSearchService(engine *search.Engine, logger *zap.Logger) *SearchService {
	return &SearchService{engine: engine, logger: logger}
}

// Keyword runs a full-text search.
func (s *SearchService) Keyword(query string, opts search.Options) ([]store.SearchResult, error) {
	return s.engine.Keyword(query, opts)
}

// Semantic ranks stored messages by embedding distance to the query.
func (s *SearchService) Semantic(ctx context.Context, query string, opts search.Options) ([]search.SemanticResult, error) {
	return s.engine.Semantic(ctx, query, opts)
}

// Hybrid fuses keyword and semantic rankings.
func (s *SearchService) Hybrid(ctx context.Context, query string, opts search.Options) ([]search.HybridResult, error) {
	results, err := s.engine.Hybrid(ctx, query, opts)
	if err != nil {
		s.logger.Warn("hybrid search failed", zap.Error(err), zap.String("query", query))
		return nil, err
	}
	return results, nil
}
