package search

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/embed"
	"github.com/matheus3301/tgvault/internal/store"
)

// rrfK dampens rank differences when fusing keyword and semantic
// result lists. 60 is the value from the original RRF paper.
const rrfK = 60

// candidateDepth is how deep each list goes before fusion.
const candidateDepth = 100

// Options narrow a search. ConversationID 0 searches all conversations.
type Options struct {
	ConversationID int64
	Since          int64
	Until          int64
	Limit          int
}

// SemanticResult is a message with its cosine distance to the query,
// smaller is closer.
type SemanticResult struct {
	Message  store.Message
	Distance float64
}

// HybridResult is a message with its fused relevance score, larger is
// better.
type HybridResult struct {
	Message store.Message
	Score   float64
}

// Engine answers keyword, semantic and hybrid searches over the vault.
// Semantic search needs an embedding provider; without one those modes
// return an error while keyword search keeps working.
type Engine struct {
	db       *store.DB
	provider embed.Provider
	logger   *zap.Logger
}

// NewEngine creates a search engine. provider may be nil.
func NewEngine(db *store.DB, provider embed.Provider, logger *zap.Logger) *Engine {
	return &Engine{db: db, provider: provider, logger: logger}
}

// Keyword runs a full-text search.
func (e *Engine) Keyword(query string, opts Options) ([]store.SearchResult, error) {
	return e.db.SearchMessages(query, store.SearchOptions{
		ConversationID: opts.ConversationID,
		Since:          opts.Since,
		Until:          opts.Until,
		Limit:          opts.Limit,
	})
}

// Semantic embeds the query and ranks stored vectors by cosine
// distance. The scan is brute force over the candidate window; vaults
// hold one person's history, not the internet.
func (e *Engine) Semantic(ctx context.Context, query string, opts Options) ([]SemanticResult, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("semantic search unavailable: no embedding provider configured")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	vectors, err := e.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qv := vectors[0]

	embedded, err := e.db.EmbeddedMessages(opts.ConversationID, opts.Since, opts.Until)
	if err != nil {
		return nil, err
	}

	results := make([]SemanticResult, 0, len(embedded))
	for _, em := range embedded {
		results = append(results, SemanticResult{
			Message:  em.Message,
			Distance: cosineDistance(qv, em.Vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return messageKeyLess(results[i].Message, results[j].Message)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Hybrid fuses keyword and semantic rankings with reciprocal rank
// fusion: each list contributes 1/(k+rank+1) per message, scores sum
// across lists. A message near the top of either list surfaces; one
// present in both wins.
func (e *Engine) Hybrid(ctx context.Context, query string, opts Options) ([]HybridResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	deep := opts
	deep.Limit = candidateDepth

	keyword, err := e.Keyword(query, deep)
	if err != nil {
		return nil, err
	}
	semantic, err := e.Semantic(ctx, query, deep)
	if err != nil {
		return nil, err
	}

	type key struct{ conv, msg int64 }
	scores := make(map[key]float64)
	messages := make(map[key]store.Message)

	for rank, r := range keyword {
		k := key{r.Message.ConversationID, r.Message.MsgID}
		scores[k] += 1.0 / float64(rrfK+rank+1)
		messages[k] = r.Message
	}
	for rank, r := range semantic {
		k := key{r.Message.ConversationID, r.Message.MsgID}
		scores[k] += 1.0 / float64(rrfK+rank+1)
		messages[k] = r.Message
	}

	results := make([]HybridResult, 0, len(scores))
	for k, score := range scores {
		results = append(results, HybridResult{Message: messages[k], Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return messageKeyLess(results[i].Message, results[j].Message)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosineDistance is 1 - cos(a, b), in [0, 2]. Degenerate inputs (zero
// norm or mismatched dimensions) get the maximum distance instead of
// NaN so they sort last.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

func messageKeyLess(a, b store.Message) bool {
	if a.ConversationID != b.ConversationID {
		return a.ConversationID < b.ConversationID
	}
	return a.MsgID < b.MsgID
}
