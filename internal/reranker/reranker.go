// Package reranker re-scores retrieved documents with an LLM relevance judge.
package reranker

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/gdemerges/bot-ai/internal/llm"
	"github.com/gdemerges/bot-ai/internal/models"
)

// Reranker reorders retrieved documents and keeps the topK best.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []*models.RetrievedDocument, topK int) ([]*models.RetrievedDocument, error)
}

const scoringSystemPrompt = "You are a relevance judge. " +
	"Rate how relevant a document is to a query on a scale from 0 to 10, " +
	"where 0 means completely irrelevant and 10 means perfectly relevant. " +
	"Respond with only the number."

// scoreRe extracts the first integer or decimal from the model's reply.
var scoreRe = regexp.MustCompile(`\d+(\.\d+)?`)

// LLMReranker asks a Generator to score each document against the query.
// Raw 0-10 scores are normalized to [0, 1]; unparseable replies fall back
// to a neutral 0.5 rather than failing the whole query.
type LLMReranker struct {
	generator llm.Generator
	logger    *zap.Logger
}

// NewLLMReranker creates a reranker backed by the given generator.
func NewLLMReranker(generator llm.Generator, logger *zap.Logger) *LLMReranker {
	return &LLMReranker{generator: generator, logger: logger}
}

// Rerank scores every document, sorts by the new score and returns the topK
// best with contiguous 1-based ranks. An empty input returns empty output
// without calling the model.
func (r *LLMReranker) Rerank(ctx context.Context, query string, docs []*models.RetrievedDocument, topK int) ([]*models.RetrievedDocument, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	reranked := make([]*models.RetrievedDocument, len(docs))
	for i, doc := range docs {
		score, err := r.scoreDocument(ctx, query, doc.Content)
		if err != nil {
			return nil, err
		}
		copied := *doc
		copied.Score = score
		reranked[i] = &copied
	}
	sort.SliceStable(reranked, func(i, j int) bool { return reranked[i].Score > reranked[j].Score })
	if topK > 0 && len(reranked) > topK {
		reranked = reranked[:topK]
	}
	for i, doc := range reranked {
		doc.Rank = i + 1
	}
	return reranked, nil
}

func (r *LLMReranker) scoreDocument(ctx context.Context, query, content string) (float64, error) {
	prompt := fmt.Sprintf("Query: %s\n\nDocument: %s\n\nRelevance score (0-10):", query, content)
	reply, err := r.generator.Generate(ctx, scoringSystemPrompt, prompt)
	if err != nil {
		return 0, err
	}
	match := scoreRe.FindString(reply)
	if match == "" {
		r.logger.Warn("unparseable rerank score, using neutral fallback", zap.String("reply", reply))
		return 0.5, nil
	}
	raw, err := strconv.ParseFloat(match, 64)
	if err != nil {
		r.logger.Warn("unparseable rerank score, using neutral fallback", zap.String("reply", reply))
		return 0.5, nil
	}
	score := raw / 10
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

// Noop keeps retrieval order and only truncates to topK. Used when
// reranking is disabled.
type Noop struct{}

// Rerank returns the first topK documents unchanged.
func (Noop) Rerank(ctx context.Context, query string, docs []*models.RetrievedDocument, topK int) ([]*models.RetrievedDocument, error) {
	if topK > 0 && len(docs) > topK {
		docs = docs[:topK]
	}
	return docs, nil
}
