// Package retriever turns raw store searches into ranked document lists and
// fuses them with keyword hits for hybrid retrieval.
package retriever

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/gdemerges/bot-ai/internal/keyword"
	"github.com/gdemerges/bot-ai/internal/models"
	"github.com/gdemerges/bot-ai/internal/vectorstore"
)

// Retriever wraps a vector store and an optional keyword index. A nil
// keyword index degrades HybridRetrieve to pure semantic retrieval.
type Retriever struct {
	store          vectorstore.Store
	keywords       *keyword.Index
	topK           int
	scoreThreshold float64
	keywordWeight  float64
	logger         *zap.Logger
}

// New builds a Retriever. scoreThreshold is expressed in the store backend's
// native score units and zero disables it. keywordWeight must be in [0, 1].
func New(store vectorstore.Store, keywords *keyword.Index, topK int, scoreThreshold, keywordWeight float64, logger *zap.Logger) *Retriever {
	return &Retriever{
		store:          store,
		keywords:       keywords,
		topK:           topK,
		scoreThreshold: scoreThreshold,
		keywordWeight:  keywordWeight,
		logger:         logger,
	}
}

// Retrieve runs a semantic search and returns documents with 1-based ranks.
// topK <= 0 falls back to the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.RetrievedDocument, error) {
	if topK <= 0 {
		topK = r.topK
	}
	results, err := r.store.Search(ctx, query, topK, filter)
	if err != nil {
		return nil, err
	}
	docs := make([]*models.RetrievedDocument, 0, len(results))
	for _, res := range results {
		if r.scoreThreshold != 0 && res.Score < r.scoreThreshold {
			continue
		}
		docs = append(docs, &models.RetrievedDocument{
			ChunkID:  res.ChunkID,
			Content:  res.Content,
			Metadata: res.Metadata,
			Score:    res.Score,
			Rank:     len(docs) + 1,
		})
	}
	r.logger.Debug("retrieved documents",
		zap.String("query", query),
		zap.Int("requested", topK),
		zap.Int("returned", len(docs)))
	return docs, nil
}

// HybridRetrieve fuses semantic and keyword scores. Keyword scores are
// normalized by their max into [0, 1] and blended as
// (1-w)*semantic + w*keyword. Semantic search supplies the candidate set, so
// keyword hits act as a re-weighting signal; chunks the vector store does not
// surface are not resurrected from the keyword index alone.
func (r *Retriever) HybridRetrieve(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]*models.RetrievedDocument, error) {
	if topK <= 0 {
		topK = r.topK
	}
	if r.keywords == nil || r.keywordWeight == 0 {
		return r.Retrieve(ctx, query, topK, filter)
	}

	// Over-fetch candidates so fusion can reorder past the final cutoff.
	candidateK := topK * 3
	semantic, err := r.store.Search(ctx, query, candidateK, filter)
	if err != nil {
		return nil, err
	}
	if len(semantic) == 0 {
		return nil, nil
	}
	keywordHits, err := r.keywords.Search(ctx, query, candidateK)
	if err != nil {
		return nil, err
	}
	keywordScores := normalizeKeywordScores(keywordHits)

	type fused struct {
		result *models.SearchResult
		score  float64
	}
	merged := make([]fused, 0, len(semantic))
	for _, res := range semantic {
		if r.scoreThreshold != 0 && res.Score < r.scoreThreshold {
			continue
		}
		score := (1-r.keywordWeight)*res.Score + r.keywordWeight*keywordScores[res.ChunkID]
		merged = append(merged, fused{result: res, score: score})
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].score > merged[j].score })
	if len(merged) > topK {
		merged = merged[:topK]
	}

	docs := make([]*models.RetrievedDocument, len(merged))
	for i, f := range merged {
		docs[i] = &models.RetrievedDocument{
			ChunkID:  f.result.ChunkID,
			Content:  f.result.Content,
			Metadata: f.result.Metadata,
			Score:    f.score,
			Rank:     i + 1,
		}
	}
	r.logger.Debug("hybrid retrieval",
		zap.String("query", query),
		zap.Int("semantic_candidates", len(semantic)),
		zap.Int("keyword_hits", len(keywordHits)),
		zap.Int("returned", len(docs)))
	return docs, nil
}

// normalizeKeywordScores maps Bleve scores to [0, 1] by dividing by the max.
func normalizeKeywordScores(hits []*keyword.Result) map[string]float64 {
	normalized := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return normalized
	}
	maxScore := hits[0].Score
	for _, h := range hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	for _, h := range hits {
		if maxScore > 0 {
			normalized[h.ChunkID] = h.Score / maxScore
		}
	}
	return normalized
}
