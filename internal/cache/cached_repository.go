package cache

import (
	"context"
	"errors"
	"log/slog"

	"github.com/welldanyogia/webrana-confchat/internal/metrics"
	"github.com/welldanyogia/webrana-confchat/internal/models"
	"github.com/welldanyogia/webrana-confchat/internal/repository"
)

// CachedPaperRepository serves paper reads from a PaperCache and falls back
// to the wrapped repository. Cache failures never fail the read.
type CachedPaperRepository struct {
	repository.PaperRepository
	cache   PaperCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCachedPaperRepository wraps repo with cache
func NewCachedPaperRepository(repo repository.PaperRepository, cache PaperCache, m *metrics.Metrics, logger *slog.Logger) *CachedPaperRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedPaperRepository{
		PaperRepository: repo,
		cache:           cache,
		metrics:         m,
		logger:          logger,
	}
}

// GetByID returns a paper, consulting the cache first
func (r *CachedPaperRepository) GetByID(ctx context.Context, id string) (*models.Paper, error) {
	paper, err := r.cache.Get(ctx, id)
	if err == nil {
		r.metrics.ObserveCache(true)
		return paper, nil
	}
	if !errors.Is(err, ErrMiss) {
		r.logger.Warn("paper cache read failed", slog.String("paper_id", id), slog.String("error", err.Error()))
	}
	r.metrics.ObserveCache(false)

	paper, err = r.PaperRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, paper); err != nil {
		r.logger.Warn("paper cache write failed", slog.String("paper_id", id), slog.String("error", err.Error()))
	}
	return paper, nil
}
