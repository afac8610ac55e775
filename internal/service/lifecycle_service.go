package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/soto-labs/registro-api/internal/models"
	appErrors "github.com/soto-labs/registro-api/pkg/errors"
)

const listingCacheKey = "records:active"

type residentLister interface {
	List(ctx context.Context) ([]models.Resident, error)
}

type visitLifecycleStore interface {
	ListActive(ctx context.Context, now time.Time) ([]models.Visit, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.ExpiredVisit, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type folderDeleter interface {
	Delete(folder string) error
}

type listingCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type sweepObserver interface {
	ObserveSweep(removed int64)
}

// LifecycleService owns expiration semantics: the active listing and the
// cleanup sweep over expired visits.
type LifecycleService struct {
	residents residentLister
	visits    visitLifecycleStore
	folders   folderDeleter
	cache     listingCache
	cacheTTL  time.Duration
	metrics   sweepObserver
	logger    *zap.Logger
	now       func() time.Time
}

// NewLifecycleService constructs the lifecycle service. Cache and metrics
// may be nil.
func NewLifecycleService(residents residentLister, visits visitLifecycleStore, folders folderDeleter, cache listingCache, cacheTTL time.Duration, metrics *MetricsService, logger *zap.Logger) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &LifecycleService{
		residents: residents,
		visits:    visits,
		folders:   folders,
		cacheTTL:  cacheTTL,
		logger:    logger,
		now:       time.Now,
	}
	if cache != nil {
		svc.cache = cache
	}
	if metrics != nil {
		svc.metrics = metrics
	}
	return svc
}

// ListActive returns every resident plus the visits whose expiry is still
// in the future, both newest first. The expiry comparison uses a single
// captured now for the whole listing. A visit expiring exactly at that
// instant is excluded — it is logically deleted even before the sweep
// physically removes it. A cached listing is only invalidated by
// mutations, so a visit whose expiry passes mid-TTL can be served as
// active until the cache entry ages out; staleness is bounded by the
// configured TTL.
func (s *LifecycleService) ListActive(ctx context.Context) (*models.RecordListing, error) {
	if s.cache != nil {
		var cached models.RecordListing
		if err := s.cache.Get(ctx, listingCacheKey, &cached); err == nil {
			return &cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("listing cache read failed", zap.Error(err))
		}
	}

	now := s.now()
	residents, err := s.residents.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list residents")
	}
	visits, err := s.visits.ListActive(ctx, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active visits")
	}

	listing := &models.RecordListing{Residents: residents, Visits: visits}
	if s.cache != nil {
		if err := s.cache.Set(ctx, listingCacheKey, listing, s.cacheTTL); err != nil {
			s.logger.Warn("listing cache write failed", zap.Error(err))
		}
	}
	return listing, nil
}

// Sweep removes every visit whose expiry has passed. Folder deletion is
// best-effort and decoupled from the row delete: a folder that cannot be
// removed is logged and skipped, and its row is still purged, because the
// database is ground truth for listing. Both the candidate read and the
// bulk delete compare against the same captured now, so a long sweep stays
// consistent across the rows it touches.
func (s *LifecycleService) Sweep(ctx context.Context) (int64, error) {
	now := s.now()

	expired, err := s.visits.ListExpired(ctx, now)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expired visits")
	}

	for _, visit := range expired {
		if err := s.folders.Delete(visit.FolderPath); err != nil {
			s.logger.Warn("failed to delete expired visit folder",
				zap.Int64("visit_id", visit.ID),
				zap.String("folder", visit.FolderPath),
				zap.Error(err))
		}
	}

	removed, err := s.visits.DeleteExpired(ctx, now)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete expired visits")
	}

	s.invalidateListing(ctx)
	if s.metrics != nil {
		s.metrics.ObserveSweep(removed)
	}
	if removed > 0 {
		s.logger.Info("expired visits swept", zap.Int64("removed", removed))
	}
	return removed, nil
}

func (s *LifecycleService) invalidateListing(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, listingCacheKey); err != nil {
		s.logger.Warn("listing cache invalidation failed", zap.Error(err))
	}
}
