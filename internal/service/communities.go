// communities.go — бизнес-логика сообществ.
// Чтение сообществ идёт через in-memory LRU-кэш с TTL
// (обёртка над hashicorp/golang-lru/v2/expirable).
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dkopylov/modvault/internal/domain/model"
	"github.com/dkopylov/modvault/internal/repository"
)

// Prometheus-метрики кэша сообществ.
var (
	communityCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mv_community_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш сообществ.",
	})
	communityCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mv_community_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша сообществ.",
	})
)

// CommunityService — сервис чтения сообществ с per-instance LRU-кэшем.
type CommunityService struct {
	communities repository.CommunityRepository
	cache       *expirable.LRU[string, *model.Community]
	logger      *slog.Logger
}

// NewCommunityService создаёт сервис сообществ.
// cacheSize — максимальное количество записей в кэше, ttl — время жизни записи.
func NewCommunityService(communities repository.CommunityRepository, cacheSize int, ttl time.Duration, logger *slog.Logger) *CommunityService {
	return &CommunityService{
		communities: communities,
		cache:       expirable.NewLRU[string, *model.Community](cacheSize, nil, ttl),
		logger:      logger.With(slog.String("component", "communities")),
	}
}

// Get возвращает сообщество по внешнему идентификатору.
// Unlisted-сообщества возвращаются наравне с listed: прямые ссылки работают.
func (s *CommunityService) Get(ctx context.Context, identifier string) (*model.Community, error) {
	if c, ok := s.cache.Get(identifier); ok {
		communityCacheHitsTotal.Inc()
		return c, nil
	}
	communityCacheMissesTotal.Inc()

	c, err := s.communities.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.cache.Add(identifier, c)
	return c, nil
}

// List возвращает listed-сообщества постранично. Кэш не используется:
// списки запрашиваются редко и должны отражать актуальный is_listed.
func (s *CommunityService) List(ctx context.Context, limit, offset int) ([]*model.Community, error) {
	return s.communities.List(ctx, limit, offset)
}
