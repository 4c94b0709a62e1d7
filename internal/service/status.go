package service

import (
	"context"
	"time"

	"hazard-service/internal/dedup"
)

// StatusReporter backs the operator health and status endpoints.
type StatusReporter interface {
	CacheConnected(ctx context.Context) bool
	StoreConnected(ctx context.Context) bool
	CacheStats(ctx context.Context) dedup.Stats
}

type Status struct {
	Healthy        bool        `json:"healthy"`
	CacheConnected bool        `json:"cache_connected"`
	StoreConnected bool        `json:"store_connected"`
	Cache          dedup.Stats `json:"cache"`
	CacheTTL       int64       `json:"cache_ttl_seconds"`
	Subscribers    int         `json:"subscribers"`
	CheckedAt      time.Time   `json:"checked_at"`
}

func (s *HazardService) CacheConnected(ctx context.Context) bool {
	return s.cache.Ping(ctx) == nil
}

func (s *HazardService) StoreConnected(ctx context.Context) bool {
	return s.store.Ping(ctx) == nil
}

func (s *HazardService) CacheStats(ctx context.Context) dedup.Stats {
	return s.cache.Stats(ctx)
}

// Status reports backend reachability. The service stays healthy with the cache down
// because ingestion fails open; a dead store makes it unhealthy.
func (s *HazardService) Status(ctx context.Context) Status {
	st := Status{
		CacheConnected: s.CacheConnected(ctx),
		StoreConnected: s.StoreConnected(ctx),
		Cache:          s.CacheStats(ctx),
		CacheTTL:       int64(s.ttl / time.Second),
		CheckedAt:      s.now().UTC(),
	}
	if s.hub != nil {
		st.Subscribers = s.hub.Count()
	}
	st.Healthy = st.StoreConnected
	return st
}
