package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storelocator-service/internal/geocode"
	"storelocator-service/internal/kvstore"
	"storelocator-service/internal/models"
	"storelocator-service/internal/util"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"go.uber.org/zap"
)

// nearbyDistance is the radius used for the geocoded leg of a search.
const nearbyDistance = "100"

// StoreDirectory is the slice of the directory client the search needs.
type StoreDirectory interface {
	FetchStores(ctx context.Context, lat, long, dist string) ([]models.Store, error)
	CachedStores(ctx context.Context) ([]models.Store, error)
}

// Service combines approximate text matching over the cached store list
// with a geocoded radius fetch, because the commerce API has no free-text
// store search.
type Service struct {
	directory StoreDirectory
	geocoder  geocode.Geocoder
	matcher   *Matcher
	logger    *zap.Logger
}

// NewService creates a search service. geocoder may be nil, degrading to
// text-only matching.
func NewService(directory StoreDirectory, geocoder geocode.Geocoder, matcher *Matcher) *Service {
	return &Service{
		directory: directory,
		geocoder:  geocoder,
		matcher:   matcher,
		logger:    util.GetLogger(),
	}
}

// Search resolves query to a ranked, de-duplicated store list. An empty
// query returns the full snapshot unchanged, the "cleared search" path.
func (s *Service) Search(ctx context.Context, query string) ([]models.Store, error) {
	ctx, span := util.StartSpan(ctx, "SearchService.Search")
	defer span.End()

	start := time.Now()
	defer func() {
		util.StoreSearchLatency.Observe(time.Since(start).Seconds())
	}()

	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if query == "" {
		return snapshot, nil
	}

	results := s.matcher.Rank(query, snapshot)

	if s.geocoder != nil {
		results = s.appendNearby(ctx, query, results)
	}

	return dedupe(results), nil
}

// appendNearby geocodes the query and concatenates the radius matches after
// the text matches. Geocoding failure degrades to text-only results.
func (s *Service) appendNearby(ctx context.Context, query string, results []models.Store) []models.Store {
	point, err := s.geocoder.Geocode(ctx, query)
	if err != nil {
		if !errors.Is(err, geocode.ErrNoResults) {
			s.logger.Warn("Geocode lookup failed", zap.String("query", query), zap.Error(err))
		}
		return results
	}

	lat := strconv.FormatFloat(point.Lat(), 'f', -1, 64)
	long := strconv.FormatFloat(point.Lon(), 'f', -1, 64)

	nearby, err := s.directory.FetchStores(ctx, lat, long, nearbyDistance)
	if err != nil {
		s.logger.Warn("Nearby store fetch failed", zap.String("query", query), zap.Error(err))
		return results
	}

	merged := append(results, nearby...)
	for i := range merged {
		if merged[i].Latitude != 0 || merged[i].Longitude != 0 {
			storePoint := orb.Point{merged[i].Longitude, merged[i].Latitude}
			merged[i].DistanceKm = geo.Distance(point, storePoint) / 1000
		}
	}
	return merged
}

// snapshot returns the cached full store list, fetching it once when no
// default-radius call has populated it yet.
func (s *Service) snapshot(ctx context.Context) ([]models.Store, error) {
	stores, err := s.directory.CachedStores(ctx)
	if err == nil {
		return stores, nil
	}
	if !errors.Is(err, kvstore.ErrNotFound) {
		s.logger.Warn("Cached store snapshot unreadable, refetching", zap.Error(err))
	}

	stores, err = s.directory.FetchStores(ctx, "", "", "")
	if err != nil {
		return nil, fmt.Errorf("refresh store snapshot: %w", err)
	}
	return stores, nil
}

// dedupe removes duplicate store ids, preserving the first occurrence.
func dedupe(stores []models.Store) []models.Store {
	seen := make(map[string]struct{}, len(stores))
	out := stores[:0]
	for _, store := range stores {
		if _, ok := seen[store.ID]; ok {
			continue
		}
		seen[store.ID] = struct{}{}
		out = append(out, store)
	}
	return out
}
