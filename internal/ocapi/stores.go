package ocapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"storelocator-service/internal/kvstore"
	"storelocator-service/internal/models"
	"storelocator-service/internal/util"

	"go.uber.org/zap"
)

var (
	// ErrTransport marks a network failure or non-2xx upstream status. The
	// clients never panic and never hide failures in empty payloads; callers
	// branch on this sentinel.
	ErrTransport = errors.New("ocapi: transport failure")

	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("ocapi: not found")
)

// Default radius query centered so the platform returns the full store list.
// A fetch with these parameters doubles as the snapshot refresh for the
// client-side search fallback.
const (
	DefaultLatitude  = "24.3356791"
	DefaultLongitude = "23.76995359"
	DefaultDistance  = "20000"
)

// StoresClient fetches stores from the commerce API. Responses are
// snake_case on the wire and camelCase-normalized before they reach the
// models.
type StoresClient struct {
	host       string
	siteID     string
	clientID   string
	tokens     TokenProvider
	kv         kvstore.KV
	httpClient *http.Client
	logger     *zap.Logger
}

// NewStoresClient creates a store directory client. kv receives the
// originalStores snapshot; pass nil to disable snapshotting.
func NewStoresClient(host, siteID, clientID string, tokens TokenProvider, kv kvstore.KV) *StoresClient {
	return &StoresClient{
		host:       host,
		siteID:     siteID,
		clientID:   clientID,
		tokens:     tokens,
		kv:         kv,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     util.GetLogger(),
	}
}

// FetchStore retrieves a single store by id.
func (c *StoresClient) FetchStore(ctx context.Context, storeID string) (*models.Store, error) {
	ctx, span := util.StartSpan(ctx, "StoresClient.FetchStore")
	defer span.End()

	endpoint := fmt.Sprintf("%s/s/%s/dw/shop/v21_3/stores/%s", c.host, c.siteID, url.PathEscape(storeID))

	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: store %s", ErrNotFound, storeID)
	}
	if status < 200 || status > 299 {
		c.logger.Warn("GET store request failed", zap.String("store_id", storeID), zap.Int("status", status))
		return nil, fmt.Errorf("%w: stores endpoint returned %d", ErrTransport, status)
	}

	var store models.Store
	if err := util.DecodeCamel(body, &store); err != nil {
		return nil, fmt.Errorf("decode store %s: %w", storeID, err)
	}

	util.StoreFetchesTotal.WithLabelValues("single").Inc()
	return &store, nil
}

// FetchStores retrieves stores within dist of lat/long. Zero-value
// parameters fall back to the full-radius defaults, and a default-radius
// result is snapshotted as originalStores for client-side search.
func (c *StoresClient) FetchStores(ctx context.Context, lat, long, dist string) ([]models.Store, error) {
	ctx, span := util.StartSpan(ctx, "StoresClient.FetchStores")
	defer span.End()

	if lat == "" {
		lat = DefaultLatitude
	}
	if long == "" {
		long = DefaultLongitude
	}
	if dist == "" {
		dist = DefaultDistance
	}

	endpoint := fmt.Sprintf("%s/s/%s/dw/shop/v21_3/stores?latitude=%s&longitude=%s&max_distance=%s",
		c.host, c.siteID, url.QueryEscape(lat), url.QueryEscape(long), url.QueryEscape(dist))

	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		c.logger.Warn("GET all stores request failed", zap.Int("status", status))
		return nil, fmt.Errorf("%w: stores endpoint returned %d", ErrTransport, status)
	}

	var payload struct {
		Data []models.Store `json:"data"`
	}
	if err := util.DecodeCamel(body, &payload); err != nil {
		return nil, fmt.Errorf("decode stores: %w", err)
	}

	util.StoreFetchesTotal.WithLabelValues("radius").Inc()

	if c.kv != nil && dist == DefaultDistance {
		if err := c.snapshot(ctx, payload.Data); err != nil {
			c.logger.Warn("Failed to snapshot original stores", zap.Error(err))
		}
	}

	return payload.Data, nil
}

// CachedStores returns the last full store-list snapshot, or ErrNotFound
// when no default-radius fetch has run yet.
func (c *StoresClient) CachedStores(ctx context.Context) ([]models.Store, error) {
	if c.kv == nil {
		return nil, kvstore.ErrNotFound
	}

	raw, err := c.kv.Get(ctx, kvstore.KeyOriginalStores)
	if err != nil {
		return nil, err
	}

	var stores []models.Store
	if err := json.Unmarshal([]byte(raw), &stores); err != nil {
		return nil, fmt.Errorf("decode cached stores: %w", err)
	}
	return stores, nil
}

func (c *StoresClient) snapshot(ctx context.Context, stores []models.Store) error {
	raw, err := json.Marshal(stores)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, kvstore.KeyOriginalStores, string(raw))
}

func (c *StoresClient) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("commerce token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-dw-client-id", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Commerce API request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	return body, resp.StatusCode, nil
}
