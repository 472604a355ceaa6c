package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"storelocator-service/internal/util"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// ErrNoResults is returned when the query resolves to no coordinate.
var ErrNoResults = errors.New("geocode: no results")

// Geocoder maps free text to a coordinate. The most relevant result wins.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (orb.Point, error)
}

// HTTPClient is a Nominatim-style geocoder.
type HTTPClient struct {
	host       string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient creates a geocoding client against host.
func NewHTTPClient(host string) *HTTPClient {
	return &HTTPClient{
		host:       host,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     util.GetLogger(),
	}
}

// Geocode resolves query to the first (most relevant) coordinate.
func (c *HTTPClient) Geocode(ctx context.Context, query string) (orb.Point, error) {
	ctx, span := util.StartSpan(ctx, "Geocoder.Geocode")
	defer span.End()

	endpoint := fmt.Sprintf("%s/search?format=json&limit=1&q=%s", c.host, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return orb.Point{}, fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Geocode request failed", zap.String("query", query), zap.Error(err))
		return orb.Point{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return orb.Point{}, fmt.Errorf("geocode endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return orb.Point{}, fmt.Errorf("read geocode response: %w", err)
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		return orb.Point{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(results) == 0 {
		return orb.Point{}, ErrNoResults
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("parse geocode latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("parse geocode longitude: %w", err)
	}

	return orb.Point{lon, lat}, nil
}
