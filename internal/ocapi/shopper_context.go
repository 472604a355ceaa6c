package ocapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"storelocator-service/internal/models"
	"storelocator-service/internal/util"

	"go.uber.org/zap"
)

// ShopperContextClient reads and writes the per-session shopper context,
// whose STORE assignment qualifier persists the selected store.
type ShopperContextClient struct {
	host       string
	siteID     string
	tokens     TokenProvider
	httpClient *http.Client
	logger     *zap.Logger
}

// NewShopperContextClient creates a shopper-context client.
func NewShopperContextClient(host, siteID string, tokens TokenProvider) *ShopperContextClient {
	return &ShopperContextClient{
		host:       host,
		siteID:     siteID,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     util.GetLogger(),
	}
}

// Get fetches the shopper context for usid. Returns ErrNotFound when the
// session has no context yet.
func (c *ShopperContextClient) Get(ctx context.Context, usid string) (*models.ShopperContext, error) {
	ctx, span := util.StartSpan(ctx, "ShopperContextClient.Get")
	defer span.End()

	body, status, err := c.do(ctx, http.MethodGet, c.endpoint(usid), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: shopper context for %s", ErrNotFound, usid)
	}
	if status < 200 || status > 299 {
		c.logger.Warn("GET shopper context failed", zap.String("usid", usid), zap.Int("status", status))
		return nil, fmt.Errorf("%w: shopper context endpoint returned %d", ErrTransport, status)
	}

	var sc models.ShopperContext
	if err := util.DecodeCamel(body, &sc); err != nil {
		return nil, fmt.Errorf("decode shopper context: %w", err)
	}
	return &sc, nil
}

// Create creates a shopper context with the given STORE qualifier (empty
// string for none).
func (c *ShopperContextClient) Create(ctx context.Context, usid, storeID string) error {
	ctx, span := util.StartSpan(ctx, "ShopperContextClient.Create")
	defer span.End()

	return c.write(ctx, http.MethodPost, usid, storeID)
}

// Update overwrites the STORE qualifier for usid.
func (c *ShopperContextClient) Update(ctx context.Context, usid, storeID string) error {
	ctx, span := util.StartSpan(ctx, "ShopperContextClient.Update")
	defer span.End()

	return c.write(ctx, http.MethodPatch, usid, storeID)
}

func (c *ShopperContextClient) write(ctx context.Context, method, usid, storeID string) error {
	payload := models.ShopperContext{
		AssignmentQualifiers: models.AssignmentQualifiers{Store: storeID},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode shopper context: %w", err)
	}

	_, status, err := c.do(ctx, method, c.endpoint(usid), raw)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		c.logger.Warn("Shopper context write failed",
			zap.String("usid", usid),
			zap.String("method", method),
			zap.Int("status", status))
		return fmt.Errorf("%w: shopper context endpoint returned %d", ErrTransport, status)
	}
	return nil
}

func (c *ShopperContextClient) endpoint(usid string) string {
	return fmt.Sprintf("%s/shopper-context/%s?siteId=%s", c.host, url.PathEscape(usid), url.QueryEscape(c.siteID))
}

func (c *ShopperContextClient) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, int, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("commerce token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Shopper context request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	return respBody, resp.StatusCode, nil
}
