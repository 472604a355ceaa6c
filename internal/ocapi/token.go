package ocapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"storelocator-service/internal/util"

	"go.uber.org/zap"
)

// TokenProvider supplies a currently valid bearer token for the commerce
// API, waiting if a refresh is in flight.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// ClientCredentialsProvider fetches tokens with the OAuth client-credentials
// grant and caches them in memory until shortly before expiry. A single
// mutex serializes refreshes so concurrent callers share one round trip.
type ClientCredentialsProvider struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewClientCredentialsProvider creates a token provider for the commerce API.
func NewClientCredentialsProvider(tokenURL, clientID, clientSecret string) *ClientCredentialsProvider {
	return &ClientCredentialsProvider{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		logger:       util.GetLogger(),
	}
}

// Token returns a valid bearer token, refreshing it when the cached one is
// missing or within a minute of expiring.
func (p *ClientCredentialsProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Add(time.Minute).Before(p.expiry) {
		return p.token, nil
	}

	token, expiresIn, err := p.fetch(ctx)
	if err != nil {
		return "", err
	}

	p.token = token
	p.expiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
	util.TokenRefreshesTotal.WithLabelValues("ocapi").Inc()

	return p.token, nil
}

func (p *ClientCredentialsProvider) fetch(ctx context.Context) (string, int, error) {
	form := url.Values{"grant_type": {"client_credentials"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.clientID, p.clientSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("Commerce API token request failed", zap.Error(err))
		return "", 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.Warn("Commerce API token request rejected", zap.Int("status", resp.StatusCode))
		return "", 0, fmt.Errorf("%w: token endpoint returned %d", ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("%w: read token response: %v", ErrTransport, err)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}

	return tok.AccessToken, tok.ExpiresIn, nil
}
