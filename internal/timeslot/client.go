package timeslot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"storelocator-service/internal/kvstore"
	"storelocator-service/internal/models"
	"storelocator-service/internal/util"

	"go.uber.org/zap"
)

var (
	// ErrTransport marks a network failure or non-2xx status from the
	// reservation service or its token endpoint.
	ErrTransport = errors.New("timeslot: transport failure")

	// ErrNotCancelled is returned by CancelSlot when the service answered
	// but the reservation did not reach CANCELLED status. Dependent actions
	// must not proceed.
	ErrNotCancelled = errors.New("timeslot: reservation not cancelled")
)

// searchWindowDays is the fixed availability window starting now.
const searchWindowDays = 20

// Client calls the timeslot reservation service through a CORS-relay proxy:
// client-credentials auth, slot search, soft-reserve, cancel.
//
// When constructed with a KV, the auth token and the per-session reservation
// mirror are persisted there. With a nil KV every call fetches a fresh token
// and nothing is mirrored, at the cost of an extra auth round trip per call.
type Client struct {
	host         string
	corsProxy    string
	authURL      string
	clientID     string
	clientSecret string
	kv           kvstore.KV
	httpClient   *http.Client
	logger       *zap.Logger

	now func() time.Time
}

// NewClient creates a reservation service client.
func NewClient(host, corsProxy, authURL, clientID, clientSecret string, kv kvstore.KV) *Client {
	return &Client{
		host:         host,
		corsProxy:    corsProxy,
		authURL:      authURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		kv:           kv,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		logger:       util.GetLogger(),
		now:          time.Now,
	}
}

// GetAuthToken returns a bearer token for the reservation service. With a KV
// configured, a cached token is reused until its persisted expiry passes; a
// missing or unparseable expiry forces a refresh.
func (c *Client) GetAuthToken(ctx context.Context) (string, error) {
	if c.kv == nil {
		token, _, err := c.fetchAuthToken(ctx)
		return token, err
	}

	expRaw, err := c.kv.Get(ctx, kvstore.KeyAuthExpiry)
	if err == nil {
		exp, parseErr := time.Parse(time.RFC3339, expRaw)
		if parseErr == nil && c.now().Before(exp) {
			if token, tokenErr := c.kv.Get(ctx, kvstore.KeyAuthToken); tokenErr == nil {
				return token, nil
			}
		}
	}

	token, expiresIn, err := c.fetchAuthToken(ctx)
	if err != nil {
		return "", err
	}

	expiry := c.now().Add(time.Duration(expiresIn) * time.Second)
	if err := c.kv.Set(ctx, kvstore.KeyAuthToken, token); err != nil {
		c.logger.Warn("Failed to cache timeslot auth token", zap.Error(err))
	}
	if err := c.kv.Set(ctx, kvstore.KeyAuthExpiry, expiry.Format(time.RFC3339)); err != nil {
		c.logger.Warn("Failed to cache timeslot auth expiry", zap.Error(err))
	}

	return token, nil
}

func (c *Client) fetchAuthToken(ctx context.Context) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Timeslot manager auth request failed", zap.Error(err))
		return "", 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Timeslot manager auth request rejected", zap.Int("status", resp.StatusCode))
		return "", 0, fmt.Errorf("%w: auth endpoint returned %d", ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("%w: read auth response: %v", ErrTransport, err)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", 0, fmt.Errorf("decode auth response: %w", err)
	}

	util.TokenRefreshesTotal.WithLabelValues("timeslot").Inc()
	return tok.AccessToken, tok.ExpiresIn, nil
}

// SearchFirstAvailableSlots searches availability for a facility over a
// fixed 20-day window starting now. The caller selects "first" (index 0);
// an empty list is not an error.
func (c *Client) SearchFirstAvailableSlots(ctx context.Context, facilityID string) ([]models.Slot, error) {
	ctx, span := util.StartSpan(ctx, "TimeslotClient.SearchFirstAvailableSlots")
	defer span.End()

	start := c.now()
	defer func() {
		util.SlotSearchLatency.Observe(time.Since(start).Seconds())
	}()

	body := map[string]string{
		"facilityUuid":  facilityID,
		"startDateTime": start.Format(models.ServiceTimeLayout),
		"endDateTime":   start.AddDate(0, 0, searchWindowDays).Format(models.ServiceTimeLayout),
	}

	raw, err := c.fetch(ctx, "/ias/api/shop/search", body)
	if err != nil {
		return nil, err
	}

	var slots []models.Slot
	if err := util.DecodeCamel(raw, &slots); err != nil {
		return nil, fmt.Errorf("decode slot search: %w", err)
	}
	return slots, nil
}

// SoftReserveSlot places a time-limited hold on a slot. The externalId is
// the current ISO timestamp, unique per attempt; two attempts within the
// same millisecond could collide, a known boundary of the scheme. On
// success the reservation is mirrored in the KV under the session's key.
func (c *Client) SoftReserveSlot(ctx context.Context, usid, slotID string) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "TimeslotClient.SoftReserveSlot")
	defer span.End()

	body := map[string]string{
		"externalId": c.now().UTC().Format("2006-01-02T15:04:05.000Z"),
		"slotId":     slotID,
	}

	raw, err := c.fetch(ctx, "/ias/api/shop/reservation", body)
	if err != nil {
		util.ReservationsFailedTotal.WithLabelValues("reserve_transport").Inc()
		return nil, err
	}

	var reservation models.Reservation
	if err := util.DecodeCamel(raw, &reservation); err != nil {
		return nil, fmt.Errorf("decode reservation: %w", err)
	}

	c.mirror(ctx, usid, raw)
	util.ReservationsCreatedTotal.Inc()

	return &reservation, nil
}

// CancelSlot requests cancellation of a reservation. The mirror is cleared
// on any successful round trip; the CANCELLED status check decides whether
// the cancellation actually took effect.
func (c *Client) CancelSlot(ctx context.Context, usid, reservationID string) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "TimeslotClient.CancelSlot")
	defer span.End()

	raw, err := c.fetch(ctx, fmt.Sprintf("/ias/api/shop/reservation/%s?cancelreq=true", reservationID), nil)
	if err != nil {
		util.ReservationsFailedTotal.WithLabelValues("cancel_transport").Inc()
		return nil, err
	}

	c.clearMirror(ctx, usid)

	var reservation models.Reservation
	if err := util.DecodeCamel(raw, &reservation); err != nil {
		return nil, fmt.Errorf("decode cancel response: %w", err)
	}

	if reservation.Status != models.ReservationStatusCancelled {
		util.ReservationsFailedTotal.WithLabelValues("cancel_rejected").Inc()
		return &reservation, fmt.Errorf("%w: status %q", ErrNotCancelled, reservation.Status)
	}

	util.ReservationsCancelledTotal.Inc()
	return &reservation, nil
}

// MirroredReservation returns the session's cached reservation, or nil when
// none is mirrored.
func (c *Client) MirroredReservation(ctx context.Context, usid string) (*models.Reservation, error) {
	if c.kv == nil {
		return nil, nil
	}

	raw, err := c.kv.Get(ctx, kvstore.SessionKey(kvstore.KeyReservation, usid))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	var reservation models.Reservation
	if err := json.Unmarshal([]byte(raw), &reservation); err != nil {
		return nil, fmt.Errorf("decode mirrored reservation: %w", err)
	}
	return &reservation, nil
}

// ClearMirroredReservation drops the session's cached reservation.
func (c *Client) ClearMirroredReservation(ctx context.Context, usid string) {
	c.clearMirror(ctx, usid)
}

func (c *Client) mirror(ctx context.Context, usid string, raw []byte) {
	if c.kv == nil {
		return
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return
	}
	normalized, err := json.Marshal(util.KeysToCamel(generic))
	if err != nil {
		return
	}

	if err := c.kv.Set(ctx, kvstore.SessionKey(kvstore.KeyReservation, usid), string(normalized)); err != nil {
		c.logger.Warn("Failed to mirror reservation", zap.String("usid", usid), zap.Error(err))
	}
}

func (c *Client) clearMirror(ctx context.Context, usid string) {
	if c.kv == nil {
		return
	}
	if err := c.kv.Set(ctx, kvstore.SessionKey(kvstore.KeyReservation, usid), ""); err != nil {
		c.logger.Warn("Failed to clear reservation mirror", zap.String("usid", usid), zap.Error(err))
	}
}

// fetch builds the proxied request, attaches the bearer token, and returns
// the raw response body. nil body sends an empty JSON object, as the
// cancel endpoint expects.
func (c *Client) fetch(ctx context.Context, endpoint string, body map[string]string) ([]byte, error) {
	token, err := c.GetAuthToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := body
	if payload == nil {
		payload = map[string]string{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	target := c.host + endpoint
	if c.corsProxy != "" {
		target = c.corsProxy + "/" + c.host + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Timeslot manager request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Timeslot manager request rejected",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: %s returned %d", ErrTransport, endpoint, resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	return respBody, nil
}
