package ocapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"storelocator-service/internal/kvstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
}

func (s staticTokens) Token(context.Context) (string, error) {
	return s.token, nil
}

const storePayload = `{
	"id": "store-1",
	"name": "Central Market",
	"address1": "1 Main St",
	"city": "Midtown",
	"postal_code": "1000",
	"state_code": "MD",
	"latitude": 40.0,
	"longitude": -3.0,
	"store_hours": "Mon-Fri 9-18",
	"c_facility_id": "fac-1"
}`

func TestFetchStoreNormalizesKeys(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/s/SiteA/dw/shop/v21_3/stores/store-1", r.URL.Path)
		assert.Equal(t, "client-1", r.Header.Get("x-dw-client-id"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(storePayload))
	}))
	defer server.Close()

	client := NewStoresClient(server.URL, "SiteA", "client-1", staticTokens{token: "tok"}, nil)

	store, err := client.FetchStore(context.Background(), "store-1")
	require.NoError(t, err)

	assert.Equal(t, "store-1", store.ID)
	assert.Equal(t, "1000", store.PostalCode)
	assert.Equal(t, "Mon-Fri 9-18", store.StoreHours)
	assert.Equal(t, "fac-1", store.FacilityID)
	assert.Equal(t, 40.0, store.Latitude)
}

func TestFetchStoreNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewStoresClient(server.URL, "SiteA", "client-1", staticTokens{token: "tok"}, nil)

	_, err := client.FetchStore(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchStoresDefaultDistanceSnapshots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultLatitude, r.URL.Query().Get("latitude"))
		assert.Equal(t, DefaultLongitude, r.URL.Query().Get("longitude"))
		assert.Equal(t, DefaultDistance, r.URL.Query().Get("max_distance"))

		fmt.Fprintf(w, `{"data": [%s]}`, storePayload)
	}))
	defer server.Close()

	kv := kvstore.NewMemory()
	client := NewStoresClient(server.URL, "SiteA", "client-1", staticTokens{token: "tok"}, kv)

	stores, err := client.FetchStores(context.Background(), "", "", "")
	require.NoError(t, err)
	require.Len(t, stores, 1)

	raw, err := kv.Get(context.Background(), kvstore.KeyOriginalStores)
	require.NoError(t, err)

	var snapshot []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &snapshot))
	require.Len(t, snapshot, 1)
	assert.Equal(t, "store-1", snapshot[0]["id"])

	cached, err := client.CachedStores(context.Background())
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "Central Market", cached[0].Name)
}

func TestFetchStoresExplicitDistanceDoesNotSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("max_distance"))
		fmt.Fprintf(w, `{"data": [%s]}`, storePayload)
	}))
	defer server.Close()

	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(context.Background(), kvstore.KeyOriginalStores, `[{"id":"prior"}]`))

	client := NewStoresClient(server.URL, "SiteA", "client-1", staticTokens{token: "tok"}, kv)

	_, err := client.FetchStores(context.Background(), "40.0", "-3.0", "100")
	require.NoError(t, err)

	raw, err := kv.Get(context.Background(), kvstore.KeyOriginalStores)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"prior"}]`, raw)
}

func TestFetchStoresTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewStoresClient(server.URL, "SiteA", "client-1", staticTokens{token: "tok"}, nil)

	_, err := client.FetchStores(context.Background(), "", "", "")
	assert.ErrorIs(t, err, ErrTransport)
}
