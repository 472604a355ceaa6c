package search

import (
	"testing"

	"storelocator-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixtureStores = []models.Store{
	{ID: "north-mart", Name: "North Mart", City: "Northville"},
	{ID: "central-market", Name: "Central Market", City: "Midtown"},
	{ID: "harbor-foods", Name: "Harbor Foods", City: "Portside"},
}

func TestRankSingleCharacterTypo(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig)

	ranked := m.Rank("Cental", fixtureStores)

	require.NotEmpty(t, ranked)
	assert.Equal(t, "Central Market", ranked[0].Name)

	for _, store := range ranked {
		assert.NotEqual(t, "Harbor Foods", store.Name)
	}
}

func TestRankPrefixTyping(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig)

	ranked := m.Rank("Cent", fixtureStores)

	require.NotEmpty(t, ranked)
	assert.Equal(t, "Central Market", ranked[0].Name)
}

func TestRankCaseInsensitive(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig)

	ranked := m.Rank("nOrTh mArT", fixtureStores)

	require.NotEmpty(t, ranked)
	assert.Equal(t, "North Mart", ranked[0].Name)
}

func TestRankMatchesOnID(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig)

	ranked := m.Rank("harbor-foods", fixtureStores)

	require.Len(t, ranked, 1)
	assert.Equal(t, "Harbor Foods", ranked[0].Name)
}

func TestRankEmptyQuery(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig)

	assert.Empty(t, m.Rank("", fixtureStores))
	assert.Empty(t, m.Rank("   ", fixtureStores))
}

func TestRankNoMatchBeyondDistance(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig)

	assert.Empty(t, m.Rank("zzzzzzzz", fixtureStores))
}

func TestRankStableTieOrder(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig)

	stores := []models.Store{
		{ID: "a", Name: "Depot One", City: "Depot"},
		{ID: "b", Name: "Depot Two", City: "Depot"},
	}

	ranked := m.Rank("Depot", stores)

	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].ID)
	assert.Equal(t, "b", ranked[1].ID)
}
