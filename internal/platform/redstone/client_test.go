package redstone_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/platform/redstone"
)

func newServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prices", r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchValue_Value(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"BTC":{"symbol":"BTC","value":50000.0}}`)
	c := redstone.NewClient(redstone.Config{BaseURL: srv.URL})

	v, err := c.FetchValue(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, v)
}

func TestFetchValue_PriceFallbackAndString(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"ETH":{"price":"3120.5"}}`)
	c := redstone.NewClient(redstone.Config{BaseURL: srv.URL})

	v, err := c.FetchValue(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, 3120.5, v)
}

func TestFetchValue_SendsQueryAndBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SOL", r.URL.Query().Get("symbols"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"SOL":{"value":150}}`))
	}))
	defer srv.Close()

	c := redstone.NewClient(redstone.Config{BaseURL: srv.URL, APIKey: "secret"})
	v, err := c.FetchValue(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, 150.0, v)
}

func TestFetchValue_FeedNotFound(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{}`)
	c := redstone.NewClient(redstone.Config{BaseURL: srv.URL})

	_, err := c.FetchValue(context.Background(), "DOGE")
	assert.ErrorIs(t, err, domain.ErrFeedNotFound)
}

func TestFetchValue_Non2xxIsProviderError(t *testing.T) {
	srv := newServer(t, http.StatusBadGateway, `upstream down`)
	c := redstone.NewClient(redstone.Config{BaseURL: srv.URL})

	_, err := c.FetchValue(context.Background(), "BTC")
	assert.ErrorIs(t, err, domain.ErrProviderError)
}

func TestFetchValue_TimeoutIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"BTC":{"value":1}}`))
	}))
	defer srv.Close()

	c := redstone.NewClient(redstone.Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := c.FetchValue(context.Background(), "BTC")
	assert.ErrorIs(t, err, domain.ErrProviderError)
}

func TestFetchValue_GarbageIsProviderError(t *testing.T) {
	srv := newServer(t, http.StatusOK, `not json`)
	c := redstone.NewClient(redstone.Config{BaseURL: srv.URL})

	_, err := c.FetchValue(context.Background(), "BTC")
	assert.ErrorIs(t, err, domain.ErrProviderError)
}
