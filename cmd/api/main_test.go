package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/caremarket-platform/internal/api/router"
	appconfig "github.com/wolfman30/caremarket-platform/internal/config"
	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

func TestNewServerUsesConfiguredPort(t *testing.T) {
	srv := newServer(&appconfig.Config{Port: "9090"}, http.NotFoundHandler())

	assert.Equal(t, ":9090", srv.Addr)
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
}

func TestServerServesHealthWithoutBackends(t *testing.T) {
	h := router.New(&router.Config{Logger: logging.New("error")})
	ts := httptest.NewServer(newServer(&appconfig.Config{Port: "0"}, h).Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
