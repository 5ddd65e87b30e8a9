package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"medpredict/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

func TestServe_ProxiesAndShutsDown(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"disease":"none","confidence":0.99}`))
	}))
	defer upstream.Close()

	cfg := config.DefaultConfig()
	cfg.Predict.ServiceURL = upstream.URL
	handler, err := buildHandler(cfg, zap.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, &http.Server{Handler: handler}, ln, time.Second, zap.NewNop())
	}()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Post("http://"+ln.Addr().String()+"/api/predict", "application/json",
		strings.NewReader(`{"age":"50","blood_pressure":130,"cholesterol":220,"glucose":"101"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"disease":"none","confidence":0.99}`, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestBuildHandler_BadMode(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Predict.Validation = "strict"
	_, err := buildHandler(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestBuildHandler_BadCAFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Predict.CAFile = filepath.Join(t.TempDir(), "missing.pem")
	_, err := buildHandler(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "predict.ca_file")
}
