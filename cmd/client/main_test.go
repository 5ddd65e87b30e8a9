package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medpredict/internal/session"
)

// run executes the CLI against a private storage dir and returns stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MEDPREDICT_STORAGE_DIR", dir)
	t.Setenv("MEDPREDICT_STORAGE_BACKEND", "")
	t.Setenv("MEDPREDICT_JWT_SECRET", "")
	t.Setenv("MEDPREDICT_SERVER_URL", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", filepath.Join(dir, "none.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestLoginStatusLogout(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated: false")

	_, err = run(t, dir, "login", "--token", "abc")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, session.TokenKey))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	// a fresh process rehydrates from disk
	out, err = run(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated: true")

	out, err = run(t, dir, "logout", "--path", "/diabetes")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")
	assert.Contains(t, out, "Redirect: /")
	_, err = os.Stat(filepath.Join(dir, session.TokenKey))
	assert.True(t, os.IsNotExist(err))

	out, err = run(t, dir, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Already logged out.")

	out, err = run(t, dir, "status", "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "verification: unauthenticated")
}

func TestLogin_RequiresToken(t *testing.T) {
	_, err := run(t, t.TempDir(), "login")
	assert.Error(t, err)

	_, err = run(t, t.TempDir(), "login", "--token", "  ")
	assert.Error(t, err)
}

func TestNav(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "nav")
	require.NoError(t, err)
	assert.Contains(t, out, "Login")
	assert.Contains(t, out, "Register")

	_, err = run(t, dir, "login", "--token", "abc")
	require.NoError(t, err)

	out, err = run(t, dir, "nav")
	require.NoError(t, err)
	assert.Contains(t, out, "Logout")

	out, err = run(t, dir, "nav", "--path", "/login")
	require.NoError(t, err)
	assert.NotContains(t, out, "Logout")

	out, err = run(t, dir, "nav", "--back")
	require.NoError(t, err)
	assert.Contains(t, out, "Back to Home")
}

func TestNav_WatchUnwatchableBackend(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEDPREDICT_STORAGE_DIR", dir)
	t.Setenv("MEDPREDICT_STORAGE_BACKEND", "memory")
	t.Setenv("MEDPREDICT_JWT_SECRET", "")
	t.Setenv("MEDPREDICT_SERVER_URL", "")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(dir, "none.yaml"), "nav", "--watch"})
	err := cmd.Execute()
	assert.ErrorIs(t, err, session.ErrNotWatchable)
	assert.ErrorContains(t, err, `"memory"`)
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "none.yaml")

	out, err := run(t, dir, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "service_url")

	_, err = run(t, dir, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, dir, "config", "init", "--force")
	assert.NoError(t, err)
}

func TestPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/predict" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"disease":"diabetes","confidence":0.8}`))
	}))
	defer srv.Close()

	out, err := run(t, t.TempDir(), "predict", "--server", srv.URL,
		"--age", "50", "--blood-pressure", "130", "--cholesterol", "220", "--glucose", "140")
	require.NoError(t, err)
	assert.Contains(t, out, "disease: diabetes")
	assert.Contains(t, out, "confidence: 80.0%")
}

func TestPredict_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Missing required fields"}`))
	}))
	defer srv.Close()

	_, err := run(t, t.TempDir(), "predict", "--server", srv.URL,
		"--age", "50", "--blood-pressure", "130", "--cholesterol", "220", "--glucose", "140")
	assert.EqualError(t, err, "Missing required fields")
}

func TestPrintResult_UnknownShape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, []byte(`{"label":"x"}`)))
	assert.Equal(t, "{\"label\":\"x\"}\n", buf.String())
}
