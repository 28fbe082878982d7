package commands

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecodigital/session"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPatentsCommand(t *testing.T) {
	t.Setenv("PATENTS_FILE", "")
	out, err := run(t, "patents")
	require.NoError(t, err)
	assert.Contains(t, out, "name: Lenda EcoDigital")
	assert.Contains(t, out, "min_xp: 1000")

	path := filepath.Join(t.TempDir(), "patents.yaml")
	require.NoError(t, os.WriteFile(path, []byte("patents:\n  - name: Broto\n    min_xp: 0\n  - name: Árvore\n    min_xp: 50\n"), 0o600))
	out, err = run(t, "patents", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "name: Árvore")
	assert.NotContains(t, out, "Lenda")

	_, err = run(t, "patents", "--file", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestServeRejectsUnknownFeedSource(t *testing.T) {
	_, err := run(t, "serve", "--feed-source", "carrier-pigeon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--feed-source")
}

func TestMigrateNeedsDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := run(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestClientLoginPersistsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			_, _ = io.WriteString(w, `{"session":{"access_token":"tok"},"profile":{"id":"u1","full_name":"Ana","role":"employee","requires_password_change":true}}`)
		case "/api/auth/logout":
			w.WriteHeader(http.StatusNoContent)
		case "/api/feed":
			_, _ = io.WriteString(w, `{"items":[{"text":"Ana concluiu a missão \"Reciclar\"","trophy":true,"when":"há 2 min"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	sessionFile := filepath.Join(t.TempDir(), "session.yaml")
	base := []string{"client", "--api", srv.URL, "--session", sessionFile}

	out, err := run(t, append(base, "login", "--email", "ana@acme.com", "--password", "Senha@123")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Olá, Ana!")
	assert.Contains(t, out, "senha provisória")

	st, err := session.Load(sessionFile)
	require.NoError(t, err)
	assert.Equal(t, session.SignedIn, st.Status)
	assert.Equal(t, "tok", st.Tokens.AccessToken)

	out, err = run(t, append(base, "feed")...)
	require.NoError(t, err)
	assert.Equal(t, "🏆 Ana concluiu a missão \"Reciclar\" (há 2 min)\n", out)

	_, err = run(t, append(base, "logout")...)
	require.NoError(t, err)
	_, err = os.Stat(sessionFile)
	assert.True(t, os.IsNotExist(err))

	_, err = run(t, append(base, "feed")...)
	assert.ErrorContains(t, err, "not signed in")
}
