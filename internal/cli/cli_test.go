package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finscope/internal/cli"
	"finscope/internal/domain"
	"finscope/internal/httpapi"
	"finscope/internal/menu"
	"finscope/internal/provider/providertest"
	"finscope/internal/store"
)

// isolate points configuration and storage at a temporary directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FINSCOPE_CONFIG", filepath.Join(dir, "missing.yaml"))
	t.Setenv("DATA_DIR", dir)
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("FINSCOPE_PREFS_PATH", "")
	t.Setenv("FINSCOPE_REMOTE_URL", "")
	t.Setenv("FINSCOPE_POLICY", "")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMenuPrintsDefaultEntries(t *testing.T) {
	isolate(t)

	out, err := execute(t, "menu")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	for _, it := range menu.DefaultOrder {
		assert.Contains(t, out, string(it))
	}

	out, err = execute(t, "menu", "--json")
	require.NoError(t, err)
	var entries []menu.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, len(menu.DefaultOrder))
	assert.Equal(t, menu.Dashboard, entries[0].Item)
}

func TestFetchRejectsUnknownOperation(t *testing.T) {
	isolate(t)

	_, err := execute(t, "fetch", "bogus", "GME")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown operation "bogus"`)

	_, err = execute(t, "fetch", "security")
	require.Error(t, err)
}

func TestFetchRemoteSecurity(t *testing.T) {
	isolate(t)
	fake := providertest.New()
	fake.AddSecurity(domain.Security{Symbol: "GME", Name: "GameStop Corp.", Exchange: "NYSE"})
	srv := httptest.NewServer(httpapi.New(fake, nil, nil, httpapi.Options{Logger: slog.New(slog.DiscardHandler)}).Handler())
	t.Cleanup(srv.Close)
	t.Setenv("FINSCOPE_REMOTE_URL", srv.URL)

	out, err := execute(t, "fetch", "security", "gme", "--remote")
	require.NoError(t, err)
	var sec domain.Security
	require.NoError(t, json.Unmarshal([]byte(out), &sec))
	assert.Equal(t, "GME", sec.Symbol)
	assert.Equal(t, "GameStop Corp.", sec.Name)

	_, err = execute(t, "fetch", "security", "NOPE", "--remote")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserCreateAndList(t *testing.T) {
	dir := isolate(t)

	out, err := execute(t, "user", "create", "--username", "alice", "--email", "alice@example.com", "--password", "s3cret")
	require.NoError(t, err)
	var u domain.User
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	assert.Equal(t, "alice", u.Username)
	assert.NotZero(t, u.ID)
	assert.FileExists(t, filepath.Join(dir, "finscope.db"))

	out, err = execute(t, "user", "list")
	require.NoError(t, err)
	var users []domain.User
	require.NoError(t, json.Unmarshal([]byte(out), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "alice@example.com", users[0].Email)

	_, err = execute(t, "user", "create", "--username", "bob", "--email", "not-an-email", "--password", "x")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = execute(t, "user", "create", "--username", "carol")
	require.Error(t, err)
}

func TestUserVerify(t *testing.T) {
	isolate(t)

	out, err := execute(t, "user", "create", "--username", "alice", "--email", "alice@example.com", "--password", "s3cret")
	require.NoError(t, err)
	var u domain.User
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	id := fmt.Sprint(u.ID)

	out, err = execute(t, "user", "verify", "--id", id, "--password", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	_, err = execute(t, "user", "verify", "--id", id, "--password", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password does not match")

	_, err = execute(t, "user", "verify", "--id", "999", "--password", "s3cret")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCallsListsNewestFirst(t *testing.T) {
	dir := isolate(t)

	out, err := execute(t, "calls")
	require.NoError(t, err)
	assert.Contains(t, out, "PROVIDER")
	assert.NotContains(t, out, "alpaca")

	st, err := store.NewSQLiteStore(filepath.Join(dir, "finscope.db"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.LogAPICall(ctx, domain.APICall{Provider: "alpaca", Endpoint: "assets", StatusCode: 200, Success: true}))
	require.NoError(t, st.LogAPICall(ctx, domain.APICall{Provider: "sec", Endpoint: "ftd", ErrorMessage: "connection refused"}))
	require.NoError(t, st.Close())

	out, err = execute(t, "calls")
	require.NoError(t, err)
	secAt := bytes.Index([]byte(out), []byte("sec"))
	alpacaAt := bytes.Index([]byte(out), []byte("alpaca"))
	require.Positive(t, secAt)
	require.Positive(t, alpacaAt)
	assert.Less(t, secAt, alpacaAt)
	assert.Contains(t, out, "connection refused")

	out, err = execute(t, "calls", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "sec")
	assert.NotContains(t, out, "alpaca")

	_, err = execute(t, "calls", "--limit", "0")
	require.Error(t, err)
}
