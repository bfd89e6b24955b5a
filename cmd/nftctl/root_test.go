package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "nftregistry/internal/jwt_token"
	nftservice "nftregistry/internal/nft/service"
	sqlitestore "nftregistry/internal/nft/store/sqlite"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("NFTREGISTRY_JWT_SIGNING_KEY", "cli-test-key")

	out, err := execute(t, "token", "--account", "alice", "--ttl", "5m")
	require.NoError(t, err)

	token := strings.TrimSpace(out)
	svc := jwttoken.NewJWTService("cli-test-key", "nftregistry", "nftregistry-api")
	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenCommandRequiresAccount(t *testing.T) {
	_, err := execute(t, "token")
	assert.Error(t, err)
}

func TestInspectSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	store, err := sqlitestore.Open(path)
	require.NoError(t, err)
	svc := nftservice.New(store)
	ctx := context.Background()
	nftID, err := svc.Create(ctx, "alice", []byte("hi"), "genesis")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err := execute(t, "--backend", "sqlite", "--sqlite-path", path, "inspect", "nft", nftID.String())
	require.NoError(t, err)
	assert.Contains(t, out, `"owner": "alice"`)
	assert.Contains(t, out, `"series_id": "genesis"`)

	out, err = execute(t, "--backend", "sqlite", "--sqlite-path", path, "inspect", "series", "genesis")
	require.NoError(t, err)
	assert.Contains(t, out, `"nfts": [`)

	_, err = execute(t, "--backend", "sqlite", "--sqlite-path", path, "inspect", "nft", "99")
	assert.Error(t, err)
}

func TestSchemaCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	out, err := execute(t, "--backend", "sqlite", "--sqlite-path", path, "schema")
	require.NoError(t, err)
	assert.Equal(t, "backend=sqlite version=1 dirty=false\n", out)
}
