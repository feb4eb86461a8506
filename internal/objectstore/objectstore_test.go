package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"runquest/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_Put(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "http://localhost:8000/proofs/")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "2024/05/abc.png", "image/png", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/proofs/2024/05/abc.png", url)

	got, err := os.ReadFile(filepath.Join(dir, "2024", "05", "abc.png"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))

	_, err = os.Stat(filepath.Join(dir, "2024", "05", "abc.png.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocal_RejectsTraversal(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "http://x")
	require.NoError(t, err)

	for _, key := range []string{"../evil.png", "a/../../evil.png", "", "/abs.png"} {
		_, err := store.Put(context.Background(), key, "image/png", []byte("x"))
		assert.Error(t, err, "key %q", key)
	}
}

func TestSupabase_Put(t *testing.T) {
	var (
		gotPath, gotAuth, gotKey, gotType string
		gotBody                           []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("apikey")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"Key":"proofs/2024/05/abc.png"}`))
	}))
	defer srv.Close()

	store := NewSupabase(srv.URL+"/", "service-key", "")
	url, err := store.Put(context.Background(), "2024/05/abc.png", "image/png", []byte("img"))
	require.NoError(t, err)

	assert.Equal(t, "/storage/v1/object/proofs/2024/05/abc.png", gotPath)
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, "service-key", gotKey)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, "img", string(gotBody))
	assert.Equal(t, srv.URL+"/storage/v1/object/public/proofs/2024/05/abc.png", url)
	assert.NoError(t, store.Close())
}

func TestSupabase_PutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Duplicate"}`))
	}))
	defer srv.Close()

	_, err := NewSupabase(srv.URL, "k", "proofs").Put(context.Background(), "a.png", "image/png", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http=400")
	assert.Contains(t, err.Error(), "Duplicate")
}

func TestNewGCS_MissingCredentials(t *testing.T) {
	_, err := NewGCS(context.Background(), "bucket", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.json")
}

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, config.StorageConfig{Backend: "local", Local: config.LocalStorage{Dir: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)

	s, err = New(ctx, config.StorageConfig{Backend: "supabase", Supabase: config.SupabaseConfig{URL: "http://x", ServiceRoleKey: "k"}})
	require.NoError(t, err)
	assert.IsType(t, &Supabase{}, s)

	_, err = New(ctx, config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)
}
