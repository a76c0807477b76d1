package tokenstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore"
	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore/storetest"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		ok   bool
	}{
		{"valid", `{"accessToken":"a","refreshToken":"r"}`, true},
		{"extra fields ignored", `{"accessToken":"a","refreshToken":"r","user":{"id":1}}`, true},
		{"empty", ``, false},
		{"not json", `accessToken=a`, false},
		{"truncated", `{"accessToken":"a","refr`, false},
		{"missing refresh", `{"accessToken":"a"}`, false},
		{"missing access", `{"refreshToken":"r"}`, false},
		{"wrong types", `{"accessToken":1,"refreshToken":2}`, false},
		{"null", `null`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tokenstore.Decode([]byte(tt.data))
			require.Equal(t, tt.ok, ok)
		})
	}
}

func TestEncodeRejectsIncomplete(t *testing.T) {
	t.Parallel()

	_, err := tokenstore.Encode(tokenstore.Session{RefreshToken: "r"})
	require.ErrorIs(t, err, tokenstore.ErrIncompleteSession)

	data, err := tokenstore.Encode(tokenstore.Session{AccessToken: "a", RefreshToken: "r"})
	require.NoError(t, err)
	require.JSONEq(t, `{"accessToken":"a","refreshToken":"r"}`, string(data))
}

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) tokenstore.Store {
		return tokenstore.NewMemory()
	})
}

func TestFileStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) tokenstore.Store {
		return tokenstore.NewFile(filepath.Join(t.TempDir(), "nested", "session.json"))
	})
}

func TestFileStoreCorruptRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"accessToken":"a",`), 0o600))

	st := tokenstore.NewFile(path)
	_, ok := st.Read(ctx)
	require.False(t, ok)

	// A fresh write repairs it.
	require.NoError(t, st.Write(ctx, tokenstore.Session{AccessToken: "a", RefreshToken: "r"}))
	got, ok := st.Read(ctx)
	require.True(t, ok)
	require.Equal(t, "a", got.AccessToken)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
