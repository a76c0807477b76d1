// Package storetest holds the behaviour every tokenstore backend must share.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore"
	"github.com/stretchr/testify/require"
)

// Run exercises a backend. newStore must return an empty store each call.
func Run(t *testing.T, newStore func(t *testing.T) tokenstore.Store) {
	t.Helper()

	ctx := context.Background()

	t.Run("empty store reads as absent", func(t *testing.T) {
		st := newStore(t)

		s, ok := st.Read(ctx)
		require.False(t, ok)
		require.Equal(t, tokenstore.Session{}, s)
	})

	t.Run("round trip preserves tokens byte for byte", func(t *testing.T) {
		st := newStore(t)
		want := tokenstore.Session{
			AccessToken:  "eyJhbGciOiJFZERTQSJ9.eyJzdWIiOiJ1MSJ9." + strings.Repeat("x_-", 200),
			RefreshToken: `r/+=="quoted"é`,
		}

		require.NoError(t, st.Write(ctx, want))

		got, ok := st.Read(ctx)
		require.True(t, ok)
		require.Equal(t, want, got)
	})

	t.Run("write replaces the whole record", func(t *testing.T) {
		st := newStore(t)

		require.NoError(t, st.Write(ctx, tokenstore.Session{AccessToken: "a1", RefreshToken: "r1"}))
		require.NoError(t, st.Write(ctx, tokenstore.Session{AccessToken: "a2", RefreshToken: "r2"}))

		got, ok := st.Read(ctx)
		require.True(t, ok)
		require.Equal(t, tokenstore.Session{AccessToken: "a2", RefreshToken: "r2"}, got)
	})

	t.Run("incomplete session is rejected", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Write(ctx, tokenstore.Session{AccessToken: "a1", RefreshToken: "r1"}))

		err := st.Write(ctx, tokenstore.Session{AccessToken: "only-access"})
		require.ErrorIs(t, err, tokenstore.ErrIncompleteSession)

		got, ok := st.Read(ctx)
		require.True(t, ok)
		require.Equal(t, "a1", got.AccessToken)
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Write(ctx, tokenstore.Session{AccessToken: "a", RefreshToken: "r"}))

		require.NoError(t, st.Clear(ctx))
		_, ok := st.Read(ctx)
		require.False(t, ok)

		require.NoError(t, st.Clear(ctx))
	})

	t.Run("readers never see a mixed record", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Write(ctx, tokenstore.Session{AccessToken: "a-0", RefreshToken: "r-0"}))

		var wg sync.WaitGroup
		errs := make(chan error, 64)

		for w := range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range 25 {
					n := w*100 + i
					s := tokenstore.Session{
						AccessToken:  fmt.Sprintf("a-%d", n),
						RefreshToken: fmt.Sprintf("r-%d", n),
					}
					if err := st.Write(ctx, s); err != nil {
						errs <- err
						return
					}
				}
			}()
		}

		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 50 {
					s, ok := st.Read(ctx)
					if !ok {
						errs <- fmt.Errorf("record vanished during writes")
						return
					}
					if strings.TrimPrefix(s.AccessToken, "a-") != strings.TrimPrefix(s.RefreshToken, "r-") {
						errs <- fmt.Errorf("mixed record %+v", s)
						return
					}
				}
			}()
		}

		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
	})
}
