package repos

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/investblog/cloudflare-images-sync/internal/state"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *state.State {
	t.Helper()
	s, err := state.LoadAt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

// scrypt is slow on purpose; derive the test cipher once.
var (
	cipherOnce   sync.Once
	sharedCipher *TokenCipher
	cipherErr    error
)

func testCipher(t *testing.T) *TokenCipher {
	t.Helper()
	cipherOnce.Do(func() {
		sharedCipher, cipherErr = NewTokenCipher("test-secret-key-0123456789")
	})
	require.NoError(t, cipherErr)

	return sharedCipher
}
