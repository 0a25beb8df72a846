package seen

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T, user string) *SQLite {
	t.Helper()
	s, err := OpenMemory(user)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStores(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemory(),
		"sqlite": newTestSQLite(t, "alice"),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := s.HasSeen(ctx, KindProject, "p1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.MarkSeen(ctx, KindProject, "p1"))
			require.NoError(t, s.MarkSeen(ctx, KindProject, "p1"))

			ok, err = s.HasSeen(ctx, KindProject, "p1")
			require.NoError(t, err)
			assert.True(t, ok)

			// Kinds are separate namespaces
			ok, err = s.HasSeen(ctx, KindIssue, "p1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestSQLite_ScopedPerUser(t *testing.T) {
	ctx := context.Background()
	alice := newTestSQLite(t, "alice")
	bob := alice.ForUser("bob")

	require.NoError(t, alice.MarkSeen(ctx, KindIssue, "i1"))

	ok, err := bob.HasSeen(ctx, KindIssue, "i1")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestSQLite_PersistsAcrossReopen verifies markers survive a restart
func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "seen.db")

	s, err := Open(path, "alice")
	require.NoError(t, err)
	require.NoError(t, s.MarkSeen(ctx, KindProject, "p1"))
	require.NoError(t, s.Close())

	s2, err := Open(path, "alice")
	require.NoError(t, err)
	defer s2.Close()

	ok, err := s2.HasSeen(ctx, KindProject, "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	var version int
	require.NoError(t, s2.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentVersion, version)
}
