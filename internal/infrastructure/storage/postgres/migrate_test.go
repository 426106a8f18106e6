package postgres

import (
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationSource_VersionsArePairedAndConsecutive(t *testing.T) {
	src, err := MigrationSource()
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var versions []uint
	for {
		versions = append(versions, version)

		up, name, err := src.ReadUp(version)
		require.NoError(t, err, "version %d has no up migration", version)
		body, err := io.ReadAll(up)
		require.NoError(t, err)
		up.Close()
		assert.NotEmpty(t, strings.TrimSpace(string(body)), name)

		down, _, err := src.ReadDown(version)
		require.NoError(t, err, "version %d has no down migration", version)
		down.Close()

		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, version+1, next, "gap after version %d", version)
		version = next
	}

	assert.Equal(t, []uint{1, 2, 3, 4}, versions)
}

func TestMigrationSource_TablesFollowDependencies(t *testing.T) {
	src, err := MigrationSource()
	require.NoError(t, err)
	defer src.Close()

	created := map[string]uint{}
	for _, v := range []uint{1, 2, 3, 4} {
		up, _, err := src.ReadUp(v)
		require.NoError(t, err)
		body, err := io.ReadAll(up)
		require.NoError(t, err)
		up.Close()

		for _, line := range strings.Split(string(body), "\n") {
			if rest, ok := strings.CutPrefix(line, "CREATE TABLE IF NOT EXISTS "); ok {
				created[strings.Fields(rest)[0]] = v
			}
			if _, ref, ok := strings.Cut(line, "REFERENCES "); ok {
				table := strings.Fields(ref)[0]
				at, seen := created[table]
				require.True(t, seen, "version %d references %s before it exists", v, table)
				assert.LessOrEqual(t, at, v)
			}
		}
	}

	for _, table := range []string{"cat_stores", "reg_stocks", "doc_purchases", "doc_receipts", "sys_outbox", "sys_audit"} {
		assert.Contains(t, created, table)
	}
}
