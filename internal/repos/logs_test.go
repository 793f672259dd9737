package repos

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogs_PushAndAll(t *testing.T) {
	db := testDB(t)
	r := NewLogsRepo(db, NewSettingsRepo(db, nil))
	r.now = func() time.Time { return time.Unix(1700000000, 0) }

	require.NoError(t, r.Push(LevelError, "upload\nfailed", LogContext{PostID: 10, MappingID: "map_00000001", Extra: "x"}))
	require.NoError(t, r.Push("verbose", "odd level", LogContext{}))

	items, err := r.All()
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, int64(1700000000), items[0].Time)
	assert.Equal(t, LevelError, items[0].Level)
	assert.Equal(t, "upload failed", items[0].Message)
	assert.Equal(t, int64(10), items[0].PostID)
	assert.Equal(t, "map_00000001", items[0].MappingID)
	assert.Equal(t, LevelInfo, items[1].Level)
}

func TestLogs_RingBufferTrimsOldest(t *testing.T) {
	db := testDB(t)
	settings := NewSettingsRepo(db, nil)
	_, err := settings.Update(SettingsPatch{LogsMax: ptr(50)})
	require.NoError(t, err)

	r := NewLogsRepo(db, settings)
	for i := range 55 {
		require.NoError(t, r.Push(LevelInfo, fmt.Sprintf("entry %d", i), LogContext{}))
	}

	items, err := r.All()
	require.NoError(t, err)
	require.Len(t, items, 50)
	assert.Equal(t, "entry 5", items[0].Message)
	assert.Equal(t, "entry 54", items[49].Message)
}

func TestLogs_CountAndClear(t *testing.T) {
	db := testDB(t)
	r := NewLogsRepo(db, NewSettingsRepo(db, nil))

	n, err := r.Count()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, r.Push(LevelInfo, "a", LogContext{}))
	n, err = r.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, r.Clear())
	n, err = r.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}
