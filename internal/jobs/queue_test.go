package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/investblog/cloudflare-images-sync/internal/imagesync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Enqueue(t *testing.T) {
	q := NewQueue(testDB(t))
	require.True(t, q.Available())

	args := imagesync.SyncSingleArgs{PostID: 7, MappingID: "map_00000001"}
	require.NoError(t, q.Enqueue(context.Background(), imagesync.HookSyncSingle, args))
	require.NoError(t, q.Enqueue(context.Background(), HookBulkSync, BulkArgs{MappingID: "map_00000001"}))

	pending, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)

	j := pending[0]
	assert.Equal(t, imagesync.HookSyncSingle, j.Hook)
	assert.Equal(t, imagesync.QueueGroup, j.Group)
	assert.Len(t, j.ID, 36)
	assert.NotZero(t, j.CreatedAt)

	var got imagesync.SyncSingleArgs
	require.NoError(t, json.Unmarshal(j.Args, &got))
	assert.Equal(t, args, got)

	assert.NotEqual(t, pending[0].ID, pending[1].ID)
}

func TestQueue_Unavailable(t *testing.T) {
	var q *Queue
	assert.False(t, q.Available())
	assert.False(t, NewQueue(nil).Available())
}

func TestQueue_EnqueueCancelled(t *testing.T) {
	q := NewQueue(testDB(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, q.Enqueue(ctx, HookBulkSync, BulkArgs{}), context.Canceled)
}
