package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	cfierrors "github.com/investblog/cloudflare-images-sync/internal/errors"
	"github.com/investblog/cloudflare-images-sync/internal/imagesync"
	"github.com/investblog/cloudflare-images-sync/internal/models"
	"github.com/investblog/cloudflare-images-sync/internal/repos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Process ---

func TestBulk_ProcessFullChunkContinues(t *testing.T) {
	db := testDB(t)
	m := seedProducts(t, db, 5)
	syncer := &fakeSyncer{}
	q := NewQueue(db)
	b := NewBulk(repos.NewMappingsRepo(db), db, syncer, q, testLogger())

	res, err := b.Process(context.Background(), m.ID, 0, 2)
	require.NoError(t, err)

	assert.Equal(t, ChunkResult{MappingID: m.ID, Processed: 2, OK: 2, Continued: true, NextOffset: 2}, res)
	assert.Equal(t, []int64{1, 2}, syncer.postIDs())

	pending, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	var next BulkArgs
	require.NoError(t, json.Unmarshal(pending[0].Args, &next))
	assert.Equal(t, BulkArgs{MappingID: m.ID, Offset: 2, ChunkSize: 2}, next)
}

func TestBulk_ProcessShortChunkStops(t *testing.T) {
	db := testDB(t)
	m := seedProducts(t, db, 5)
	syncer := &fakeSyncer{fail: map[int64]error{5: errors.New("boom")}}
	q := NewQueue(db)
	b := NewBulk(repos.NewMappingsRepo(db), db, syncer, q, testLogger())

	res, err := b.Process(context.Background(), m.ID, 4, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.OK)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, res.Continued)

	pending, err := q.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestBulk_ProcessHonorsStatusFilter(t *testing.T) {
	db := testDB(t)
	m := seedProducts(t, db, 3)
	require.NoError(t, db.PutPost(models.Post{ID: 2, Type: "product", Status: "draft"}))

	m.Status = models.StatusPublish
	_, err := repos.NewMappingsRepo(db).Update(m.ID, m)
	require.NoError(t, err)

	syncer := &fakeSyncer{}
	b := NewBulk(repos.NewMappingsRepo(db), db, syncer, nil, testLogger())

	res, err := b.Process(context.Background(), m.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, syncer.postIDs())
	assert.False(t, res.Continued)
}

func TestBulk_ProcessRejectsBadMapping(t *testing.T) {
	db := testDB(t)
	b := NewBulk(repos.NewMappingsRepo(db), db, &fakeSyncer{}, nil, testLogger())

	_, err := b.Process(context.Background(), "map_../../x", 0, 20)
	assert.ErrorIs(t, err, cfierrors.ErrInvalidMapping)

	_, err = b.Process(context.Background(), "map_00000000", 0, 20)
	assert.ErrorIs(t, err, cfierrors.ErrMappingNotFound)
}

func TestBulk_SyncPostsStopsOnCancel(t *testing.T) {
	db := testDB(t)
	m := seedProducts(t, db, 1)
	syncer := &fakeSyncer{}
	b := NewBulk(repos.NewMappingsRepo(db), db, syncer, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, failed := b.SyncPosts(ctx, m, []int64{1, 2, 3})
	assert.Zero(t, ok)
	assert.Zero(t, failed)
	assert.Empty(t, syncer.postIDs())
}

func TestBulk_SyncPostsResetsGuardPerPost(t *testing.T) {
	db := testDB(t)
	m := seedProducts(t, db, 1)
	syncer := &fakeSyncer{}
	b := NewBulk(repos.NewMappingsRepo(db), db, syncer, nil, testLogger())

	ok, failed := b.SyncPosts(context.Background(), m, []int64{1, 1})
	assert.Equal(t, 2, ok)
	assert.Zero(t, failed)

	require.Len(t, syncer.calls, 2)
	for _, c := range syncer.calls {
		assert.True(t, c.acquired, "pair should be admitted after reset")
	}
}

// --- Start ---

func TestBulk_Start(t *testing.T) {
	db := testDB(t)
	m := seedProducts(t, db, 1)
	q := NewQueue(db)
	b := NewBulk(repos.NewMappingsRepo(db), db, &fakeSyncer{}, q, testLogger())

	require.NoError(t, b.Start(context.Background(), m.ID, 0))

	pending, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, HookBulkSync, pending[0].Hook)

	var args BulkArgs
	require.NoError(t, json.Unmarshal(pending[0].Args, &args))
	assert.Equal(t, BulkArgs{MappingID: m.ID, ChunkSize: DefaultChunkSize}, args)

	noQueue := NewBulk(repos.NewMappingsRepo(db), db, &fakeSyncer{}, nil, testLogger())
	assert.Error(t, noQueue.Start(context.Background(), m.ID, 0))
}

// --- End to end through the worker ---

func TestWorker_BulkRunsEveryChunk(t *testing.T) {
	db := testDB(t)
	m := seedProducts(t, db, 7)
	syncer := &fakeSyncer{}
	q := NewQueue(db)
	mappings := repos.NewMappingsRepo(db)
	bulk := NewBulk(mappings, db, syncer, q, testLogger())

	w := NewWorker(db, 0, testLogger())
	Register(w, syncer, mappings, bulk)

	require.NoError(t, bulk.Start(context.Background(), m.ID, 3))
	require.NoError(t, q.Enqueue(context.Background(), imagesync.HookSyncSingle, imagesync.SyncSingleArgs{PostID: 99, MappingID: m.ID}))

	n, err := w.Drain(context.Background())
	require.NoError(t, err)

	// Chunks at 0, 3 and 6, plus the single sync.
	assert.Equal(t, 4, n)
	assert.Equal(t, []int64{1, 2, 3, 99, 4, 5, 6, 7}, syncer.postIDs())
}
