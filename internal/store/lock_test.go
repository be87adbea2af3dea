package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
)

func TestFileLock_ExcludesSecondHolder(t *testing.T) {
	// Given: a lock held in a data dir that does not exist yet
	dir := filepath.Join(t.TempDir(), ".pdfrag")
	first := NewFileLock(dir)
	ok, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	// When: another handle tries the same lock
	second := NewFileLock(dir)
	acquired, err := second.TryLock()

	// Then: it is refused until the first releases
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, first.Unlock())
	acquired, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, second.Unlock())
}

func TestFileLock_AcquireWithoutWaitFailsFast(t *testing.T) {
	dir := t.TempDir()
	holder := NewFileLock(dir)
	require.NoError(t, holder.Acquire(context.Background(), 0))
	defer func() { _ = holder.Unlock() }()

	err := NewFileLock(dir).Acquire(context.Background(), 0)

	require.Error(t, err)
	assert.Equal(t, pderrors.KindStoreUnavailable, pderrors.KindOf(err))
	assert.Contains(t, pderrors.FormatForCLI(err), "Hint: Wait for the running")
}

func TestFileLock_AcquireWaitsForRelease(t *testing.T) {
	// Given: a holder that lets go shortly
	dir := t.TempDir()
	holder := NewFileLock(dir)
	require.NoError(t, holder.Acquire(context.Background(), 0))
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = holder.Unlock()
	}()

	// When: a waiter allows enough time
	waiter := NewFileLock(dir)
	err := waiter.Acquire(context.Background(), 5*time.Second)

	// Then: it gets the lock
	require.NoError(t, err)
	require.NoError(t, waiter.Unlock())
}

func TestFileLock_AcquireTimesOut(t *testing.T) {
	dir := t.TempDir()
	holder := NewFileLock(dir)
	require.NoError(t, holder.Acquire(context.Background(), 0))
	defer func() { _ = holder.Unlock() }()

	start := time.Now()
	err := NewFileLock(dir).Acquire(context.Background(), 150*time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, pderrors.KindStoreUnavailable, pderrors.KindOf(err))
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestFileLock_AcquireHonorsCancel(t *testing.T) {
	dir := t.TempDir()
	holder := NewFileLock(dir)
	require.NoError(t, holder.Acquire(context.Background(), 0))
	defer func() { _ = holder.Unlock() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewFileLock(dir).Acquire(ctx, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileLock_UnlockWithoutLockIsNoop(t *testing.T) {
	l := NewFileLock(t.TempDir())

	assert.NoError(t, l.Unlock())
	assert.Equal(t, LockFileName, filepath.Base(l.Path()))
}
