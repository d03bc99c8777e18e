// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransactionalCache_PutStagesUntilCommit(t *testing.T) {
	delegate := NewMapCache("txn")
	tc := NewTransactionalCache(delegate)

	tc.PutObject(keyFor("a"), 1)
	_, ok := delegate.GetObject(keyFor("a"))
	assert.False(t, ok, "a staged put must not be visible on the delegate before commit")

	tc.Commit()
	v, ok := delegate.GetObject(keyFor("a"))
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestTransactionalCache_RollbackDiscardsStagedWrites(t *testing.T) {
	delegate := NewMapCache("txn")
	tc := NewTransactionalCache(delegate)

	tc.PutObject(keyFor("a"), 1)
	tc.Rollback()
	tc.Commit() // no-op, nothing staged after rollback

	_, ok := delegate.GetObject(keyFor("a"))
	assert.False(t, ok, "a rolled-back put must never reach the delegate")
}

// TestTransactionalCache_RemoveAlwaysReportsNotFound guards the fix for
// the documented defect where a staged removal claimed to return the
// removed value/found flag despite the delegate not having been
// touched yet.
func TestTransactionalCache_RemoveAlwaysReportsNotFound(t *testing.T) {
	delegate := NewMapCache("txn")
	delegate.PutObject(keyFor("a"), "still-visible-to-other-sessions")
	tc := NewTransactionalCache(delegate)

	value, found := tc.RemoveObject(keyFor("a"))
	assert.Nil(t, value)
	assert.False(t, found, "a staged removal must never report a value as found")

	// The delegate is untouched until commit.
	_, ok := delegate.GetObject(keyFor("a"))
	assert.True(t, ok, "the removal must not be visible to other sessions before commit")

	tc.Commit()
	_, ok = delegate.GetObject(keyFor("a"))
	assert.False(t, ok, "the removal must apply to the delegate once committed")
}

func TestTransactionalCache_ClearFlushesWholesaleOnCommit(t *testing.T) {
	delegate := NewMapCache("txn")
	delegate.PutObject(keyFor("a"), 1)
	delegate.PutObject(keyFor("b"), 2)
	tc := NewTransactionalCache(delegate)

	tc.Clear()
	assert.Equal(t, 2, delegate.Size(), "Clear must not touch the delegate until commit")

	tc.Commit()
	assert.Equal(t, 0, delegate.Size(), "a staged Clear must wipe the delegate on commit")
}
