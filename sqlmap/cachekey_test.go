// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey(t *testing.T) {
	t.Run("EqualParts", func(t *testing.T) {
		a := NewCacheKey()
		a.Update("mappers.user.FindByID")
		a.Update(42)

		b := NewCacheKey()
		b.Update("mappers.user.FindByID")
		b.Update(42)

		assert.True(t, a.Equal(b), "keys built from identical parts should compare equal")
		assert.Equal(t, a.String(), b.String(), "string representation should match for identical parts")
	})

	t.Run("OrderMatters", func(t *testing.T) {
		a := NewCacheKey()
		a.Update("x")
		a.Update("y")

		b := NewCacheKey()
		b.Update("y")
		b.Update("x")

		assert.False(t, a.Equal(b), "swapping update order must change the key")
	})

	t.Run("Clone", func(t *testing.T) {
		a := NewCacheKey()
		a.Update("base")
		clone := a.Clone()
		clone.Update("extra")

		assert.True(t, a.Equal(a), "a key always equals itself")
		assert.False(t, a.Equal(clone), "mutating a clone must not affect the original")
	})

	t.Run("UpdateAll", func(t *testing.T) {
		a := NewCacheKey()
		a.UpdateAll("stmt", 1, "extra")

		b := NewCacheKey()
		b.Update("stmt")
		b.Update(1)
		b.Update("extra")

		assert.True(t, a.Equal(b), "UpdateAll should fold parts in order like sequential Update calls")
	})
}
