package sandbox

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gozephyr/pcache/errors"
)

func TestRegistry(t *testing.T) {
	t.Run("Register and resolve", func(t *testing.T) {
		r := NewRegistry()
		db := NewFile(newTempFile(t, "cache.db", ""), "vfs/a/cache.db", ReadWrite)
		journal := NewFile(newTempFile(t, "cache.journal", ""), "vfs/a/cache.journal", ReadWrite)
		defer db.Close()
		defer journal.Close()

		reg, err := r.Register(db, journal)
		require.NoError(t, err)
		require.Equal(t, 2, r.Len())

		got, ok := r.Resolve("vfs/a/cache.db")
		require.True(t, ok)
		require.Same(t, db, got)

		reg.Unregister()
		require.Equal(t, 0, r.Len())
		_, ok = r.Resolve("vfs/a/cache.db")
		require.False(t, ok)
	})

	t.Run("Duplicate path registers nothing", func(t *testing.T) {
		r := NewRegistry()
		first := NewFile(newTempFile(t, "a", ""), "vfs/same", ReadWrite)
		defer first.Close()
		_, err := r.Register(first)
		require.NoError(t, err)

		second := NewFile(newTempFile(t, "b", ""), "vfs/same", ReadWrite)
		other := NewFile(newTempFile(t, "c", ""), "vfs/other", ReadWrite)
		defer second.Close()
		defer other.Close()

		_, err = r.Register(other, second)
		require.ErrorIs(t, err, errors.ErrAlreadyRegistered)
		require.Equal(t, 1, r.Len(), "failed registration must not leave partial entries")
		_, ok := r.Resolve("vfs/other")
		require.False(t, ok)
	})

	t.Run("Unregister is scope-bound and idempotent", func(t *testing.T) {
		r := NewRegistry()
		mine := NewFile(newTempFile(t, "a", ""), "vfs/mine", ReadWrite)
		theirs := NewFile(newTempFile(t, "b", ""), "vfs/theirs", ReadWrite)
		defer mine.Close()
		defer theirs.Close()

		regMine, err := r.Register(mine)
		require.NoError(t, err)
		_, err = r.Register(theirs)
		require.NoError(t, err)

		regMine.Unregister()
		regMine.Unregister()

		_, ok := r.Resolve("vfs/mine")
		require.False(t, ok)
		_, ok = r.Resolve("vfs/theirs")
		require.True(t, ok)
	})

	t.Run("Concurrent registration", func(t *testing.T) {
		r := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					path := fmt.Sprintf("vfs/%d/%d", id, j)
					osf, err := os.CreateTemp("", "pcache-reg-*")
					if err != nil {
						return
					}
					os.Remove(osf.Name())
					f := NewFile(osf, path, ReadOnly)
					reg, err := r.Register(f)
					if err != nil {
						f.Close()
						return
					}
					if _, ok := r.Resolve(path); !ok {
						return
					}
					reg.Unregister()
					f.Close()
				}
			}(i)
		}
		wg.Wait()
		require.Equal(t, 0, r.Len())
	})

	t.Run("Default registry is a singleton", func(t *testing.T) {
		require.Same(t, Default(), Default())
	})
}
