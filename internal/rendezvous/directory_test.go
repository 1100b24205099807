package rendezvous_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/SpatiumPortae/stardrop/internal/code"
	"github.com/SpatiumPortae/stardrop/internal/rendezvous"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory(t *testing.T) {
	t.Run("register then resolve", func(t *testing.T) {
		d := rendezvous.NewDirectory()
		require.NoError(t, d.Register("123-456", "r"))
		id, ok := d.Resolve("123-456")
		assert.True(t, ok)
		assert.Equal(t, "r", id)
	})
	t.Run("resolve unknown code", func(t *testing.T) {
		d := rendezvous.NewDirectory()
		_, ok := d.Resolve("000-000")
		assert.False(t, ok)
	})
	t.Run("overwrite policy", func(t *testing.T) {
		d := rendezvous.NewDirectory()
		require.NoError(t, d.Register("123-456", "a"))
		require.NoError(t, d.Register("123-456", "b"))
		id, _ := d.Resolve("123-456")
		assert.Equal(t, "b", id)
		assert.Equal(t, 1, d.Len())
	})
	t.Run("reject policy", func(t *testing.T) {
		d := rendezvous.NewDirectory(rendezvous.WithPolicy(rendezvous.Reject))
		require.NoError(t, d.Register("123-456", "a"))
		assert.ErrorIs(t, d.Register("123-456", "b"), rendezvous.ErrCodeTaken)
		assert.NoError(t, d.Register("123-456", "a"))
		id, _ := d.Resolve("123-456")
		assert.Equal(t, "a", id)
	})
	t.Run("reusable codes", func(t *testing.T) {
		d := rendezvous.NewDirectory()
		require.NoError(t, d.Register("123-456", "r"))
		for i := 0; i < 3; i++ {
			_, ok := d.Resolve("123-456")
			assert.True(t, ok)
		}
	})
	t.Run("single use codes", func(t *testing.T) {
		d := rendezvous.NewDirectory(rendezvous.WithSingleUse(true))
		require.NoError(t, d.Register("123-456", "r"))
		_, ok := d.Resolve("123-456")
		assert.True(t, ok)
		_, ok = d.Resolve("123-456")
		assert.False(t, ok)
	})
	t.Run("release all", func(t *testing.T) {
		d := rendezvous.NewDirectory()
		require.NoError(t, d.Register("111-111", "a"))
		require.NoError(t, d.Register("222-222", "a"))
		require.NoError(t, d.Register("333-333", "b"))

		assert.Equal(t, 2, d.ReleaseAll("a"))
		_, ok := d.Resolve("111-111")
		assert.False(t, ok)
		_, ok = d.Resolve("222-222")
		assert.False(t, ok)
		id, ok := d.Resolve("333-333")
		assert.True(t, ok)
		assert.Equal(t, "b", id)
		assert.Equal(t, 0, d.ReleaseAll("a"))
	})
}

func TestDirectoryIssue(t *testing.T) {
	t.Run("binds generated code", func(t *testing.T) {
		d := rendezvous.NewDirectory()
		c, err := d.Issue("r")
		require.NoError(t, err)
		assert.True(t, code.IsValid(c))
		id, ok := d.Resolve(c)
		assert.True(t, ok)
		assert.Equal(t, "r", id)
	})
	t.Run("regenerates on collision with reject policy", func(t *testing.T) {
		draws := []string{"123-456", "123-456", "654-321"}
		d := rendezvous.NewDirectory(rendezvous.WithPolicy(rendezvous.Reject), rendezvous.WithGenerator(func() (string, error) {
			c := draws[0]
			draws = draws[1:]
			return c, nil
		}))
		first, err := d.Issue("a")
		require.NoError(t, err)
		second, err := d.Issue("b")
		require.NoError(t, err)
		assert.Equal(t, "123-456", first)
		assert.Equal(t, "654-321", second)
		id, _ := d.Resolve("123-456")
		assert.Equal(t, "a", id)
	})
	t.Run("rebinds on collision with overwrite policy", func(t *testing.T) {
		d := rendezvous.NewDirectory(fixedCode("123-456"))
		first, err := d.Issue("a")
		require.NoError(t, err)
		second, err := d.Issue("b")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		id, _ := d.Resolve("123-456")
		assert.Equal(t, "b", id)
		assert.Equal(t, 1, d.Len())
	})
	t.Run("exhausted", func(t *testing.T) {
		d := rendezvous.NewDirectory(rendezvous.WithPolicy(rendezvous.Reject), fixedCode("123-456"))
		_, err := d.Issue("a")
		require.NoError(t, err)
		_, err = d.Issue("b")
		assert.ErrorIs(t, err, rendezvous.ErrExhausted)
	})
	t.Run("concurrent issues are distinct", func(t *testing.T) {
		d := rendezvous.NewDirectory(rendezvous.WithPolicy(rendezvous.Reject))
		const n = 200
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := d.Issue(fmt.Sprintf("conn-%d", i))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, n, d.Len())
	})
}

func TestDirectoryRelease(t *testing.T) {
	d := rendezvous.NewDirectory()
	require.NoError(t, d.Register("111-111", "a"))
	require.NoError(t, d.Register("222-222", "a"))

	assert.False(t, d.Release("111-111", "b"))
	assert.True(t, d.Release("111-111", "a"))
	assert.False(t, d.Release("111-111", "a"))

	id, ok := d.Resolve("222-222")
	assert.True(t, ok)
	assert.Equal(t, "a", id)
}

func TestParsePolicy(t *testing.T) {
	p, err := rendezvous.ParsePolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, rendezvous.Reject, p)
	p, err = rendezvous.ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, rendezvous.Overwrite, p)
	_, err = rendezvous.ParsePolicy("first-wins")
	assert.Error(t, err)
}
