package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTable(t *testing.T) {
	table := Default()

	anon := table.Resolve(Anonymous)
	assert.Equal(t, int64(10*1024*1024), anon.MaxSizeBytes)
	assert.Equal(t, 24, anon.DefaultExpiryHours)
	assert.False(t, anon.PasswordAllowed)
	assert.False(t, anon.CustomExpiryAllowed)

	free := table.Resolve(Free)
	assert.Equal(t, int64(200*1024*1024), free.MaxSizeBytes)
	assert.Equal(t, 168, free.DefaultExpiryHours)
	assert.Equal(t, 168, free.MinExpiryHours)
	assert.Equal(t, 168, free.MaxExpiryHours)
	assert.False(t, free.PasswordAllowed)

	pro := table.Resolve(Pro)
	assert.Equal(t, int64(2*1024*1024*1024), pro.MaxSizeBytes)
	assert.Equal(t, 720, pro.DefaultExpiryHours)
	assert.Equal(t, 1, pro.MinExpiryHours)
	assert.Equal(t, 720, pro.MaxExpiryHours)
	assert.True(t, pro.PasswordAllowed)
	assert.True(t, pro.CustomExpiryAllowed)
}

func TestResolveFailsClosed(t *testing.T) {
	table := Default()
	anon := table.Resolve(Anonymous)

	for _, id := range []string{"", "PRO", "enterprise", "pro ", "admin"} {
		assert.Equal(t, anon, table.Resolve(id), "tier %q must resolve to anonymous", id)
	}
}

func TestKnown(t *testing.T) {
	table := Default()
	assert.True(t, table.Known(Anonymous))
	assert.True(t, table.Known(Free))
	assert.True(t, table.Known(Pro))
	assert.False(t, table.Known("platinum"))
}

func TestRank(t *testing.T) {
	assert.Greater(t, Rank(Pro), Rank(Free))
	assert.Greater(t, Rank(Free), Rank(Anonymous))
	assert.Equal(t, Rank(Anonymous), Rank("bogus"))
}
