package symbolize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryRegionContains(t *testing.T) {
	r := MemoryRegion{Start: 0x1000, End: 0x2000}

	require.True(t, r.Contains(0x1000))
	require.True(t, r.Contains(0x1500))
	require.True(t, r.Contains(0x1fff))
	require.False(t, r.Contains(0x0fff))
	require.False(t, r.Contains(0x2000))
}

func TestFileOffsetReversesPIELoading(t *testing.T) {
	regions := []MemoryRegion{
		{Start: 0x5000, End: 0x6000, FileOffset: 0x0},
		{Start: 0x7000, End: 0x8000, FileOffset: 0x2000},
	}

	offset, ok := FileOffset(regions, 0x5100)
	require.True(t, ok)
	require.Equal(t, uint64(0x100), offset)

	offset, ok = FileOffset(regions, 0x7100)
	require.True(t, ok)
	require.Equal(t, uint64(0x2100), offset)

	_, ok = FileOffset(regions, 0x9000)
	require.False(t, ok)
}
