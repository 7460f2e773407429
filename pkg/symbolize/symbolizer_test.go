package symbolize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDemangleRustLegacy(t *testing.T) {
	// "_ZN3std2io4Read4read17h0123456789abcdefE" encodes std::io::Read::read
	// plus a 16-hex-digit hash suffix that should be dropped.
	mangled := "_ZN3std2io4Read4read17h0123456789abcdefE"
	require.Equal(t, "std::io::Read::read", DemangleRust(mangled))
}

func TestDemangleRustPassesThroughUnrecognized(t *testing.T) {
	require.Equal(t, "my_plain_function", DemangleRust("my_plain_function"))
	require.Equal(t, "", DemangleRust(""))
}

func TestDebugInfoFractionWithNoResolves(t *testing.T) {
	s := &Symbolizer{cache: make(map[uint64]ResolvedFrame)}
	require.Equal(t, 0.0, s.DebugInfoFraction())
}

func TestDebugInfoFractionTracksHitsAndMisses(t *testing.T) {
	s := &Symbolizer{cache: make(map[uint64]ResolvedFrame)}
	s.debugInfoHits = 3
	s.debugInfomisses = 1
	require.InDelta(t, 0.75, s.DebugInfoFraction(), 0.0001)
}
