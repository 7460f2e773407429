package probe

import "testing"

import "github.com/stretchr/testify/require"

func TestParseKernelRelease(t *testing.T) {
	tests := []struct {
		name      string
		release   string
		wantMajor int
		wantMinor int
		wantOK    bool
	}{
		{"standard", "5.15.0-generic", 5, 15, true},
		{"arch suffix", "6.1.0-arch1-1", 6, 1, true},
		{"no minor", "5", 0, 0, false},
		{"garbage", "not-a-version", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			major, minor, ok := parseKernelRelease(tt.release)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				require.Equal(t, tt.wantMajor, major)
				require.Equal(t, tt.wantMinor, minor)
			}
		})
	}
}

func TestCheckBinaryExistsMissing(t *testing.T) {
	err := checkBinaryExists("/nonexistent/path/to/binary")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestCheckBinaryExistsDirectory(t *testing.T) {
	err := checkBinaryExists("/tmp")
	require.Error(t, err)
}

func TestCharsToString(t *testing.T) {
	require.Equal(t, "5.15.0", charsToString([]byte{'5', '.', '1', '5', '.', '0', 0, 0}))
	require.Equal(t, "", charsToString([]byte{0}))
}
