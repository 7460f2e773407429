package lookup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMatch(t *testing.T) {
	tests := []struct {
		name    string
		command string
		exe     string
		pattern string
		want    bool
	}{
		{"exact command", "my-server", "/usr/bin/my-server", "my-server", true},
		{"substring of command", "my-server", "/usr/bin/my-server", "server", true},
		{"no match", "my-server", "/usr/bin/my-server", "other", false},
		{"exact exe basename", "worker", "/opt/app/worker", "worker", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, isMatch(tt.command, tt.exe, tt.pattern))
		})
	}
}
