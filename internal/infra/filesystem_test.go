package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	home := "/home/test"
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"tilde slash", "~/.privguard", "/home/test/.privguard"},
		{"bare tilde", "~", "/home/test"},
		{"absolute", "/var/lib/privguard", "/var/lib/privguard"},
		{"relative", "snapshots", "snapshots"},
		{"tilde user not expanded", "~other/x", "~other/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandHomeWith(home, tt.in))
		})
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	require.NoError(t, WriteFileAtomic(path, []byte("a: 1\n"), 0644))
	require.NoError(t, WriteFileAtomic(path, []byte("a: 2\n"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a: 2\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}
