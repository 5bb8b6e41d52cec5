package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectPanic bool
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "all flags set",
			args: []string{"cmd", "-a", "https://cellar.example.com", "-d", "/tmp/test.db", "-b", "bucket-x", "-i", "20"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "https://cellar.example.com", c.ServerEndpointAddr)
				assert.Equal(t, "/tmp/test.db", c.DatabasePath)
				assert.Equal(t, "bucket-x", c.PhotoBucket)
				assert.Equal(t, 20*time.Second, c.OnlineCheckInterval)
			},
		},
		{
			name: "unset flags keep prior values",
			args: []string{"cmd", "-a", "https://other.example.com"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "https://other.example.com", c.ServerEndpointAddr)
				assert.Equal(t, "cellar.db", c.DatabasePath)
				assert.Equal(t, 15*time.Second, c.OnlineCheckInterval)
			},
		},
		{
			name:        "malformed interval",
			args:        []string{"cmd", "-i", "abc"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			os.Args = tt.args
			t.Cleanup(func() { os.Args = oldArgs })

			c := &Config{}
			c.LoadDefaults()

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(c) })
				return
			}
			require.NotPanics(t, func() { parseFlags(c) })
			tt.check(t, c)
		})
	}
}
