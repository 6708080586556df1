package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		env       string
		debug     bool
		wantDebug bool
	}{
		{"prod", false, false},
		{"production", true, true},
		{"dev", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			log, err := New(tt.env, tt.debug)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDebug, log.Core().Enabled(zap.DebugLevel))
			assert.True(t, log.Core().Enabled(zap.InfoLevel))
		})
	}
}
