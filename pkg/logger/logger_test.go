package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_Level(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		level       string
		want        zerolog.Level
	}{
		{"explicit debug", "production", "debug", zerolog.DebugLevel},
		{"warn", "staging", "warn", zerolog.WarnLevel},
		{"empty falls back to info", "production", "", zerolog.InfoLevel},
		{"unknown falls back to info", "development", "chatty", zerolog.InfoLevel},
		{"test is silent", "test", "debug", zerolog.Disabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := New("inventory-service", tt.environment, tt.level)
			assert.Equal(t, tt.want, log.GetLevel())
		})
	}
}

func TestNop_Discards(t *testing.T) {
	assert.Equal(t, zerolog.Disabled, Nop().GetLevel())
}
