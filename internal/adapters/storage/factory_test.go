package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dkeye/VoiceHub/internal/config"
)

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		db      config.DatabaseConfig
		wantErr bool
	}{
		{"memory", config.DatabaseConfig{Type: "memory"}, false},
		{"sqlite", config.DatabaseConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "vh.db")}, false},
		{"sqlite without path", config.DatabaseConfig{Type: "sqlite"}, true},
		{"unknown", config.DatabaseConfig{Type: "mongo"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewFromConfig(ctx, tt.db, config.RedisConfig{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer b.Close()
			if err := b.Ping(ctx); err != nil {
				t.Errorf("Ping() = %v", err)
			}
		})
	}
}
