package config

import (
	"testing"
	"time"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LoadCluster(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadCluster()
		require.NoError(t, err)
		assert.Equal(t, RoleStandalone, cfg.Role)
		assert.Equal(t, "127.0.0.1:7070", cfg.ListenAddr)
		assert.Equal(t, 1024, cfg.BufferSize)
		assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	})
	t.Run("worker_from_env", func(t *testing.T) {
		t.Setenv("LGRBUS_ROLE", "Worker")
		t.Setenv("LGRBUS_PRIMARY_URL", "ws://10.0.0.1:9000/lgrbus")
		t.Setenv("LGRBUS_WORKER_ID", "7")
		cfg, err := LoadCluster()
		require.NoError(t, err)
		assert.Equal(t, RoleWorker, cfg.Role)
		assert.Equal(t, 7, cfg.WorkerID)
		assert.Equal(t, "ws://10.0.0.1:9000/lgrbus", cfg.PrimaryURL)
	})
	t.Run("unknown_role", func(t *testing.T) {
		t.Setenv("LGRBUS_ROLE", "leader")
		_, err := LoadCluster()
		assert.Equal(t, apperrors.ErrConfigValidate, apperrors.Code(err))
	})
}

func Test_ClusterConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClusterConfig
		wantErr bool
	}{
		{"standalone", ClusterConfig{Role: "standalone"}, false},
		{"primary", ClusterConfig{Role: "primary", ListenAddr: ":0"}, false},
		{"primary_no_addr", ClusterConfig{Role: "primary"}, true},
		{"worker", ClusterConfig{Role: "worker", PrimaryURL: "wss://h/p", WorkerID: 2}, false},
		{"worker_http_url", ClusterConfig{Role: "worker", PrimaryURL: "http://h/p", WorkerID: 2}, true},
		{"worker_zero_id", ClusterConfig{Role: "worker", PrimaryURL: "ws://h/p"}, true},
		{"negative_buffer", ClusterConfig{Role: "standalone", BufferSize: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
