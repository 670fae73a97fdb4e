// Package config loads process-level settings for the default lgrbus bus.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
	"github.com/ilyakaznacheev/cleanenv"
)

// Process roles in a multi-process topology.
const (
	RoleStandalone = "standalone"
	RolePrimary    = "primary"
	RoleWorker     = "worker"
)

// ClusterConfig describes the role of this process and how it reaches the
// primary. Every field can be overridden by an LGRBUS_* environment variable.
type ClusterConfig struct {
	// Role - standalone (own primary), primary (accepts workers) or worker
	Role string `yaml:"role" env:"LGRBUS_ROLE" env-default:"standalone"`

	// ListenAddr - address the primary listens on for worker connections
	ListenAddr string `yaml:"listenAddr" env:"LGRBUS_LISTEN_ADDR" env-default:"127.0.0.1:7070"`

	// PrimaryURL - websocket URL a worker dials
	PrimaryURL string `yaml:"primaryUrl" env:"LGRBUS_PRIMARY_URL" env-default:"ws://127.0.0.1:7070/lgrbus"`

	// WorkerID - identifier stamped on forwarded events
	WorkerID int `yaml:"workerId" env:"LGRBUS_WORKER_ID" env-default:"1"`

	// BufferSize - capacity of the bus message channel
	BufferSize int `yaml:"bufferSize" env:"LGRBUS_BUFFER_SIZE" env-default:"1024"`

	// DialTimeout - websocket handshake timeout for workers
	DialTimeout time.Duration `yaml:"dialTimeout" env:"LGRBUS_DIAL_TIMEOUT" env-default:"5s"`
}

// LoadCluster reads ClusterConfig from the environment and validates it.
func LoadCluster() (*ClusterConfig, error) {
	cfg := &ClusterConfig{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrConfigLoad,
			"cannot read cluster configuration from environment", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks role-specific fields.
func (c *ClusterConfig) Validate() error {
	c.Role = strings.ToLower(strings.TrimSpace(c.Role))
	switch c.Role {
	case RoleStandalone:
	case RolePrimary:
		if c.ListenAddr == "" {
			return apperrors.Newf(apperrors.ErrConfigValidate, "primary role requires LGRBUS_LISTEN_ADDR")
		}
	case RoleWorker:
		u, err := url.Parse(c.PrimaryURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return apperrors.Newf(apperrors.ErrConfigValidate,
				"worker role requires a ws:// or wss:// LGRBUS_PRIMARY_URL, got %q", c.PrimaryURL)
		}
		if c.WorkerID <= 0 {
			return apperrors.Newf(apperrors.ErrConfigValidate, "worker id must be positive, got %d", c.WorkerID)
		}
	default:
		return apperrors.Newf(apperrors.ErrConfigValidate, "unknown role %q", c.Role)
	}
	if c.BufferSize < 0 {
		return apperrors.Newf(apperrors.ErrConfigValidate, "buffer size must not be negative, got %d", c.BufferSize)
	}
	return nil
}
