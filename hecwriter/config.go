// Package hecwriter posts events to an HTTP event collector speaking the
// Splunk HEC protocol.
//
// Writes are asynchronous: each payload is POSTed from its own goroutine and
// retried with exponential backoff while the collector answers 5xx or is
// unreachable. A 4xx answer is final. Shutdown waits for every outstanding
// POST before calling back.
package hecwriter

import (
	"time"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

const (
	EVENT_PATH          = "/services/collector/event"
	DEFAULT_SOURCE_TYPE = "json"
	DEFAULT_TIMEOUT     = 15 * time.Second
	DEFAULT_RETRY_TIME  = 10 * time.Second

	_CHANNEL_HEADER = "X-Splunk-Request-Channel"
	_SOURCE_PREFIX  = "http:"
)

// Config describes a collector endpoint.
type Config struct {
	Name       string        `yaml:"name" json:"name"`
	BaseURL    string        `yaml:"baseURL" json:"baseURL"` // e.g. https://splunk.example.com:8088
	Token      string        `yaml:"token" json:"-"`
	Source     string        `yaml:"source" json:"source"`
	SourceType string        `yaml:"sourcetype" json:"sourcetype"`
	Index      string        `yaml:"index" json:"index"`
	Host       string        `yaml:"host" json:"host"` // os.Hostname() when empty
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	RetryTime  time.Duration `yaml:"retryTime" json:"retryTime"` // total time spent retrying one payload
	Insecure   bool          `yaml:"insecure" json:"insecure"`   // skip TLS certificate verification
}

func (c Config) normalize() (Config, error) {
	if c.BaseURL == "" {
		return c, apperrors.Newf(apperrors.ErrConfigValidate, "collector base URL is empty")
	}
	if c.Token == "" {
		return c, apperrors.Newf(apperrors.ErrConfigValidate, "collector token is empty")
	}
	if c.Name == "" {
		c.Name = "hec:" + c.BaseURL
	}
	if c.SourceType == "" {
		c.SourceType = DEFAULT_SOURCE_TYPE
	}
	if c.Timeout <= 0 {
		c.Timeout = DEFAULT_TIMEOUT
	}
	if c.RetryTime <= 0 {
		c.RetryTime = DEFAULT_RETRY_TIME
	}
	return c, nil
}

// Payload is one HEC event. Empty Host, SourceType, Source and Index are
// taken from the writer Config; Source always carries the "http:" prefix.
type Payload struct {
	Time       float64 `json:"time"` // seconds since the epoch
	Host       string  `json:"host"`
	SourceType string  `json:"sourcetype"`
	Source     string  `json:"source"`
	Index      string  `json:"index"`
	Event      any     `json:"event"`
}
