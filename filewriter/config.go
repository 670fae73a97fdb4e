// Package filewriter writes formatted events to a size-rotated text file.
//
// The live file is opened in append mode when the writer is created. When a
// line would make it grow past MaxSize, the file is closed, the backups are
// shifted (<path>.1 becomes <path>.2 and so on, the oldest is deleted), the
// closed file becomes <path>.1 and a new live file is opened before the line
// is written.
//
// Every writer registers with a process-wide reopen dispatcher: a SIGHUP (on
// unix) or a ReopenAll call closes and reopens every live writer without
// rotating, for external log rotation tools.
package filewriter

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

const (
	DEFAULT_BACKUPS  = 5
	DEFAULT_MAX_SIZE = 1 << 20 // 1 MiB
	DEFAULT_MODE     = 0o600
	DEFAULT_ENCODING = "utf-8"

	// NO_BACKUPS as Config.Backups keeps no rotated file at all.
	NO_BACKUPS = -1
)

// DEFAULT_EOL is the platform line terminator.
var DEFAULT_EOL = func() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}()

// ErrInvalidFilename is returned by New for an empty or directory path.
var ErrInvalidFilename = apperrors.NewAppError(apperrors.ErrConfigInvalidFilename, "invalid log file name", nil)

// Config describes a rolling file writer. Zero fields take the defaults.
//
// Backups follows that rule too: 0 means DEFAULT_BACKUPS, not "keep none".
// Use NO_BACKUPS (any negative value) to keep no rotated file.
type Config struct {
	Name     string      `yaml:"name" json:"name"`         // writer name; "file:<path>" when empty
	Filename string      `yaml:"filename" json:"filename"` // "~/" is expanded to the home directory
	MaxSize  int64       `yaml:"maxLogSize" json:"maxLogSize"`
	Backups  int         `yaml:"backups" json:"backups"` // 0 is DEFAULT_BACKUPS; NO_BACKUPS keeps none
	Mode     os.FileMode `yaml:"mode" json:"mode"`
	Encoding string      `yaml:"encoding" json:"encoding"` // WHATWG name: "utf-8", "windows-1251", "shift_jis"...
	EOL      string      `yaml:"eol" json:"eol"`
	Compress bool        `yaml:"compress" json:"compress"` // gzip backups as <path>.N.gz
}

// normalize validates c and fills the defaults in. The returned encoding is
// nil for UTF-8.
func (c Config) normalize() (Config, encoding.Encoding, error) {
	path, err := normalizePath(c.Filename)
	if err != nil {
		return c, nil, err
	}
	c.Filename = path
	if c.Name == "" {
		c.Name = "file:" + path
	}
	if c.MaxSize <= 0 {
		c.MaxSize = DEFAULT_MAX_SIZE
	}
	switch {
	case c.Backups == 0:
		c.Backups = DEFAULT_BACKUPS
	case c.Backups < 0:
		c.Backups = NO_BACKUPS
	}
	if c.Mode == 0 {
		c.Mode = DEFAULT_MODE
	}
	if c.EOL == "" {
		c.EOL = DEFAULT_EOL
	}
	if c.Encoding == "" {
		c.Encoding = DEFAULT_ENCODING
	}
	enc, err := htmlindex.Get(c.Encoding)
	if err != nil {
		return c, nil, apperrors.NewAppError(apperrors.ErrConfigValidate, "unknown file encoding "+c.Encoding, err)
	}
	if name, _ := htmlindex.Name(enc); name == DEFAULT_ENCODING {
		enc = nil
	}
	return c, enc, nil
}

func normalizePath(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", apperrors.Newf(apperrors.ErrConfigInvalidFilename, "log file name is empty")
	}
	if strings.HasSuffix(name, "/") || strings.HasSuffix(name, string(filepath.Separator)) {
		return "", apperrors.Newf(apperrors.ErrConfigInvalidFilename, "log file name %q is a directory", name)
	}
	if rest, ok := strings.CutPrefix(name, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", apperrors.NewAppError(apperrors.ErrConfigInvalidFilename, "cannot expand "+name, err)
		}
		name = filepath.Join(home, rest)
	}
	path, err := filepath.Abs(name)
	if err != nil {
		return "", apperrors.NewAppError(apperrors.ErrConfigInvalidFilename, "cannot resolve "+name, err)
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return "", apperrors.Newf(apperrors.ErrConfigInvalidFilename, "log file name %q is a directory", name)
	}
	return path, nil
}
