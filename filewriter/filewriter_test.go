package filewriter

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abyssdigger/lgrbus"
	"github.com/abyssdigger/lgrbus/internal/apperrors"
	"github.com/abyssdigger/lgrbus/metrics"
)

func newTestWriter(t *testing.T, cfg Config, opts ...Option) *RollingFileWriter {
	t.Helper()
	if cfg.Filename == "" {
		cfg.Filename = filepath.Join(t.TempDir(), "app.log")
	}
	w, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { w.Shutdown(func(error) {}) })
	return w
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func shutdown(w *RollingFileWriter) error {
	var got error
	w.Shutdown(func(err error) { got = err })
	return got
}

func Test_New_Defaults(t *testing.T) {
	w := newTestWriter(t, Config{})
	cfg := w.Config().(Config)
	assert.Equal(t, "file:"+w.Path(), w.Name())
	assert.EqualValues(t, DEFAULT_MAX_SIZE, cfg.MaxSize)
	assert.Equal(t, DEFAULT_BACKUPS, cfg.Backups)
	assert.Equal(t, os.FileMode(DEFAULT_MODE), cfg.Mode)
	assert.Equal(t, DEFAULT_ENCODING, cfg.Encoding)
	assert.Equal(t, DEFAULT_EOL, cfg.EOL)
	assert.True(t, filepath.IsAbs(w.Path()))

	fi, err := os.Stat(w.Path())
	require.NoError(t, err, "file is created by New")
	assert.Zero(t, fi.Size())
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	}
}

func Test_New_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  Config
		code string
	}{
		{"empty", Config{}, apperrors.ErrConfigInvalidFilename},
		{"blank", Config{Filename: "  "}, apperrors.ErrConfigInvalidFilename},
		{"trailing_separator", Config{Filename: filepath.Join(dir, "logs") + string(filepath.Separator)}, apperrors.ErrConfigInvalidFilename},
		{"existing_directory", Config{Filename: dir}, apperrors.ErrConfigInvalidFilename},
		{"unknown_encoding", Config{Filename: filepath.Join(dir, "x.log"), Encoding: "klingon"}, apperrors.ErrConfigValidate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := New(tt.cfg)
			assert.Nil(t, w)
			assert.Equal(t, tt.code, apperrors.Code(err))
			if tt.code == apperrors.ErrConfigInvalidFilename {
				assert.ErrorIs(t, err, ErrInvalidFilename)
			}
		})
	}
}

func Test_New_HomeExpansion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("HOME is not used on windows")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	w := newTestWriter(t, Config{Filename: "~/logs/app.log"})
	assert.Equal(t, filepath.Join(home, "logs", "app.log"), w.Path())
	assert.FileExists(t, w.Path())
}

func Test_RollingFileWriter_Write(t *testing.T) {
	w := newTestWriter(t, Config{})
	w.Write("first")
	w.Write("second")
	assert.Equal(t, "first\nsecond\n", readFile(t, w.Path()))

	t.Run("appends_to_existing", func(t *testing.T) {
		again := newTestWriter(t, Config{Filename: w.Path()})
		again.Write("third")
		assert.Equal(t, "first\nsecond\nthird\n", readFile(t, w.Path()))
	})
	t.Run("custom_eol", func(t *testing.T) {
		crlf := newTestWriter(t, Config{EOL: "\r\n"})
		crlf.Write("x")
		assert.Equal(t, "x\r\n", readFile(t, crlf.Path()))
	})
}

func Test_RollingFileWriter_Rotation(t *testing.T) {
	// "line-000\n" is 9 bytes: ten lines per file
	w := newTestWriter(t, Config{MaxSize: 90, Backups: 3})
	for i := range 10 {
		w.Write(fmt.Sprintf("line-%03d", i))
	}
	assert.Zero(t, w.Rotations(), "a line reaching MaxSize exactly stays")
	assert.NoFileExists(t, w.Path()+".1")

	w.Write("line-010")
	assert.Equal(t, 1, w.Rotations())
	assert.Equal(t, "line-010\n", readFile(t, w.Path()))
	assert.True(t, strings.HasPrefix(readFile(t, w.Path()+".1"), "line-000\n"))

	for i := 11; i < 50; i++ {
		w.Write(fmt.Sprintf("line-%03d", i))
	}
	assert.Equal(t, 4, w.Rotations())
	assert.NoFileExists(t, w.Path()+".4", "oldest backup is deleted")

	var all []string
	for _, path := range []string{w.Path() + ".3", w.Path() + ".2", w.Path() + ".1", w.Path()} {
		all = append(all, strings.Split(strings.TrimSuffix(readFile(t, path), "\n"), "\n")...)
	}
	want := make([]string, 0, 40)
	for i := 10; i < 50; i++ {
		want = append(want, fmt.Sprintf("line-%03d", i))
	}
	assert.Equal(t, want, all, "no line lost or duplicated across the kept files")
}

func Test_RollingFileWriter_Rotation_OversizedLine(t *testing.T) {
	w := newTestWriter(t, Config{MaxSize: 4, Backups: 1})
	w.Write("longer than max")
	assert.Zero(t, w.Rotations(), "an empty live file is never rotated")
	w.Write("again")
	assert.Equal(t, 1, w.Rotations())
	assert.Equal(t, "longer than max\n", readFile(t, w.Path()+".1"))
	assert.Equal(t, "again\n", readFile(t, w.Path()))
}

func Test_RollingFileWriter_NoBackups(t *testing.T) {
	w := newTestWriter(t, Config{MaxSize: 20, Backups: NO_BACKUPS})
	w.Write("aaaaaaaaa")
	w.Write("bbbbbbbbb")
	w.Write("ccccccccc")
	assert.Equal(t, "ccccccccc\n", readFile(t, w.Path()))
	assert.NoFileExists(t, w.Path()+".1")

	t.Run("any_negative", func(t *testing.T) {
		neg := newTestWriter(t, Config{Backups: -5})
		assert.Equal(t, NO_BACKUPS, neg.Config().(Config).Backups)
	})
	t.Run("zero_is_default", func(t *testing.T) {
		zero := newTestWriter(t, Config{MaxSize: 20, Backups: 0})
		assert.Equal(t, DEFAULT_BACKUPS, zero.Config().(Config).Backups)
		zero.Write("aaaaaaaaa")
		zero.Write("bbbbbbbbb")
		zero.Write("ccccccccc")
		assert.Equal(t, "aaaaaaaaa\nbbbbbbbbb\n", readFile(t, zero.Path()+".1"))
	})
}

func Test_RollingFileWriter_Compress(t *testing.T) {
	w := newTestWriter(t, Config{MaxSize: 20, Backups: 2, Compress: true})
	for _, s := range []string{"aaaaaaaaa", "bbbbbbbbb", "ccccccccc", "ddddddddd", "eeeeeeeee"} {
		w.Write(s)
	}
	assert.NoFileExists(t, w.Path()+".1", "plain backup is replaced by its gzip")
	gunzip := func(path string) string {
		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		gz, err := gzip.NewReader(f)
		require.NoError(t, err)
		data, err := io.ReadAll(gz)
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, "ccccccccc\nddddddddd\n", gunzip(w.Path()+".1.gz"))
	assert.Equal(t, "aaaaaaaaa\nbbbbbbbbb\n", gunzip(w.Path()+".2.gz"))
	assert.Equal(t, "eeeeeeeee\n", readFile(t, w.Path()))
}

func Test_RollingFileWriter_Encoding(t *testing.T) {
	w := newTestWriter(t, Config{Encoding: "windows-1251"})
	w.Write("привет")
	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEF, 0xF0, 0xE8, 0xE2, 0xE5, 0xF2, '\n'}, data)

	t.Run("utf8_aliases", func(t *testing.T) {
		u := newTestWriter(t, Config{Encoding: "UTF8"})
		u.Write("привет")
		assert.Equal(t, "привет\n", readFile(t, u.Path()))
	})
}

func Test_RollingFileWriter_Reopen(t *testing.T) {
	w := newTestWriter(t, Config{})
	w.Write("before")
	moved := w.Path() + ".moved"
	require.NoError(t, os.Rename(w.Path(), moved))
	w.Write("still old")
	require.NoError(t, w.Reopen())
	w.Write("after")

	assert.Equal(t, "before\nstill old\n", readFile(t, moved))
	assert.Equal(t, "after\n", readFile(t, w.Path()))
	assert.Zero(t, w.Rotations(), "reopen does not rotate")
}

func Test_ReopenAll(t *testing.T) {
	w1 := newTestWriter(t, Config{})
	w2 := newTestWriter(t, Config{})
	for _, w := range []*RollingFileWriter{w1, w2} {
		require.NoError(t, os.Remove(w.Path()))
	}
	require.NoError(t, ReopenAll())
	w1.Write("one")
	w2.Write("two")
	assert.Equal(t, "one\n", readFile(t, w1.Path()))
	assert.Equal(t, "two\n", readFile(t, w2.Path()))
}

func Test_RollingFileWriter_Shutdown(t *testing.T) {
	w := newTestWriter(t, Config{})
	w.Write("kept")
	assert.NoError(t, shutdown(w))
	w.Write("dropped")
	assert.Equal(t, "kept\n", readFile(t, w.Path()))
	assert.NoError(t, w.Reopen(), "reopen after shutdown is a no-op")
	w.Write("dropped again")
	assert.Equal(t, "kept\n", readFile(t, w.Path()))

	called := 0
	w.Shutdown(func(err error) {
		called++
		assert.NoError(t, err)
	})
	assert.Equal(t, 1, called, "second shutdown still calls back")

	reopeners.mtx.Lock()
	_, registered := reopeners.writers[w.reopenID]
	reopeners.mtx.Unlock()
	assert.False(t, registered)
}

func Test_RollingFileWriter_Watch(t *testing.T) {
	w := newTestWriter(t, Config{MaxSize: 10, Backups: 1})
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, ready) }()
	<-ready

	w.Write("rotated1")
	w.Write("rotated2")
	assert.Equal(t, 1, w.Rotations())

	require.NoError(t, os.Remove(w.Path()))
	assert.Eventually(t, func() bool {
		_, err := os.Stat(w.Path())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "removed live file is recreated")
	w.Write("fresh")
	assert.Equal(t, "fresh\n", readFile(t, w.Path()))

	cancel()
	assert.NoError(t, <-done)
}

func Test_RollingFileWriter_Metrics(t *testing.T) {
	pc, err := metrics.NewPrometheusCollector("fwtest")
	require.NoError(t, err)
	w := newTestWriter(t, Config{Name: "rolling", MaxSize: 10, Backups: 1}, WithMetrics(pc))
	w.Write("123456")
	w.Write("123456")
	require.NoError(t, w.Reopen())

	count, err := testutil.GatherAndCount(pc.Registry(),
		"fwtest_file_rotations_total", "fwtest_file_reopens_total", "fwtest_bytes_written_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func Test_RollingFileWriter_OnBus(t *testing.T) {
	var fallback bytes.Buffer
	bus := lgrbus.NewBus(lgrbus.WithFallback(&fallback))
	w := newTestWriter(t, Config{Name: "file"})
	require.NoError(t, lgrbus.Attach(bus, w, "app", lgrbus.LVL_INFO, lgrbus.LineTransformer(lgrbus.TextLayout{})))

	l, err := lgrbus.NewLoggerWithParams("app", lgrbus.LoggerOptions{Bus: bus, Registry: bus.Registry()})
	require.NoError(t, err)
	l.Debug("hidden")
	l.Info("hello", 42)
	l.Error("oops")

	require.NoError(t, bus.ShutdownAndWait())
	assert.Equal(t, "INFO: app: hello 42\nERROR: app: oops\n", readFile(t, w.Path()))
	w.Write("after shutdown")
	assert.NotContains(t, readFile(t, w.Path()), "after shutdown")
	assert.Empty(t, fallback.String())
}
