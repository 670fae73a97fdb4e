package wstransport

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mtx  sync.Mutex
	msgs []string
}

func (c *collector) handle(b []byte) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.msgs = append(c.msgs, string(b))
}

func (c *collector) get() []string {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]string(nil), c.msgs...)
}

func mountPrimary(t *testing.T) (*Primary, string) {
	t.Helper()
	p, err := NewPrimary("")
	require.NoError(t, err)
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return p, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func Test_Worker_SendToPrimary(t *testing.T) {
	p, url := mountPrimary(t)
	c := &collector{}
	p.OnMessageFromWorker(c.handle)

	w := NewWorker(url, 3)
	assert.False(t, w.IsPrimary())
	assert.Equal(t, 3, w.WorkerID())
	for _, m := range []string{"one", "two", "three"} {
		require.NoError(t, w.SendToPrimary([]byte(m)))
	}
	assert.Eventually(t, func() bool { return len(c.get()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, c.get())
	assert.Equal(t, 1, p.ConnectedWorkers())

	require.NoError(t, w.Close())
	assert.Eventually(t, func() bool { return p.ConnectedWorkers() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Error(t, w.SendToPrimary([]byte("late")))
	require.NoError(t, p.Close())
}

func Test_Worker_Unreachable(t *testing.T) {
	w := NewWorker("ws://127.0.0.1:1/lgrbus", 1, WithRetryTime(300*time.Millisecond), WithDialTimeout(100*time.Millisecond))
	err := w.SendToPrimary([]byte("x"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "TRANSPORT.SEND_FAILED")
	assert.NoError(t, w.Close())
}

func Test_Primary_Listen(t *testing.T) {
	p, err := NewPrimary("127.0.0.1:0")
	require.NoError(t, err)
	assert.True(t, p.IsPrimary())
	assert.Equal(t, 0, p.WorkerID())
	assert.Error(t, p.SendToPrimary([]byte("x")))
	assert.True(t, strings.HasPrefix(p.URL(), "ws://127.0.0.1:"))
	assert.True(t, strings.HasSuffix(p.URL(), DEFAULT_PATH))

	c := &collector{}
	p.OnMessageFromWorker(c.handle)
	w := NewWorker(p.URL(), 2)
	require.NoError(t, w.SendToPrimary([]byte("hello")))
	assert.Eventually(t, func() bool { return len(c.get()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Close())
	assert.NoError(t, p.Close())
	w.Close()
}

func Test_Primary_Addr_NotListening(t *testing.T) {
	p, err := NewPrimary("")
	require.NoError(t, err)
	assert.Empty(t, p.Addr())
	assert.Empty(t, p.URL())
	assert.NoError(t, p.Close())
}
