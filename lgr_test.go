package lgrbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_DefaultRegistry(t *testing.T) {
	var wg sync.WaitGroup
	regs := make([]*LevelRegistry, 10)
	for i := range regs {
		wg.Go(func() { regs[i] = DefaultRegistry() })
	}
	wg.Wait()
	for _, r := range regs {
		assert.Same(t, regs[0], r)
	}
	assert.NotNil(t, regs[0].Get(LVL_INFO))
}

func Test_DefaultBus(t *testing.T) {
	var wg sync.WaitGroup
	buses := make([]*Bus, 10)
	for i := range buses {
		wg.Go(func() { buses[i] = DefaultBus() })
	}
	wg.Wait()
	for _, b := range buses {
		assert.Same(t, buses[0], b)
	}
	b := buses[0]
	assert.True(t, b.IsActive())
	assert.True(t, b.IsPrimary(), "standalone without LGRBUS_ROLE")
	assert.Same(t, DefaultRegistry(), b.Registry())
	assert.Same(t, b, InitDefaultBus(WithBufferSize(1)), "options of late calls are ignored")

	l := NewLogger("default-bus-test")
	sink := listen(t, b, newRecWriter("default-bus-test"), "default-bus-test", nil)
	l.Info(testlogstr)
	assert.NoError(t, b.Flush())
	if assert.Len(t, sink.get(), 1) {
		assert.Equal(t, []any{testlogstr}, sink.get()[0].Data())
	}
}

func Test_busHolder_ShutdownBeforeUse(t *testing.T) {
	var h busHolder
	called := 0
	h.shutdown(func(err error) {
		called++
		assert.NoError(t, err)
	})
	assert.Equal(t, 1, called, "unused bus: done called right away")

	created := 0
	b := h.get(func() *Bus {
		created++
		return NewBus()
	})
	if !assert.NotNil(t, b, "shutdown did not consume the creation") {
		return
	}
	assert.True(t, b.IsActive())
	assert.Same(t, b, h.get(func() *Bus { return nil }))
	assert.Equal(t, 1, created)

	l, err := NewLoggerWithParams("app", LoggerOptions{Bus: b, Registry: b.Registry()})
	require.NoError(t, err)
	sink := listen(t, b, newRecWriter("holder"), "app", nil)
	assert.NotPanics(t, func() { l.Info("hello") })
	require.NoError(t, b.Flush())
	assert.Len(t, sink.get(), 1)

	h.shutdown(nil)
	<-b.Done()
	assert.False(t, b.IsActive())
}
