package lgrbus

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStack = `goroutine 7 [running]:
runtime/debug.Stack()
	/usr/local/go/src/runtime/debug/stack.go:26 +0x5e
example.com/shop/orders.(*Service).Place(0xc000010000, {0x1, 0x2})
	/src/shop/orders/service.go:42 +0x1d
example.com/shop/orders.Handler.ServeHTTP.func1()
	/src/shop/orders/http.go:17 +0x25
main.main()
	/src/shop/main.go:9 +0x3b
created by example.com/shop/worker.Start in goroutine 1
	/src/shop/worker/pool.go:88 +0x99
`

func Test_ParseCallStack(t *testing.T) {
	tests := []struct {
		name      string
		skip      int
		function  string
		class     string
		alias     string
		caller    string
		file      string
		line      int
		lineCount int
	}{
		{"top", 0, "runtime/debug.Stack", "", "Stack", "debug.Stack", "/usr/local/go/src/runtime/debug/stack.go", 26, 10},
		{"pointer_method", 1, "example.com/shop/orders.(*Service).Place", "Service", "Place", "orders.(*Service).Place", "/src/shop/orders/service.go", 42, 8},
		{"closure_in_value_method", 2, "example.com/shop/orders.Handler.ServeHTTP.func1", "Handler", "ServeHTTP", "orders.Handler.ServeHTTP.func1", "/src/shop/orders/http.go", 17, 6},
		{"plain_function", 3, "main.main", "", "main", "main.main", "/src/shop/main.go", 9, 4},
		{"created_by", 4, "example.com/shop/worker.Start", "", "Start", "worker.Start", "/src/shop/worker/pool.go", 88, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs, err := ParseCallStack(sampleStack, tt.skip)
			require.NoError(t, err)
			assert.Equal(t, tt.function, cs.FunctionName)
			assert.Equal(t, tt.class, cs.ClassName)
			assert.Equal(t, tt.alias, cs.FunctionAlias)
			assert.Equal(t, tt.caller, cs.CallerName)
			assert.Equal(t, tt.file, cs.FileName)
			assert.Equal(t, tt.line, cs.LineNumber)
			assert.Zero(t, cs.ColumnNumber)
			assert.Len(t, strings.Split(cs.CallStack, "\n"), tt.lineCount)
		})
	}
	t.Run("too_deep", func(t *testing.T) {
		_, err := ParseCallStack(sampleStack, 5)
		assert.Error(t, err)
	})
	t.Run("negative", func(t *testing.T) {
		_, err := ParseCallStack(sampleStack, -1)
		assert.ErrorIs(t, err, ErrNegativeSkip)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := ParseCallStack("not a stack", 0)
		assert.Error(t, err)
	})
	t.Run("crlf", func(t *testing.T) {
		cs, err := ParseCallStack(strings.ReplaceAll(sampleStack, "\n", "\r\n"), 3)
		require.NoError(t, err)
		assert.Equal(t, "main.main", cs.FunctionName)
	})
}

func Test_captureStack(t *testing.T) {
	_, _, line, _ := runtime.Caller(0)
	stack := captureStack(0)
	cs, err := ParseCallStack(stack, 0)
	require.NoError(t, err)
	assert.Equal(t, "Test_captureStack", cs.FunctionAlias)
	assert.Equal(t, line+1, cs.LineNumber)
	assert.True(t, strings.HasSuffix(cs.FileName, "callstack_test.go"))
}

func Test_ParseCallStack_DebugStack(t *testing.T) {
	cs, err := ParseCallStack(string(debug.Stack()), 1)
	require.NoError(t, err)
	assert.Equal(t, "Test_ParseCallStack_DebugStack", cs.FunctionAlias)
}

func Test_NewError_Stack(t *testing.T) {
	e := NewError("boom")
	cs, err := ParseCallStack(e.StackTrace(), 0)
	require.NoError(t, err)
	assert.Equal(t, "Test_NewError_Stack", cs.FunctionAlias)
	assert.Equal(t, "boom", e.Error())
}
