package lgrbus

import (
	"bytes"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Parallel_Multithreading(t *testing.T) {
	const (
		_MAXDATALEN_ = 200 // Max len of message to be logged
		_DATACOUNT_  = 200 // Number of messages every goroutine/logger has to log
		_GOROUTINES_ = 200 // Number of simultaneous goroutines/loggers logging
	)
	type jobType struct {
		lgr  *Logger
		task [_DATACOUNT_]int
		curr int
	}
	type dataType struct {
		byteArr []byte
	}
	var strings [_DATACOUNT_]dataType
	var workers [_GOROUTINES_]jobType
	var wg sync.WaitGroup
	hold := make(chan int)

	//Rand := rand.New(rand.NewSource(0)) // repeatable results
	Rand := rand.New(rand.NewSource(time.Now().UnixNano())) // stochastic

	// Count the size of logger name (digits in GOROUTINES)
	namesize := 0
	for i := _GOROUTINES_; i > 0; i /= 10 {
		namesize += 1
	}

	// Generate random log data and count total planned output size
	plantotal := 0
	for i := range _DATACOUNT_ {
		datalen := Rand.Intn(_MAXDATALEN_) + 1 // next string length (no zero-length for better output analysis)
		plantotal += namesize + datalen + 1    // planned log output length (<logger_name> + <data> + '\n')
		strings[i].byteArr = make([]byte, datalen)
		for j := range datalen {
			const first, last = 0, 255 // printable: 33..126, letters: 97..122, digits: 48..57, byte-wide: 0..255
			// random code from first to last
			strings[i].byteArr[j] = byte(Rand.Intn(last+1-first)) + first
		}
	}
	plantotal *= _GOROUTINES_ // Each goroutine/logger logs all strings

	// fallback has to be clear after job done, output gets total planned
	// capacity (to avoid slice extends)
	ferr := &FakeWriter{}
	out1 := &FakeWriter{buffer: make([]byte, 0, plantotal)}
	b := NewBus(WithRegistry(newTestRegistry(t)), WithFallback(ferr), WithBufferSize(_DATACOUNT_*_GOROUTINES_))
	w := NewIOWriter("out1", out1, nil)
	// no level names and delimiters - it's better to test them in other tests
	raw := func(ev *Event, _ string, _ any) []byte {
		data := ev.Data()[0].([]byte)
		line := make([]byte, 0, namesize+len(data)+1)
		line = append(line, ev.LoggerName()...)
		line = append(line, data...)
		return append(line, '\n')
	}

	// One logger per goroutine, all of them attached to the same writer, and
	// a shuffled log strings order in each job
	for i := range _GOROUTINES_ {
		name := fmt.Sprintf("%0"+strconv.Itoa(namesize)+"d", i)
		l, err := NewLoggerWithParams(name, LoggerOptions{Registry: b.Registry(), Bus: b, Level: LVL_ALL})
		require.NoError(t, err)
		require.NoError(t, Attach(b, w, name, LVL_ALL, raw))
		workers[i].lgr = l
		for j, s := range Rand.Perm(_DATACOUNT_) { // shuffle strings order (on step i worker will log strings[task[i]])
			workers[i].task[j] = s // task #j is to log string #s
		}
	}

	// Goroutines
	goWorker := func(n int) {
		defer wg.Done()
		for range hold { // wait until channel is closed (to start all together)
		}
		for i := range _DATACOUNT_ {
			data := &strings[workers[n].task[i]] // get data by index from current task
			workers[n].lgr.Mark(data.byteArr)
		}
	}
	for i := range _GOROUTINES_ {
		wg.Add(1)
		go goWorker(i)
	}
	close(hold) // unhold all goroutines
	wg.Wait()   // wait all workers/goroutines finished
	// wait for the bus to have processed all messages
	require.NoError(t, b.ShutdownAndWait())

	// Check results
	realtotal := len(out1.buffer)
	assert.Equal(t, plantotal, realtotal, "wrong output total length") // total size of all messages has to be equal to planned
	assert.Empty(t, ferr.buffer, "unexpected fallback errors writes")  // no errors have to be written to fallback

	// Check all log messages are delivered in correct per-logger order
	pos := 0
	var name string        // logger name (i.e. worker number)
	var workerId int       // worker number
	var taskData *dataType // data had to be written
	var err error

	for pos < realtotal {
		// Get logger name (i.e. worker number)
		name = string(out1.buffer[pos : pos+namesize])
		workerId, err = strconv.Atoi(name)
		if err != nil {
			err = fmt.Errorf("Pos %d: logger name convertion error (string %s, error %s)", pos, name, err.Error())
			break
		}
		pos += namesize

		// Compare data in next worker's task and output
		worker := &workers[workerId]                    // which logger/worker has written this line
		taskData = &(strings[worker.task[worker.curr]]) // which data had to be written according to worker's next task
		tasklen := len(taskData.byteArr)
		if pos+tasklen+1 > realtotal { // current position + data length + \n
			err = fmt.Errorf("Pos %d: no enough data left (logger %s, task %d)",
				pos, name, workers[workerId].curr)
			break
		}
		if !bytes.Equal(taskData.byteArr, out1.buffer[pos:pos+tasklen]) {
			err = fmt.Errorf("Pos %d: data not equal (logger %s, task %d):\nwanted: %s\ngot%s",
				pos, name, workers[workerId].curr, taskData.byteArr, out1.buffer[pos:pos+tasklen])
			break
		}
		pos += tasklen
		if out1.buffer[pos] != '\n' {
			err = fmt.Errorf("Pos %d: no \\n an the end (logger %s, task %d)",
				pos, name, workers[workerId].curr)
			break
		}
		pos += 1
		workers[workerId].curr += 1
	}
	assert.NoError(t, err, "error parsing output")
}
