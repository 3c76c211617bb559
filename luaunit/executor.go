package luaunit

import (
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// executor serializes all operations on one Lua state through a single
// goroutine. Operations are queued and run in order; Close drains the
// state and frees it.
type executor struct {
	L     *lua.LState
	queue chan func(L *lua.LState)
	done  chan struct{}
	once  sync.Once
}

// newExecutor creates an executor and starts its goroutine.
func newExecutor(L *lua.LState, queueSize int) *executor {
	if queueSize <= 0 {
		queueSize = 64
	}
	e := &executor{
		L:     L,
		queue: make(chan func(L *lua.LState), queueSize),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

// run owns the Lua state. All state access happens here.
func (e *executor) run() {
	for {
		select {
		case fn := <-e.queue:
			fn(e.L)
		case <-e.done:
			e.L.Close()
			return
		}
	}
}

// do queues an operation for execution on the state's goroutine.
// Returns false if the executor is closed.
func (e *executor) do(fn func(L *lua.LState)) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.queue <- fn:
		return true
	case <-e.done:
		return false
	}
}

// doSync queues an operation and waits for it to complete.
func (e *executor) doSync(fn func(L *lua.LState)) bool {
	ch := make(chan struct{})
	ok := e.do(func(L *lua.LState) {
		defer close(ch)
		fn(L)
	})
	if !ok {
		return false
	}
	<-ch
	return true
}

// close shuts the executor down. Queued operations may be dropped.
func (e *executor) close() {
	e.once.Do(func() { close(e.done) })
}
