package machine

import (
	"fmt"
	"os"

	"github.com/mna/roseau/lang/compiler"
	"github.com/mna/roseau/lang/types"
)

// MaxFrames bounds the frame stack depth.
const MaxFrames = 2048

// Executor is the process-execution surface consumed by the machine:
// running commands and pipelines, forking evaluation into children and
// applying redirections. It is implemented by the shell package.
type Executor interface {
	// CallCommand runs a single resolved command and returns its exit
	// status.
	CallCommand(th *Thread, cmd *Cmd) (int, error)

	// CallPipeline runs the commands connected by pipes and returns the
	// last command's exit status.
	CallPipeline(th *Thread, cmds []*Cmd) (int, error)

	// Fork evaluates the code in a child context per the fork kind and
	// returns the resulting value (a Job, String or [String]).
	Fork(th *Thread, kind compiler.ForkKind, code *compiler.Code, locals []Value) (Value, error)

	// WithRedir evaluates the code with the holder's redirections applied
	// to the current process, restoring the previous descriptors after.
	WithRedir(th *Thread, holder *Cmd, code *compiler.Code, locals []Value) (Value, error)
}

// Runtime is the shared interpreter state: the type pool, the global
// variable table, the native method table, the signal queue and the
// process executor.
type Runtime struct {
	Pool    *types.Pool
	Globals []Value
	Exec    Executor
	Signals *SignalQueue

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// ExitStatusIndex is the global slot of the $? variable.
	ExitStatusIndex int

	// DisableAssert skips assert statements when set.
	DisableAssert bool

	methods  []NativeMethod
	handler  map[int]*Function // user signal handlers by signal number
	termHook *Function         // invoked before exit or after an uncaught error
}

// NewRuntime creates a runtime for the pool with the global table sized
// for globalNum slots.
func NewRuntime(pool *types.Pool, globalNum int) *Runtime {
	r := &Runtime{
		Pool:    pool,
		Globals: make([]Value, globalNum),
		Signals: NewSignalQueue(),
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		handler: make(map[int]*Function),
	}
	r.methods = buildMethodTable(pool)
	return r
}

// EnsureGlobals grows the global table to at least n slots, for
// interactive sessions that evaluate multiple units.
func (r *Runtime) EnsureGlobals(n int) {
	for len(r.Globals) < n {
		r.Globals = append(r.Globals, nil)
	}
}

// SetExitStatus stores the last command status in the $? global.
func (r *Runtime) SetExitStatus(status int) {
	r.Globals[r.ExitStatusIndex] = &Int{T: r.Pool.Int, V: int64(status)}
}

// ExitStatus returns the last command status.
func (r *Runtime) ExitStatus() int {
	if v, ok := r.Globals[r.ExitStatusIndex].(*Int); ok {
		return int(v.V)
	}
	return 0
}

// SetSignalHandler installs fn as the handler of the signal, removing it
// when fn is nil.
func (r *Runtime) SetSignalHandler(sig int, fn *Function) {
	if fn == nil {
		delete(r.handler, sig)
		return
	}
	r.handler[sig] = fn
}

// SetTermHook installs the termination hook, invoked once before the
// shell exits or after an uncaught toplevel error. A nil fn removes it.
func (r *Runtime) SetTermHook(fn *Function) { r.termHook = fn }

// InvokeTermHook runs the termination hook with the terminating value
// (the uncaught error or the exit value). Signal delivery is masked for
// the duration of the hook so it cannot be re-entered.
func (r *Runtime) InvokeTermHook(th *Thread, v Value) {
	hook := r.termHook
	if hook == nil {
		return
	}
	r.termHook = nil // the hook runs at most once
	r.Signals.Mask()
	defer r.Signals.Unmask()
	_, _ = th.CallFunction(hook, []Value{v})
}

// Thread is one evaluation thread of the runtime. The interpreter is
// single-threaded, but forked evaluations get their own thread over a
// snapshot of the runtime.
type Thread struct {
	RT     *Runtime
	frames int
}

// NewThread creates a thread over the runtime.
func NewThread(rt *Runtime) *Thread { return &Thread{RT: rt} }

// raised is the in-flight thrown value travelling across frames during
// unwinding.
type raised struct {
	v Value
}

func (r *raised) Error() string { return r.v.String() }

// Raised returns the thrown value when err carries one, nil otherwise.
func Raised(err error) Value {
	if r, ok := err.(*raised); ok {
		return r.v
	}
	return nil
}

// Throw wraps a value into the error used for unwinding.
func Throw(v Value) error { return &raised{v: v} }

// RaiseError creates and throws an error value of the given type.
func (th *Thread) RaiseError(t *types.Type, format string, args ...any) error {
	return Throw(&Error{T: t, Message: fmt.Sprintf(format, args...)})
}
