// Package machine implements the virtual machine that executes the
// bytecode-compiled form of the source code, along with the runtime
// representation of the language values.
package machine

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/mna/roseau/lang/compiler"
	"github.com/mna/roseau/lang/types"
	"golang.org/x/sys/unix"
)

// Value is the interface implemented by any value manipulated by the
// machine. Values are garbage-collected by the host; the UnixFD value
// additionally owns its descriptor and closes it exactly once.
type Value interface {
	// VType returns the pool type of the value.
	VType() *types.Type

	// String returns the display representation of the value, as produced
	// by the string conversion method.
	String() string
}

type (
	// Int is a signed integer value of any of the signed integer types.
	Int struct {
		T *types.Type
		V int64
	}

	// Uint is an unsigned integer value of any of the unsigned types.
	Uint struct {
		T *types.Type
		V uint64
	}

	// Float is a Float value.
	Float struct {
		T *types.Type
		V float64
	}

	// Bool is a Boolean value.
	Bool struct {
		T *types.Type
		V bool
	}

	// Str is an immutable String value.
	Str struct {
		T *types.Type
		V string
	}

	// Regex is a compiled Regex value.
	Regex struct {
		T  *types.Type
		Re *regexp.Regexp
	}

	// Signal is a Signal value.
	Signal struct {
		T   *types.Type
		Sig unix.Signal
	}

	// Array is a mutable array value.
	Array struct {
		T     *types.Type
		Elems []Value
	}

	// Tuple is a fixed-size compound value.
	Tuple struct {
		T      *types.Type
		Fields []Value
	}

	// Error is an error value with its message and captured stack trace.
	// Status carries the exit status for the internal _ShellExit value.
	Error struct {
		T       *types.Type
		Message string
		Status  int
		Trace   []TraceFrame
	}

	// Function is a compiled function value.
	Function struct {
		T    *types.Type
		Code *compiler.Code
	}

	// FD is a UnixFD value owning a file descriptor. The descriptor is
	// closed exactly once, unless ownership was moved out by Detach.
	FD struct {
		T        *types.Type
		File     *os.File
		closed   bool
		detached bool
	}

	// Invalid is the empty Option value.
	Invalid struct{}

	// Job is a job handle value; the concrete job lives in the process
	// executor.
	Job struct {
		T *types.Type
		H JobHandle
	}

	// Cmd is a command under construction: name, expanded arguments and
	// redirections, consumed by the process executor.
	Cmd struct {
		T      *types.Type
		Name   string
		Argv   []string
		Flags  []ArgFlag
		Redirs []Redir
	}
)

// ArgFlag marks an argv entry that requires expansion by the executor.
type ArgFlag struct {
	Index int
	Flags uint8
}

// Argument expansion flag bits.
const (
	ArgGlob  uint8 = 1 << 0
	ArgTilde uint8 = 1 << 1
)

// Redir is one redirection of a command.
type Redir struct {
	Op     compiler.RedirOp
	Target string
}

// TraceFrame is one entry of an error value's stack trace.
type TraceFrame struct {
	Source string
	Line   int
	Name   string
}

// JobHandle abstracts the process executor's job object.
type JobHandle interface {
	Wait() int
	Kill(sig unix.Signal) error
	Detach()
	Size() int
	Pid(i int) int
	Running() bool
	JobID() int
}

func (v *Int) VType() *types.Type { return v.T }
func (v *Int) String() string     { return strconv.FormatInt(v.V, 10) }

func (v *Uint) VType() *types.Type { return v.T }
func (v *Uint) String() string     { return strconv.FormatUint(v.V, 10) }

func (v *Float) VType() *types.Type { return v.T }
func (v *Float) String() string     { return strconv.FormatFloat(v.V, 'g', -1, 64) }

func (v *Bool) VType() *types.Type { return v.T }
func (v *Bool) String() string {
	if v.V {
		return "true"
	}
	return "false"
}

func (v *Str) VType() *types.Type { return v.T }
func (v *Str) String() string     { return v.V }

func (v *Regex) VType() *types.Type { return v.T }
func (v *Regex) String() string     { return v.Re.String() }

func (v *Signal) VType() *types.Type { return v.T }
func (v *Signal) String() string     { return strconv.Itoa(int(v.Sig)) }

func (v *Array) VType() *types.Type { return v.T }
func (v *Array) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, e := range v.Elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

func (v *Tuple) VType() *types.Type { return v.T }
func (v *Tuple) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, e := range v.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (v *Error) VType() *types.Type { return v.T }
func (v *Error) String() string     { return v.T.Name() + ": " + v.Message }

func (v *Function) VType() *types.Type { return v.T }
func (v *Function) String() string {
	return fmt.Sprintf("function(%s)", v.Code.Name)
}

func (v *FD) VType() *types.Type { return v.T }
func (v *FD) String() string {
	if v.File == nil {
		return "fd(closed)"
	}
	return fmt.Sprintf("fd(%d)", v.File.Fd())
}

// Close closes the descriptor; it is a no-op when already closed or
// detached.
func (v *FD) Close() error {
	if v.closed || v.detached || v.File == nil {
		return nil
	}
	v.closed = true
	return v.File.Close()
}

// Detach moves the descriptor ownership out of the value, so that Close
// becomes a no-op. It returns the file.
func (v *FD) Detach() *os.File {
	v.detached = true
	return v.File
}

func (v *Invalid) VType() *types.Type { return nil }
func (v *Invalid) String() string     { return "(invalid)" }

func (v *Job) VType() *types.Type { return v.T }
func (v *Job) String() string     { return fmt.Sprintf("%%%d", v.H.JobID()) }

func (v *Cmd) VType() *types.Type { return v.T }
func (v *Cmd) String() string     { return v.Name }

// None is the shared empty Option value.
var None = &Invalid{}

// Truth returns the Boolean truth of a value in condition position.
func Truth(v Value) bool {
	switch x := v.(type) {
	case *Bool:
		return x.V
	case *Invalid:
		return false
	}
	return true
}
