// Package shell implements the process-facing half of the interpreter:
// command resolution and execution, pipelines, redirections, glob and
// tilde expansion, the job table and the built-in commands. It also
// provides the evaluation driver that runs source text through the
// parse, check and compile phases before executing it.
package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/dolthub/swiss"
	"github.com/mna/roseau/lang/checker"
	"github.com/mna/roseau/lang/compiler"
	"github.com/mna/roseau/lang/machine"
	"github.com/mna/roseau/lang/parser"
	"github.com/mna/roseau/lang/types"
	"golang.org/x/sys/unix"
)

// Phase selects how far Eval drives the language pipeline.
type Phase uint8

//nolint:revive
const (
	PhaseRun Phase = iota
	PhaseParseOnly
	PhaseCheckOnly
	PhaseCompileOnly
)

// Shell is one interpreter instance: type pool, checker, runtime, job
// table, registered user-defined commands and the PATH lookup cache.
type Shell struct {
	Pool    *types.Pool
	Checker *checker.Checker
	RT      *machine.Runtime
	Opts    Options
	Jobs    *JobTable

	ScriptName string
	Args       []string

	udcs      map[string]*compiler.Code
	pathCache *swiss.Map[string, string]

	stdin  *os.File
	stdout *os.File
	stderr *os.File

	listening bool
}

// New creates a shell with a fresh pool, checker and runtime.
func New(opts Options) *Shell {
	pool := types.NewPool()
	chk := checker.New(pool)
	s := &Shell{
		Pool:      pool,
		Checker:   chk,
		Opts:      opts,
		Jobs:      NewJobTable(),
		udcs:      make(map[string]*compiler.Code),
		pathCache: swiss.NewMap[string, string](16),
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
	s.RT = machine.NewRuntime(pool, chk.GlobalNum())
	s.RT.Exec = s
	s.installPredefined()
	return s
}

// installPredefined populates the global slots of the predefined symbols
// declared by the checker.
func (s *Shell) installPredefined() {
	pool := s.Pool
	for _, sym := range s.Checker.Predefined() {
		var v machine.Value
		switch sym.Name {
		case "true":
			v = &machine.Bool{T: pool.Boolean, V: true}
		case "false":
			v = &machine.Bool{T: pool.Boolean, V: false}
		case "?":
			s.RT.ExitStatusIndex = sym.Index
			v = &machine.Int{T: pool.Int, V: 0}
		case "#":
			v = &machine.Int{T: pool.Int, V: int64(len(s.Args))}
		case "@":
			arr := &machine.Array{T: pool.StringArray}
			for _, a := range s.Args {
				arr.Elems = append(arr.Elems, &machine.Str{T: pool.String, V: a})
			}
			v = arr
		case "0":
			v = &machine.Str{T: pool.String, V: s.ScriptName}
		case "$", "PID":
			v = &machine.Int{T: pool.Int, V: int64(os.Getpid())}
		case "PPID":
			v = &machine.Int{T: pool.Int, V: int64(os.Getppid())}
		case "IFS":
			v = &machine.Str{T: pool.String, V: " \t\n"}
		case "REPLY":
			v = &machine.Str{T: pool.String}
		case "OSTYPE":
			v = &machine.Str{T: pool.String, V: runtime.GOOS}
		case "MACHTYPE":
			v = &machine.Str{T: pool.String, V: runtime.GOARCH}
		case "VERSION":
			v = &machine.Str{T: pool.String, V: checker.Version}
		case "SCRIPT_DIR":
			dir, _ := filepath.Abs(filepath.Dir(s.ScriptName))
			v = &machine.Str{T: pool.String, V: dir}
		case "SCRIPT_NAME":
			v = &machine.Str{T: pool.String, V: filepath.Base(s.ScriptName)}
		default:
			if i, err := strconv.Atoi(sym.Name); err == nil && i >= 1 {
				arg := ""
				if i <= len(s.Args) {
					arg = s.Args[i-1]
				}
				v = &machine.Str{T: pool.String, V: arg}
			} else {
				v = &machine.Str{T: pool.String}
			}
		}
		s.RT.Globals[sym.Index] = v
	}
}

// SetScript installs the script name and positional arguments. Must be
// called before the first Eval.
func (s *Shell) SetScript(name string, args []string) {
	s.ScriptName = name
	s.Args = args
	s.installPredefined()
}

// SetStdio replaces the standard descriptors of the interpreter.
func (s *Shell) SetStdio(in, out, errf *os.File) {
	s.stdin, s.stdout, s.stderr = in, out, errf
	s.RT.Stdin, s.RT.Stdout, s.RT.Stderr = in, out, errf
}

// ExitError is returned by Eval when the script executed the exit
// built-in; finally blocks have already run.
type ExitError struct {
	Status int
	Trace  machine.Value
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit %d", e.Status) }

// Eval runs one source unit through the requested phases. It returns the
// exit status of the unit.
func (s *Shell) Eval(name string, src []byte, phase Phase) (int, error) {
	root, file, err := parser.ParseFile(name, src)
	if err != nil {
		return 1, err
	}
	if phase == PhaseParseOnly {
		return 0, nil
	}

	if err := s.Checker.Check(file, root); err != nil {
		return 1, err
	}
	if phase == PhaseCheckOnly {
		return 0, nil
	}

	code := compiler.Compile(s.Pool, file, root)
	if phase == PhaseCompileOnly {
		return 0, nil
	}
	return s.Run(code)
}

// Run executes a compiled toplevel unit: user-defined commands are
// registered first, then the code runs on a fresh thread. An uncaught
// error prints its stack trace and yields status 1; the exit built-in is
// surfaced as *ExitError.
func (s *Shell) Run(code *compiler.Code) (int, error) {
	for _, u := range code.Udcs {
		s.udcs[u.Name] = u
	}

	th := machine.NewThread(s.RT)
	if !s.listening {
		s.listening = true
		s.RT.Signals.Listen(unix.SIGINT, unix.SIGCHLD, unix.SIGTSTP)
	}

	_, err := th.EvalToplevel(code)
	if err != nil {
		if v := machine.Raised(err); v != nil {
			if e, ok := v.(*machine.Error); ok && e.T == s.Pool.ShellExit {
				if s.Opts.TraceExit {
					machine.PrintTrace(s.stderr, v)
				}
				s.RT.InvokeTermHook(th, v)
				return e.Status, &ExitError{Status: e.Status, Trace: v}
			}
			machine.PrintTrace(s.stderr, v)
			s.RT.InvokeTermHook(th, v)
			s.RT.SetExitStatus(1)
			return 1, nil
		}
		return 1, err
	}
	return s.RT.ExitStatus(), nil
}

// EvalFile sources a script file in this interpreter.
func (s *Shell) EvalFile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 1, err
	}
	return s.Eval(path, b, PhaseRun)
}
