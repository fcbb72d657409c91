package shell

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mna/roseau/lang/compiler"
	"github.com/mna/roseau/lang/machine"
)

// resolved is the result of command-name resolution.
type resolved struct {
	udc     *compiler.Code
	builtin builtinFunc
	path    string // external command path
}

// resolve looks up a command name: user-defined commands first, then
// built-ins, then external programs through the PATH cache.
func (s *Shell) resolve(name string) (resolved, error) {
	if c, ok := s.udcs[name]; ok {
		return resolved{udc: c}, nil
	}
	if fn, ok := builtins[name]; ok {
		return resolved{builtin: fn}, nil
	}
	p, err := s.lookPath(name)
	if err != nil {
		return resolved{}, err
	}
	return resolved{path: p}, nil
}

// lookPath resolves an external command against the PATH cache; a stale
// cache entry whose file no longer exists is dropped and the search
// retried.
func (s *Shell) lookPath(name string) (string, error) {
	if strings.ContainsRune(name, '/') {
		return name, nil
	}
	if p, ok := s.pathCache.Get(name); ok {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		s.pathCache.Delete(name)
	}
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" {
			dir = "."
		}
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err != nil || info.IsDir() || info.Mode()&0o111 == 0 {
			continue
		}
		s.pathCache.Put(name, p)
		return p, nil
	}
	return "", &notFoundError{name: name}
}

type notFoundError struct{ name string }

func (e *notFoundError) Error() string { return e.name + ": command not found" }

// stdio is the descriptor triple of one executing command.
type stdio struct {
	in       *os.File
	out      *os.File
	err      *os.File
	closers  []*os.File
	restored func()
}

func (sio *stdio) close() {
	for _, f := range sio.closers {
		f.Close()
	}
	if sio.restored != nil {
		sio.restored()
	}
}

// applyRedirs opens the redirection targets over a base stdio. The
// returned stdio owns the opened files.
func (s *Shell) applyRedirs(base stdio, redirs []machine.Redir) (stdio, error) {
	sio := base
	open := func(name string, flag int) (*os.File, error) {
		f, err := os.OpenFile(name, flag, 0o644)
		if err != nil {
			return nil, err
		}
		sio.closers = append(sio.closers, f)
		return f, nil
	}
	for _, r := range redirs {
		switch r.Op {
		case compiler.RedirIn:
			f, err := open(r.Target, os.O_RDONLY)
			if err != nil {
				return sio, err
			}
			sio.in = f
		case compiler.RedirOut:
			f, err := open(r.Target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
			if err != nil {
				return sio, err
			}
			sio.out = f
		case compiler.RedirAppend:
			f, err := open(r.Target, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
			if err != nil {
				return sio, err
			}
			sio.out = f
		case compiler.RedirErr:
			f, err := open(r.Target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
			if err != nil {
				return sio, err
			}
			sio.err = f
		case compiler.RedirErrAppend:
			f, err := open(r.Target, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
			if err != nil {
				return sio, err
			}
			sio.err = f
		case compiler.RedirMerge:
			f, err := open(r.Target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
			if err != nil {
				return sio, err
			}
			sio.out, sio.err = f, f
		case compiler.RedirMergeApp:
			f, err := open(r.Target, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
			if err != nil {
				return sio, err
			}
			sio.out, sio.err = f, f
		case compiler.RedirErr2Out:
			sio.err = sio.out
		case compiler.RedirOut2Err:
			sio.out = sio.err
		case compiler.RedirHereStr:
			pr, pw, err := os.Pipe()
			if err != nil {
				return sio, err
			}
			sio.closers = append(sio.closers, pr)
			go func() {
				io.WriteString(pw, r.Target+"\n")
				pw.Close()
			}()
			sio.in = pr
		}
	}
	return sio, nil
}

// expandCmd applies tilde and glob expansion to the command's argv.
func (s *Shell) expandCmd(c *machine.Cmd) ([]string, error) {
	flagAt := make(map[int]uint8, len(c.Flags))
	for _, f := range c.Flags {
		flagAt[f.Index] = f.Flags
	}
	out := make([]string, 0, len(c.Argv))
	for i, a := range c.Argv {
		flags := flagAt[i]
		if flags&machine.ArgTilde != 0 {
			a = s.expandTilde(a)
		}
		if flags&machine.ArgGlob != 0 {
			matches, err := s.expandGlob(a)
			if err != nil {
				return nil, err
			}
			out = append(out, matches...)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// CallCommand runs a single command. A built-in or user-defined command
// executes in the current process when it has no pipeline neighbors.
func (s *Shell) CallCommand(th *machine.Thread, c *machine.Cmd) (int, error) {
	res, err := s.resolve(c.Name)
	if err != nil {
		errln(s.stderr, err)
		return 127, nil
	}

	argv, err := s.expandCmd(c)
	if err != nil {
		return 1, th.RaiseError(s.Pool.SystemError, "%s", err)
	}

	base := stdio{in: s.stdin, out: s.stdout, err: s.stderr}
	sio, err := s.applyRedirs(base, c.Redirs)
	if err != nil {
		sio.close()
		return 1, th.RaiseError(s.Pool.SystemError, "%s", err)
	}
	defer sio.close()

	switch {
	case res.udc != nil:
		return s.runUdc(th, res.udc, argv, sio)
	case res.builtin != nil:
		return s.runBuiltin(th, res.builtin, c.Name, argv, sio)
	default:
		proc, err := s.startExternal(res.path, append([]string{c.Name}, argv...), sio, 0)
		if err != nil {
			errln(s.stderr, err)
			return 126, nil
		}
		st, _ := proc.Wait()
		os.Setenv("_", res.path)
		return exitStatusOf(st), nil
	}
}

// CallPipeline runs the commands connected by pipes; the last command's
// status is the pipeline's status.
func (s *Shell) CallPipeline(th *machine.Thread, cmds []*machine.Cmd) (int, error) {
	n := len(cmds)
	type running struct {
		proc *os.Process
		ch   chan int
	}
	procs := make([]running, n)

	var prevRead *os.File
	var status int
	for i, c := range cmds {
		var pr, pw *os.File
		if i < n-1 {
			var err error
			pr, pw, err = os.Pipe()
			if err != nil {
				return 1, th.RaiseError(s.Pool.SystemError, "%s", err)
			}
		}

		base := stdio{in: s.stdin, out: s.stdout, err: s.stderr}
		if prevRead != nil {
			base.in = prevRead
		}
		if pw != nil {
			base.out = pw
		}
		sio, err := s.applyRedirs(base, c.Redirs)
		if err != nil {
			sio.close()
			return 1, th.RaiseError(s.Pool.SystemError, "%s", err)
		}

		res, rerr := s.resolve(c.Name)
		argv, aerr := s.expandCmd(c)
		if aerr != nil {
			sio.close()
			return 1, th.RaiseError(s.Pool.SystemError, "%s", aerr)
		}

		switch {
		case rerr != nil:
			errln(s.stderr, rerr)
			procs[i].ch = doneChan(127)
			sio.close()
			if pw != nil {
				pw.Close()
			}
		case res.path != "":
			proc, err := s.startExternal(res.path, append([]string{c.Name}, argv...), sio, 0)
			// the parent closes its copies of the pipe ends right away
			sio.close()
			if pw != nil {
				pw.Close()
			}
			if err != nil {
				errln(s.stderr, err)
				procs[i].ch = doneChan(126)
			} else {
				procs[i].proc = proc
			}
		default:
			// built-ins and user-defined commands run on their own
			// goroutine inside the pipeline; the write end closes when
			// the command finishes so the reader sees EOF
			ch := make(chan int, 1)
			procs[i].ch = ch
			sub := s.subshell()
			sio := sio
			res := res
			argv := argv
			name := c.Name
			pw := pw
			go func() {
				defer func() {
					sio.close()
					if pw != nil {
						pw.Close()
					}
				}()
				sth := machine.NewThread(sub.RT)
				var st int
				if res.udc != nil {
					st, _ = sub.runUdc(sth, res.udc, argv, sio)
				} else {
					st, _ = sub.runBuiltin(sth, res.builtin, name, argv, sio)
				}
				ch <- st
			}()
		}

		if prevRead != nil {
			prevRead.Close()
		}
		prevRead = pr
	}

	// reap in order; the last status wins
	for i := range procs {
		var st int
		switch {
		case procs[i].proc != nil:
			ps, _ := procs[i].proc.Wait()
			st = exitStatusOf(ps)
		case procs[i].ch != nil:
			st = <-procs[i].ch
		}
		status = st
	}
	return status, nil
}

func doneChan(status int) chan int {
	ch := make(chan int, 1)
	ch <- status
	return ch
}

// startExternal spawns an external program with the descriptor triple.
func (s *Shell) startExternal(path string, argv []string, sio stdio, pgid int) (*os.Process, error) {
	attr := &os.ProcAttr{
		Files: []*os.File{sio.in, sio.out, sio.err},
		Env:   os.Environ(),
		Sys:   procSysAttr(s.Opts.Monitor, pgid),
	}
	return os.StartProcess(path, argv, attr)
}

func exitStatusOf(ps *os.ProcessState) int {
	if ps == nil {
		return 1
	}
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok {
		return ps.ExitCode()
	}
	switch {
	case ws.Signaled():
		return 128 + int(ws.Signal())
	case ws.Stopped():
		return 128 + int(ws.StopSignal())
	}
	return ws.ExitStatus()
}

// runUdc runs a user-defined command body with the positional arguments.
func (s *Shell) runUdc(th *machine.Thread, code *compiler.Code, argv []string, sio stdio) (int, error) {
	sub := s.withStdio(sio)
	locals := make([]machine.Value, code.LocalVarNum)
	sth := machine.NewThread(sub.RT)
	_, err := sth.EvalCode(code, locals)
	_ = argv // positional parameters of commands resolve against $@ of the unit
	if err != nil {
		if v := machine.Raised(err); v != nil {
			if e, ok := v.(*machine.Error); ok && e.T == s.Pool.ShellExit {
				return e.Status, nil
			}
			return 1, err
		}
		return 1, err
	}
	return sub.RT.ExitStatus(), nil
}

func (s *Shell) runBuiltin(th *machine.Thread, fn builtinFunc, name string, argv []string, sio stdio) (int, error) {
	ctx := &builtinCtx{
		sh:   s,
		th:   th,
		name: name,
		args: argv,
		in:   sio.in,
		out:  sio.out,
		err:  sio.err,
	}
	return fn(ctx)
}

// subshell returns a shallow interpreter clone with its own global table
// snapshot, used by forked evaluation.
func (s *Shell) subshell() *Shell {
	clone := *s
	rt := machine.NewRuntime(s.Pool, len(s.RT.Globals))
	copy(rt.Globals, s.RT.Globals)
	rt.ExitStatusIndex = s.RT.ExitStatusIndex
	rt.DisableAssert = s.RT.DisableAssert
	rt.Signals = s.RT.Signals
	rt.Exec = &clone
	rt.Stdin, rt.Stdout, rt.Stderr = s.stdin, s.stdout, s.stderr
	clone.RT = rt
	return &clone
}

// withStdio returns a clone whose standard descriptors are replaced.
func (s *Shell) withStdio(sio stdio) *Shell {
	clone := *s
	clone.stdin, clone.stdout, clone.stderr = sio.in, sio.out, sio.err
	rt := *s.RT
	rt.Stdin, rt.Stdout, rt.Stderr = sio.in, sio.out, sio.err
	rt.Exec = &clone
	clone.RT = &rt
	return &clone
}

// Fork evaluates code in a child context per the fork kind.
func (s *Shell) Fork(th *machine.Thread, kind compiler.ForkKind, code *compiler.Code, locals []machine.Value) (machine.Value, error) {
	switch kind {
	case compiler.ForkStr, compiler.ForkArray:
		return s.captureFork(th, kind, code, locals)

	case compiler.ForkBg, compiler.ForkDisown, compiler.ForkPipeBg, compiler.ForkProc:
		sub := s.subshell()
		job := s.Jobs.NewShellJob()
		snapshot := append([]machine.Value(nil), locals...)
		go func() {
			sth := machine.NewThread(sub.RT)
			_, err := sth.EvalCode(code, snapshot)
			st := sub.RT.ExitStatus()
			if err != nil {
				st = 1
			}
			job.finish(st)
		}()
		if kind == compiler.ForkDisown {
			job.Detach()
		} else {
			s.Jobs.Attach(job)
		}
		return &machine.Job{T: s.Pool.Job, H: job}, nil
	}
	return nil, th.RaiseError(s.Pool.SystemError, "unsupported fork kind %s", kind)
}

// captureFork runs the code with stdout captured, returning the output as
// a String or split into a [String] per the word-splitting rules.
func (s *Shell) captureFork(th *machine.Thread, kind compiler.ForkKind, code *compiler.Code, locals []machine.Value) (machine.Value, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, th.RaiseError(s.Pool.SystemError, "%s", err)
	}

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		io.Copy(&buf, pr)
		pr.Close()
		close(done)
	}()

	sub := s.withStdio(stdio{in: s.stdin, out: pw, err: s.stderr})
	sth := machine.NewThread(sub.RT)
	snapshot := append([]machine.Value(nil), locals...)
	_, evalErr := sth.EvalCode(code, snapshot)
	pw.Close()
	<-done
	if evalErr != nil {
		if v := machine.Raised(evalErr); v != nil {
			return nil, evalErr
		}
		return nil, evalErr
	}
	s.RT.SetExitStatus(sub.RT.ExitStatus())

	out := strings.TrimRight(buf.String(), "\n")
	if kind == compiler.ForkStr {
		return &machine.Str{T: s.Pool.String, V: out}, nil
	}

	arr := &machine.Array{T: s.Pool.StringArray}
	for _, f := range splitIFS(out, s.ifs()) {
		arr.Elems = append(arr.Elems, &machine.Str{T: s.Pool.String, V: f})
	}
	return arr, nil
}

// ifs returns the current field separator set.
func (s *Shell) ifs() string {
	for _, sym := range s.Checker.Predefined() {
		if sym.Name == "IFS" {
			if v, ok := s.RT.Globals[sym.Index].(*machine.Str); ok {
				return v.V
			}
		}
	}
	return " \t\n"
}

// splitIFS splits a string on any of the separator bytes, dropping empty
// fields.
func splitIFS(s, ifs string) []string {
	if s == "" {
		return nil
	}
	return strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(ifs, r)
	})
}

// WithRedir evaluates the code with the holder's redirections applied.
func (s *Shell) WithRedir(th *machine.Thread, holder *machine.Cmd, code *compiler.Code, locals []machine.Value) (machine.Value, error) {
	base := stdio{in: s.stdin, out: s.stdout, err: s.stderr}
	sio, err := s.applyRedirs(base, holder.Redirs)
	if err != nil {
		sio.close()
		return nil, th.RaiseError(s.Pool.SystemError, "%s", err)
	}
	defer sio.close()

	sub := s.withStdio(sio)
	sth := machine.NewThread(sub.RT)
	v, evalErr := sth.EvalCode(code, locals)
	s.RT.SetExitStatus(sub.RT.ExitStatus())
	return v, evalErr
}

func errln(w io.Writer, err error) {
	io.WriteString(w, "roseau: "+err.Error()+"\n")
}
