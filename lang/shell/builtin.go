package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mna/roseau/lang/machine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// builtinCtx carries the state handed to a built-in command.
type builtinCtx struct {
	sh   *Shell
	th   *machine.Thread
	name string
	args []string
	in   *os.File
	out  *os.File
	err  *os.File
}

func (c *builtinCtx) errorf(format string, args ...any) int {
	fmt.Fprintf(c.err, "%s: %s\n", c.name, fmt.Sprintf(format, args...))
	return 2
}

// builtinFunc is the implementation of one built-in command.
type builtinFunc func(c *builtinCtx) (int, error)

var builtins map[string]builtinFunc

func init() {
	builtins = map[string]builtinFunc{
		":":        func(*builtinCtx) (int, error) { return 0, nil },
		"true":     func(*builtinCtx) (int, error) { return 0, nil },
		"false":    func(*builtinCtx) (int, error) { return 1, nil },
		"cd":       builtinCd,
		"pwd":      builtinPwd,
		"echo":     builtinEcho,
		"__puts":   builtinPuts,
		"__gets":   builtinGets,
		"exit":     builtinExit,
		"test":     builtinTest,
		"[":        builtinTest,
		"read":     builtinRead,
		"hash":     builtinHash,
		"help":     builtinHelp,
		"kill":     builtinKill,
		"setenv":   builtinSetenv,
		"unsetenv": builtinUnsetenv,
		"umask":    builtinUmask,
		"ulimit":   builtinUlimit,
		"shctl":    builtinShctl,
		"command":  builtinCommand,
		"eval":     builtinEval,
		"exec":     builtinExec,
		"fg":       builtinFg,
		"bg":       builtinBg,
		"wait":     builtinWait,
		"jobs":     builtinJobs,
		"source":   builtinSource,
	}
}

// parseFlags validates GNU-style short options against the accepted set,
// returning the flag set and the remaining operands. Parsing stops at the
// first operand or at "--".
func parseFlags(c *builtinCtx, accepted string) (map[byte]bool, []string, int) {
	flags := make(map[byte]bool)
	args := c.args
	for len(args) > 0 {
		a := args[0]
		if a == "--" {
			args = args[1:]
			break
		}
		if len(a) < 2 || a[0] != '-' || a[1] == '-' {
			break
		}
		for i := 1; i < len(a); i++ {
			if !strings.ContainsRune(accepted, rune(a[i])) {
				return nil, nil, c.errorf("-%c: invalid option", a[i])
			}
			flags[a[i]] = true
		}
		args = args[1:]
	}
	return flags, args, -1
}

func builtinCd(c *builtinCtx) (int, error) {
	dir := os.Getenv("HOME")
	switch {
	case len(c.args) > 1:
		return c.errorf("too many arguments"), nil
	case len(c.args) == 1:
		dir = c.args[0]
		if dir == "-" {
			dir = os.Getenv("OLDPWD")
			fmt.Fprintln(c.out, dir)
		}
	}
	old, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		return c.errorf("%s", err), nil
	}
	cwd, _ := os.Getwd()
	os.Setenv("OLDPWD", old)
	os.Setenv("PWD", cwd)
	return 0, nil
}

func builtinPwd(c *builtinCtx) (int, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return c.errorf("%s", err), nil
	}
	fmt.Fprintln(c.out, cwd)
	return 0, nil
}

func builtinEcho(c *builtinCtx) (int, error) {
	flags, args, st := parseFlags(c, "neE")
	if st >= 0 {
		return st, nil
	}
	out := strings.Join(args, " ")
	if flags['e'] && !flags['E'] {
		out = expandEscapes(out)
	}
	if flags['n'] {
		fmt.Fprint(c.out, out)
	} else {
		fmt.Fprintln(c.out, out)
	}
	return 0, nil
}

func expandEscapes(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'e':
			sb.WriteByte(0x1b)
		case '\\':
			sb.WriteByte('\\')
		case '0':
			sb.WriteByte(0)
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

func builtinPuts(c *builtinCtx) (int, error) {
	// write operands to stdout (-1) or stderr (-2) without processing
	flags, args, st := parseFlags(c, "12")
	if st >= 0 {
		return st, nil
	}
	w := io.Writer(c.out)
	if flags['2'] {
		w = c.err
	}
	for _, a := range args {
		fmt.Fprintln(w, a)
	}
	return 0, nil
}

func builtinGets(c *builtinCtx) (int, error) {
	// copy stdin to stdout
	_, err := io.Copy(c.out, c.in)
	if err != nil {
		return 1, nil
	}
	return 0, nil
}

func builtinExit(c *builtinCtx) (int, error) {
	status := c.sh.RT.ExitStatus()
	if len(c.args) > 0 {
		n, err := strconv.Atoi(c.args[0])
		if err != nil {
			return c.errorf("%s: numeric argument required", c.args[0]), nil
		}
		status = n
	}
	status &= 0xFF
	// exit unwinds as the internal _ShellExit value, which no catch can
	// match, so finally blocks still run before the process exits
	return status, machine.Throw(&machine.Error{
		T:       c.sh.Pool.ShellExit,
		Message: "exit",
		Status:  status,
	})
}

func builtinRead(c *builtinCtx) (int, error) {
	flags, args, st := parseFlags(c, "rst")
	if st >= 0 {
		return st, nil
	}
	timeout := -1
	if flags['t'] && len(args) > 0 {
		ms, err := strconv.Atoi(args[0])
		if err != nil {
			return c.errorf("%s: invalid timeout", args[0]), nil
		}
		timeout = ms
		args = args[1:]
	}

	if timeout >= 0 {
		fds := []unix.PollFd{{Fd: int32(c.in.Fd()), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, timeout)
		if err != nil || n == 0 {
			return 1, nil
		}
	}

	r := bufio.NewReader(c.in)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return 1, nil
	}
	line = strings.TrimSuffix(line, "\n")
	if !flags['r'] {
		line = strings.ReplaceAll(line, "\\\n", "")
	}

	ifs := c.sh.ifs()
	if len(args) == 0 {
		c.sh.setPredefined("REPLY", line)
		return 0, nil
	}
	fields := splitIFS(line, ifs)
	for i, name := range args {
		val := ""
		if i < len(fields) {
			val = fields[i]
			if i == len(args)-1 && i+1 < len(fields) {
				val = strings.Join(fields[i:], " ")
			}
		}
		os.Setenv(name, val)
	}
	return 0, nil
}

// setPredefined stores a value into a predefined global by name.
func (s *Shell) setPredefined(name, val string) {
	for _, sym := range s.Checker.Predefined() {
		if sym.Name == name {
			s.RT.Globals[sym.Index] = &machine.Str{T: s.Pool.String, V: val}
			return
		}
	}
}

func builtinHash(c *builtinCtx) (int, error) {
	flags, args, st := parseFlags(c, "r")
	if st >= 0 {
		return st, nil
	}
	if flags['r'] {
		c.sh.pathCache = newPathCache()
		return 0, nil
	}
	if len(args) == 0 {
		c.sh.pathCache.Iter(func(name, path string) bool {
			fmt.Fprintf(c.out, "%s=%s\n", name, path)
			return false
		})
		return 0, nil
	}
	for _, a := range args {
		if _, err := c.sh.lookPath(a); err != nil {
			return c.errorf("%s: not found", a), nil
		}
	}
	return 0, nil
}

func builtinHelp(c *builtinCtx) (int, error) {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintln(c.out, n)
	}
	return 0, nil
}

func builtinKill(c *builtinCtx) (int, error) {
	args := c.args
	sig := unix.SIGTERM
	if len(args) > 0 && strings.HasPrefix(args[0], "-") {
		name := strings.TrimPrefix(args[0], "-")
		if n, err := strconv.Atoi(name); err == nil {
			sig = unix.Signal(n)
		} else {
			s := unix.SignalNum("SIG" + strings.ToUpper(name))
			if s == 0 {
				return c.errorf("%s: invalid signal specification", name), nil
			}
			sig = s
		}
		args = args[1:]
	}
	if len(args) == 0 {
		return c.errorf("usage: kill [-sig] pid | %%jobid ..."), nil
	}
	status := 0
	for _, a := range args {
		if strings.HasPrefix(a, "%") {
			id, err := strconv.Atoi(a[1:])
			if err != nil {
				status = c.errorf("%s: invalid job spec", a)
				continue
			}
			j := c.sh.Jobs.FindEntry(id)
			if j == nil {
				status = c.errorf("%s: no such job", a)
				continue
			}
			if err := j.Kill(sig); err != nil {
				status = c.errorf("%s", err)
			}
			continue
		}
		pid, err := strconv.Atoi(a)
		if err != nil {
			status = c.errorf("%s: invalid pid", a)
			continue
		}
		if err := unix.Kill(pid, sig); err != nil {
			status = c.errorf("%s", err)
		}
	}
	return status, nil
}

func builtinSetenv(c *builtinCtx) (int, error) {
	if len(c.args) == 0 {
		for _, e := range os.Environ() {
			fmt.Fprintln(c.out, e)
		}
		return 0, nil
	}
	for _, a := range c.args {
		name, val, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return c.errorf("%s: invalid assignment", a), nil
		}
		os.Setenv(name, val)
	}
	return 0, nil
}

func builtinUnsetenv(c *builtinCtx) (int, error) {
	for _, a := range c.args {
		os.Unsetenv(a)
	}
	return 0, nil
}

func builtinUmask(c *builtinCtx) (int, error) {
	if len(c.args) == 0 {
		cur := unix.Umask(0)
		unix.Umask(cur)
		fmt.Fprintf(c.out, "%04o\n", cur)
		return 0, nil
	}
	n, err := strconv.ParseUint(c.args[0], 8, 32)
	if err != nil {
		return c.errorf("%s: invalid mask", c.args[0]), nil
	}
	unix.Umask(int(n))
	return 0, nil
}

var ulimitResources = map[byte]int{
	'c': unix.RLIMIT_CORE,
	'd': unix.RLIMIT_DATA,
	'f': unix.RLIMIT_FSIZE,
	'n': unix.RLIMIT_NOFILE,
	's': unix.RLIMIT_STACK,
}

func builtinUlimit(c *builtinCtx) (int, error) {
	res := unix.RLIMIT_FSIZE
	args := c.args
	if len(args) > 0 && strings.HasPrefix(args[0], "-") && len(args[0]) == 2 {
		r, ok := ulimitResources[args[0][1]]
		if !ok {
			return c.errorf("%s: invalid option", args[0]), nil
		}
		res = r
		args = args[1:]
	}

	var lim unix.Rlimit
	if err := unix.Getrlimit(res, &lim); err != nil {
		return c.errorf("%s", err), nil
	}
	if len(args) == 0 {
		if lim.Cur == unix.RLIM_INFINITY {
			fmt.Fprintln(c.out, "unlimited")
		} else {
			fmt.Fprintln(c.out, lim.Cur)
		}
		return 0, nil
	}

	if args[0] == "unlimited" {
		lim.Cur = unix.RLIM_INFINITY
	} else {
		n, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return c.errorf("%s: invalid limit", args[0]), nil
		}
		lim.Cur = n
	}
	if err := unix.Setrlimit(res, &lim); err != nil {
		return c.errorf("%s", err), nil
	}
	return 0, nil
}

func builtinShctl(c *builtinCtx) (int, error) {
	if len(c.args) == 0 {
		return c.errorf("usage: shctl [is-interactive | set OPT | unset OPT | show]"), nil
	}
	switch c.args[0] {
	case "is-interactive":
		if c.sh.Opts.Interactive || term.IsTerminal(int(c.in.Fd())) {
			return 0, nil
		}
		return 1, nil
	case "show":
		c.sh.Opts.Show(c.out)
		return 0, nil
	case "set", "unset":
		on := c.args[0] == "set"
		status := 0
		for _, name := range c.args[1:] {
			if !c.sh.Opts.Set(strings.ToLower(name), on) {
				status = c.errorf("%s: undefined option", name)
			}
		}
		return status, nil
	}
	return c.errorf("%s: undefined subcommand", c.args[0]), nil
}

func builtinCommand(c *builtinCtx) (int, error) {
	flags, args, st := parseFlags(c, "vV")
	if st >= 0 {
		return st, nil
	}
	if len(args) == 0 {
		return 0, nil
	}
	if flags['v'] || flags['V'] {
		status := 0
		for _, a := range args {
			switch {
			case c.sh.udcs[a] != nil:
				fmt.Fprintln(c.out, a)
			case builtins[a] != nil:
				fmt.Fprintln(c.out, a)
			default:
				p, err := c.sh.lookPath(a)
				if err != nil {
					status = 1
					continue
				}
				fmt.Fprintln(c.out, p)
			}
		}
		return status, nil
	}

	// run the command, skipping user-defined commands
	cmd := &machine.Cmd{Name: args[0], Argv: args[1:]}
	if _, ok := builtins[args[0]]; !ok {
		p, err := c.sh.lookPath(args[0])
		if err != nil {
			errln(c.err, err)
			return 127, nil
		}
		proc, err := c.sh.startExternal(p, args, stdio{in: c.in, out: c.out, err: c.err}, 0)
		if err != nil {
			errln(c.err, err)
			return 126, nil
		}
		ps, _ := proc.Wait()
		return exitStatusOf(ps), nil
	}
	return c.sh.runBuiltin(c.th, builtins[cmd.Name], cmd.Name, cmd.Argv, stdio{in: c.in, out: c.out, err: c.err})
}

func builtinEval(c *builtinCtx) (int, error) {
	if len(c.args) == 0 {
		return 0, nil
	}
	src := strings.Join(c.args, " ")
	st, err := c.sh.Eval("<eval>", []byte(src), PhaseRun)
	if err != nil {
		if ee, ok := err.(*ExitError); ok {
			return ee.Status, machine.Throw(ee.Trace)
		}
		errln(c.err, err)
		return 1, nil
	}
	return st, nil
}

func builtinExec(c *builtinCtx) (int, error) {
	if len(c.args) == 0 {
		// without a file operand the redirections were already applied to
		// the calling context by the command machinery
		return 0, nil
	}
	path, err := c.sh.lookPath(c.args[0])
	if err != nil {
		errln(c.err, err)
		return 127, nil
	}
	if err := unix.Exec(path, c.args, os.Environ()); err != nil {
		return c.errorf("%s", err), nil
	}
	return 0, nil
}

func builtinFg(c *builtinCtx) (int, error) {
	j := c.sh.jobFromSpec(c, true)
	if j == nil {
		return 1, nil
	}
	j.Kill(unix.SIGCONT)
	return c.sh.Jobs.WaitAndDetach(j), nil
}

func builtinBg(c *builtinCtx) (int, error) {
	j := c.sh.jobFromSpec(c, true)
	if j == nil {
		return 1, nil
	}
	j.Kill(unix.SIGCONT)
	return 0, nil
}

func builtinWait(c *builtinCtx) (int, error) {
	if len(c.args) == 0 {
		st := 0
		for {
			j := c.sh.Jobs.Latest()
			if j == nil {
				break
			}
			st = c.sh.Jobs.WaitAndDetach(j)
		}
		return st, nil
	}
	j := c.sh.jobFromSpec(c, false)
	if j == nil {
		return 127, nil
	}
	return c.sh.Jobs.WaitAndDetach(j), nil
}

func builtinJobs(c *builtinCtx) (int, error) {
	c.sh.Jobs.UpdateStatus()
	c.sh.Jobs.Show(c.out)
	return 0, nil
}

func (s *Shell) jobFromSpec(c *builtinCtx, latestDefault bool) *ShellJob {
	if len(c.args) == 0 {
		if !latestDefault {
			return nil
		}
		j := s.Jobs.Latest()
		if j == nil {
			c.errorf("no current job")
		}
		return j
	}
	spec := strings.TrimPrefix(c.args[0], "%")
	id, err := strconv.Atoi(spec)
	if err != nil {
		c.errorf("%s: invalid job spec", c.args[0])
		return nil
	}
	j := s.Jobs.FindEntry(id)
	if j == nil {
		c.errorf("%%%d: no such job", id)
	}
	return j
}

func builtinSource(c *builtinCtx) (int, error) {
	if len(c.args) == 0 {
		return c.errorf("path argument required"), nil
	}
	st, err := c.sh.EvalFile(c.args[0])
	if err != nil {
		if ee, ok := err.(*ExitError); ok {
			return ee.Status, machine.Throw(ee.Trace)
		}
		errln(c.err, err)
		return 1, nil
	}
	return st, nil
}
