package maincmd

import (
	"io"
	"os"
	"sync"

	"github.com/mna/mainer"
)

// bridgeStdio adapts the launcher's stdio streams to the file descriptors
// the interpreter needs for redirections and external processes. Streams
// that already are files are used directly; others are bridged through
// pipes, and cleanup flushes and waits for the copies.
func bridgeStdio(stdio mainer.Stdio) (in, out, errf *os.File, cleanup func(), err error) {
	var wg sync.WaitGroup
	var closers []io.Closer

	fail := func(e error) (*os.File, *os.File, *os.File, func(), error) {
		for _, c := range closers {
			c.Close()
		}
		return nil, nil, nil, nil, e
	}

	if f, ok := stdio.Stdin.(*os.File); ok {
		in = f
	} else {
		pr, pw, e := os.Pipe()
		if e != nil {
			return fail(e)
		}
		go func() {
			io.Copy(pw, stdio.Stdin)
			pw.Close()
		}()
		in = pr
		closers = append(closers, pr)
	}

	outFile := func(w io.Writer) (*os.File, error) {
		if f, ok := w.(*os.File); ok {
			return f, nil
		}
		pr, pw, e := os.Pipe()
		if e != nil {
			return nil, e
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			io.Copy(w, pr)
			pr.Close()
		}()
		closers = append(closers, pw)
		return pw, nil
	}

	if out, err = outFile(stdio.Stdout); err != nil {
		return fail(err)
	}
	if errf, err = outFile(stdio.Stderr); err != nil {
		return fail(err)
	}

	cleanup = func() {
		for _, c := range closers {
			c.Close()
		}
		wg.Wait()
	}
	return in, out, errf, cleanup, nil
}
