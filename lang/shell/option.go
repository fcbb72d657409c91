package shell

import (
	"fmt"
	"io"
	"sort"

	"github.com/caarlos0/env/v6"
)

// Options are the runtime option toggles of the shell. Defaults may be
// overridden from the environment before startup, and toggled at runtime
// through the shctl built-in.
type Options struct {
	// Monitor enables job control when the shell owns its terminal.
	Monitor bool `env:"ROSEAU_MONITOR"`

	// NullGlob expands a glob with no match to zero arguments instead of
	// the literal pattern.
	NullGlob bool `env:"ROSEAU_NULLGLOB"`

	// DotGlob includes dot files in glob expansion.
	DotGlob bool `env:"ROSEAU_DOTGLOB"`

	// TraceExit prints the stack trace of the _ShellExit value on exit.
	TraceExit bool `env:"ROSEAU_TRACE_EXIT"`

	// Interactive is set when the shell reads commands from a terminal.
	Interactive bool `env:"-"`
}

// OptionsFromEnv returns the options with environment overrides applied.
func OptionsFromEnv() (Options, error) {
	var o Options
	err := env.Parse(&o)
	return o, err
}

// optionNames maps the shctl option names to accessors.
var optionNames = map[string]func(o *Options) *bool{
	"monitor":   func(o *Options) *bool { return &o.Monitor },
	"nullglob":  func(o *Options) *bool { return &o.NullGlob },
	"dotglob":   func(o *Options) *bool { return &o.DotGlob },
	"traceexit": func(o *Options) *bool { return &o.TraceExit },
}

// Set toggles a named option, returning false for unknown names.
func (o *Options) Set(name string, on bool) bool {
	acc, ok := optionNames[name]
	if !ok {
		return false
	}
	*acc(o) = on
	return true
}

// Show writes the option states.
func (o *Options) Show(w io.Writer) {
	names := make([]string, 0, len(optionNames))
	for n := range optionNames {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		state := "off"
		if *optionNames[n](o) {
			state = "on"
		}
		fmt.Fprintf(w, "%-12s%s\n", n, state)
	}
}
