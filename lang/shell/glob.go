package shell

import (
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/pattern"
)

// expandTilde resolves a leading tilde segment against $HOME or the named
// user's home directory. A non-resolvable tilde is left literal.
func (s *Shell) expandTilde(arg string) string {
	if !strings.HasPrefix(arg, "~") {
		return arg
	}
	rest := arg[1:]
	var name, tail string
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		name, tail = rest[:i], rest[i:]
	} else {
		name = rest
	}

	var home string
	if name == "" {
		home = os.Getenv("HOME")
		if home == "" {
			if u, err := user.Current(); err == nil {
				home = u.HomeDir
			}
		}
	} else {
		u, err := user.Lookup(name)
		if err != nil {
			return arg
		}
		home = u.HomeDir
	}
	if home == "" {
		return arg
	}
	return home + tail
}

// expandGlob expands a wildcard pattern against the filesystem. When no
// entry matches, the literal pattern is kept unless the nullglob option is
// set, in which case the argument expands to nothing.
func (s *Shell) expandGlob(pat string) ([]string, error) {
	matches, err := s.glob(pat)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		if s.Opts.NullGlob {
			return nil, nil
		}
		return []string{unescapeGlob(pat)}, nil
	}
	sort.Strings(matches)
	return matches, nil
}

// glob walks the pattern one path component at a time, matching each
// component against the directory entries.
func (s *Shell) glob(pat string) ([]string, error) {
	var prefixes []string
	rest := pat
	if strings.HasPrefix(rest, "/") {
		prefixes = []string{"/"}
		rest = strings.TrimLeft(rest, "/")
	} else {
		prefixes = []string{"."}
	}

	comps := strings.Split(rest, "/")
	for ci, comp := range comps {
		if comp == "" {
			continue
		}
		last := ci == len(comps)-1

		if !pattern.HasMeta(comp, 0) {
			lit := unescapeGlob(comp)
			var next []string
			for _, p := range prefixes {
				full := joinComp(p, lit)
				if _, err := os.Lstat(full); err == nil {
					next = append(next, full)
				}
			}
			prefixes = next
			continue
		}

		rx, err := pattern.Regexp(comp, pattern.Filenames|pattern.EntireString)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(rx)
		if err != nil {
			return nil, err
		}

		var next []string
		for _, p := range prefixes {
			entries, err := os.ReadDir(p)
			if err != nil {
				continue
			}
			for _, e := range entries {
				name := e.Name()
				if strings.HasPrefix(name, ".") && !s.Opts.DotGlob {
					continue
				}
				if !re.MatchString(name) {
					continue
				}
				full := joinComp(p, name)
				if !last && !e.IsDir() {
					continue
				}
				next = append(next, full)
			}
		}
		prefixes = next
	}

	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, strings.TrimPrefix(p, "./"))
	}
	return out, nil
}

func joinComp(prefix, name string) string {
	if prefix == "/" {
		return "/" + name
	}
	return filepath.Join(prefix, name)
}

// unescapeGlob removes the backslash escapes of glob metacharacters from
// a literal argument.
func unescapeGlob(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
