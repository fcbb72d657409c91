package shell

import (
	"os"
	"strconv"

	"github.com/dolthub/swiss"
)

func newPathCache() *swiss.Map[string, string] {
	return swiss.NewMap[string, string](16)
}

// builtinTest implements test and [ with the common unary file and string
// operators and the binary string/integer comparisons.
func builtinTest(c *builtinCtx) (int, error) {
	args := c.args
	if c.name == "[" {
		if len(args) == 0 || args[len(args)-1] != "]" {
			return c.errorf("missing ']'"), nil
		}
		args = args[:len(args)-1]
	}

	ok, err := evalTest(args)
	if err != "" {
		return c.errorf("%s", err), nil
	}
	if ok {
		return 0, nil
	}
	return 1, nil
}

func evalTest(args []string) (bool, string) {
	switch len(args) {
	case 0:
		return false, ""
	case 1:
		return args[0] != "", ""
	case 2:
		return unaryTest(args[0], args[1])
	case 3:
		return binaryTest(args[0], args[1], args[2])
	case 4:
		if args[0] == "!" {
			ok, err := binaryTest(args[1], args[2], args[3])
			return !ok, err
		}
	}
	return false, "too many arguments"
}

func unaryTest(op, operand string) (bool, string) {
	switch op {
	case "!":
		return operand == "", ""
	case "-n":
		return operand != "", ""
	case "-z":
		return operand == "", ""
	case "-e", "-a":
		_, err := os.Stat(operand)
		return err == nil, ""
	case "-f":
		fi, err := os.Stat(operand)
		return err == nil && fi.Mode().IsRegular(), ""
	case "-d":
		fi, err := os.Stat(operand)
		return err == nil && fi.IsDir(), ""
	case "-s":
		fi, err := os.Stat(operand)
		return err == nil && fi.Size() > 0, ""
	case "-r":
		return accessible(operand, 4), ""
	case "-w":
		return accessible(operand, 2), ""
	case "-x":
		return accessible(operand, 1), ""
	case "-L", "-h":
		fi, err := os.Lstat(operand)
		return err == nil && fi.Mode()&os.ModeSymlink != 0, ""
	case "-p":
		fi, err := os.Stat(operand)
		return err == nil && fi.Mode()&os.ModeNamedPipe != 0, ""
	case "-S":
		fi, err := os.Stat(operand)
		return err == nil && fi.Mode()&os.ModeSocket != 0, ""
	}
	return false, op + ": invalid unary operator"
}

func accessible(path string, bits uint32) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	mode := uint32(fi.Mode().Perm())
	return mode&(bits<<6) != 0 || mode&(bits<<3) != 0 || mode&bits != 0
}

func binaryTest(left, op, right string) (bool, string) {
	switch op {
	case "=", "==":
		return left == right, ""
	case "!=":
		return left != right, ""
	case "<":
		return left < right, ""
	case ">":
		return left > right, ""
	}

	l, lerr := strconv.ParseInt(left, 10, 64)
	r, rerr := strconv.ParseInt(right, 10, 64)
	if lerr != nil || rerr != nil {
		switch op {
		case "-eq", "-ne", "-lt", "-le", "-gt", "-ge":
			return false, "integer expression expected"
		}
		return false, op + ": invalid binary operator"
	}
	switch op {
	case "-eq":
		return l == r, ""
	case "-ne":
		return l != r, ""
	case "-lt":
		return l < r, ""
	case "-le":
		return l <= r, ""
	case "-gt":
		return l > r, ""
	case "-ge":
		return l >= r, ""
	}
	return false, op + ": invalid binary operator"
}
