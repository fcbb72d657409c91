package machine

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mna/roseau/lang/types"
	"golang.org/x/sys/unix"
)

// NativeMethod is the implementation of one built-in method. The receiver
// and arguments match the method handle's signature; the returned value is
// nil for Void methods.
type NativeMethod func(th *Thread, recv Value, args []Value) (Value, error)

// buildMethodTable creates the native method implementations, indexed by
// the pool's method handle slots.
func buildMethodTable(pool *types.Pool) []NativeMethod {
	impls := make(map[string]NativeMethod, 256)

	for _, t := range []*types.Type{pool.Byte, pool.Uint16, pool.Uint32, pool.Uint64} {
		registerUnsignedOps(impls, pool, t)
	}
	for _, t := range []*types.Type{pool.Int16, pool.Int, pool.Int64} {
		registerSignedOps(impls, pool, t)
	}
	registerFloatOps(impls, pool)
	registerBoolOps(impls, pool)
	registerStringOps(impls, pool)
	registerMiscOps(impls, pool)
	registerTemplateOps(impls, pool)

	handles := pool.Methods()
	table := make([]NativeMethod, len(handles))
	for i, h := range handles {
		impl, ok := impls[h.QualifiedName()]
		if !ok {
			panic("machine: missing native method " + h.QualifiedName())
		}
		table[i] = impl
	}
	return table
}

func asInt(v Value) int64   { return v.(*Int).V }
func asUint(v Value) uint64 { return v.(*Uint).V }

// truncSigned masks a signed result to the width of its type.
func truncSigned(t *types.Type, v int64) int64 {
	switch t.Name() {
	case "Int16":
		return int64(int16(v))
	}
	return v
}

func truncUnsigned(t *types.Type, v uint64) uint64 {
	switch t.Name() {
	case "Byte":
		return uint64(uint8(v))
	case "Uint16":
		return uint64(uint16(v))
	case "Uint32":
		return uint64(uint32(v))
	}
	return v
}

func registerSignedOps(impls map[string]NativeMethod, pool *types.Pool, t *types.Type) {
	name := t.Name()
	bt, st := pool.Boolean, pool.String
	bin := func(op string, fn func(th *Thread, a, b int64) (int64, error)) {
		impls[name+"."+op] = func(th *Thread, recv Value, args []Value) (Value, error) {
			r, err := fn(th, asInt(recv), asInt(args[0]))
			if err != nil {
				return nil, err
			}
			return &Int{T: t, V: truncSigned(t, r)}, nil
		}
	}
	cmp := func(op string, fn func(a, b int64) bool) {
		impls[name+"."+op] = func(_ *Thread, recv Value, args []Value) (Value, error) {
			return &Bool{T: bt, V: fn(asInt(recv), asInt(args[0]))}, nil
		}
	}
	bin(types.OpAdd, func(_ *Thread, a, b int64) (int64, error) { return a + b, nil })
	bin(types.OpSub, func(_ *Thread, a, b int64) (int64, error) { return a - b, nil })
	bin(types.OpMul, func(_ *Thread, a, b int64) (int64, error) { return a * b, nil })
	bin(types.OpDiv, func(th *Thread, a, b int64) (int64, error) {
		if b == 0 {
			return 0, th.RaiseError(th.RT.Pool.ArithmeticError, "zero division")
		}
		return a / b, nil
	})
	bin(types.OpMod, func(th *Thread, a, b int64) (int64, error) {
		if b == 0 {
			return 0, th.RaiseError(th.RT.Pool.ArithmeticError, "zero modulo")
		}
		return a % b, nil
	})
	bin(types.OpAnd, func(_ *Thread, a, b int64) (int64, error) { return a & b, nil })
	bin(types.OpOr, func(_ *Thread, a, b int64) (int64, error) { return a | b, nil })
	bin(types.OpXor, func(_ *Thread, a, b int64) (int64, error) { return a ^ b, nil })
	cmp(types.OpEq, func(a, b int64) bool { return a == b })
	cmp(types.OpNe, func(a, b int64) bool { return a != b })
	cmp(types.OpLt, func(a, b int64) bool { return a < b })
	cmp(types.OpGt, func(a, b int64) bool { return a > b })
	cmp(types.OpLe, func(a, b int64) bool { return a <= b })
	cmp(types.OpGe, func(a, b int64) bool { return a >= b })
	impls[name+"."+types.OpNeg] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Int{T: t, V: truncSigned(t, -asInt(recv))}, nil
	}
	impls[name+"."+types.OpNot] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Int{T: t, V: truncSigned(t, ^asInt(recv))}, nil
	}
	impls[name+"."+types.OpStr] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: recv.String()}, nil
	}
	impls[name+".toFloat"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Float{T: pool.Float, V: float64(asInt(recv))}, nil
	}
}

func registerUnsignedOps(impls map[string]NativeMethod, pool *types.Pool, t *types.Type) {
	name := t.Name()
	bt, st := pool.Boolean, pool.String
	bin := func(op string, fn func(th *Thread, a, b uint64) (uint64, error)) {
		impls[name+"."+op] = func(th *Thread, recv Value, args []Value) (Value, error) {
			r, err := fn(th, asUint(recv), asUint(args[0]))
			if err != nil {
				return nil, err
			}
			return &Uint{T: t, V: truncUnsigned(t, r)}, nil
		}
	}
	cmp := func(op string, fn func(a, b uint64) bool) {
		impls[name+"."+op] = func(_ *Thread, recv Value, args []Value) (Value, error) {
			return &Bool{T: bt, V: fn(asUint(recv), asUint(args[0]))}, nil
		}
	}
	bin(types.OpAdd, func(_ *Thread, a, b uint64) (uint64, error) { return a + b, nil })
	bin(types.OpSub, func(_ *Thread, a, b uint64) (uint64, error) { return a - b, nil })
	bin(types.OpMul, func(_ *Thread, a, b uint64) (uint64, error) { return a * b, nil })
	bin(types.OpDiv, func(th *Thread, a, b uint64) (uint64, error) {
		if b == 0 {
			return 0, th.RaiseError(th.RT.Pool.ArithmeticError, "zero division")
		}
		return a / b, nil
	})
	bin(types.OpMod, func(th *Thread, a, b uint64) (uint64, error) {
		if b == 0 {
			return 0, th.RaiseError(th.RT.Pool.ArithmeticError, "zero modulo")
		}
		return a % b, nil
	})
	bin(types.OpAnd, func(_ *Thread, a, b uint64) (uint64, error) { return a & b, nil })
	bin(types.OpOr, func(_ *Thread, a, b uint64) (uint64, error) { return a | b, nil })
	bin(types.OpXor, func(_ *Thread, a, b uint64) (uint64, error) { return a ^ b, nil })
	cmp(types.OpEq, func(a, b uint64) bool { return a == b })
	cmp(types.OpNe, func(a, b uint64) bool { return a != b })
	cmp(types.OpLt, func(a, b uint64) bool { return a < b })
	cmp(types.OpGt, func(a, b uint64) bool { return a > b })
	cmp(types.OpLe, func(a, b uint64) bool { return a <= b })
	cmp(types.OpGe, func(a, b uint64) bool { return a >= b })
	impls[name+"."+types.OpNeg] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Uint{T: t, V: truncUnsigned(t, -asUint(recv))}, nil
	}
	impls[name+"."+types.OpNot] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Uint{T: t, V: truncUnsigned(t, ^asUint(recv))}, nil
	}
	impls[name+"."+types.OpStr] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: recv.String()}, nil
	}
	impls[name+".toFloat"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Float{T: pool.Float, V: float64(asUint(recv))}, nil
	}
}

func registerFloatOps(impls map[string]NativeMethod, pool *types.Pool) {
	ft, bt, st := pool.Float, pool.Boolean, pool.String
	asF := func(v Value) float64 { return v.(*Float).V }
	bin := func(op string, fn func(a, b float64) float64) {
		impls["Float."+op] = func(_ *Thread, recv Value, args []Value) (Value, error) {
			return &Float{T: ft, V: fn(asF(recv), asF(args[0]))}, nil
		}
	}
	cmp := func(op string, fn func(a, b float64) bool) {
		impls["Float."+op] = func(_ *Thread, recv Value, args []Value) (Value, error) {
			return &Bool{T: bt, V: fn(asF(recv), asF(args[0]))}, nil
		}
	}
	bin(types.OpAdd, func(a, b float64) float64 { return a + b })
	bin(types.OpSub, func(a, b float64) float64 { return a - b })
	bin(types.OpMul, func(a, b float64) float64 { return a * b })
	bin(types.OpDiv, func(a, b float64) float64 { return a / b })
	cmp(types.OpEq, func(a, b float64) bool { return a == b })
	cmp(types.OpNe, func(a, b float64) bool { return a != b })
	cmp(types.OpLt, func(a, b float64) bool { return a < b })
	cmp(types.OpGt, func(a, b float64) bool { return a > b })
	cmp(types.OpLe, func(a, b float64) bool { return a <= b })
	cmp(types.OpGe, func(a, b float64) bool { return a >= b })
	impls["Float."+types.OpNeg] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Float{T: ft, V: -asF(recv)}, nil
	}
	impls["Float."+types.OpStr] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: recv.String()}, nil
	}
	impls["Float.toInt"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Int{T: pool.Int, V: int64(asF(recv))}, nil
	}
	impls["Float.isNan"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Bool{T: bt, V: math.IsNaN(asF(recv))}, nil
	}
	impls["Float.isInf"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Bool{T: bt, V: math.IsInf(asF(recv), 0)}, nil
	}
}

func registerBoolOps(impls map[string]NativeMethod, pool *types.Pool) {
	bt, st := pool.Boolean, pool.String
	asB := func(v Value) bool { return v.(*Bool).V }
	impls["Boolean."+types.OpEq] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		return &Bool{T: bt, V: asB(recv) == asB(args[0])}, nil
	}
	impls["Boolean."+types.OpNe] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		return &Bool{T: bt, V: asB(recv) != asB(args[0])}, nil
	}
	impls["Boolean."+types.OpNot] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Bool{T: bt, V: !asB(recv)}, nil
	}
	impls["Boolean."+types.OpStr] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: recv.String()}, nil
	}
}

func registerStringOps(impls map[string]NativeMethod, pool *types.Pool) {
	st, bt, it := pool.String, pool.Boolean, pool.Int
	asS := func(v Value) string { return v.(*Str).V }
	cmp := func(op string, fn func(a, b string) bool) {
		impls["String."+op] = func(_ *Thread, recv Value, args []Value) (Value, error) {
			return &Bool{T: bt, V: fn(asS(recv), asS(args[0]))}, nil
		}
	}
	cmp(types.OpEq, func(a, b string) bool { return a == b })
	cmp(types.OpNe, func(a, b string) bool { return a != b })
	cmp(types.OpLt, func(a, b string) bool { return a < b })
	cmp(types.OpGt, func(a, b string) bool { return a > b })
	cmp(types.OpLe, func(a, b string) bool { return a <= b })
	cmp(types.OpGe, func(a, b string) bool { return a >= b })
	impls["String."+types.OpAdd] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		return &Str{T: st, V: asS(recv) + args[0].String()}, nil
	}
	impls["String.size"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Int{T: it, V: int64(len(asS(recv)))}, nil
	}
	impls["String.empty"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Bool{T: bt, V: asS(recv) == ""}, nil
	}
	impls["String.count"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Int{T: it, V: int64(len([]rune(asS(recv))))}, nil
	}
	impls["String."+types.OpGet] = func(th *Thread, recv Value, args []Value) (Value, error) {
		s, i := asS(recv), asInt(args[0])
		if i < 0 {
			i += int64(len(s))
		}
		if i < 0 || i >= int64(len(s)) {
			return nil, th.RaiseError(th.RT.Pool.OutOfRangeError, "size is %d, but index is %d", len(s), asInt(args[0]))
		}
		return &Str{T: st, V: string(s[i])}, nil
	}
	sliceFn := func(th *Thread, s string, from, to int64) (Value, error) {
		n := int64(len(s))
		if from < 0 {
			from += n
		}
		if to < 0 {
			to += n
		}
		if from < 0 || from > n || to < from || to > n {
			return nil, th.RaiseError(th.RT.Pool.OutOfRangeError, "invalid slice range [%d, %d)", from, to)
		}
		return &Str{T: st, V: s[from:to]}, nil
	}
	impls["String.slice"] = func(th *Thread, recv Value, args []Value) (Value, error) {
		return sliceFn(th, asS(recv), asInt(args[0]), asInt(args[1]))
	}
	impls["String.from"] = func(th *Thread, recv Value, args []Value) (Value, error) {
		return sliceFn(th, asS(recv), asInt(args[0]), int64(len(asS(recv))))
	}
	impls["String.to"] = func(th *Thread, recv Value, args []Value) (Value, error) {
		return sliceFn(th, asS(recv), 0, asInt(args[0]))
	}
	impls["String.startsWith"] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		return &Bool{T: bt, V: strings.HasPrefix(asS(recv), asS(args[0]))}, nil
	}
	impls["String.endsWith"] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		return &Bool{T: bt, V: strings.HasSuffix(asS(recv), asS(args[0]))}, nil
	}
	impls["String.indexOf"] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		return &Int{T: it, V: int64(strings.Index(asS(recv), asS(args[0])))}, nil
	}
	impls["String.lastIndexOf"] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		return &Int{T: it, V: int64(strings.LastIndex(asS(recv), asS(args[0])))}, nil
	}
	impls["String.split"] = func(th *Thread, recv Value, args []Value) (Value, error) {
		parts := strings.Split(asS(recv), asS(args[0]))
		arr := &Array{T: th.RT.Pool.StringArray}
		for _, p := range parts {
			arr.Elems = append(arr.Elems, &Str{T: st, V: p})
		}
		return arr, nil
	}
	impls["String.replace"] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		return &Str{T: st, V: strings.ReplaceAll(asS(recv), asS(args[0]), asS(args[1]))}, nil
	}
	impls["String.toInt"] = func(th *Thread, recv Value, _ []Value) (Value, error) {
		v, err := strconv.ParseInt(strings.TrimSpace(asS(recv)), 0, 64)
		if err != nil {
			return None, nil
		}
		return &Int{T: it, V: v}, nil
	}
	impls["String.toFloat"] = func(th *Thread, recv Value, _ []Value) (Value, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(asS(recv)), 64)
		if err != nil {
			return None, nil
		}
		return &Float{T: th.RT.Pool.Float, V: v}, nil
	}
	impls["String.lower"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: strings.ToLower(asS(recv))}, nil
	}
	impls["String.upper"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: strings.ToUpper(asS(recv))}, nil
	}
	impls["String.realpath"] = func(th *Thread, recv Value, _ []Value) (Value, error) {
		p, err := filepath.EvalSymlinks(asS(recv))
		if err != nil {
			return nil, th.RaiseError(th.RT.Pool.SystemError, "%s", err)
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, th.RaiseError(th.RT.Pool.SystemError, "%s", err)
		}
		return &Str{T: st, V: abs}, nil
	}
	impls["String."+types.OpBool] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Bool{T: bt, V: asS(recv) != ""}, nil
	}
	impls["String."+types.OpStr] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return recv, nil
	}
}

func registerMiscOps(impls map[string]NativeMethod, pool *types.Pool) {
	bt, st, it := pool.Boolean, pool.String, pool.Int

	impls["Regex."+types.OpEq] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		return &Bool{T: bt, V: recv.(*Regex).Re.String() == args[0].(*Regex).Re.String()}, nil
	}
	impls["Regex."+types.OpNe] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		return &Bool{T: bt, V: recv.(*Regex).Re.String() != args[0].(*Regex).Re.String()}, nil
	}
	impls["Regex.match"] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		return &Bool{T: bt, V: recv.(*Regex).Re.MatchString(args[0].(*Str).V)}, nil
	}
	impls["Regex."+types.OpStr] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: recv.String()}, nil
	}

	impls["Signal."+types.OpEq] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		return &Bool{T: bt, V: recv.(*Signal).Sig == args[0].(*Signal).Sig}, nil
	}
	impls["Signal."+types.OpNe] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		return &Bool{T: bt, V: recv.(*Signal).Sig != args[0].(*Signal).Sig}, nil
	}
	impls["Signal.name"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: unix.SignalName(recv.(*Signal).Sig)}, nil
	}
	impls["Signal.value"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Int{T: it, V: int64(recv.(*Signal).Sig)}, nil
	}
	impls["Signal.kill"] = func(th *Thread, recv Value, args []Value) (Value, error) {
		if err := unix.Kill(int(asInt(args[0])), recv.(*Signal).Sig); err != nil {
			return nil, th.RaiseError(th.RT.Pool.SystemError, "%s", err)
		}
		return nil, nil
	}
	impls["Signal."+types.OpStr] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: recv.String()}, nil
	}

	impls["UnixFD.close"] = func(th *Thread, recv Value, _ []Value) (Value, error) {
		if err := recv.(*FD).Close(); err != nil {
			return nil, th.RaiseError(th.RT.Pool.SystemError, "%s", err)
		}
		return nil, nil
	}
	impls["UnixFD.dup"] = func(th *Thread, recv Value, _ []Value) (Value, error) {
		fd := recv.(*FD)
		if fd.File == nil || fd.closed {
			return nil, th.RaiseError(th.RT.Pool.SystemError, "bad file descriptor")
		}
		nfd, err := unix.Dup(int(fd.File.Fd()))
		if err != nil {
			return nil, th.RaiseError(th.RT.Pool.SystemError, "%s", err)
		}
		return &FD{T: th.RT.Pool.UnixFD, File: fdFile(nfd)}, nil
	}
	impls["UnixFD."+types.OpBool] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		fd := recv.(*FD)
		return &Bool{T: bt, V: fd.File != nil && !fd.closed}, nil
	}
	impls["UnixFD."+types.OpStr] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: recv.String()}, nil
	}

	impls["Error.message"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: recv.(*Error).Message}, nil
	}
	impls["Error.name"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: recv.VType().Name()}, nil
	}
	impls["Error.backtrace"] = func(th *Thread, recv Value, _ []Value) (Value, error) {
		printTrace(th.RT.Stderr, recv.(*Error))
		return nil, nil
	}
	impls["Error."+types.OpStr] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: recv.String()}, nil
	}

	impls["Job.wait"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Int{T: it, V: int64(recv.(*Job).H.Wait())}, nil
	}
	impls["Job.raise"] = func(th *Thread, recv Value, args []Value) (Value, error) {
		if err := recv.(*Job).H.Kill(args[0].(*Signal).Sig); err != nil {
			return nil, th.RaiseError(th.RT.Pool.SystemError, "%s", err)
		}
		return nil, nil
	}
	impls["Job.detach"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		recv.(*Job).H.Detach()
		return nil, nil
	}
	impls["Job.size"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Int{T: it, V: int64(recv.(*Job).H.Size())}, nil
	}
	impls["Job.pid"] = func(th *Thread, recv Value, args []Value) (Value, error) {
		i := int(asInt(args[0]))
		if i < 0 || i >= recv.(*Job).H.Size() {
			return nil, th.RaiseError(th.RT.Pool.OutOfRangeError, "size is %d, but index is %d", recv.(*Job).H.Size(), i)
		}
		return &Int{T: it, V: int64(recv.(*Job).H.Pid(i))}, nil
	}
	impls["Job."+types.OpBool] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Bool{T: bt, V: recv.(*Job).H.Running()}, nil
	}
	impls["Job."+types.OpStr] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: recv.String()}, nil
	}

	impls["Int.__RANGE__"] = func(th *Thread, recv Value, args []Value) (Value, error) {
		from, to := asInt(recv), asInt(args[0])
		arr := &Array{T: th.RT.Pool.Get("[Int]")}
		if arr.T == nil {
			panic("machine: [Int] not interned")
		}
		if from <= to {
			for i := from; i <= to; i++ {
				arr.Elems = append(arr.Elems, &Int{T: it, V: i})
			}
		} else {
			for i := from; i >= to; i-- {
				arr.Elems = append(arr.Elems, &Int{T: it, V: i})
			}
		}
		return arr, nil
	}
}

func registerTemplateOps(impls map[string]NativeMethod, pool *types.Pool) {
	bt, st, it := pool.Boolean, pool.String, pool.Int

	asArr := func(v Value) *Array { return v.(*Array) }
	arrIndex := func(th *Thread, a *Array, idx int64) (int64, error) {
		i := idx
		if i < 0 {
			i += int64(len(a.Elems))
		}
		if i < 0 || i >= int64(len(a.Elems)) {
			return 0, th.RaiseError(th.RT.Pool.OutOfRangeError, "size is %d, but index is %d", len(a.Elems), idx)
		}
		return i, nil
	}

	impls["Array.size"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Int{T: it, V: int64(len(asArr(recv).Elems))}, nil
	}
	impls["Array.empty"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Bool{T: bt, V: len(asArr(recv).Elems) == 0}, nil
	}
	impls["Array."+types.OpGet] = func(th *Thread, recv Value, args []Value) (Value, error) {
		a := asArr(recv)
		i, err := arrIndex(th, a, asInt(args[0]))
		if err != nil {
			return nil, err
		}
		return a.Elems[i], nil
	}
	impls["Array."+types.OpSet] = func(th *Thread, recv Value, args []Value) (Value, error) {
		a := asArr(recv)
		i, err := arrIndex(th, a, asInt(args[0]))
		if err != nil {
			return nil, err
		}
		a.Elems[i] = args[1]
		return nil, nil
	}
	addFn := func(_ *Thread, recv Value, args []Value) (Value, error) {
		a := asArr(recv)
		a.Elems = append(a.Elems, args[0])
		return nil, nil
	}
	impls["Array.add"] = addFn
	impls["Array.push"] = addFn
	impls["Array.pop"] = func(th *Thread, recv Value, _ []Value) (Value, error) {
		a := asArr(recv)
		if len(a.Elems) == 0 {
			return nil, th.RaiseError(th.RT.Pool.OutOfRangeError, "pop from an empty array")
		}
		v := a.Elems[len(a.Elems)-1]
		a.Elems = a.Elems[:len(a.Elems)-1]
		return v, nil
	}
	impls["Array.shift"] = func(th *Thread, recv Value, _ []Value) (Value, error) {
		a := asArr(recv)
		if len(a.Elems) == 0 {
			return nil, th.RaiseError(th.RT.Pool.OutOfRangeError, "shift from an empty array")
		}
		v := a.Elems[0]
		a.Elems = append(a.Elems[:0], a.Elems[1:]...)
		return v, nil
	}
	impls["Array.unshift"] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		a := asArr(recv)
		a.Elems = append([]Value{args[0]}, a.Elems...)
		return nil, nil
	}
	impls["Array.insert"] = func(th *Thread, recv Value, args []Value) (Value, error) {
		a := asArr(recv)
		i := asInt(args[0])
		if i < 0 || i > int64(len(a.Elems)) {
			return nil, th.RaiseError(th.RT.Pool.OutOfRangeError, "size is %d, but index is %d", len(a.Elems), i)
		}
		a.Elems = append(a.Elems, nil)
		copy(a.Elems[i+1:], a.Elems[i:])
		a.Elems[i] = args[1]
		return nil, nil
	}
	impls["Array.remove"] = func(th *Thread, recv Value, args []Value) (Value, error) {
		a := asArr(recv)
		i, err := arrIndex(th, a, asInt(args[0]))
		if err != nil {
			return nil, err
		}
		v := a.Elems[i]
		a.Elems = append(a.Elems[:i], a.Elems[i+1:]...)
		return v, nil
	}
	impls["Array.clear"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		asArr(recv).Elems = nil
		return nil, nil
	}
	impls["Array.slice"] = func(th *Thread, recv Value, args []Value) (Value, error) {
		a := asArr(recv)
		from, to := asInt(args[0]), asInt(args[1])
		n := int64(len(a.Elems))
		if from < 0 {
			from += n
		}
		if to < 0 {
			to += n
		}
		if from < 0 || from > n || to < from || to > n {
			return nil, th.RaiseError(th.RT.Pool.OutOfRangeError, "invalid slice range [%d, %d)", from, to)
		}
		return &Array{T: a.T, Elems: append([]Value(nil), a.Elems[from:to]...)}, nil
	}
	impls["Array.join"] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		a := asArr(recv)
		sep := args[0].(*Str).V
		parts := make([]string, len(a.Elems))
		for i, e := range a.Elems {
			parts[i] = e.String()
		}
		return &Str{T: st, V: strings.Join(parts, sep)}, nil
	}
	impls["Array."+types.OpStr] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: recv.String()}, nil
	}

	asMap := func(v Value) *Map { return v.(*Map) }
	impls["Map.size"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Int{T: it, V: int64(asMap(recv).Len())}, nil
	}
	impls["Map.empty"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Bool{T: bt, V: asMap(recv).Len() == 0}, nil
	}
	impls["Map."+types.OpGet] = func(th *Thread, recv Value, args []Value) (Value, error) {
		v, ok := asMap(recv).Get(args[0])
		if !ok {
			return nil, th.RaiseError(th.RT.Pool.KeyNotFoundError, "key not found: %s", args[0].String())
		}
		return v, nil
	}
	impls["Map."+types.OpSet] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		asMap(recv).Set(args[0], args[1])
		return nil, nil
	}
	impls["Map.has"] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		_, ok := asMap(recv).Get(args[0])
		return &Bool{T: bt, V: ok}, nil
	}
	impls["Map.find"] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		v, ok := asMap(recv).Get(args[0])
		if !ok {
			return None, nil
		}
		return v, nil
	}
	impls["Map.remove"] = func(_ *Thread, recv Value, args []Value) (Value, error) {
		return &Bool{T: bt, V: asMap(recv).Delete(args[0])}, nil
	}
	impls["Map.clear"] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		asMap(recv).Clear()
		return nil, nil
	}
	impls["Map."+types.OpStr] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: recv.String()}, nil
	}

	impls["Option.unwrap"] = func(th *Thread, recv Value, _ []Value) (Value, error) {
		if _, ok := recv.(*Invalid); ok {
			return nil, th.RaiseError(th.RT.Pool.UnwrappingError, "invalid value")
		}
		return recv, nil
	}
	impls["Option."+types.OpBool] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		_, none := recv.(*Invalid)
		return &Bool{T: bt, V: !none}, nil
	}

	impls["Tuple."+types.OpStr] = func(_ *Thread, recv Value, _ []Value) (Value, error) {
		return &Str{T: st, V: recv.String()}, nil
	}
}
