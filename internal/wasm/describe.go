package wasm

import (
	"fmt"
	"math"
	"math/big"

	"github.com/joeycumines/floater"
)

// FormatConstF32 renders an f32 const-expr's raw bit pattern as a decimal
// string, using floater's precision-preserving big.Rat formatter rather than
// float64's shortest-round-trip default, so logged module diagnostics show
// the exact decimal value a f32.const instruction carries.
func FormatConstF32(bits uint32) string {
	return formatConstFloat(float64(math.Float32frombits(bits)))
}

// FormatConstF64 renders an f64 const-expr's raw bit pattern as a decimal
// string.
func FormatConstF64(bits uint64) string {
	return formatConstFloat(math.Float64frombits(bits))
}

func formatConstFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	rat := new(big.Rat).SetFloat64(f)
	return floater.FormatDecimalRat(rat, -1, 0)
}

// DescribeGlobals renders one summary line per module-defined global, in
// declaration order, for diagnostic logging after a successful Compile.
// Const-expr opcodes per the ConstExpr.Op tag: 0x41 i32.const, 0x42
// i64.const, 0x43 f32.const, 0x44 f64.const, 0x23 global.get, 0xD0
// ref.null, 0xD2 ref.func.
func DescribeGlobals(m *Module) []string {
	out := make([]string, 0, len(m.Globals))
	for i, g := range m.Globals {
		init := "?"
		if i < len(m.GlobalInit) {
			init = describeConstExpr(m.GlobalInit[i])
		}
		mutability := "const"
		if g.Mutable {
			mutability = "mutable"
		}
		out = append(out, fmt.Sprintf("global[%d]: %s %s = %s", i, g.ValType, mutability, init))
	}
	return out
}

func describeConstExpr(c ConstExpr) string {
	switch c.Op {
	case 0x41:
		return fmt.Sprintf("%d", c.I32)
	case 0x42:
		return fmt.Sprintf("%d", c.I64)
	case 0x43:
		return FormatConstF32(c.F32)
	case 0x44:
		return FormatConstF64(c.F64)
	case 0x23:
		return fmt.Sprintf("global.get %d", c.GlobalIndex)
	case 0xD0:
		return "ref.null"
	case 0xD2:
		return fmt.Sprintf("ref.func %d", c.RefFuncIdx)
	default:
		return fmt.Sprintf("const(op=0x%02x)", c.Op)
	}
}
