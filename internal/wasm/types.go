// Package wasm implements a streaming structural/type validator for the
// WebAssembly binary format (MVP + reference-types subset): module
// prologue, section framing, per-section contents, and a typed
// operand-stack validator for function bodies. It never executes Wasm code
// — acceptance or rejection is the entire contract.
package wasm

import "fmt"

// ValueType is a Wasm value type byte.
type ValueType byte

const (
	ValueTypeI32      ValueType = 0x7F
	ValueTypeI64      ValueType = 0x7E
	ValueTypeF32      ValueType = 0x7D
	ValueTypeF64      ValueType = 0x7C
	ValueTypeFuncref  ValueType = 0x70
	ValueTypeExternref ValueType = 0x6F
)

func (v ValueType) String() string {
	switch v {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	default:
		return fmt.Sprintf("invalid(0x%02x)", byte(v))
	}
}

// IsValid reports whether v is one of the six recognized value types.
func (v ValueType) IsValid() bool {
	switch v {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64, ValueTypeFuncref, ValueTypeExternref:
		return true
	default:
		return false
	}
}

// IsNumeric reports whether v is one of the four numeric types (i.e. not a
// reference type).
func (v ValueType) IsNumeric() bool {
	switch v {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64:
		return true
	default:
		return false
	}
}

// IsReference reports whether v is funcref or externref.
func (v ValueType) IsReference() bool {
	return v == ValueTypeFuncref || v == ValueTypeExternref
}

// FunctionType is a vector of parameter types and a vector of result types,
// the payload of a Type-section entry.
type FunctionType struct {
	Params  []ValueType
	Results []ValueType
}

// FunctionTypeID uniquely identifies a FunctionType within a single module
// validation run. The validator itself does not use it: call_indirect
// checks its Type-section index directly.
type FunctionTypeID uint32

// Limits describes a table or memory's size bounds: min, and optionally
// max. HasMax is false when no upper bound was declared.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// GlobalType is a global's declared value type plus mutability.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// TableType is a table's element type plus size limits. MVP + reference
// types restricts ElemType to funcref or externref.
type TableType struct {
	ElemType ValueType
	Limits   Limits
}

// ImportKind discriminates the four importable entity kinds.
type ImportKind byte

const (
	ImportKindFunc ImportKind = iota
	ImportKindTable
	ImportKindMemory
	ImportKindGlobal
)

// Import is one Import-section entry.
type Import struct {
	Module string
	Field  string
	Kind   ImportKind

	FuncTypeIndex uint32     // valid when Kind == ImportKindFunc
	Table         TableType  // valid when Kind == ImportKindTable
	Memory        Limits     // valid when Kind == ImportKindMemory
	Global        GlobalType // valid when Kind == ImportKindGlobal
}

// ExportKind discriminates the four exportable entity kinds; the byte
// values match ImportKind's.
type ExportKind = ImportKind

// Export is one Export-section entry.
type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

// ElementSegment is one Element-section entry (MVP shape: active, table 0).
type ElementSegment struct {
	TableIndex uint32
	Offset     ConstExpr
	FuncIndices []uint32
}

// DataSegmentMode distinguishes the three Data-section segment kinds.
type DataSegmentMode byte

const (
	DataSegmentActiveMem0 DataSegmentMode = iota
	DataSegmentPassive
	DataSegmentActiveExplicitMem
)

// DataSegment is one Data-section entry.
type DataSegment struct {
	Mode      DataSegmentMode
	MemIndex  uint32 // valid when Mode == DataSegmentActiveExplicitMem
	Offset    ConstExpr
	Init      []byte
}

// ConstExpr is a validated constant expression: one of the seven permitted
// opcodes (i32/i64/f32/f64.const, global.get, ref.null, ref.func), captured
// just enough for offset/initializer use.
type ConstExpr struct {
	Op          byte
	I32         int32
	I64         int64
	F32         uint32
	F64         uint64
	GlobalIndex uint32
	RefIsNull   bool
	RefFuncIdx  uint32
}

// Module is the fully-validated, parsed form of a Wasm module:
// typed-function-type vector, import/export vectors, function
// index→type-index map, table/memory/global descriptors, data and
// element segments, start function index.
type Module struct {
	Types     []FunctionType
	Imports   []Import
	FuncTypeIdx []uint32 // Function section: type index per defined function
	Tables    []TableType
	Memories  []Limits
	Globals   []GlobalType
	GlobalInit []ConstExpr
	Exports   []Export
	StartFunc uint32
	HasStart  bool
	Elements  []ElementSegment
	Code      []FunctionBody
	Data      []DataSegment
	DataCount uint32
	HasDataCount bool
}

// FunctionBody is one Code-section entry: local declarations plus the
// validated instruction stream's boundaries (the validator does not retain
// a parsed instruction tree — only accept/reject plus enough bookkeeping
// for call-graph checks).
type FunctionBody struct {
	Locals []ValueType // concatenation of every declared local, expanded
	Size   uint32
	Code   []byte // raw instruction stream, locals declarations already consumed
}

// counts used by cross-section validation (Export index bounds, Start
// function signature check, call/call_indirect bounds).
func (m *Module) totalFunctions() int {
	// Function-index space is defined by the Function section (which
	// precedes Export/Start/Element in the module), not by how many
	// bodies the later Code section has validated so far.
	n := len(m.FuncTypeIdx)
	for _, imp := range m.Imports {
		if imp.Kind == ImportKindFunc {
			n++
		}
	}
	return n
}

func (m *Module) totalTables() int {
	n := len(m.Tables)
	for _, imp := range m.Imports {
		if imp.Kind == ImportKindTable {
			n++
		}
	}
	return n
}

func (m *Module) totalMemories() int {
	n := len(m.Memories)
	for _, imp := range m.Imports {
		if imp.Kind == ImportKindMemory {
			n++
		}
	}
	return n
}

func (m *Module) totalGlobals() int {
	n := len(m.Globals)
	for _, imp := range m.Imports {
		if imp.Kind == ImportKindGlobal {
			n++
		}
	}
	return n
}

// funcTypeIndex returns the Type-section index of function i (0-based over
// imported-then-defined functions), and true if i is in range.
func (m *Module) funcTypeIndex(i uint32) (uint32, bool) {
	importedFuncCount := 0
	for _, imp := range m.Imports {
		if imp.Kind == ImportKindFunc {
			if uint32(importedFuncCount) == i {
				return imp.FuncTypeIndex, true
			}
			importedFuncCount++
		}
	}
	defined := i - uint32(importedFuncCount)
	if int(defined) < len(m.FuncTypeIdx) {
		return m.FuncTypeIdx[defined], true
	}
	return 0, false
}

// globalType returns the declared type of global i (imported-then-defined),
// and true if i is in range.
func (m *Module) globalType(i uint32) (GlobalType, bool) {
	importedGlobalCount := 0
	for _, imp := range m.Imports {
		if imp.Kind == ImportKindGlobal {
			if uint32(importedGlobalCount) == i {
				return imp.Global, true
			}
			importedGlobalCount++
		}
	}
	defined := i - uint32(importedGlobalCount)
	if int(defined) < len(m.Globals) {
		return m.Globals[defined], true
	}
	return GlobalType{}, false
}

// globalIsImportedImmutable reports whether global i is both imported and
// immutable, the only kind a constant expression's global.get may
// reference.
func (m *Module) globalIsImportedImmutable(i uint32) bool {
	importedGlobalCount := 0
	for _, imp := range m.Imports {
		if imp.Kind == ImportKindGlobal {
			if uint32(importedGlobalCount) == i {
				return !imp.Global.Mutable
			}
			importedGlobalCount++
		}
	}
	return false
}
