package wasm

import "fmt"

func (v *Validator) validateTypeSection(r *sectionReader, m *Module) error {
	n, err := r.uLEB128()
	if err != nil {
		return fmt.Errorf("wasm: type section: %w", err)
	}
	if n > v.maxFunctionTypes {
		return fmt.Errorf("wasm: type section declares %d types, exceeds limit %d", n, v.maxFunctionTypes)
	}
	m.Types = make([]FunctionType, 0, n)
	for i := uint32(0); i < n; i++ {
		tag, err := r.byte()
		if err != nil {
			return fmt.Errorf("wasm: type %d: %w", i, err)
		}
		if tag != 0x60 {
			return fmt.Errorf("wasm: type %d: expected func type tag 0x60, got 0x%02x", i, tag)
		}
		params, err := readValueTypeVec(r)
		if err != nil {
			return fmt.Errorf("wasm: type %d: params: %w", i, err)
		}
		results, err := readValueTypeVec(r)
		if err != nil {
			return fmt.Errorf("wasm: type %d: results: %w", i, err)
		}
		m.Types = append(m.Types, FunctionType{Params: params, Results: results})
	}
	return nil
}

func readValueTypeVec(r *sectionReader) ([]ValueType, error) {
	n, err := r.uLEB128()
	if err != nil {
		return nil, err
	}
	out := make([]ValueType, n)
	for i := range out {
		vt, err := r.valueType()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = vt
	}
	return out, nil
}

func (v *Validator) validateImportSection(r *sectionReader, m *Module) error {
	n, err := r.uLEB128()
	if err != nil {
		return fmt.Errorf("wasm: import section: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		modName, err := r.name()
		if err != nil {
			return fmt.Errorf("wasm: import %d: module name: %w", i, err)
		}
		field, err := r.name()
		if err != nil {
			return fmt.Errorf("wasm: import %d: field name: %w", i, err)
		}
		kindByte, err := r.byte()
		if err != nil {
			return fmt.Errorf("wasm: import %d: kind: %w", i, err)
		}
		imp := Import{Module: modName, Field: field}
		switch ImportKind(kindByte) {
		case ImportKindFunc:
			idx, err := r.uLEB128()
			if err != nil {
				return fmt.Errorf("wasm: import %d: func type index: %w", i, err)
			}
			if int(idx) >= len(m.Types) {
				return fmt.Errorf("wasm: import %d: func type index %d out of range", i, idx)
			}
			imp.Kind = ImportKindFunc
			imp.FuncTypeIndex = idx
		case ImportKindTable:
			tt, err := readTableType(r)
			if err != nil {
				return fmt.Errorf("wasm: import %d: table type: %w", i, err)
			}
			imp.Kind = ImportKindTable
			imp.Table = tt
		case ImportKindMemory:
			lim, err := r.limits(maxMemoryPages)
			if err != nil {
				return fmt.Errorf("wasm: import %d: memory limits: %w", i, err)
			}
			imp.Kind = ImportKindMemory
			imp.Memory = lim
		case ImportKindGlobal:
			vt, err := r.valueType()
			if err != nil {
				return fmt.Errorf("wasm: import %d: global value type: %w", i, err)
			}
			mutByte, err := r.byte()
			if err != nil {
				return fmt.Errorf("wasm: import %d: global mutability: %w", i, err)
			}
			if mutByte != 0 && mutByte != 1 {
				return fmt.Errorf("wasm: import %d: invalid global mutability 0x%02x", i, mutByte)
			}
			imp.Kind = ImportKindGlobal
			imp.Global = GlobalType{ValType: vt, Mutable: mutByte == 1}
		default:
			return fmt.Errorf("wasm: import %d: invalid kind 0x%02x", i, kindByte)
		}
		m.Imports = append(m.Imports, imp)
	}
	return countMemoriesOK(m.totalMemories())
}

func readTableType(r *sectionReader) (TableType, error) {
	elemByte, err := r.byte()
	if err != nil {
		return TableType{}, err
	}
	elem := ValueType(elemByte)
	if !elem.IsReference() {
		return TableType{}, fmt.Errorf("invalid table element type 0x%02x", elemByte)
	}
	lim, err := r.limits(0)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: elem, Limits: lim}, nil
}

func countMemoriesOK(n int) error {
	if n > 1 {
		return fmt.Errorf("wasm: only one memory is permitted, found %d", n)
	}
	return nil
}

func (v *Validator) validateFunctionSection(r *sectionReader, m *Module) error {
	n, err := r.uLEB128()
	if err != nil {
		return fmt.Errorf("wasm: function section: %w", err)
	}
	m.FuncTypeIdx = make([]uint32, 0, n)
	for i := uint32(0); i < n; i++ {
		idx, err := r.uLEB128()
		if err != nil {
			return fmt.Errorf("wasm: function %d: %w", i, err)
		}
		if int(idx) >= len(m.Types) {
			return fmt.Errorf("wasm: function %d: type index %d out of range (type section has %d entries)", i, idx, len(m.Types))
		}
		m.FuncTypeIdx = append(m.FuncTypeIdx, idx)
	}
	return nil
}

func (v *Validator) validateTableSection(r *sectionReader, m *Module) error {
	n, err := r.uLEB128()
	if err != nil {
		return fmt.Errorf("wasm: table section: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		tt, err := readTableType(r)
		if err != nil {
			return fmt.Errorf("wasm: table %d: %w", i, err)
		}
		m.Tables = append(m.Tables, tt)
	}
	return nil
}

func (v *Validator) validateMemorySection(r *sectionReader, m *Module) error {
	n, err := r.uLEB128()
	if err != nil {
		return fmt.Errorf("wasm: memory section: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		lim, err := r.limits(maxMemoryPages)
		if err != nil {
			return fmt.Errorf("wasm: memory %d: %w", i, err)
		}
		m.Memories = append(m.Memories, lim)
	}
	return countMemoriesOK(m.totalMemories())
}

func (v *Validator) validateGlobalSection(r *sectionReader, m *Module) error {
	n, err := r.uLEB128()
	if err != nil {
		return fmt.Errorf("wasm: global section: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		vt, err := r.valueType()
		if err != nil {
			return fmt.Errorf("wasm: global %d: value type: %w", i, err)
		}
		mutByte, err := r.byte()
		if err != nil {
			return fmt.Errorf("wasm: global %d: mutability: %w", i, err)
		}
		if mutByte != 0 && mutByte != 1 {
			return fmt.Errorf("wasm: global %d: invalid mutability 0x%02x", i, mutByte)
		}
		init, err := validateConstExpr(r, m, vt)
		if err != nil {
			return fmt.Errorf("wasm: global %d: init expr: %w", i, err)
		}
		m.Globals = append(m.Globals, GlobalType{ValType: vt, Mutable: mutByte == 1})
		m.GlobalInit = append(m.GlobalInit, init)
	}
	return nil
}

func (v *Validator) validateExportSection(r *sectionReader, m *Module) error {
	n, err := r.uLEB128()
	if err != nil {
		return fmt.Errorf("wasm: export section: %w", err)
	}
	seen := make(map[string]bool, n)
	for i := uint32(0); i < n; i++ {
		name, err := r.name()
		if err != nil {
			return fmt.Errorf("wasm: export %d: name: %w", i, err)
		}
		if seen[name] {
			return fmt.Errorf("wasm: export %d: duplicate name %q", i, name)
		}
		seen[name] = true
		kindByte, err := r.byte()
		if err != nil {
			return fmt.Errorf("wasm: export %d: kind: %w", i, err)
		}
		idx, err := r.uLEB128()
		if err != nil {
			return fmt.Errorf("wasm: export %d: index: %w", i, err)
		}
		var bound int
		switch ExportKind(kindByte) {
		case ImportKindFunc:
			bound = m.totalFunctions()
		case ImportKindTable:
			bound = m.totalTables()
		case ImportKindMemory:
			bound = m.totalMemories()
		case ImportKindGlobal:
			bound = m.totalGlobals()
		default:
			return fmt.Errorf("wasm: export %d: invalid kind 0x%02x", i, kindByte)
		}
		if int(idx) >= bound {
			return fmt.Errorf("wasm: export %d: index %d out of range (%d available)", i, idx, bound)
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: ExportKind(kindByte), Index: idx})
	}
	return nil
}

func (v *Validator) validateStartSection(r *sectionReader, m *Module) error {
	idx, err := r.uLEB128()
	if err != nil {
		return fmt.Errorf("wasm: start section: %w", err)
	}
	if int(idx) >= m.totalFunctions() {
		return fmt.Errorf("wasm: start function index %d out of range", idx)
	}
	typeIdx, ok := m.funcTypeIndex(idx)
	if !ok {
		return fmt.Errorf("wasm: start function index %d unresolvable", idx)
	}
	ft := m.Types[typeIdx]
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("wasm: start function must have empty param and result types")
	}
	m.StartFunc = idx
	m.HasStart = true
	return nil
}

func (v *Validator) validateElementSection(r *sectionReader, m *Module) error {
	n, err := r.uLEB128()
	if err != nil {
		return fmt.Errorf("wasm: element section: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		tableIdx, err := r.uLEB128()
		if err != nil {
			return fmt.Errorf("wasm: element %d: table index: %w", i, err)
		}
		if tableIdx != 0 {
			return fmt.Errorf("wasm: element %d: table index must be 0 in MVP, got %d", i, tableIdx)
		}
		offset, err := validateConstExpr(r, m, ValueTypeI32)
		if err != nil {
			return fmt.Errorf("wasm: element %d: offset expr: %w", i, err)
		}
		count, err := r.uLEB128()
		if err != nil {
			return fmt.Errorf("wasm: element %d: func index count: %w", i, err)
		}
		funcs := make([]uint32, count)
		for j := uint32(0); j < count; j++ {
			fi, err := r.uLEB128()
			if err != nil {
				return fmt.Errorf("wasm: element %d: func index %d: %w", i, j, err)
			}
			if int(fi) >= m.totalFunctions() {
				return fmt.Errorf("wasm: element %d: func index %d out of range", i, fi)
			}
			funcs[j] = fi
		}
		m.Elements = append(m.Elements, ElementSegment{TableIndex: tableIdx, Offset: offset, FuncIndices: funcs})
	}
	return nil
}

func (v *Validator) validateDataSection(r *sectionReader, m *Module) error {
	n, err := r.uLEB128()
	if err != nil {
		return fmt.Errorf("wasm: data section: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		modeTag, err := r.uLEB128()
		if err != nil {
			return fmt.Errorf("wasm: data %d: mode: %w", i, err)
		}
		seg := DataSegment{}
		switch modeTag {
		case 0:
			seg.Mode = DataSegmentActiveMem0
			offset, err := validateConstExpr(r, m, ValueTypeI32)
			if err != nil {
				return fmt.Errorf("wasm: data %d: offset expr: %w", i, err)
			}
			seg.Offset = offset
		case 1:
			seg.Mode = DataSegmentPassive
		case 2:
			seg.Mode = DataSegmentActiveExplicitMem
			memIdx, err := r.uLEB128()
			if err != nil {
				return fmt.Errorf("wasm: data %d: mem index: %w", i, err)
			}
			if int(memIdx) >= m.totalMemories() {
				return fmt.Errorf("wasm: data %d: mem index %d out of range", i, memIdx)
			}
			seg.MemIndex = memIdx
			offset, err := validateConstExpr(r, m, ValueTypeI32)
			if err != nil {
				return fmt.Errorf("wasm: data %d: offset expr: %w", i, err)
			}
			seg.Offset = offset
		default:
			return fmt.Errorf("wasm: data %d: invalid mode tag %d", i, modeTag)
		}
		initLen, err := r.uLEB128()
		if err != nil {
			return fmt.Errorf("wasm: data %d: init length: %w", i, err)
		}
		initBytes, err := r.bytes(int(initLen))
		if err != nil {
			return fmt.Errorf("wasm: data %d: init bytes: %w", i, err)
		}
		seg.Init = initBytes
		m.Data = append(m.Data, seg)
	}
	return nil
}

func (v *Validator) validateDataCountSection(r *sectionReader, m *Module) error {
	n, err := r.uLEB128()
	if err != nil {
		return fmt.Errorf("wasm: data-count section: %w", err)
	}
	m.DataCount = n
	m.HasDataCount = true
	return nil
}

// validateConstExpr validates a single constant-expression sequence
// terminated by end (0x0B), containing only the permitted opcodes, and
// checks the produced value's type against want.
func validateConstExpr(r *sectionReader, m *Module, want ValueType) (ConstExpr, error) {
	op, err := r.byte()
	if err != nil {
		return ConstExpr{}, err
	}
	var expr ConstExpr
	expr.Op = op
	var gotType ValueType

	switch op {
	case 0x41: // i32.const
		v, err := r.sLEB128()
		if err != nil {
			return ConstExpr{}, err
		}
		expr.I32 = v
		gotType = ValueTypeI32
	case 0x42: // i64.const
		v, err := r.sLEB128_64()
		if err != nil {
			return ConstExpr{}, err
		}
		expr.I64 = v
		gotType = ValueTypeI64
	case 0x43: // f32.const
		v, err := r.f32Bits()
		if err != nil {
			return ConstExpr{}, err
		}
		expr.F32 = v
		gotType = ValueTypeF32
	case 0x44: // f64.const
		v, err := r.f64Bits()
		if err != nil {
			return ConstExpr{}, err
		}
		expr.F64 = v
		gotType = ValueTypeF64
	case 0x23: // global.get
		idx, err := r.uLEB128()
		if err != nil {
			return ConstExpr{}, err
		}
		if !m.globalIsImportedImmutable(idx) {
			return ConstExpr{}, fmt.Errorf("global.get in constant expression must reference an imported immutable global, got index %d", idx)
		}
		gt, _ := m.globalType(idx)
		expr.GlobalIndex = idx
		gotType = gt.ValType
	case 0xD0: // ref.null
		rt, err := r.valueType()
		if err != nil {
			return ConstExpr{}, err
		}
		if !rt.IsReference() {
			return ConstExpr{}, fmt.Errorf("ref.null requires a reference type, got %s", rt)
		}
		expr.RefIsNull = true
		gotType = rt
	case 0xD2: // ref.func
		idx, err := r.uLEB128()
		if err != nil {
			return ConstExpr{}, err
		}
		if int(idx) >= m.totalFunctions() {
			return ConstExpr{}, fmt.Errorf("ref.func index %d out of range", idx)
		}
		expr.RefFuncIdx = idx
		gotType = ValueTypeFuncref
	default:
		return ConstExpr{}, fmt.Errorf("opcode 0x%02x is not permitted in a constant expression", op)
	}

	if want != 0 && gotType != want {
		return ConstExpr{}, fmt.Errorf("constant expression produced type %s, want %s", gotType, want)
	}

	end, err := r.byte()
	if err != nil {
		return ConstExpr{}, err
	}
	if end != 0x0B {
		return ConstExpr{}, fmt.Errorf("constant expression must be terminated by end (0x0B), got 0x%02x", end)
	}
	return expr, nil
}
