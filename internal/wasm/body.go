package wasm

import "fmt"

// validateCodeSection reads the Code section's function bodies: local
// declarations (expanded into one slot per local) followed by the raw
// instruction stream up to and including the function's closing end. The
// instruction stream itself is validated later, in validateFunctionBodies,
// once every other section (and therefore every call/global/memory target)
// is known.
func (v *Validator) validateCodeSection(r *sectionReader, m *Module) error {
	n, err := r.uLEB128()
	if err != nil {
		return fmt.Errorf("wasm: code section: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		size, err := r.uLEB128()
		if err != nil {
			return fmt.Errorf("wasm: code %d: body size: %w", i, err)
		}
		if r.remaining() < int(size) {
			return fmt.Errorf("wasm: code %d: declared body size runs past section end", i)
		}
		bodyBuf, err := r.bytes(int(size))
		if err != nil {
			return fmt.Errorf("wasm: code %d: %w", i, err)
		}
		body := newSectionReader(bodyBuf, 0, len(bodyBuf))

		localGroups, err := body.uLEB128()
		if err != nil {
			return fmt.Errorf("wasm: code %d: local group count: %w", i, err)
		}
		var locals []ValueType
		for g := uint32(0); g < localGroups; g++ {
			count, err := body.uLEB128()
			if err != nil {
				return fmt.Errorf("wasm: code %d: local group %d: count: %w", i, g, err)
			}
			vt, err := body.valueType()
			if err != nil {
				return fmt.Errorf("wasm: code %d: local group %d: type: %w", i, g, err)
			}
			if uint64(len(locals))+uint64(count) > (1 << 20) {
				return fmt.Errorf("wasm: code %d: too many locals", i)
			}
			for j := uint32(0); j < count; j++ {
				locals = append(locals, vt)
			}
		}

		code, err := body.bytes(body.remaining())
		if err != nil {
			return fmt.Errorf("wasm: code %d: %w", i, err)
		}
		m.Code = append(m.Code, FunctionBody{Locals: locals, Size: size, Code: code})
	}
	return nil
}

// --- function body instruction validation ---

// stackEntry is one element of the typed operand stack validator.
type stackEntry ValueType

// controlFrame tracks one nested block/loop/if/else/function scope.
type controlFrame struct {
	opcode      byte // 0x02 block, 0x03 loop, 0x04 if, 0x00 func (outermost)
	startTypes  []ValueType
	endTypes    []ValueType
	height      int  // operand stack height at frame entry
	unreachable bool // true once an unconditional branch has been seen
	sawElse     bool
}

// funcValidator is the typed operand-stack + control-frame-stack validator
// for one function body.
type funcValidator struct {
	v       *Validator
	m       *Module
	locals  []ValueType // params ++ declared locals
	stack   []ValueType
	frames  []controlFrame
}

// validateFunctionBodies validates every Code-section entry's instruction
// stream against its declared type, in isolation from the others (functions
// do not share operand stacks).
func (v *Validator) validateFunctionBodies(m *Module) error {
	importedFuncs := 0
	for _, imp := range m.Imports {
		if imp.Kind == ImportKindFunc {
			importedFuncs++
		}
	}
	for i, body := range m.Code {
		typeIdx := m.FuncTypeIdx[i]
		if int(typeIdx) >= len(m.Types) {
			return fmt.Errorf("wasm: code %d: type index %d out of range", i, typeIdx)
		}
		ft := m.Types[typeIdx]

		locals := make([]ValueType, 0, len(ft.Params)+len(body.Locals))
		locals = append(locals, ft.Params...)
		locals = append(locals, body.Locals...)

		fv := &funcValidator{v: v, m: m, locals: locals}
		fv.frames = append(fv.frames, controlFrame{opcode: 0x00, endTypes: ft.Results, height: 0})

		r := newSectionReader(body.Code, 0, len(body.Code))
		if err := fv.run(r); err != nil {
			return fmt.Errorf("wasm: function %d: %w", importedFuncs+i, err)
		}
	}
	return nil
}

func (fv *funcValidator) curFrame() *controlFrame { return &fv.frames[len(fv.frames)-1] }

func (fv *funcValidator) push(t ValueType) { fv.stack = append(fv.stack, t) }

func (fv *funcValidator) pushVec(ts []ValueType) {
	for _, t := range ts {
		fv.push(t)
	}
}

// pop pops one value, enforcing it matches want unless the current frame is
// unreachable (polymorphic stack: anything goes after an unconditional
// branch).
func (fv *funcValidator) pop(want ValueType) (ValueType, error) {
	f := fv.curFrame()
	if len(fv.stack) == f.height {
		if f.unreachable {
			return want, nil
		}
		return 0, fmt.Errorf("operand stack underflow")
	}
	got := fv.stack[len(fv.stack)-1]
	fv.stack = fv.stack[:len(fv.stack)-1]
	if want != 0 && got != want {
		return 0, fmt.Errorf("type mismatch: expected %s, got %s", want, got)
	}
	return got, nil
}

func (fv *funcValidator) popAny() (ValueType, error) { return fv.pop(0) }

func (fv *funcValidator) popVec(ts []ValueType) error {
	for i := len(ts) - 1; i >= 0; i-- {
		if _, err := fv.pop(ts[i]); err != nil {
			return err
		}
	}
	return nil
}

// setUnreachable marks the current frame polymorphic and clears its operand
// stack back to the frame's entry height, per the unconditional-branch rule.
func (fv *funcValidator) setUnreachable() {
	f := fv.curFrame()
	fv.stack = fv.stack[:f.height]
	f.unreachable = true
}

func (fv *funcValidator) labelTypes(f *controlFrame) []ValueType {
	if f.opcode == 0x03 { // loop labels branch to the start (params act as the label's types)
		return f.startTypes
	}
	return f.endTypes
}

func (fv *funcValidator) frameAt(depth uint32) (*controlFrame, error) {
	if int(depth) >= len(fv.frames) {
		return nil, fmt.Errorf("branch depth %d out of range", depth)
	}
	return &fv.frames[len(fv.frames)-1-int(depth)], nil
}

// readBlockType decodes a LEB128 S33 block type: 0x40 (empty), a value type
// byte, or a non-negative index into the Type section.
func (fv *funcValidator) readBlockType(r *sectionReader) (params, results []ValueType, err error) {
	pos := r.pos
	b, err := r.byte()
	if err != nil {
		return nil, nil, err
	}
	if b == 0x40 {
		return nil, nil, nil
	}
	if vt := ValueType(b); vt.IsValid() && b&0x80 == 0 {
		return nil, []ValueType{vt}, nil
	}
	r.pos = pos
	idx, err := r.sLEB128_64()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid block type: %w", err)
	}
	if idx < 0 || int(idx) >= len(fv.m.Types) {
		return nil, nil, fmt.Errorf("block type index %d out of range", idx)
	}
	ft := fv.m.Types[idx]
	return ft.Params, ft.Results, nil
}

// run validates one function body's instruction stream, consuming it fully
// (the stream must end with the function-level end, closing the outermost
// frame).
func (fv *funcValidator) run(r *sectionReader) error {
	for {
		if r.atEnd() {
			if len(fv.frames) != 1 {
				return fmt.Errorf("function body ended with %d unclosed blocks", len(fv.frames)-1)
			}
			return fmt.Errorf("function body missing final end")
		}
		op, err := r.byte()
		if err != nil {
			return err
		}
		if err := fv.step(r, op); err != nil {
			return fmt.Errorf("opcode 0x%02x: %w", op, err)
		}
		if op == 0x0B && len(fv.frames) == 1 {
			// Outermost end: must be the final byte.
			if !r.atEnd() {
				return fmt.Errorf("trailing bytes after function end")
			}
			return nil
		}
	}
}

func (fv *funcValidator) step(r *sectionReader, op byte) error {
	switch op {
	case 0x00: // unreachable
		fv.setUnreachable()
		return nil
	case 0x01: // nop
		return nil

	case 0x02, 0x03, 0x04: // block, loop, if
		params, results, err := fv.readBlockType(r)
		if err != nil {
			return err
		}
		if op == 0x04 {
			if _, err := fv.pop(ValueTypeI32); err != nil {
				return err
			}
		}
		if err := fv.popVec(params); err != nil {
			return err
		}
		fv.frames = append(fv.frames, controlFrame{opcode: op, startTypes: params, endTypes: results, height: len(fv.stack)})
		fv.pushVec(params)
		return nil

	case 0x05: // else
		f := fv.curFrame()
		if f.opcode != 0x04 {
			return fmt.Errorf("else without matching if")
		}
		if err := fv.popVec(f.endTypes); err != nil {
			return err
		}
		if len(fv.stack) != f.height {
			return fmt.Errorf("operand stack not empty at else")
		}
		f.sawElse = true
		f.unreachable = false
		fv.pushVec(f.startTypes)
		return nil

	case 0x0B: // end
		f := fv.curFrame()
		if err := fv.popVec(f.endTypes); err != nil {
			return err
		}
		if len(fv.stack) != f.height {
			return fmt.Errorf("operand stack height mismatch at end")
		}
		if f.opcode == 0x04 && !f.sawElse && len(f.startTypes) != 0 {
			return fmt.Errorf("if without else must not change the operand stack's arity")
		}
		if len(fv.frames) > 1 {
			fv.frames = fv.frames[:len(fv.frames)-1]
			fv.pushVec(f.endTypes)
		}
		return nil

	case 0x0C: // br
		depth, err := r.uLEB128()
		if err != nil {
			return err
		}
		target, err := fv.frameAt(depth)
		if err != nil {
			return err
		}
		if err := fv.popVec(fv.labelTypes(target)); err != nil {
			return err
		}
		fv.setUnreachable()
		return nil

	case 0x0D: // br_if
		depth, err := r.uLEB128()
		if err != nil {
			return err
		}
		target, err := fv.frameAt(depth)
		if err != nil {
			return err
		}
		if _, err := fv.pop(ValueTypeI32); err != nil {
			return err
		}
		types := fv.labelTypes(target)
		if err := fv.popVec(types); err != nil {
			return err
		}
		fv.pushVec(types)
		return nil

	case 0x0E: // br_table
		count, err := r.uLEB128()
		if err != nil {
			return err
		}
		depths := make([]uint32, count)
		for i := range depths {
			d, err := r.uLEB128()
			if err != nil {
				return err
			}
			depths[i] = d
		}
		defDepth, err := r.uLEB128()
		if err != nil {
			return err
		}
		if _, err := fv.pop(ValueTypeI32); err != nil {
			return err
		}
		defTarget, err := fv.frameAt(defDepth)
		if err != nil {
			return err
		}
		defTypes := fv.labelTypes(defTarget)
		for _, d := range depths {
			t, err := fv.frameAt(d)
			if err != nil {
				return err
			}
			if len(fv.labelTypes(t)) != len(defTypes) {
				return fmt.Errorf("br_table arity mismatch across targets")
			}
		}
		if err := fv.popVec(defTypes); err != nil {
			return err
		}
		fv.setUnreachable()
		return nil

	case 0x0F: // return
		if err := fv.popVec(fv.frames[0].endTypes); err != nil {
			return err
		}
		fv.setUnreachable()
		return nil

	case 0x10: // call
		idx, err := r.uLEB128()
		if err != nil {
			return err
		}
		typeIdx, ok := fv.m.funcTypeIndex(idx)
		if !ok {
			return fmt.Errorf("call target %d out of range", idx)
		}
		ft := fv.m.Types[typeIdx]
		if err := fv.popVec(ft.Params); err != nil {
			return err
		}
		fv.pushVec(ft.Results)
		return nil

	case 0x11: // call_indirect
		typeIdx, err := r.uLEB128()
		if err != nil {
			return err
		}
		tableIdx, err := r.uLEB128()
		if err != nil {
			return err
		}
		if int(tableIdx) >= fv.m.totalTables() {
			return fmt.Errorf("call_indirect table index %d out of range", tableIdx)
		}
		if int(typeIdx) >= len(fv.m.Types) {
			return fmt.Errorf("call_indirect type index %d out of range", typeIdx)
		}
		if _, err := fv.pop(ValueTypeI32); err != nil {
			return err
		}
		ft := fv.m.Types[typeIdx]
		if err := fv.popVec(ft.Params); err != nil {
			return err
		}
		fv.pushVec(ft.Results)
		return nil

	case 0x1A: // drop
		_, err := fv.popAny()
		return err

	case 0x1B, 0x1C: // select, select t*
		if op == 0x1C {
			n, err := r.uLEB128()
			if err != nil {
				return err
			}
			for i := uint32(0); i < n; i++ {
				if _, err := r.valueType(); err != nil {
					return err
				}
			}
		}
		if _, err := fv.pop(ValueTypeI32); err != nil {
			return err
		}
		b, err := fv.popAny()
		if err != nil {
			return err
		}
		if _, err := fv.pop(b); err != nil {
			return err
		}
		fv.push(b)
		return nil

	case 0x20, 0x21, 0x22: // local.get, local.set, local.tee
		idx, err := r.uLEB128()
		if err != nil {
			return err
		}
		if int(idx) >= len(fv.locals) {
			return fmt.Errorf("local index %d out of range", idx)
		}
		t := fv.locals[idx]
		switch op {
		case 0x20:
			fv.push(t)
		case 0x21:
			if _, err := fv.pop(t); err != nil {
				return err
			}
		case 0x22:
			if _, err := fv.pop(t); err != nil {
				return err
			}
			fv.push(t)
		}
		return nil

	case 0x23, 0x24: // global.get, global.set
		idx, err := r.uLEB128()
		if err != nil {
			return err
		}
		gt, ok := fv.m.globalType(idx)
		if !ok {
			return fmt.Errorf("global index %d out of range", idx)
		}
		if op == 0x23 {
			fv.push(gt.ValType)
		} else {
			if !gt.Mutable {
				return fmt.Errorf("global.set on immutable global %d", idx)
			}
			if _, err := fv.pop(gt.ValType); err != nil {
				return err
			}
		}
		return nil

	case 0x25: // table.get
		idx, err := r.uLEB128()
		if err != nil {
			return err
		}
		if int(idx) >= fv.m.totalTables() {
			return fmt.Errorf("table index %d out of range", idx)
		}
		if _, err := fv.pop(ValueTypeI32); err != nil {
			return err
		}
		fv.push(ValueTypeFuncref)
		return nil
	case 0x26: // table.set
		idx, err := r.uLEB128()
		if err != nil {
			return err
		}
		if int(idx) >= fv.m.totalTables() {
			return fmt.Errorf("table index %d out of range", idx)
		}
		if _, err := fv.popAny(); err != nil {
			return err
		}
		if _, err := fv.pop(ValueTypeI32); err != nil {
			return err
		}
		return nil

	case 0x28, 0x29, 0x2A, 0x2B, 0x2C, 0x2D, 0x2E, 0x2F,
		0x30, 0x31, 0x32, 0x33, 0x34, 0x35: // i32/i64/f32/f64 loads
		if err := fv.memArg(r); err != nil {
			return err
		}
		if _, err := fv.pop(ValueTypeI32); err != nil {
			return err
		}
		fv.push(loadResultType(op))
		return nil

	case 0x36, 0x37, 0x38, 0x39,
		0x3A, 0x3B, 0x3C, 0x3D, 0x3E: // i32/i64/f32/f64 stores
		if err := fv.memArg(r); err != nil {
			return err
		}
		vt, err := storeValueType(op)
		if err != nil {
			return err
		}
		if _, err := fv.pop(vt); err != nil {
			return err
		}
		if _, err := fv.pop(ValueTypeI32); err != nil {
			return err
		}
		return nil

	case 0x3F: // memory.size
		if _, err := r.byte(); err != nil {
			return err
		}
		fv.push(ValueTypeI32)
		return nil
	case 0x40: // memory.grow
		if _, err := r.byte(); err != nil {
			return err
		}
		if _, err := fv.pop(ValueTypeI32); err != nil {
			return err
		}
		fv.push(ValueTypeI32)
		return nil

	case 0x41: // i32.const
		if _, err := r.sLEB128(); err != nil {
			return err
		}
		fv.push(ValueTypeI32)
		return nil
	case 0x42: // i64.const
		if _, err := r.sLEB128_64(); err != nil {
			return err
		}
		fv.push(ValueTypeI64)
		return nil
	case 0x43: // f32.const
		if _, err := r.f32Bits(); err != nil {
			return err
		}
		fv.push(ValueTypeF32)
		return nil
	case 0x44: // f64.const
		if _, err := r.f64Bits(); err != nil {
			return err
		}
		fv.push(ValueTypeF64)
		return nil

	case 0xD0: // ref.null
		rt, err := r.valueType()
		if err != nil {
			return err
		}
		if !rt.IsReference() {
			return fmt.Errorf("ref.null requires a reference type")
		}
		fv.push(rt)
		return nil
	case 0xD1: // ref.is_null
		if _, err := fv.popAny(); err != nil {
			return err
		}
		fv.push(ValueTypeI32)
		return nil
	case 0xD2: // ref.func
		idx, err := r.uLEB128()
		if err != nil {
			return err
		}
		if int(idx) >= fv.m.totalFunctions() {
			return fmt.Errorf("ref.func index %d out of range", idx)
		}
		fv.push(ValueTypeFuncref)
		return nil

	case 0xFD: // SIMD prefix
		if !fv.v.simd {
			return fmt.Errorf("SIMD opcodes are disabled")
		}
		if _, err := r.uLEB128(); err != nil {
			return err
		}
		return fmt.Errorf("SIMD instruction validation is not implemented")

	default:
		return numericOp(fv, op)
	}
}

func (fv *funcValidator) memArg(r *sectionReader) error {
	if _, err := r.uLEB128(); err != nil { // align
		return err
	}
	if _, err := r.uLEB128(); err != nil { // offset
		return err
	}
	return nil
}

func loadResultType(op byte) ValueType {
	switch {
	case op == 0x28, op >= 0x2C && op <= 0x2F:
		return ValueTypeI32
	case op == 0x29, op >= 0x30 && op <= 0x35:
		return ValueTypeI64
	case op == 0x2A:
		return ValueTypeF32
	case op == 0x2B:
		return ValueTypeF64
	default:
		return ValueTypeI32
	}
}

func storeValueType(op byte) (ValueType, error) {
	switch op {
	case 0x36, 0x3A, 0x3B:
		return ValueTypeI32, nil
	case 0x37, 0x3C, 0x3D, 0x3E:
		return ValueTypeI64, nil
	case 0x38:
		return ValueTypeF32, nil
	case 0x39:
		return ValueTypeF64, nil
	default:
		return 0, fmt.Errorf("unrecognized store opcode 0x%02x", op)
	}
}

// numericOp handles the i32/i64/f32/f64 comparison, arithmetic and
// conversion opcodes (0x45-0xC4), whose operand/result types are fully
// determined by the opcode alone.
func numericOp(fv *funcValidator, op byte) error {
	unary := func(in, out ValueType) error {
		if _, err := fv.pop(in); err != nil {
			return err
		}
		fv.push(out)
		return nil
	}
	binary := func(in, out ValueType) error {
		if _, err := fv.pop(in); err != nil {
			return err
		}
		if _, err := fv.pop(in); err != nil {
			return err
		}
		fv.push(out)
		return nil
	}
	testOp := func(in ValueType) error { return unary(in, ValueTypeI32) }
	relOp := func(in ValueType) error { return binary(in, ValueTypeI32) }

	switch {
	case op == 0x45: // i32.eqz
		return testOp(ValueTypeI32)
	case op >= 0x46 && op <= 0x4F: // i32 relops
		return relOp(ValueTypeI32)
	case op == 0x50: // i64.eqz
		return testOp(ValueTypeI64)
	case op >= 0x51 && op <= 0x5A: // i64 relops
		return relOp(ValueTypeI64)
	case op >= 0x5B && op <= 0x60: // f32 relops
		return relOp(ValueTypeF32)
	case op >= 0x61 && op <= 0x66: // f64 relops
		return relOp(ValueTypeF64)

	case op == 0x67 || op == 0x68 || op == 0x69: // i32 clz/ctz/popcnt
		return unary(ValueTypeI32, ValueTypeI32)
	case op >= 0x6A && op <= 0x78: // i32 binops
		return binary(ValueTypeI32, ValueTypeI32)
	case op == 0x79 || op == 0x7A || op == 0x7B: // i64 clz/ctz/popcnt
		return unary(ValueTypeI64, ValueTypeI64)
	case op >= 0x7C && op <= 0x8A: // i64 binops
		return binary(ValueTypeI64, ValueTypeI64)
	case op >= 0x8B && op <= 0x91: // f32 unops: abs,neg,ceil,floor,trunc,nearest,sqrt
		return unary(ValueTypeF32, ValueTypeF32)
	case op >= 0x92 && op <= 0x98: // f32 binops: add,sub,mul,div,min,max,copysign
		return binary(ValueTypeF32, ValueTypeF32)
	case op >= 0x99 && op <= 0x9F: // f64 unops: abs,neg,ceil,floor,trunc,nearest,sqrt
		return unary(ValueTypeF64, ValueTypeF64)
	case op >= 0xA0 && op <= 0xA6: // f64 binops: add,sub,mul,div,min,max,copysign
		return binary(ValueTypeF64, ValueTypeF64)

	case op == 0xA7: // i32.wrap_i64
		return unary(ValueTypeI64, ValueTypeI32)
	case op >= 0xA8 && op <= 0xAB: // i32.trunc_f32_s/u, i32.trunc_f64_s/u (grouped)
		if op <= 0xA9 {
			return unary(ValueTypeF32, ValueTypeI32)
		}
		return unary(ValueTypeF64, ValueTypeI32)
	case op == 0xAC || op == 0xAD: // i64.extend_i32_s/u
		return unary(ValueTypeI32, ValueTypeI64)
	case op >= 0xAE && op <= 0xB1: // i64.trunc_f32_s/u, i64.trunc_f64_s/u
		if op <= 0xAF {
			return unary(ValueTypeF32, ValueTypeI64)
		}
		return unary(ValueTypeF64, ValueTypeI64)
	case op == 0xB2 || op == 0xB3: // f32.convert_i32_s/u
		return unary(ValueTypeI32, ValueTypeF32)
	case op == 0xB4 || op == 0xB5: // f32.convert_i64_s/u
		return unary(ValueTypeI64, ValueTypeF32)
	case op == 0xB6: // f32.demote_f64
		return unary(ValueTypeF64, ValueTypeF32)
	case op == 0xB7 || op == 0xB8: // f64.convert_i32_s/u
		return unary(ValueTypeI32, ValueTypeF64)
	case op == 0xB9 || op == 0xBA: // f64.convert_i64_s/u
		return unary(ValueTypeI64, ValueTypeF64)
	case op == 0xBB: // f64.promote_f32
		return unary(ValueTypeF32, ValueTypeF64)
	case op == 0xBC: // i32.reinterpret_f32
		return unary(ValueTypeF32, ValueTypeI32)
	case op == 0xBD: // i64.reinterpret_f64
		return unary(ValueTypeF64, ValueTypeI64)
	case op == 0xBE: // f32.reinterpret_i32
		return unary(ValueTypeI32, ValueTypeF32)
	case op == 0xBF: // f64.reinterpret_i64
		return unary(ValueTypeI64, ValueTypeF64)

	case op >= 0xC0 && op <= 0xC1: // i32.extend8_s, i32.extend16_s
		return unary(ValueTypeI32, ValueTypeI32)
	case op >= 0xC2 && op <= 0xC4:
		return unary(ValueTypeI64, ValueTypeI64)

	default:
		return fmt.Errorf("unrecognized opcode")
	}
}
