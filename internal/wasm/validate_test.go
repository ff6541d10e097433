package wasm

import "testing"

func uleb128(n uint32) []byte {
	var out []byte
	for {
		b := byte(n & 0x7F)
		n >>= 7
		if n != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

func sleb128(n int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(n & 0x7F)
		n >>= 7
		if (n == 0 && b&0x40 == 0) || (n == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func section(id byte, payload []byte) []byte {
	return append([]byte{id}, append(uleb128(uint32(len(payload))), payload...)...)
}

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
}

func concat(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func TestValidateRejectsTruncatedPreamble(t *testing.T) {
	buf := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00}
	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection of a 7-byte truncated preamble")
	}
}

func TestValidateAcceptsMinimalModule(t *testing.T) {
	m, err := Validate(header())
	if err != nil {
		t.Fatalf("minimal 8-byte module should validate, got: %v", err)
	}
	if len(m.Exports) != 0 {
		t.Errorf("minimal module should have no exports, got %v", m.Exports)
	}
}

func TestValidateRejectsBadMagic(t *testing.T) {
	buf := []byte{0x01, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection of bad magic")
	}
}

func TestValidateRejectsUnsupportedVersion(t *testing.T) {
	buf := []byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}
	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection of unsupported version")
	}
}

func TestValidateRejectsUnknownSectionID(t *testing.T) {
	buf := concat(header(), section(13, nil))
	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection of unknown section id 13")
	}
}

func TestValidateRejectsOutOfOrderSections(t *testing.T) {
	exportSec := section(7, uleb128(0))
	typeSec := section(1, uleb128(0))
	buf := concat(header(), exportSec, typeSec)
	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection of a Type section arriving after an Export section")
	}
}

func TestValidateRejectsDuplicateSections(t *testing.T) {
	typeSec := section(1, uleb128(0))
	buf := concat(header(), typeSec, typeSec)
	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection of a duplicate Type section")
	}
}

func TestValidateRejectsDeclaredSizePastEnd(t *testing.T) {
	buf := concat(header(), []byte{0x01, 0x05, 0x00})
	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection when a section's declared size runs past the module end")
	}
}

func TestValidateRejectsOverlongLEB128(t *testing.T) {
	// Five-byte uLEB128 whose final byte sets upper bits beyond 32 significant bits.
	payload := []byte{0x80, 0x80, 0x80, 0x80, 0x10}
	typeSec := section(1, payload)
	buf := concat(header(), typeSec)
	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection of an overlong LEB128 vector-count encoding")
	}
}

func TestValidateRejectsBadTypeTag(t *testing.T) {
	payload := concat(uleb128(1), []byte{0x61}) // not 0x60
	typeSec := section(1, payload)
	buf := concat(header(), typeSec)
	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection of a non-0x60 function type tag")
	}
}

func TestValidateFunctionCodeCountMismatch(t *testing.T) {
	typeSec := section(1, concat(uleb128(1), []byte{0x60}, uleb128(0), uleb128(0)))
	funcSec := section(3, concat(uleb128(1), uleb128(0))) // declares one function, but no Code section follows
	buf := concat(header(), typeSec, funcSec)
	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection when the function section's count does not match the code section's")
	}
}

// buildAddModule constructs a minimal module with one exported function
// (i32, i32) -> i32 computing local.get 0 + local.get 1, matching the shape
// of a trivial "add" module used to exercise the function-body validator's
// typed operand stack end-to-end.
func buildAddModule(t *testing.T) []byte {
	t.Helper()
	typePayload := concat(
		uleb128(1),                       // one type
		[]byte{0x60},                     // func tag
		uleb128(2), []byte{0x7F, 0x7F},   // params: i32, i32
		uleb128(1), []byte{0x7F},         // results: i32
	)
	typeSec := section(1, typePayload)

	funcSec := section(3, concat(uleb128(1), uleb128(0))) // 1 function, type index 0

	exportPayload := concat(
		uleb128(1),
		uleb128(uint32(len("add"))), []byte("add"),
		[]byte{0x00}, // ImportKindFunc
		uleb128(0),
	)
	exportSec := section(7, exportPayload)

	code := []byte{
		0x20, 0x00, // local.get 0
		0x20, 0x01, // local.get 1
		0x6A,       // i32.add
		0x0B,       // end
	}
	body := concat(uleb128(0), code) // 0 local groups
	codeSec := section(10, concat(uleb128(1), uleb128(uint32(len(body))), body))

	return concat(header(), typeSec, funcSec, exportSec, codeSec)
}

func TestValidateFunctionBodyAcceptsSimpleAdd(t *testing.T) {
	buf := buildAddModule(t)
	m, err := Validate(buf)
	if err != nil {
		t.Fatalf("valid add module should validate, got: %v", err)
	}
	if len(m.Exports) != 1 || m.Exports[0].Name != "add" {
		t.Errorf("exports = %v, want one export named add", m.Exports)
	}
}

func TestValidateFunctionBodyRejectsStackUnderflow(t *testing.T) {
	typePayload := concat(uleb128(1), []byte{0x60}, uleb128(0), uleb128(1), []byte{0x7F})
	typeSec := section(1, typePayload)
	funcSec := section(3, concat(uleb128(1), uleb128(0)))
	code := []byte{0x0B} // end, with nothing pushed but i32 result expected
	body := concat(uleb128(0), code)
	codeSec := section(10, concat(uleb128(1), uleb128(uint32(len(body))), body))
	buf := concat(header(), typeSec, funcSec, codeSec)

	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection of a function returning without pushing its declared result")
	}
}

func TestValidateFunctionBodyAllowsPolymorphicStackAfterUnreachable(t *testing.T) {
	typePayload := concat(uleb128(1), []byte{0x60}, uleb128(0), uleb128(1), []byte{0x7F})
	typeSec := section(1, typePayload)
	funcSec := section(3, concat(uleb128(1), uleb128(0)))
	// unreachable, then a drop with nothing really on the stack is still
	// accepted (polymorphic stack), then end.
	code := []byte{0x00, 0x1A, 0x0B}
	body := concat(uleb128(0), code)
	codeSec := section(10, concat(uleb128(1), uleb128(uint32(len(body))), body))
	buf := concat(header(), typeSec, funcSec, codeSec)

	if _, err := Validate(buf); err != nil {
		t.Fatalf("code after unreachable should be treated as polymorphic, got: %v", err)
	}
}

func TestValidateFunctionBodyRejectsBranchDepthOutOfRange(t *testing.T) {
	typePayload := concat(uleb128(1), []byte{0x60}, uleb128(0), uleb128(0))
	typeSec := section(1, typePayload)
	funcSec := section(3, concat(uleb128(1), uleb128(0)))
	code := concat([]byte{0x0C}, uleb128(5), []byte{0x0B}) // br 5: no such depth
	body := concat(uleb128(0), code)
	codeSec := section(10, concat(uleb128(1), uleb128(uint32(len(body))), body))
	buf := concat(header(), typeSec, funcSec, codeSec)

	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection of a branch to a nonexistent block depth")
	}
}

// buildUnaryFloatOpModule constructs a module with one exported function
// taking no params and returning resultType, whose body pushes a single
// float constant of the matching width and applies op. A unary numeric op
// pops that one operand and pushes the result, leaving the stack matching
// the declared result type; an op mistakenly routed to the binary path pops
// twice and underflows.
func buildUnaryFloatOpModule(t *testing.T, resultType byte, op byte) []byte {
	t.Helper()
	typePayload := concat(uleb128(1), []byte{0x60}, uleb128(0), uleb128(1), []byte{resultType})
	typeSec := section(1, typePayload)
	funcSec := section(3, concat(uleb128(1), uleb128(0)))

	var code []byte
	switch resultType {
	case 0x7D: // f32
		code = concat([]byte{0x43}, make([]byte, 4), []byte{op, 0x0B})
	case 0x7C: // f64
		code = concat([]byte{0x44}, make([]byte, 8), []byte{op, 0x0B})
	default:
		t.Fatalf("unsupported result type 0x%02x", resultType)
	}
	body := concat(uleb128(0), code)
	codeSec := section(10, concat(uleb128(1), uleb128(uint32(len(body))), body))

	return concat(header(), typeSec, funcSec, codeSec)
}

func TestValidateF32TruncIsUnary(t *testing.T) {
	if _, err := Validate(buildUnaryFloatOpModule(t, 0x7D, 0x8F)); err != nil {
		t.Fatalf("f32.trunc should validate as a unary op, got: %v", err)
	}
}

func TestValidateF32NearestIsUnary(t *testing.T) {
	if _, err := Validate(buildUnaryFloatOpModule(t, 0x7D, 0x90)); err != nil {
		t.Fatalf("f32.nearest should validate as a unary op, got: %v", err)
	}
}

func TestValidateF32SqrtIsUnary(t *testing.T) {
	if _, err := Validate(buildUnaryFloatOpModule(t, 0x7D, 0x91)); err != nil {
		t.Fatalf("f32.sqrt should validate as a unary op, got: %v", err)
	}
}

func TestValidateF64TruncIsUnary(t *testing.T) {
	if _, err := Validate(buildUnaryFloatOpModule(t, 0x7C, 0x9D)); err != nil {
		t.Fatalf("f64.trunc should validate as a unary op, got: %v", err)
	}
}

func TestValidateF64NearestIsUnary(t *testing.T) {
	if _, err := Validate(buildUnaryFloatOpModule(t, 0x7C, 0x9E)); err != nil {
		t.Fatalf("f64.nearest should validate as a unary op, got: %v", err)
	}
}

func TestValidateF64SqrtIsUnary(t *testing.T) {
	if _, err := Validate(buildUnaryFloatOpModule(t, 0x7C, 0x9F)); err != nil {
		t.Fatalf("f64.sqrt should validate as a unary op, got: %v", err)
	}
}

func TestValidateGlobalConstExprRejectsMutableGlobalGet(t *testing.T) {
	importPayload := concat(
		uleb128(1),
		uleb128(uint32(len("env"))), []byte("env"),
		uleb128(uint32(len("g"))), []byte("g"),
		[]byte{0x03, 0x7F, 0x01}, // ImportKindGlobal, i32, mutable
	)
	importSec := section(2, importPayload)

	globalPayload := concat(
		[]byte{0x7F, 0x00}, // i32, immutable
		[]byte{0x23}, uleb128(0), []byte{0x0B}, // global.get 0, end
	)
	globalSec := section(6, concat(uleb128(1), globalPayload))

	buf := concat(header(), importSec, globalSec)
	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection of global.get referencing a mutable imported global in a constant expression")
	}
}

func TestValidateMemorySectionRejectsMultipleMemories(t *testing.T) {
	memPayload := concat(uleb128(2), []byte{0x00}, uleb128(1), []byte{0x00}, uleb128(1))
	memSec := section(5, memPayload)
	buf := concat(header(), memSec)
	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection of a module declaring more than one memory")
	}
}

func TestValidateRejectsTrailingBytesInSection(t *testing.T) {
	// Type section declares zero types but has one extra trailing byte.
	typeSec := section(1, []byte{0x00, 0xFF})
	buf := concat(header(), typeSec)
	if _, err := Validate(buf); err == nil {
		t.Fatal("expected rejection of unconsumed trailing bytes within a section")
	}
}

func TestSLEB128RoundTripsNegative(t *testing.T) {
	r := newSectionReader(sleb128(-5), 0, len(sleb128(-5)))
	got, err := r.sLEB128()
	if err != nil {
		t.Fatal(err)
	}
	if got != -5 {
		t.Errorf("sLEB128 round trip = %d, want -5", got)
	}
}
