package wasm

import (
	"fmt"
)

// maxMemoryPages is the MVP hard cap: 65536 pages (4 GiB of addressable
// linear memory at the 64KiB page size).
const maxMemoryPages = 65536

// sectionID names the twelve known section ids plus custom (0).
type sectionID byte

const (
	sectionCustom sectionID = 0
	sectionType   sectionID = 1
	sectionImport sectionID = 2
	sectionFunction sectionID = 3
	sectionTable  sectionID = 4
	sectionMemory sectionID = 5
	sectionGlobal sectionID = 6
	sectionExport sectionID = 7
	sectionStart  sectionID = 8
	sectionElement sectionID = 9
	sectionCode   sectionID = 10
	sectionData   sectionID = 11
	sectionDataCount sectionID = 12
)

// Validator holds configuration for Validate, built with functional
// options in a fluent RuntimeConfig-style idiom.
type Validator struct {
	maxFunctionTypes uint32
	simd             bool
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithMaxFunctionTypes bounds the Type section's length, guarding against
// adversarial inputs declaring an enormous vector count before the reader
// has any payload backing it.
func WithMaxFunctionTypes(n uint32) ValidatorOption {
	return func(v *Validator) { v.maxFunctionTypes = n }
}

// WithSIMD sets the flag for the 0xFD-prefixed SIMD opcode space. SIMD
// instruction validation is not implemented, so a function body containing
// a SIMD opcode is rejected either way; the flag only selects the error.
func WithSIMD(on bool) ValidatorOption {
	return func(v *Validator) { v.simd = on }
}

// NewValidator constructs a Validator with sane defaults.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{maxFunctionTypes: 1 << 20}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate decides, for the given byte vector, whether it is a well-formed
// module under the MVP + reference-types subset. It either fully accepts
// (returning a *Module and nil error) or fully rejects (nil, error); there
// is no partial-acceptance state.
func Validate(bytes []byte) (*Module, error) {
	return NewValidator().Validate(bytes)
}

// Validate is the Validator-configured entry point.
func (v *Validator) Validate(buf []byte) (*Module, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("wasm: input shorter than module header")
	}
	if buf[0] != 0x00 || buf[1] != 0x61 || buf[2] != 0x73 || buf[3] != 0x6D {
		return nil, fmt.Errorf("wasm: bad magic, not a wasm module")
	}
	if buf[4] != 0x01 || buf[5] != 0x00 || buf[6] != 0x00 || buf[7] != 0x00 {
		return nil, fmt.Errorf("wasm: unsupported version")
	}

	m := &Module{}
	pos := 8
	var lastID sectionID = sectionCustom
	seenNonCustom := map[sectionID]bool{}

	for pos < len(buf) {
		idByte := buf[pos]
		pos++
		id := sectionID(idByte)
		if id > sectionDataCount {
			return nil, fmt.Errorf("wasm: unknown section id %d", idByte)
		}

		sizeReader := newSectionReader(buf, pos, len(buf))
		size, err := sizeReader.uLEB128()
		if err != nil {
			return nil, fmt.Errorf("wasm: section %d: bad size: %w", idByte, err)
		}
		pos = sizeReader.pos

		if pos+int(size) > len(buf) {
			return nil, fmt.Errorf("wasm: section %d: declared size runs past end of module", idByte)
		}
		end := pos + int(size)
		r := newSectionReader(buf, pos, end)

		if id != sectionCustom {
			// MVP section ordering: ascending id, each known id at most once.
			if seenNonCustom[id] {
				return nil, fmt.Errorf("wasm: duplicate section id %d", idByte)
			}
			if id < lastID {
				return nil, fmt.Errorf("wasm: section id %d out of order", idByte)
			}
			seenNonCustom[id] = true
			lastID = id
		}

		switch id {
		case sectionCustom:
			// Skipped entirely; contents are not validated.
		case sectionType:
			if err := v.validateTypeSection(r, m); err != nil {
				return nil, err
			}
		case sectionImport:
			if err := v.validateImportSection(r, m); err != nil {
				return nil, err
			}
		case sectionFunction:
			if err := v.validateFunctionSection(r, m); err != nil {
				return nil, err
			}
		case sectionTable:
			if err := v.validateTableSection(r, m); err != nil {
				return nil, err
			}
		case sectionMemory:
			if err := v.validateMemorySection(r, m); err != nil {
				return nil, err
			}
		case sectionGlobal:
			if err := v.validateGlobalSection(r, m); err != nil {
				return nil, err
			}
		case sectionExport:
			if err := v.validateExportSection(r, m); err != nil {
				return nil, err
			}
		case sectionStart:
			if err := v.validateStartSection(r, m); err != nil {
				return nil, err
			}
		case sectionElement:
			if err := v.validateElementSection(r, m); err != nil {
				return nil, err
			}
		case sectionCode:
			if err := v.validateCodeSection(r, m); err != nil {
				return nil, err
			}
		case sectionData:
			if err := v.validateDataSection(r, m); err != nil {
				return nil, err
			}
		case sectionDataCount:
			if err := v.validateDataCountSection(r, m); err != nil {
				return nil, err
			}
		}

		if !r.atEnd() {
			return nil, fmt.Errorf("wasm: section %d: %d trailing bytes not consumed", idByte, r.remaining())
		}
		pos = end
	}

	if len(m.FuncTypeIdx) != len(m.Code) {
		return nil, fmt.Errorf("wasm: function section count %d does not match code section count %d", len(m.FuncTypeIdx), len(m.Code))
	}
	if m.HasDataCount && int(m.DataCount) != len(m.Data) {
		return nil, fmt.Errorf("wasm: data-count section (%d) does not match data section length (%d)", m.DataCount, len(m.Data))
	}

	if err := v.validateFunctionBodies(m); err != nil {
		return nil, err
	}

	return m, nil
}
