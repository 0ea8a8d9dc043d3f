package wasmheap

import (
	"encoding/binary"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/physlink/errors"
)

const pageSize = 65536

// linearMemory adapts wazero api.Memory to bounds-checked copies.
type linearMemory struct {
	mem api.Memory
}

func (m linearMemory) size() uint32 {
	return m.mem.Size()
}

// read copies length bytes at offset into dst.
func (m linearMemory) read(offset uint32, dst []byte) error {
	data, ok := m.mem.Read(offset, uint32(len(dst)))
	if !ok {
		return errors.New(errors.PhaseHeap, errors.KindOutOfBounds).
			ID(uint64(offset)).
			Detail("memory read out of bounds: offset=%d, length=%d", offset, len(dst)).
			Build()
	}
	copy(dst, data)
	return nil
}

func (m linearMemory) write(offset uint32, src []byte) error {
	if !m.mem.Write(offset, src) {
		return errors.New(errors.PhaseHeap, errors.KindOutOfBounds).
			ID(uint64(offset)).
			Detail("memory write out of bounds: offset=%d, length=%d", offset, len(src)).
			Build()
	}
	return nil
}

func (m linearMemory) zero(offset, length uint32) error {
	return m.write(offset, make([]byte, length))
}

// grow adds pages and returns the previous size in bytes.
func (m linearMemory) grow(pages uint32) (uint32, bool) {
	prev, ok := m.mem.Grow(pages)
	return prev * pageSize, ok
}

// memoryModule assembles a module whose only content is an exported memory
// of the given initial size.
func memoryModule(pages uint32) []byte {
	var mem []byte
	mem = append(mem, 0x01, 0x00) // one memory, no maximum
	mem = binary.AppendUvarint(mem, uint64(pages))

	exp := []byte{0x01, 0x06}
	exp = append(exp, "memory"...)
	exp = append(exp, 0x02, 0x00) // kind memory, index 0

	bin := []byte{
		0x00, 0x61, 0x73, 0x6d, // magic
		0x01, 0x00, 0x00, 0x00, // version
	}
	bin = appendSection(bin, 0x05, mem)
	bin = appendSection(bin, 0x07, exp)
	return bin
}

func appendSection(bin []byte, id byte, payload []byte) []byte {
	bin = append(bin, id)
	bin = binary.AppendUvarint(bin, uint64(len(payload)))
	return append(bin, payload...)
}
