// Package output implements the AssemblerFile contract of spec.md §3: a
// generic disk-file sink with a virtual/physical address split, plus a
// FileManager holding the active-file stack and the endianness toggle.
//
// Adapted from the teacher's vm/memory.go + vm/memory_multi.go
// (MemorySegment, endian-aware get/put helpers), repurposed from an
// emulated address space with fixed segments into a single growable
// output buffer addressed by virtual/physical position.
package output

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Mode selects how a GenericFile's backing bytes are seeded.
type Mode int

const (
	ModeOpen Mode = iota // write into an existing file's bytes
	ModeCreate
	ModeCopy // copy input bytes to output, then modify
)

// AssemblerFile is the sink every output-producing command writes
// through, per spec.md §3.
type AssemblerFile interface {
	Open() error
	Close() error
	IsOpen() bool
	Write(p []byte) (int, error)
	SeekVirtual(addr int64) error
	SeekPhysical(addr int64) error
	VirtualAddress() int64
	PhysicalAddress() int64
	HeaderSize() int64
	SetHeaderSize(int64)
	HasFixedVirtualAddress() bool
	FileName() string
	Bytes() []byte
}

// GenericFile is the disk-backed AssemblerFile implementation.
// virtual = physical + headerSize on every seek (spec.md §3 invariant).
type GenericFile struct {
	name       string
	mode       Mode
	data       []byte
	physical   int64
	headerSize int64
	open       bool
}

func NewGenericFile(name string, mode Mode, seed []byte) *GenericFile {
	data := append([]byte(nil), seed...)
	return &GenericFile{name: name, mode: mode, data: data}
}

func (f *GenericFile) Open() error {
	if f.mode == ModeOpen && f.data == nil {
		data, err := os.ReadFile(f.name)
		if err != nil {
			return err
		}
		f.data = data
	}
	f.open = true
	return nil
}

func (f *GenericFile) Close() error {
	f.open = false
	return nil
}

func (f *GenericFile) IsOpen() bool { return f.open }

func (f *GenericFile) Write(p []byte) (int, error) {
	if !f.open {
		return 0, fmt.Errorf("write to closed file %q", f.name)
	}
	end := f.physical + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[f.physical:end], p)
	f.physical = end
	return len(p), nil
}

func (f *GenericFile) SeekVirtual(addr int64) error {
	return f.SeekPhysical(addr - f.headerSize)
}

func (f *GenericFile) SeekPhysical(addr int64) error {
	if addr < 0 {
		return fmt.Errorf("negative physical seek (%d) in %q", addr, f.name)
	}
	f.physical = addr
	return nil
}

func (f *GenericFile) VirtualAddress() int64  { return f.physical + f.headerSize }
func (f *GenericFile) PhysicalAddress() int64 { return f.physical }
func (f *GenericFile) HeaderSize() int64      { return f.headerSize }

// SetHeaderSize retroactively adjusts the virtual/physical split
// (`.headersize N`, spec.md §4.6.5); the physical cursor is unchanged,
// so VirtualAddress reflects the new split immediately.
func (f *GenericFile) SetHeaderSize(n int64) { f.headerSize = n }

func (f *GenericFile) HasFixedVirtualAddress() bool { return true }
func (f *GenericFile) FileName() string             { return f.name }

// Bytes returns the file's current backing data, for final emission.
func (f *GenericFile) Bytes() []byte { return f.data }

// FileManager holds the stack of registered files, the single
// currently-active one, and the manager-level endianness toggle
// applied to every multi-byte write (spec.md §3).
type FileManager struct {
	files        []AssemblerFile // the open-file stack; shrinks on CloseActive
	all          []AssemblerFile // every file ever registered, for final emission
	active       AssemblerFile
	LittleEndian bool
}

func NewFileManager() *FileManager {
	return &FileManager{LittleEndian: true}
}

// Register adds f to the stack and makes it active.
func (m *FileManager) Register(f AssemblerFile) {
	m.files = append(m.files, f)
	m.all = append(m.all, f)
	m.active = f
}

// AllFiles returns every file ever registered, in open order,
// regardless of whether it has since been closed — the driver needs
// this once assembly finishes, since CloseActive drops closed files
// from the live stack.
func (m *FileManager) AllFiles() []AssemblerFile { return m.all }

// CloseActive closes and pops the active file, restoring the previous
// one (if any) to active status.
func (m *FileManager) CloseActive() error {
	if m.active == nil {
		return fmt.Errorf("no active file to close")
	}
	if err := m.active.Close(); err != nil {
		return err
	}
	if len(m.files) > 0 {
		m.files = m.files[:len(m.files)-1]
	}
	if len(m.files) > 0 {
		m.active = m.files[len(m.files)-1]
	} else {
		m.active = nil
	}
	return nil
}

// Active returns the currently active file, or nil.
func (m *FileManager) Active() AssemblerFile { return m.active }

func (m *FileManager) requireActive() (AssemblerFile, error) {
	if m.active == nil {
		return nil, fmt.Errorf("no active output file")
	}
	return m.active, nil
}

func (m *FileManager) byteOrder() binary.ByteOrder {
	if m.LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (m *FileManager) WriteU8(v uint8) error {
	f, err := m.requireActive()
	if err != nil {
		return err
	}
	_, err = f.Write([]byte{v})
	return err
}

func (m *FileManager) WriteU16(v uint16) error {
	f, err := m.requireActive()
	if err != nil {
		return err
	}
	buf := make([]byte, 2)
	m.byteOrder().PutUint16(buf, v)
	_, err = f.Write(buf)
	return err
}

func (m *FileManager) WriteU32(v uint32) error {
	f, err := m.requireActive()
	if err != nil {
		return err
	}
	buf := make([]byte, 4)
	m.byteOrder().PutUint32(buf, v)
	_, err = f.Write(buf)
	return err
}

func (m *FileManager) WriteU64(v uint64) error {
	f, err := m.requireActive()
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	m.byteOrder().PutUint64(buf, v)
	_, err = f.Write(buf)
	return err
}

func (m *FileManager) WriteBytes(p []byte) error {
	f, err := m.requireActive()
	if err != nil {
		return err
	}
	_, err = f.Write(p)
	return err
}

// VirtualAddress reports the active file's virtual address, or 0 if no
// file is active (used by `.` / MemoryPos before any `.open`).
func (m *FileManager) VirtualAddress() int64 {
	if m.active == nil {
		return 0
	}
	return m.active.VirtualAddress()
}
