package psx

import (
	"encoding/binary"
	"fmt"
	"os"
)

func readFile(path string) ([]byte, error) { return os.ReadFile(path) }

// rawEntry is one member's raw record stream, already stripped of its
// LIB container framing (or the whole file, for a bare OBJ).
type rawEntry struct {
	name string
	data []byte
}

// splitEntries mirrors loadPsxLibrary: a bare OBJ is one entry named
// after the input file; a LIB is a sequence of 16-byte-name + 4-byte
// total-size + variable-length-skip header records.
func splitEntries(path string, data []byte) ([]rawEntry, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	if len(data) >= len(objMagic) && string(data[:len(objMagic)]) == objMagic {
		return []rawEntry{{name: baseName(path), data: data}}, nil
	}
	if len(data) < len(libMagic) || string(data[:len(libMagic)]) != libMagic {
		return nil, fmt.Errorf("not a PSX OBJ or LIB file")
	}

	var entries []rawEntry
	pos := len(libMagic)
	for pos < len(data) {
		var nameBuf []byte
		for i := 0; i < 16 && data[pos+i] != ' '; i++ {
			nameBuf = append(nameBuf, data[pos+i])
		}
		size := int(getU32(data, pos+16))
		if size <= 0 || pos+size > len(data) {
			return nil, fmt.Errorf("malformed library entry %q", nameBuf)
		}

		skip := 20
		for data[pos+skip] != 0 {
			skip += int(data[pos+skip])
			skip++
		}
		skip++

		entries = append(entries, rawEntry{name: string(nameBuf), data: data[pos+skip : pos+size]})
		pos += size
	}
	return entries, nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

func getU16(d []byte, pos int) int {
	return int(binary.LittleEndian.Uint16(d[pos : pos+2]))
}

func getU32(d []byte, pos int) int32 {
	return int32(binary.LittleEndian.Uint32(d[pos : pos+4]))
}

// loadString reads a length-prefixed (Pascal-style) string and returns
// it along with the number of bytes consumed, including the length
// byte itself.
func loadString(d []byte, pos int) (string, int) {
	n := int(d[pos])
	return string(d[pos+1 : pos+1+n]), n + 1
}

// parseObject runs the record-tag state machine of PsxRelocator.cpp's
// parseObject: every record is dispatched on its leading tag byte, a
// handful advance past fields this importer has no use for (group,
// source-file-name, function-size, and the four tags the original
// itself only labels "??"), and 0x0A carries a small nested grammar of
// its own for the relocation's reference operand.
func parseObject(data []byte) (*file, error) {
	if len(data) < len(objMagic) || string(data[:len(objMagic)]) != objMagic {
		return nil, fmt.Errorf("not a PSX object (bad magic)")
	}

	f := &file{}
	pos := len(objMagic)
	activeSegment := -1
	lastSegmentPartStart := 0

	for pos < len(data) {
		tag := data[pos]
		switch tag {
		case 0x10: // segment definition
			id := int(getU32(data, pos+1))
			seg := &segmentRec{id: id}
			f.segments = append(f.segments, seg)
			pos += 5
			if data[pos] != 8 {
				return nil, fmt.Errorf("malformed segment record at offset %d", pos)
			}
			name, n := loadString(data, pos+1)
			seg.name = name
			pos += 1 + n

		case 0x14: // group: length-prefixed, not needed for placement
			pos += int(data[pos+4]) + 5

		case 0x1C: // source file name
			pos += int(data[pos+3]) + 4

		case 0x06: // set active segment by id
			id := getU16(data, pos+1)
			pos += 3
			activeSegment = -1
			for i, seg := range f.segments {
				if seg.id == id {
					activeSegment = i
					break
				}
			}

		case 0x02: // append data to the active segment
			size := getU16(data, pos+1)
			pos += 3
			if activeSegment < 0 {
				return nil, fmt.Errorf("data record outside any segment")
			}
			seg := f.segments[activeSegment]
			lastSegmentPartStart = len(seg.data)
			seg.data = append(seg.data, data[pos:pos+size]...)
			pos += size

		case 0x08: // append zeroes to the active segment
			size := getU16(data, pos+1)
			pos += 3
			if activeSegment < 0 {
				return nil, fmt.Errorf("data record outside any segment")
			}
			f.segments[activeSegment].data = append(f.segments[activeSegment].data, make([]byte, size)...)

		case 0x0A: // relocation
			rel, n, err := parseRelocation(data, pos, lastSegmentPartStart)
			if err != nil {
				return nil, err
			}
			pos += n
			if activeSegment < 0 {
				return nil, fmt.Errorf("relocation outside any segment")
			}
			f.segments[activeSegment].relocs = append(f.segments[activeSegment].relocs, rel)

		case 0x12: // internal symbol
			seg := getU16(data, pos+1)
			off := int(getU32(data, pos+3))
			name, n := loadString(data, pos+7)
			pos += 7 + n
			f.symbols = append(f.symbols, &symbolRec{kind: symInternal, segment: seg, offset: off, name: name})

		case 0x0E: // external symbol
			id := getU16(data, pos+1)
			name, n := loadString(data, pos+3)
			pos += 3 + n
			f.symbols = append(f.symbols, &symbolRec{kind: symExternal, id: id, name: name})

		case 0x30: // bss symbol
			id := getU16(data, pos+1)
			seg := getU16(data, pos+3)
			size := int(getU32(data, pos+5))
			name, n := loadString(data, pos+9)
			pos += 9 + n
			f.symbols = append(f.symbols, &symbolRec{kind: symBSS, id: id, segment: seg, size: size, name: name})

		case 0x0C: // internal symbol with id
			id := getU16(data, pos+1)
			seg := getU16(data, pos+3)
			off := int(getU32(data, pos+5))
			name, n := loadString(data, pos+9)
			pos += 9 + n
			f.symbols = append(f.symbols, &symbolRec{kind: symInternalID, id: id, segment: seg, offset: off, name: name})

		case 0x4A: // function symbol (top-level record; 0x4A is also a
			// relocation sub-type byte inside 0x0A, a different context)
			seg := getU16(data, pos+1)
			off := int(getU32(data, pos+3))
			name, n := loadString(data, pos+0x1D)
			pos += 0x1D + n
			f.symbols = append(f.symbols, &symbolRec{kind: symFunction, segment: seg, offset: off, name: name})

		case 0x4C: // function size
			pos += 11

		case 0x00:
			pos++

		case 0x3C, 0x32: // uncertain tags, skipped as the original does
			pos += 3

		case 0x3A: // uncertain tag, skipped as the original does
			pos += 9

		default:
			return nil, fmt.Errorf("unrecognized record tag %#x at offset %d", tag, pos)
		}
	}
	return f, nil
}

// parseRelocation reads one 0x0A record (the relocated word plus its
// reference operand) and returns the bytes consumed from pos.
func parseRelocation(data []byte, pos, lastSegmentPartStart int) (relocation, int, error) {
	start := pos
	rtype := data[pos+1]
	pos += 2

	var rel relocation
	switch rtype {
	case 0x10:
		rel.kind = relWord
	case 0x4A:
		rel.kind = relCall
	case 0x52:
		rel.kind = relUpper
	case 0x54:
		rel.kind = relLower
	default:
		return rel, 0, fmt.Errorf("unknown relocation subtype %#x", rtype)
	}
	rel.segmentOffset = getU16(data, pos) + lastSegmentPartStart
	pos += 2

	for {
		otherType := data[pos]
		pos++
		switch otherType {
		case 0x02: // reference to symbol by id
			rel.ref = refSymbolID
			rel.referenceID = getU16(data, pos)
			pos += 2
			return rel, pos - start, nil

		case 0x2C: // reference to a (segment, offset)
			rel.ref = refSegmentOffset
			sub := data[pos]
			pos++
			switch sub {
			case 0x00:
				rel.relativeOffset += int64(getU32(data, pos))
				pos += 4
				continue
			case 0x04:
				rel.referenceID = getU16(data, pos)
				pos += 2
				if data[pos] != 0x00 {
					return rel, 0, fmt.Errorf("malformed segment-offset relocation")
				}
				pos++
				rel.referencePos = int(getU32(data, pos))
				pos += 4
				return rel, pos - start, nil
			default:
				return rel, 0, fmt.Errorf("unknown segment-offset relocation subtype %#x", sub)
			}

		case 0x2E: // negative (segment, offset) reference
			rel.ref = refSegmentOffset
			sub := data[pos]
			pos++
			switch sub {
			case 0x00:
				rel.relativeOffset -= int64(getU32(data, pos))
				pos += 4
				continue
			default:
				return rel, 0, fmt.Errorf("unknown negative-ref subtype %#x", sub)
			}

		default:
			return rel, 0, fmt.Errorf("unknown relocation reference type %#x", otherType)
		}
	}
}
