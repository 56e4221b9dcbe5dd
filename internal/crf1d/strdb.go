package crf1d

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// The label and attribute symbol tables are embedded in the model file as
// indexed string databases: a chunk header, an id-indexed offset table, and
// length-prefixed records. Encoding is deterministic, so a database
// round-trips byte-for-byte.
//
// Layout (all little-endian):
//
//	0..4   magic "CQDB"
//	4..8   u32 total chunk size
//	8..12  u32 number of strings
//	12..   u32 offset per id, relative to chunk start
//	...    records: u32 length + raw bytes
const strdbMagic = "CQDB"

func strdbSize(strs []string) int {
	size := chunkHeaderSize + 4*len(strs)
	for _, s := range strs {
		size += 4 + len(s)
	}
	return size
}

func appendStrdb(buf []byte, strs []string) []byte {
	base := len(buf)
	size := strdbSize(strs)
	buf = append(buf, strdbMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(size))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(strs)))

	offset := chunkHeaderSize + 4*len(strs)
	for _, s := range strs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(offset))
		offset += 4 + len(s)
	}
	for _, s := range strs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	if len(buf)-base != size {
		panic("string database size accounting is broken")
	}
	return buf
}

// readStrdb decodes the string database starting at off in buf.
func readStrdb(buf []byte, off int) ([]string, error) {
	if off < 0 || off+chunkHeaderSize > len(buf) {
		return nil, errors.Errorf("string database offset %d out of bounds", off)
	}
	if string(buf[off:off+4]) != strdbMagic {
		return nil, errors.Errorf("bad string database magic at offset %d", off)
	}
	size := int(binary.LittleEndian.Uint32(buf[off+4:]))
	num := int(binary.LittleEndian.Uint32(buf[off+8:]))
	if off+size > len(buf) || chunkHeaderSize+4*num > size {
		return nil, errors.Errorf("string database at offset %d overruns its chunk", off)
	}
	strs := make([]string, num)
	for i := 0; i < num; i++ {
		rel := int(binary.LittleEndian.Uint32(buf[off+chunkHeaderSize+4*i:]))
		if rel+4 > size {
			return nil, errors.Errorf("string record %d out of bounds", i)
		}
		n := int(binary.LittleEndian.Uint32(buf[off+rel:]))
		if rel+4+n > size {
			return nil, errors.Errorf("string record %d overruns its chunk", i)
		}
		strs[i] = string(buf[off+rel+4 : off+rel+4+n])
	}
	return strs, nil
}
