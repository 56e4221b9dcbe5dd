package crf1d

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/enterprise-search/crfsuite-go/internal/generics"
	"github.com/enterprise-search/crfsuite-go/internal/quark"
)

// ErrInvalidModel is returned when model bytes fail magic, size or offset
// validation.
var ErrInvalidModel = errors.New("invalid model data")

// Binary model layout (little-endian throughout):
//
//	0..4    magic "lCRF"
//	4..8    u32 total file size
//	8..12   type tag "crf1"
//	12..16  u32 format version
//	16..48  u32 x 8: num_features, num_labels, num_attrs, off_features,
//	        off_labels, off_attrs, off_labelrefs, off_attrrefs
//
// Each section starts with a 12-byte chunk header (4-byte tag, u32 size,
// u32 count). Feature records are 20 bytes: kind u32, src u32, dst u32,
// weight f64. Reference sections hold a per-id offset table of absolute u32
// file offsets, each pointing at a u32 count followed by that many u32
// feature ids.
const (
	fileMagic   = "lCRF"
	fileType    = "crf1"
	fileVersion = 100

	headerSize      = 48
	chunkHeaderSize = 12
	featureSize     = 20

	chunkFeatures  = "FEAT"
	chunkLabelRefs = "LFRF"
	chunkAttrRefs  = "AFRF"
)

// Model is a decoded persisted model: the active feature table, both symbol
// tables, and the reverse indices needed for tagging. A Model is immutable
// and may be shared by any number of taggers.
type Model struct {
	features  []Feature
	labels    *quark.Quark
	attrs     *quark.Quark
	labelRefs [][]int
	attrRefs  [][]int
}

// NewModel compacts trained weights into a persistable model: only features
// with nonzero weight survive, feature ids are renumbered densely, and
// attribute ids are renumbered to cover only attributes referenced by an
// active feature (in ascending original-id order). Labels keep their full
// table.
func NewModel(features []Feature, w []float64, labels, attrs *quark.Quark) *Model {
	active := make([]Feature, 0, len(features))
	referenced := generics.MakeSet[int]()
	for fid, f := range features {
		if w[fid] == 0 {
			continue
		}
		f.Weight = w[fid]
		f.Freq = 0 // frequencies are a training-time concern
		active = append(active, f)
		if f.Kind == StateFeature {
			referenced.Insert(f.Src)
		}
	}

	attrIDs := generics.KeysSlice(referenced)
	sort.Ints(attrIDs)
	attrMap := make(map[int]int, len(attrIDs))
	attrStrs := make([]string, len(attrIDs))
	for newID, oldID := range attrIDs {
		attrMap[oldID] = newID
		s, _ := attrs.ToString(oldID)
		attrStrs[newID] = s
	}
	for i := range active {
		if active[i].Kind == StateFeature {
			active[i].Src = attrMap[active[i].Src]
		}
	}

	m := &Model{
		features: active,
		labels:   quark.FromStrings(append([]string(nil), labels.Strings()...)),
		attrs:    quark.FromStrings(attrStrs),
	}
	m.attrRefs, m.labelRefs = InitReferences(m.features, m.attrs.Len(), m.labels.Len())
	return m
}

// NumFeatures returns the number of active features.
func (m *Model) NumFeatures() int {
	return len(m.features)
}

// NumLabels returns L.
func (m *Model) NumLabels() int {
	return m.labels.Len()
}

// NumAttrs returns the number of attributes referenced by the model.
func (m *Model) NumAttrs() int {
	return m.attrs.Len()
}

// Labels returns the label symbol table.
func (m *Model) Labels() *quark.Quark {
	return m.labels
}

// Attrs returns the attribute symbol table.
func (m *Model) Attrs() *quark.Quark {
	return m.attrs
}

// Feature returns the feature record for fid.
func (m *Model) Feature(fid int) Feature {
	return m.features[fid]
}

// LabelRefs returns the transition-feature ids whose source is label l.
func (m *Model) LabelRefs(l int) []int {
	return m.labelRefs[l]
}

// AttrRefs returns the state-feature ids fired by attribute a.
func (m *Model) AttrRefs(a int) []int {
	return m.attrRefs[a]
}

// Bytes serializes the model. Serialization is deterministic: encoding the
// same model always yields identical bytes, and a decode/encode round-trip
// is the identity.
func (m *Model) Bytes() []byte {
	labelStrs := m.labels.Strings()
	attrStrs := m.attrs.Strings()

	offFeatures := headerSize
	featChunkSize := chunkHeaderSize + featureSize*len(m.features)
	offLabels := offFeatures + featChunkSize
	offAttrs := offLabels + strdbSize(labelStrs)
	offLabelRefs := offAttrs + strdbSize(attrStrs)
	offAttrRefs := offLabelRefs + refsChunkSize(m.labelRefs)
	total := offAttrRefs + refsChunkSize(m.attrRefs)

	buf := make([]byte, 0, total)
	buf = append(buf, fileMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(total))
	buf = append(buf, fileType...)
	buf = binary.LittleEndian.AppendUint32(buf, fileVersion)
	for _, v := range []int{
		len(m.features), m.labels.Len(), m.attrs.Len(),
		offFeatures, offLabels, offAttrs, offLabelRefs, offAttrRefs,
	} {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
	}

	buf = append(buf, chunkFeatures...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(featChunkSize))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.features)))
	for _, f := range m.features {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(f.Kind))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(f.Src))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(f.Dst))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f.Weight))
	}

	buf = appendStrdb(buf, labelStrs)
	buf = appendStrdb(buf, attrStrs)
	buf = appendRefs(buf, chunkLabelRefs, m.labelRefs)
	buf = appendRefs(buf, chunkAttrRefs, m.attrRefs)
	if len(buf) != total {
		panic("model size accounting is broken")
	}
	return buf
}

func refsChunkSize(refs [][]int) int {
	size := chunkHeaderSize + 4*len(refs)
	for _, fids := range refs {
		size += 4 + 4*len(fids)
	}
	return size
}

func appendRefs(buf []byte, tag string, refs [][]int) []byte {
	base := len(buf)
	buf = append(buf, tag...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(refsChunkSize(refs)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(refs)))

	// Offset table entries are absolute file offsets, as the reader expects.
	offset := base + chunkHeaderSize + 4*len(refs)
	for _, fids := range refs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(offset))
		offset += 4 + 4*len(fids)
	}
	for _, fids := range refs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(fids)))
		for _, fid := range fids {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(fid))
		}
	}
	return buf
}

// SaveFile writes the model to path.
func (m *Model) SaveFile(path string) error {
	if err := os.WriteFile(path, m.Bytes(), 0644); err != nil {
		return errors.Wrapf(err, "failed to write model to %q", path)
	}
	return nil
}

// LoadModel reads and decodes a model file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read model from %q", path)
	}
	return ModelFromBytes(data)
}

// ModelFromBytes decodes a model from its serialized form, validating magic,
// type, size and section offsets.
func ModelFromBytes(buf []byte) (*Model, error) {
	if len(buf) < headerSize {
		return nil, errors.Wrapf(ErrInvalidModel, "%d bytes is shorter than the %d-byte header", len(buf), headerSize)
	}
	if string(buf[0:4]) != fileMagic {
		return nil, errors.Wrapf(ErrInvalidModel, "bad magic %q", buf[0:4])
	}
	size := int(binary.LittleEndian.Uint32(buf[4:]))
	if size != len(buf) {
		return nil, errors.Wrapf(ErrInvalidModel, "recorded size %d != buffer size %d", size, len(buf))
	}
	if string(buf[8:12]) != fileType {
		return nil, errors.Wrapf(ErrInvalidModel, "bad type tag %q", buf[8:12])
	}
	if v := binary.LittleEndian.Uint32(buf[12:]); v != fileVersion {
		return nil, errors.Wrapf(ErrInvalidModel, "unsupported version %d", v)
	}

	var header [8]int
	for i := range header {
		header[i] = int(binary.LittleEndian.Uint32(buf[16+4*i:]))
	}
	numFeatures, numLabels, numAttrs := header[0], header[1], header[2]
	offFeatures, offLabels, offAttrs := header[3], header[4], header[5]
	offLabelRefs, offAttrRefs := header[6], header[7]
	for _, off := range []int{offFeatures, offLabels, offAttrs, offLabelRefs, offAttrRefs} {
		if off < headerSize || off+chunkHeaderSize > size {
			return nil, errors.Wrapf(ErrInvalidModel, "section offset %d out of bounds", off)
		}
	}

	features, err := readFeatures(buf, offFeatures, numFeatures)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidModel, err.Error())
	}
	labelStrs, err := readStrdb(buf, offLabels)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidModel, err.Error())
	}
	attrStrs, err := readStrdb(buf, offAttrs)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidModel, err.Error())
	}
	if len(labelStrs) != numLabels || len(attrStrs) != numAttrs {
		return nil, errors.Wrapf(ErrInvalidModel, "symbol table sizes %d/%d disagree with header %d/%d",
			len(labelStrs), len(attrStrs), numLabels, numAttrs)
	}
	labelRefs, err := readRefs(buf, offLabelRefs, chunkLabelRefs, numLabels, numFeatures)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidModel, err.Error())
	}
	attrRefs, err := readRefs(buf, offAttrRefs, chunkAttrRefs, numAttrs, numFeatures)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidModel, err.Error())
	}

	return &Model{
		features:  features,
		labels:    quark.FromStrings(labelStrs),
		attrs:     quark.FromStrings(attrStrs),
		labelRefs: labelRefs,
		attrRefs:  attrRefs,
	}, nil
}

func readFeatures(buf []byte, off, num int) ([]Feature, error) {
	if string(buf[off:off+4]) != chunkFeatures {
		return nil, errors.Errorf("bad feature chunk tag at offset %d", off)
	}
	if n := int(binary.LittleEndian.Uint32(buf[off+8:])); n != num {
		return nil, errors.Errorf("feature chunk holds %d records, header says %d", n, num)
	}
	if off+chunkHeaderSize+featureSize*num > len(buf) {
		return nil, errors.Errorf("feature chunk overruns the buffer")
	}
	features := make([]Feature, num)
	for i := 0; i < num; i++ {
		rec := buf[off+chunkHeaderSize+featureSize*i:]
		kind := FeatureKind(binary.LittleEndian.Uint32(rec))
		if kind != StateFeature && kind != TransitionFeature {
			return nil, errors.Errorf("feature %d has invalid kind %d", i, kind)
		}
		features[i] = Feature{
			Kind:   kind,
			Src:    int(binary.LittleEndian.Uint32(rec[4:])),
			Dst:    int(binary.LittleEndian.Uint32(rec[8:])),
			Weight: math.Float64frombits(binary.LittleEndian.Uint64(rec[12:])),
		}
	}
	return features, nil
}

func readRefs(buf []byte, off int, tag string, num, numFeatures int) ([][]int, error) {
	if string(buf[off:off+4]) != tag {
		return nil, errors.Errorf("bad reference chunk tag at offset %d, want %q", off, tag)
	}
	if n := int(binary.LittleEndian.Uint32(buf[off+8:])); n != num {
		return nil, errors.Errorf("reference chunk holds %d lists, want %d", n, num)
	}
	if off+chunkHeaderSize+4*num > len(buf) {
		return nil, errors.Errorf("reference offset table overruns the buffer")
	}
	refs := make([][]int, num)
	for i := 0; i < num; i++ {
		rec := int(binary.LittleEndian.Uint32(buf[off+chunkHeaderSize+4*i:]))
		if rec < 0 || rec+4 > len(buf) {
			return nil, errors.Errorf("reference list %d offset %d out of bounds", i, rec)
		}
		n := int(binary.LittleEndian.Uint32(buf[rec:]))
		if rec+4+4*n > len(buf) {
			return nil, errors.Errorf("reference list %d overruns the buffer", i)
		}
		fids := make([]int, n)
		for j := 0; j < n; j++ {
			fid := int(binary.LittleEndian.Uint32(buf[rec+4+4*j:]))
			if fid >= numFeatures {
				return nil, errors.Errorf("reference list %d points at feature %d, have %d", i, fid, numFeatures)
			}
			fids[j] = fid
		}
		refs[i] = fids
	}
	return refs, nil
}

// Dump writes a human-readable listing of the model: header counts, both
// symbol tables, and every feature with its weight.
func (m *Model) Dump(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "FILEHEADER = {\n  magic: %s\n  type: %s\n  version: %d\n  num_features: %d\n  num_labels: %d\n  num_attrs: %d\n}\n",
		fileMagic, fileType, fileVersion, m.NumFeatures(), m.NumLabels(), m.NumAttrs()); err != nil {
		return errors.Wrap(err, "failed to dump model")
	}
	fmt.Fprintf(w, "LABELS = {\n")
	for id, s := range m.labels.Strings() {
		fmt.Fprintf(w, "  %5d: %s\n", id, s)
	}
	fmt.Fprintf(w, "}\nATTRIBUTES = {\n")
	for id, s := range m.attrs.Strings() {
		fmt.Fprintf(w, "  %5d: %s\n", id, s)
	}
	fmt.Fprintf(w, "}\nTRANSITIONS = {\n")
	for _, f := range m.features {
		if f.Kind != TransitionFeature {
			continue
		}
		src, _ := m.labels.ToString(f.Src)
		dst, _ := m.labels.ToString(f.Dst)
		fmt.Fprintf(w, "  (%d) %s --> %s: %f\n", f.Kind, src, dst, f.Weight)
	}
	fmt.Fprintf(w, "}\nSTATE_FEATURES = {\n")
	for _, f := range m.features {
		if f.Kind != StateFeature {
			continue
		}
		src, _ := m.attrs.ToString(f.Src)
		dst, _ := m.labels.ToString(f.Dst)
		fmt.Fprintf(w, "  (%d) %s --> %s: %f\n", f.Kind, src, dst, f.Weight)
	}
	_, err := fmt.Fprintf(w, "}\n")
	return errors.Wrap(err, "failed to dump model")
}
