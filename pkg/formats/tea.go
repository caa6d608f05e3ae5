// TEA (keyframe animation) format parser.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// TEA format errors.
var (
	ErrUnsupportedTEAVersion = errors.New("unsupported TEA version")
	ErrTruncatedTEAData      = errors.New("truncated TEA data")
	ErrInvalidTEACounts      = errors.New("invalid TEA header counts")
)

// TEA versions.
const (
	TEAMinVersion      = 2014 // oldest readable version
	TEAExtendedVersion = 2015 // first version using the extended keyframe layout
)

// On-disk record sizes in bytes.
const (
	teaHeaderSize           = 292
	teaLegacyKeyframeSize   = 32
	teaExtendedKeyframeSize = 288
	teaMoveSize             = 12
	teaAngleSize            = 8
	teaQuatSize             = 16
	teaMorphSize            = 16
	teaGroupAnimSize        = 52
	teaSampleHeaderSize     = 260
	teaReservedSize         = 4

	// teaMaxGroups bounds GroupCount independently of the keyframe count,
	// since a file with no keyframes still sizes per-group state from it.
	teaMaxGroups = math.MaxInt16

	teaIdentitySize = 20
	teaNameSize     = 256
	teaInfoSize     = 256

	// TEANoSample marks a keyframe without an embedded sound sample.
	TEANoSample = -1
)

// TEAHeader is the fixed file header.
type TEAHeader struct {
	Identity      string
	Version       uint32
	Name          string
	FrameCount    int32 // total frames at 24 fps
	GroupCount    int32 // bone groups
	KeyframeCount int32
}

// Extended reports whether keyframes use the 2015+ layout.
func (h TEAHeader) Extended() bool {
	return h.Version >= TEAExtendedVersion
}

// TEAKeyframe is a keyframe record normalized from either on-disk layout.
// Legacy keyframes leave Info empty.
type TEAKeyframe struct {
	Frame     int32 // frame number at 24 fps
	Flag      int32 // event flag (9 = footstep)
	Info      string
	Master    int32 // master keyframe marker
	Key       int32
	Move      int32 // translation present when non-zero
	Orient    int32 // rotation present when non-zero
	Morph     int32 // morph block present when non-zero (not retained)
	TimeFrame int32

	Translate [3]float32 // valid when Move != 0
	Rotate    [4]float32 // X, Y, Z, W; valid when Orient != 0

	Groups []TEAGroupAnim // one per bone group, in group order
	Sample *TEASample     // nil when no sample is embedded
}

// HasTranslate reports whether the keyframe carries a translation record.
func (k *TEAKeyframe) HasTranslate() bool {
	return k.Move != 0
}

// HasRotate reports whether the keyframe carries a rotation record.
func (k *TEAKeyframe) HasRotate() bool {
	return k.Orient != 0
}

// TEAGroupAnim is the per-group local transform for one keyframe.
type TEAGroupAnim struct {
	Key        int32
	Quaternion [4]float32 // X, Y, Z, W
	Translate  [3]float32
	Zoom       [3]float32
}

// TEASample is an embedded sound sample reference. The raw sample
// bytes are skipped; only the name is used to load it.
type TEASample struct {
	Name string
	Size int32
}

// TEA represents a parsed keyframe animation file.
type TEA struct {
	Header    TEAHeader
	Keyframes []TEAKeyframe
}

// ParseTEA parses a TEA file from raw bytes.
func ParseTEA(data []byte) (*TEA, error) {
	if len(data) < teaHeaderSize {
		return nil, fmt.Errorf("%w: header", ErrTruncatedTEAData)
	}

	r := bytes.NewReader(data)

	header, err := parseTEAHeader(r)
	if err != nil {
		return nil, err
	}

	if header.Version < TEAMinVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedTEAVersion, header.Version)
	}

	if header.FrameCount < 0 || header.GroupCount < 0 || header.KeyframeCount < 0 {
		return nil, fmt.Errorf("%w: frames=%d groups=%d keyframes=%d",
			ErrInvalidTEACounts, header.FrameCount, header.GroupCount, header.KeyframeCount)
	}

	if header.GroupCount > teaMaxGroups {
		return nil, fmt.Errorf("%w: %d groups, at most %d allowed",
			ErrInvalidTEACounts, header.GroupCount, teaMaxGroups)
	}

	// Reject counts the remaining bytes cannot possibly hold before allocating
	minKeyframe := int64(teaLegacyKeyframeSize)
	if header.Extended() {
		minKeyframe = teaExtendedKeyframeSize
	}
	minKeyframe += int64(header.GroupCount)*teaGroupAnimSize + 4 + teaReservedSize
	if int64(header.KeyframeCount)*minKeyframe > int64(r.Len()) {
		return nil, fmt.Errorf("%w: %d keyframes declared, %d bytes left",
			ErrTruncatedTEAData, header.KeyframeCount, r.Len())
	}

	tea := &TEA{
		Header:    header,
		Keyframes: make([]TEAKeyframe, 0, header.KeyframeCount),
	}

	for i := int32(0); i < header.KeyframeCount; i++ {
		kf, err := parseTEAKeyframe(r, header)
		if err != nil {
			return nil, fmt.Errorf("parsing keyframe %d: %w", i, err)
		}
		tea.Keyframes = append(tea.Keyframes, kf)
	}

	return tea, nil
}

// ParseTEAFile parses a TEA file from disk.
func ParseTEAFile(path string) (*TEA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading TEA file: %w", err)
	}
	return ParseTEA(data)
}

func parseTEAHeader(r *bytes.Reader) (TEAHeader, error) {
	var h TEAHeader

	identity, err := readFixedString(r, teaIdentitySize)
	if err != nil {
		return h, fmt.Errorf("%w: identity", ErrTruncatedTEAData)
	}
	h.Identity = identity

	if err := binary.Read(r, binary.LittleEndian, &h.Version); err != nil {
		return h, fmt.Errorf("%w: version", ErrTruncatedTEAData)
	}

	name, err := readFixedString(r, teaNameSize)
	if err != nil {
		return h, fmt.Errorf("%w: name", ErrTruncatedTEAData)
	}
	h.Name = name

	counts := [3]int32{}
	if err := binary.Read(r, binary.LittleEndian, &counts); err != nil {
		return h, fmt.Errorf("%w: counts", ErrTruncatedTEAData)
	}
	h.FrameCount, h.GroupCount, h.KeyframeCount = counts[0], counts[1], counts[2]

	return h, nil
}

// parseTEAKeyframe reads one keyframe record and its sub-records.
func parseTEAKeyframe(r *bytes.Reader, h TEAHeader) (TEAKeyframe, error) {
	var (
		kf  TEAKeyframe
		err error
	)
	if h.Extended() {
		kf, err = decodeExtendedKeyframe(r)
	} else {
		kf, err = decodeLegacyKeyframe(r)
	}
	if err != nil {
		return TEAKeyframe{}, err
	}

	// Global translation
	if kf.Move != 0 {
		if err := binary.Read(r, binary.LittleEndian, &kf.Translate); err != nil {
			return TEAKeyframe{}, fmt.Errorf("%w: reading translation", ErrTruncatedTEAData)
		}
	}

	// Global rotation, preceded by an unused angle record
	if kf.Orient != 0 {
		if err := skip(r, teaAngleSize); err != nil {
			return TEAKeyframe{}, fmt.Errorf("%w: skipping angle", ErrTruncatedTEAData)
		}
		q, err := readQuat(r)
		if err != nil {
			return TEAKeyframe{}, fmt.Errorf("%w: reading rotation", ErrTruncatedTEAData)
		}
		kf.Rotate = q
	}

	if kf.Morph != 0 {
		if err := skip(r, teaMorphSize); err != nil {
			return TEAKeyframe{}, fmt.Errorf("%w: skipping morph", ErrTruncatedTEAData)
		}
	}

	kf.Groups = make([]TEAGroupAnim, h.GroupCount)
	for j := range kf.Groups {
		g, err := parseTEAGroupAnim(r)
		if err != nil {
			return TEAKeyframe{}, fmt.Errorf("parsing group %d: %w", j, err)
		}
		kf.Groups[j] = g
	}

	var numSample int32
	if err := binary.Read(r, binary.LittleEndian, &numSample); err != nil {
		return TEAKeyframe{}, fmt.Errorf("%w: reading sample marker", ErrTruncatedTEAData)
	}
	if numSample != TEANoSample {
		sample, err := parseTEASample(r)
		if err != nil {
			return TEAKeyframe{}, err
		}
		kf.Sample = sample
	}

	// num_sfx, unused
	if err := skip(r, teaReservedSize); err != nil {
		return TEAKeyframe{}, fmt.Errorf("%w: skipping reserved", ErrTruncatedTEAData)
	}

	return kf, nil
}

// decodeLegacyKeyframe reads the pre-2015 fixed keyframe layout.
func decodeLegacyKeyframe(r *bytes.Reader) (TEAKeyframe, error) {
	var raw [8]int32
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return TEAKeyframe{}, fmt.Errorf("%w: reading keyframe", ErrTruncatedTEAData)
	}
	return TEAKeyframe{
		Frame:     raw[0],
		Flag:      raw[1],
		Master:    raw[2],
		Key:       raw[3],
		Move:      raw[4],
		Orient:    raw[5],
		Morph:     raw[6],
		TimeFrame: raw[7],
	}, nil
}

// decodeExtendedKeyframe reads the 2015+ layout, which carries a
// 256-byte info string after the event flag.
func decodeExtendedKeyframe(r *bytes.Reader) (TEAKeyframe, error) {
	var lead [2]int32
	if err := binary.Read(r, binary.LittleEndian, &lead); err != nil {
		return TEAKeyframe{}, fmt.Errorf("%w: reading keyframe", ErrTruncatedTEAData)
	}
	info, err := readFixedString(r, teaInfoSize)
	if err != nil {
		return TEAKeyframe{}, fmt.Errorf("%w: reading keyframe info", ErrTruncatedTEAData)
	}
	var tail [6]int32
	if err := binary.Read(r, binary.LittleEndian, &tail); err != nil {
		return TEAKeyframe{}, fmt.Errorf("%w: reading keyframe", ErrTruncatedTEAData)
	}
	return TEAKeyframe{
		Frame:     lead[0],
		Flag:      lead[1],
		Info:      info,
		Master:    tail[0],
		Key:       tail[1],
		Move:      tail[2],
		Orient:    tail[3],
		Morph:     tail[4],
		TimeFrame: tail[5],
	}, nil
}

func parseTEAGroupAnim(r *bytes.Reader) (TEAGroupAnim, error) {
	var g TEAGroupAnim
	if err := binary.Read(r, binary.LittleEndian, &g.Key); err != nil {
		return g, fmt.Errorf("%w: reading group key", ErrTruncatedTEAData)
	}
	if err := skip(r, teaAngleSize); err != nil {
		return g, fmt.Errorf("%w: skipping group angle", ErrTruncatedTEAData)
	}
	q, err := readQuat(r)
	if err != nil {
		return g, fmt.Errorf("%w: reading group quaternion", ErrTruncatedTEAData)
	}
	g.Quaternion = q
	if err := binary.Read(r, binary.LittleEndian, &g.Translate); err != nil {
		return g, fmt.Errorf("%w: reading group translation", ErrTruncatedTEAData)
	}
	if err := binary.Read(r, binary.LittleEndian, &g.Zoom); err != nil {
		return g, fmt.Errorf("%w: reading group zoom", ErrTruncatedTEAData)
	}
	return g, nil
}

func parseTEASample(r *bytes.Reader) (*TEASample, error) {
	name, err := readFixedString(r, teaNameSize)
	if err != nil {
		return nil, fmt.Errorf("%w: reading sample name", ErrTruncatedTEAData)
	}
	s := &TEASample{Name: name}
	if err := binary.Read(r, binary.LittleEndian, &s.Size); err != nil {
		return nil, fmt.Errorf("%w: reading sample size", ErrTruncatedTEAData)
	}
	if s.Size < 0 {
		return nil, fmt.Errorf("%w: negative sample size %d", ErrTruncatedTEAData, s.Size)
	}
	if err := skip(r, int64(s.Size)); err != nil {
		return nil, fmt.Errorf("%w: skipping sample data", ErrTruncatedTEAData)
	}
	return s, nil
}

// readQuat reads a quaternion stored as W, X, Y, Z.
func readQuat(r *bytes.Reader) ([4]float32, error) {
	var wxyz [4]float32
	if err := binary.Read(r, binary.LittleEndian, &wxyz); err != nil {
		return [4]float32{}, err
	}
	return [4]float32{wxyz[1], wxyz[2], wxyz[3], wxyz[0]}, nil
}

// skip advances r by n bytes, failing if fewer remain.
func skip(r *bytes.Reader, n int64) error {
	if int64(r.Len()) < n {
		return io.ErrUnexpectedEOF
	}
	_, err := r.Seek(n, io.SeekCurrent)
	return err
}

// readFixedString reads an n-byte null-padded string.
func readFixedString(r *bytes.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	end := bytes.IndexByte(buf, 0)
	if end == -1 {
		end = n
	}
	return string(buf[:end]), nil
}
