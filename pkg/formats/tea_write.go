package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EncodeTEA serializes t using the keyframe layout selected by t.Header.Version.
// Header counts are taken from the header as-is; each keyframe must carry
// exactly GroupCount group records. Embedded sample data is not kept by
// the parser, so samples are written by name with an empty payload.
func EncodeTEA(t *TEA) ([]byte, error) {
	if t.Header.Version < TEAMinVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedTEAVersion, t.Header.Version)
	}
	if int(t.Header.KeyframeCount) != len(t.Keyframes) {
		return nil, fmt.Errorf("%w: header declares %d keyframes, have %d",
			ErrInvalidTEACounts, t.Header.KeyframeCount, len(t.Keyframes))
	}

	var buf bytes.Buffer
	w := &buf

	writeFixedString(w, t.Header.Identity, teaIdentitySize)
	binary.Write(w, binary.LittleEndian, t.Header.Version)
	writeFixedString(w, t.Header.Name, teaNameSize)
	binary.Write(w, binary.LittleEndian, [3]int32{
		t.Header.FrameCount, t.Header.GroupCount, t.Header.KeyframeCount,
	})

	for i := range t.Keyframes {
		kf := &t.Keyframes[i]
		if len(kf.Groups) != int(t.Header.GroupCount) {
			return nil, fmt.Errorf("%w: keyframe %d has %d groups, header declares %d",
				ErrInvalidTEACounts, i, len(kf.Groups), t.Header.GroupCount)
		}

		if t.Header.Extended() {
			binary.Write(w, binary.LittleEndian, [2]int32{kf.Frame, kf.Flag})
			writeFixedString(w, kf.Info, teaInfoSize)
			binary.Write(w, binary.LittleEndian, [6]int32{
				kf.Master, kf.Key, kf.Move, kf.Orient, kf.Morph, kf.TimeFrame,
			})
		} else {
			binary.Write(w, binary.LittleEndian, [8]int32{
				kf.Frame, kf.Flag, kf.Master, kf.Key, kf.Move, kf.Orient, kf.Morph, kf.TimeFrame,
			})
		}

		if kf.Move != 0 {
			binary.Write(w, binary.LittleEndian, kf.Translate)
		}
		if kf.Orient != 0 {
			w.Write(make([]byte, teaAngleSize))
			writeQuat(w, kf.Rotate)
		}
		if kf.Morph != 0 {
			w.Write(make([]byte, teaMorphSize))
		}

		for _, g := range kf.Groups {
			binary.Write(w, binary.LittleEndian, g.Key)
			w.Write(make([]byte, teaAngleSize))
			writeQuat(w, g.Quaternion)
			binary.Write(w, binary.LittleEndian, g.Translate)
			binary.Write(w, binary.LittleEndian, g.Zoom)
		}

		if kf.Sample == nil {
			binary.Write(w, binary.LittleEndian, int32(TEANoSample))
		} else {
			binary.Write(w, binary.LittleEndian, int32(0))
			writeFixedString(w, kf.Sample.Name, teaNameSize)
			binary.Write(w, binary.LittleEndian, int32(0))
		}

		w.Write(make([]byte, teaReservedSize))
	}

	return buf.Bytes(), nil
}

// writeQuat writes an X, Y, Z, W quaternion in on-disk W, X, Y, Z order.
func writeQuat(w *bytes.Buffer, q [4]float32) {
	binary.Write(w, binary.LittleEndian, [4]float32{q[3], q[0], q[1], q[2]})
}

func writeFixedString(w *bytes.Buffer, s string, n int) {
	buf := make([]byte, n)
	copy(buf, s)
	w.Write(buf)
}
