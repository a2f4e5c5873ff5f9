package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

const (
	version    byte = 1
	kindEntity byte = 1
)

var (
	ErrCorrupt = errors.New("oliphant: corrupt cache entry")
	magic4     = [...]byte{'O', 'L', 'P', 'H'}

	errStampTooLong = errors.New("oliphant: version stamp longer than 65535 bytes")
)

const hdr = 4 + 1 + 1 + 2 // magic | ver | kind | stampLen

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entity: magic(4) | ver(1) | kind(1=entity) | slen(u16 be) | stamp(slen) | vlen(u32 be) | payload(vlen)
//
// The stamp is the entity's version as rendered by entity.Version.String.
func EncodeEntity(stamp string, payload []byte) ([]byte, error) {
	if len(stamp) > math.MaxUint16 {
		return nil, errStampTooLong
	}
	var buf bytes.Buffer
	buf.Grow(hdr + len(stamp) + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntity)

	var u2 [2]byte
	var u4 [4]byte

	binary.BigEndian.PutUint16(u2[:], uint16(len(stamp)))
	buf.Write(u2[:])
	buf.WriteString(stamp)

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

// DecodeStamp reads only the header. Used to inspect an entry's version
// without decoding its payload.
func DecodeStamp(b []byte) (string, error) {
	stamp, _, err := decodeHeader(b)
	return stamp, err
}

// DecodeEntity validates the full framing; trailing bytes are rejected.
func DecodeEntity(b []byte) (stamp string, payload []byte, err error) {
	stamp, off, err := decodeHeader(b)
	if err != nil {
		return "", nil, err
	}
	if off+4 > len(b) {
		return "", nil, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // exact: no trailing bytes
		return "", nil, ErrCorrupt
	}
	return stamp, b[off : off+vlen], nil
}

func decodeHeader(b []byte) (string, int, error) {
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindEntity {
		return "", 0, ErrCorrupt
	}
	off := 6
	slen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if slen == 0 || slen > len(b)-off {
		return "", 0, ErrCorrupt
	}
	stamp := string(b[off : off+slen])
	off += slen
	return stamp, off, nil
}
