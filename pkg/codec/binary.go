package codec

import (
	"bytes"
	"encoding/binary"
)

// Reserved frame types, handled exclusively by the retransmission
// coordinator and never delivered to the application.
const (
	RetxRequest  byte = 0xF0
	RetxResponse byte = 0xF1
)

// DefaultMaxSync is the default largest sync number: valid sync numbers
// range over 0..DefaultMaxSync inclusive, wrapping back to 0 after it.
const DefaultMaxSync = 250

// BinaryConfig governs the shape of a [Binary] codec's frame:
//
//	[Head?] [Len?:u16 BE] FrameType:u8 [Sync?:u8] Payload [Tail?]
//
// Each optional element's presence, and whether it is counted in a present
// Len field, is controlled independently. A decoder must share the exact
// same configuration as its encoder to interoperate.
type BinaryConfig struct {
	Head []byte
	Tail []byte

	UseLengthField bool
	UseSyncField   bool

	IncludeFrameTypeInLength bool
	IncludeSyncInLength      bool
	IncludeTailInLength      bool

	// MaxSync is the largest sync number carried by this codec's frames
	// before wrapping back to 0. Zero means [DefaultMaxSync].
	MaxSync byte
}

func (c BinaryConfig) maxSync() byte {
	if c.MaxSync == 0 {
		return DefaultMaxSync
	}
	return c.MaxSync
}

// Binary is the length-prefixed binary codec: a configurable frame of
// optional head/tail delimiters, an optional self-describing length field,
// a mandatory frame-type tag, and an optional sync number, wrapping an
// opaque payload.
type Binary struct {
	cfg BinaryConfig
}

// NewBinary returns a [Binary] codec for the given configuration.
func NewBinary(cfg BinaryConfig) Binary {
	return Binary{cfg: cfg}
}

// Config returns the codec's configuration.
func (b Binary) Config() BinaryConfig { return b.cfg }

// EncodeFrame builds a complete binary frame carrying frameType, an
// optional syncNo (used only when the config enables the sync field), and
// payload. It is the primary constructor applications and the
// retransmission coordinator use; [Codec.Encode] is a thin wrapper around
// it for frameType 0 with no sync number, to satisfy the [Codec] interface.
func (b Binary) EncodeFrame(frameType byte, syncNo byte, payload []byte) []byte {
	cfg := b.cfg
	var buf bytes.Buffer

	if len(cfg.Head) > 0 {
		buf.Write(cfg.Head)
	}

	if cfg.UseLengthField {
		total := len(payload) + 2 // LEN always counts itself.
		if cfg.IncludeFrameTypeInLength {
			total++
		}
		if cfg.UseSyncField && cfg.IncludeSyncInLength {
			total++
		}
		if cfg.IncludeTailInLength {
			total += len(cfg.Tail)
		}
		var lenBytes [2]byte
		binary.BigEndian.PutUint16(lenBytes[:], uint16(total)) //nolint:gosec // total is bounded by caller-supplied payload.
		buf.Write(lenBytes[:])
	}

	buf.WriteByte(frameType)

	if cfg.UseSyncField {
		buf.WriteByte(syncNo)
	}

	buf.Write(payload)

	if len(cfg.Tail) > 0 {
		buf.Write(cfg.Tail)
	}

	return buf.Bytes()
}

// Encode implements [Codec]. It produces an application-data frame (frame
// type 0, no sync number); use [Binary.EncodeFrame] directly to control the
// frame type and sync number, as the retransmission coordinator does.
func (b Binary) Encode(payload []byte) []byte {
	return b.EncodeFrame(0, 0, payload)
}

// DecodeFrame parses a complete binary frame, returning its frame type,
// sync number (0 if the codec has no sync field), and payload.
func (b Binary) DecodeFrame(frame []byte) (frameType byte, syncNo byte, payload []byte, err error) {
	cfg := b.cfg
	offset := 0

	if len(cfg.Head) > 0 {
		if len(frame) < len(cfg.Head) || !bytes.Equal(frame[:len(cfg.Head)], cfg.Head) {
			return 0, 0, nil, framingError("missing or invalid head")
		}
		offset += len(cfg.Head)
	}

	var declaredLen int
	if cfg.UseLengthField {
		if len(frame) < offset+2 {
			return 0, 0, nil, framingError("frame too short for length field")
		}
		declaredLen = int(binary.BigEndian.Uint16(frame[offset : offset+2]))
		offset += 2
	}

	if len(frame) < offset+1 {
		return 0, 0, nil, framingError("frame too short for frame type")
	}
	frameType = frame[offset]
	offset++

	if cfg.UseSyncField {
		if len(frame) < offset+1 {
			return 0, 0, nil, framingError("frame too short for sync field")
		}
		syncNo = frame[offset]
		offset++
	}

	tailLen := len(cfg.Tail)
	if tailLen > 0 {
		if len(frame) < offset+tailLen || !bytes.Equal(frame[len(frame)-tailLen:], cfg.Tail) {
			return 0, 0, nil, framingError("missing or invalid tail")
		}
	}

	payload = frame[offset : len(frame)-tailLen]

	if cfg.UseLengthField {
		// Mirrors the formula in EncodeFrame exactly.
		expected := len(payload) + 2
		if cfg.IncludeFrameTypeInLength {
			expected++
		}
		if cfg.UseSyncField && cfg.IncludeSyncInLength {
			expected++
		}
		if cfg.IncludeTailInLength {
			expected += tailLen
		}

		if declaredLen != expected {
			return 0, 0, nil, framingError("declared length does not match observed frame length")
		}
	}

	return frameType, syncNo, payload, nil
}

func (b Binary) Decode(frame []byte) ([]byte, error) {
	_, _, payload, err := b.DecodeFrame(frame)
	return payload, err
}

func (b Binary) IsFramed(data []byte) bool {
	_, _, _, err := b.DecodeFrame(data)
	return err == nil
}

// Split best-effort resynchronises stream into complete binary frames. It
// scans for the configured head (or, headless configs, frame start), using
// the length field when present to find each frame's end; without a length
// field, a configured tail delimiter marks each frame's end, and without
// either, Split treats the whole stream as (at most) one frame.
func (b Binary) Split(stream []byte) [][]byte {
	cfg := b.cfg
	var frames [][]byte

	for len(stream) > 0 {
		start := 0
		if len(cfg.Head) > 0 {
			idx := bytes.Index(stream, cfg.Head)
			if idx < 0 {
				break
			}
			start = idx
		}
		stream = stream[start:]

		size, ok := b.frameSize(stream)
		if !ok || size > len(stream) {
			break
		}

		frames = append(frames, stream[:size])
		stream = stream[size:]
	}

	return frames
}

// frameSize returns the total byte length of the single frame starting at
// the beginning of data, if it can be determined from data alone.
func (b Binary) frameSize(data []byte) (int, bool) {
	cfg := b.cfg
	offset := len(cfg.Head)

	if cfg.UseLengthField {
		if len(data) < offset+2 {
			return 0, false
		}
		declaredLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		return offset + declaredLen, true
	}

	// Without a length field, a frame's end can only be found via a tail
	// delimiter; without either, the whole buffer is treated as one frame.
	if len(cfg.Tail) > 0 {
		idx := bytes.Index(data[offset:], cfg.Tail)
		if idx < 0 {
			return 0, false
		}
		return offset + idx + len(cfg.Tail), true
	}

	return len(data), true
}
