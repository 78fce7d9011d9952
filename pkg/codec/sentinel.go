package codec

import "bytes"

// sentinelByte is both the head and tail of every sentinel-framed packet.
const sentinelByte = 0x24 // '$'

// Sentinel is the byte-stuffing codec: a frame is HEAD || payload || TAIL
// with HEAD == TAIL == 0x24. It is cheap and stream-resyncable, at the cost
// of forbidding the two-byte pattern TAIL||HEAD inside a payload, since that
// would alias a frame boundary.
type Sentinel struct{}

// NewSentinel returns a [Sentinel] codec. It has no configuration: the
// sentinel byte is fixed by the wire format it implements.
func NewSentinel() Sentinel { return Sentinel{} }

var forbiddenPattern = []byte{sentinelByte, sentinelByte}

func (Sentinel) Encode(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+2)
	frame = append(frame, sentinelByte)
	frame = append(frame, payload...)
	frame = append(frame, sentinelByte)
	return frame
}

func (s Sentinel) Decode(frame []byte) ([]byte, error) {
	if len(frame) < 2 || frame[0] != sentinelByte || frame[len(frame)-1] != sentinelByte {
		return nil, framingError("missing or invalid sentinel head/tail")
	}

	payload := frame[1 : len(frame)-1]
	if bytes.Contains(payload, forbiddenPattern) {
		return nil, framingError("payload contains forbidden tail-head sentinel pair")
	}

	return payload, nil
}

func (s Sentinel) IsFramed(data []byte) bool {
	_, err := s.Decode(data)
	return err == nil
}

// Split best-effort resynchronises stream into complete frames. Any run of
// sentinel bytes acts as a delimiter; leading bytes before the first
// sentinel are discarded as garbage, and any bytes after the final sentinel
// are discarded as a not-yet-terminated trailing fragment.
func (Sentinel) Split(stream []byte) [][]byte {
	parts := bytes.Split(stream, []byte{sentinelByte})
	if len(parts) < 3 {
		// Fewer than two sentinel bytes in the stream: no complete frame.
		return nil
	}

	var frames [][]byte
	for _, payload := range parts[1 : len(parts)-1] {
		if len(payload) == 0 {
			continue
		}
		frame := make([]byte, 0, len(payload)+2)
		frame = append(frame, sentinelByte)
		frame = append(frame, payload...)
		frame = append(frame, sentinelByte)
		frames = append(frames, frame)
	}

	return frames
}
