package protocol

import "errors"

// ErrFrameTooLarge is returned when a payload does not fit in one frame
var ErrFrameTooLarge = errors.New("payload exceeds maximum frame size")

// EncodeFrame writes a complete frame carrying the payload produced by fill
func EncodeFrame(output OutputBuffer, seq uint8, fill func(output OutputBuffer)) error {
	var payload ScratchOutput
	if fill != nil {
		fill(&payload)
	}
	body := payload.Result()
	if len(body) > MessagePayloadMax {
		return ErrFrameTooLarge
	}

	cursor := output.CurPosition()
	output.Output([]byte{uint8(len(body) + MessageLengthMin), seq})
	output.Output(body)

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{
		uint8(crc >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})
	return nil
}

// FrameDecoder extracts frames from a byte stream, resynchronizing on the
// sync byte after corruption
type FrameDecoder struct {
	desynced bool
}

// Decode calls fn for every complete, valid frame in data and returns the
// number of bytes consumed. Payloads passed to fn alias data.
func (d *FrameDecoder) Decode(data []byte, fn func(msg Message)) int {
	start := len(data)

	for len(data) > 0 {
		if d.desynced {
			// Skip garbage up to and including the next sync byte
			idx := -1
			for i, b := range data {
				if b == MessageValueSync {
					idx = i
					break
				}
			}
			if idx < 0 {
				data = nil
				break
			}
			data = data[idx+1:]
			d.desynced = false
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			d.desynced = true
			continue
		}
		seq := data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			d.desynced = true
			continue
		}
		if len(data) < msgLen {
			break
		}
		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			d.desynced = true
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			d.desynced = true
			continue
		}

		fn(Message{
			Sequence: seq,
			Payload:  data[MessageHeaderSize : msgLen-MessageTrailerSize],
		})
		data = data[msgLen:]
	}

	return start - len(data)
}

// Reset forgets any partial synchronization state
func (d *FrameDecoder) Reset() {
	d.desynced = false
}

var errHandlerPanic = errors.New("command handler panicked")
