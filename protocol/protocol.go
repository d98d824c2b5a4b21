// Package protocol implements the framed command protocol spoken between
// picospi firmware and the host
package protocol

// Version represents the picospi firmware version
const Version = "0.1.0"

// Frame layout: [len][seq][payload...][crc_hi][crc_lo][sync]
// len counts the whole frame. The payload is a sequence of VLQ encoded
// command IDs, each followed by its arguments.
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10

	// Message sequence masks
	MessageSeqMask = 0x0F

	// Scratch buffer size, large enough for several frames
	MessageMax = 512
)

// Message is a decoded frame
type Message struct {
	Sequence uint8
	Payload  []byte // Frame data without header/trailer
}

// NextSequence returns the sequence that follows seq (0x10-0x1F, wrapping)
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
