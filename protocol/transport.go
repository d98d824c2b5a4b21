package protocol

// CommandHandler is a function type for handling decoded commands.
// The handler decodes its own arguments from data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// ErrorHandler is notified when a command handler fails. The remainder of
// that frame is dropped since its argument boundaries are unknown.
type ErrorHandler func(cmdID uint16, err error)

// Transport is the device side of the protocol: it decodes frames from the
// host, dispatches their commands and frames responses
type Transport struct {
	decoder      FrameDecoder
	output       OutputBuffer
	handler      CommandHandler
	errorHandler ErrorHandler
	seq          uint8 // Sequence of the frame being processed, echoed in responses
}

// NewTransport creates a new Transport instance
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		output:  output,
		handler: handler,
		seq:     MessageDest,
	}
}

// SetErrorHandler installs a callback for failed commands
func (t *Transport) SetErrorHandler(h ErrorHandler) {
	t.errorHandler = h
}

// Receive processes all complete frames in input and pops consumed bytes
func (t *Transport) Receive(input InputBuffer) {
	consumed := t.decoder.Decode(input.Data(), func(msg Message) {
		t.seq = msg.Sequence
		t.parseFrame(msg.Payload)
	})
	if consumed > 0 {
		input.Pop(consumed)
	}
}

// parseFrame extracts and dispatches commands from a frame
func (t *Transport) parseFrame(frame []byte) {
	var cmdID uint16
	// A panicking handler must not take the firmware down
	defer func() {
		if r := recover(); r != nil {
			t.reportError(cmdID, errHandlerPanic)
		}
	}()

	for len(frame) > 0 {
		id, err := DecodeVLQUint(&frame)
		if err != nil {
			t.reportError(0, err)
			return
		}
		cmdID = uint16(id)
		if t.handler == nil {
			continue
		}
		if err := t.handler(cmdID, &frame); err != nil {
			t.reportError(cmdID, err)
			return
		}
	}
}

func (t *Transport) reportError(cmdID uint16, err error) {
	if t.errorHandler != nil {
		t.errorHandler(cmdID, err)
	}
}

// SendCommand frames a message (usually a response) with the sequence of
// the request currently being processed
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return EncodeFrame(t.output, t.seq, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset resets the transport state (after USB disconnect/reconnect)
func (t *Transport) Reset() {
	t.decoder.Reset()
	t.seq = MessageDest
}
