package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrTransportClosed is returned once the host transport has been closed
var ErrTransportClosed = errors.New("transport closed")

// HostTransport is the host side of the protocol. A background goroutine
// decodes frames from the port and queues them for ReceiveResponse.
type HostTransport struct {
	port io.ReadWriteCloser

	writeMu sync.Mutex
	seq     uint8 // Next sequence to send (0x10-0x1F)

	decoder  FrameDecoder
	input    *FifoBuffer
	messages chan Message

	closeOnce sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
	readErr   error
}

// NewHostTransport creates a host-side transport and starts its reader
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:     port,
		seq:      MessageDest,
		input:    NewFifoBuffer(MessageMax),
		messages: make(chan Message, 16),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand frames and writes one command
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	var out ScratchOutput
	err := EncodeFrame(&out, t.seq, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
	if err != nil {
		return err
	}

	if _, err := t.port.Write(out.Result()); err != nil {
		return fmt.Errorf("write command %d: %w", cmdID, err)
	}
	t.seq = NextSequence(t.seq)
	return nil
}

// ReceiveResponse returns the next frame from the MCU
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-t.messages:
		return &msg, nil
	case <-timer.C:
		return nil, fmt.Errorf("response timeout after %v", timeout)
	case <-t.doneChan:
		if t.readErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransportClosed, t.readErr)
		}
		return nil, ErrTransportClosed
	}
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Write(buf[:n])
			t.processMessages()
		}
		select {
		case <-t.stopChan:
			return
		default:
		}
		if errors.Is(err, io.EOF) {
			// Serial read timeouts surface as EOF
			time.Sleep(time.Millisecond)
			continue
		}
		if err != nil {
			t.readErr = err
			return
		}
	}
}

func (t *HostTransport) processMessages() {
	consumed := t.decoder.Decode(t.input.Data(), func(msg Message) {
		payload := make([]byte, len(msg.Payload))
		copy(payload, msg.Payload)
		msg.Payload = payload

		select {
		case t.messages <- msg:
		case <-t.stopChan:
		}
	})
	t.input.Pop(consumed)
}

// Drain discards queued responses
func (t *HostTransport) Drain() {
	for {
		select {
		case <-t.messages:
		default:
			return
		}
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopChan)
		err = t.port.Close()
		<-t.doneChan
	})
	return err
}
