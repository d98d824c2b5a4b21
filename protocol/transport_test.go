package protocol

import (
	"errors"
	"net"
	"testing"
	"time"
)

func TestTransportDispatchesCommands(t *testing.T) {
	out := NewScratchOutput()
	var got []uint32
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		got = append(got, uint32(cmdID), v)
		return err
	})

	frame := encodeTestFrame(t, 0x13, nil)
	in := NewFifoBuffer(128)
	req := NewScratchOutput()
	_ = EncodeFrame(req, 0x13, func(o OutputBuffer) {
		EncodeVLQUint(o, 4)
		EncodeVLQUint(o, 1000)
		EncodeVLQUint(o, 5)
		EncodeVLQUint(o, 7)
	})
	in.Write(req.Result())
	in.Write(frame[:3]) // Incomplete trailing frame stays buffered

	tr.Receive(in)

	want := []uint32{4, 1000, 5, 7}
	if len(got) != len(want) {
		t.Fatalf("handler saw %v, expected %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("handler saw %v, expected %v", got, want)
			break
		}
	}
	if in.Available() != 3 {
		t.Errorf("expected 3 unconsumed bytes, got %d", in.Available())
	}

	// Responses echo the request sequence
	if err := tr.SendCommand(9, nil); err != nil {
		t.Fatal(err)
	}
	if out.Result()[MessagePositionSeq] != 0x13 {
		t.Errorf("response sequence 0x%02X, expected 0x13", out.Result()[MessagePositionSeq])
	}
}

func TestTransportReportsHandlerErrors(t *testing.T) {
	failure := errors.New("boom")
	calls := 0
	tr := NewTransport(NewScratchOutput(), func(cmdID uint16, data *[]byte) error {
		calls++
		if cmdID == 2 {
			return failure
		}
		if cmdID == 3 {
			panic("handler bug")
		}
		return nil
	})

	var reported []error
	tr.SetErrorHandler(func(cmdID uint16, err error) {
		reported = append(reported, err)
	})

	req := NewScratchOutput()
	_ = EncodeFrame(req, MessageDest, func(o OutputBuffer) {
		EncodeVLQUint(o, 1)
		EncodeVLQUint(o, 2)
		EncodeVLQUint(o, 1) // Dropped after the failure
	})
	_ = EncodeFrame(req, NextSequence(MessageDest), func(o OutputBuffer) {
		EncodeVLQUint(o, 3)
	})
	tr.Receive(NewSliceInputBuffer(req.Result()))

	if calls != 3 {
		t.Errorf("expected 3 handler calls, got %d", calls)
	}
	if len(reported) != 2 || reported[0] != failure || reported[1] != errHandlerPanic {
		t.Errorf("unexpected reported errors %v", reported)
	}
}

func TestHostTransportRoundTrip(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	host := NewHostTransport(hostEnd)
	defer host.Close()

	// Minimal device: echo every command ID back incremented by one
	go func() {
		in := NewFifoBuffer(MessageMax)
		out := NewScratchOutput()
		var tr *Transport
		tr = NewTransport(out, func(cmdID uint16, data *[]byte) error {
			return tr.SendCommand(cmdID+1, func(o OutputBuffer) {
				EncodeVLQBytes(o, *data)
				*data = nil
			})
		})
		buf := make([]byte, 64)
		for {
			n, err := devEnd.Read(buf)
			if err != nil {
				return
			}
			in.Write(buf[:n])
			tr.Receive(in)
			if len(out.Result()) > 0 {
				if _, err := devEnd.Write(out.Result()); err != nil {
					return
				}
				out.Reset()
			}
		}
	}()

	for i := 0; i < 20; i++ {
		err := host.SendCommand(7, func(o OutputBuffer) { o.Output([]byte{byte(i)}) })
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		msg, err := host.ReceiveResponse(time.Second)
		if err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
		payload := msg.Payload
		id, _ := DecodeVLQUint(&payload)
		echoed, _ := DecodeVLQBytes(&payload)
		if id != 8 || len(echoed) != 1 || echoed[0] != byte(i) {
			t.Errorf("response %d: id=%d payload=%v", i, id, echoed)
		}
	}
}

func TestHostTransportClose(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()
	host := NewHostTransport(hostEnd)

	if err := host.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := host.ReceiveResponse(time.Second); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("expected ErrTransportClosed, got %v", err)
	}
	if err := host.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
