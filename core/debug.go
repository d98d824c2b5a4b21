package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// SPIEvent captures one adapter lifecycle or transfer event for post-mortem analysis
type SPIEvent struct {
	EventType uint8    // Event type code
	Bus       SPIBusID // Controller
	Value1    uint32   // Context-dependent value
	Value2    uint32   // Context-dependent value
}

// Event type codes
const (
	EvtBegin            = 1 // Value1=rx pin, Value2=hardware CS
	EvtEnd              = 2 // Value1=rx pin
	EvtBeginTransaction = 3 // Value1=clock, Value2=mode<<8|bit order
	EvtEndTransaction   = 4
	EvtCommandError     = 5 // Value1=command ID, Value2=result code
)

const (
	TraceRingSize = 32 // Keep last 32 events
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	traceRing     [TraceRingSize]SPIEvent
	traceRingHead uint8
	traceEnabled  bool = true

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer.
// Goes through the async channel when InitAsyncDebug was called.
func DebugPrintln(msg string) {
	if !debugEnabled || debugPrintln == nil {
		return
	}
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
			// Channel full, drop message
		}
		return
	}
	debugPrintln(msg)
}

// RecordSPIEvent stores an event in the trace ring. Never blocks.
func RecordSPIEvent(eventType uint8, bus SPIBusID, value1, value2 uint32) {
	if !traceEnabled {
		return
	}
	idx := traceRingHead
	traceRing[idx] = SPIEvent{
		EventType: eventType,
		Bus:       bus,
		Value1:    value1,
		Value2:    value2,
	}
	traceRingHead = (idx + 1) % TraceRingSize
}

// SPITrace returns recorded events from oldest to newest
func SPITrace() []SPIEvent {
	events := make([]SPIEvent, 0, TraceRingSize)
	start := traceRingHead
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := traceRing[(start+i)%TraceRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

// DumpSPITrace writes the trace ring through the debug writer
func DumpSPITrace() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TRACE] === SPI Trace Dump ===")
	for _, evt := range SPITrace() {
		var name string
		switch evt.EventType {
		case EvtBegin:
			name = "BEGIN"
		case EvtEnd:
			name = "END"
		case EvtBeginTransaction:
			name = "BEGIN_TX"
		case EvtEndTransaction:
			name = "END_TX"
		case EvtCommandError:
			name = "CMD_ERROR!"
		default:
			name = "UNKNOWN"
		}

		debugPrintln("[TRACE] " + name +
			" bus=" + itoa(int(evt.Bus)) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[TRACE] === End Dump ===")
}

// ClearSPITrace clears the trace ring
func ClearSPITrace() {
	for i := range traceRing {
		traceRing[i] = SPIEvent{}
	}
	traceRingHead = 0
}
