package mga

import "time"

// EventKind enumerates everything the engine and the fetcher report.
type EventKind uint8

const (
	EventStart EventKind = iota + 1
	EventFinish
	EventTerminated
	EventMsgSent
	EventMsgRetry
	EventMsgAcked
	EventMsgFailed
	EventProtocolError
	EventWriteError
	EventLegacyPhase
	EventServerRequestCompleted
	EventServerUpdated
	EventServerIDMismatch

	// Fetch side.
	EventServerConnecting
	EventServerConnected
	EventUnknownServer
	EventRequestHeader
	EventRetrieveData
	EventServiceError
)

var eventNames = map[EventKind]string{
	EventStart:                  "start",
	EventFinish:                 "finish",
	EventTerminated:             "terminated",
	EventMsgSent:                "msg_sent",
	EventMsgRetry:               "msg_retry",
	EventMsgAcked:               "msg_acked",
	EventMsgFailed:              "msg_failed",
	EventProtocolError:          "protocol_error",
	EventWriteError:             "write_error",
	EventLegacyPhase:            "legacy_phase",
	EventServerRequestCompleted: "server_request_completed",
	EventServerUpdated:          "server_updated",
	EventServerIDMismatch:       "server_id_mismatch",
	EventServerConnecting:       "server_connecting",
	EventServerConnected:        "server_connected",
	EventUnknownServer:          "unknown_server",
	EventRequestHeader:          "request_header",
	EventRetrieveData:           "retrieve_data",
	EventServiceError:           "service_error",
}

func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is one progress report. Fields that do not apply to Kind are zero;
// Seq is -1 when the event is not about a single block.
type Event struct {
	Kind    EventKind
	Variant Variant
	At      time.Time

	Seq      int
	Size     int
	Retries  int
	Total    int
	Acked    int
	Failed   int
	InfoCode byte
	Reason   FailureReason
	Phase    LegacyPhase
	Err      error

	// Server is the fetch endpoint for fetch events.
	Server string
	// Data carries the final legacy blob on EventFinish of a legacy transfer.
	// It belongs to the receiver of the event.
	Data []byte
}

// Host is the engine's view of its environment.
type Host interface {
	// WriteToLink writes b to the receiver. A returned error means the link
	// is broken and ends the transfer.
	WriteToLink(b []byte) error
	// OnProgress receives every event. It runs with the engine lock held.
	OnProgress(ev Event)
}

// HostFuncs adapts plain functions to Host. Nil fields are no-ops.
type HostFuncs struct {
	Write    func(b []byte) error
	Progress func(ev Event)
}

func (h HostFuncs) WriteToLink(b []byte) error {
	if h.Write == nil {
		return nil
	}
	return h.Write(b)
}

func (h HostFuncs) OnProgress(ev Event) {
	if h.Progress != nil {
		h.Progress(ev)
	}
}
