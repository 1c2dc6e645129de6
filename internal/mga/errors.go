package mga

import (
	"errors"
	"fmt"

	"assistnow/internal/ubx"
)

var (
	ErrAlreadyRunning = errors.New("mga: transfer already running")
	ErrAlreadyIdle    = errors.New("mga: no transfer running")
	ErrNoDataToSend   = errors.New("mga: no data to send")
	ErrBadData        = ubx.ErrBadData
	ErrNoMgaIniTime   = errors.New("mga: first message is not an INI-TIME")
	ErrOutOfMemory    = errors.New("mga: data exceeds transfer limit")
)

// FailureReason says why a block (or a whole transfer) did not succeed.
type FailureReason uint8

const (
	ReasonNone FailureReason = iota
	ReasonNoTime
	ReasonNotSupported
	ReasonSizeMismatch
	ReasonNotStored
	ReasonNotReady
	ReasonTypeUnknown
	ReasonReceiverNak
	ReasonTooManyRetries
	ReasonProtocolError
	ReasonHostCancel
	ReasonLinkError
)

func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoTime:
		return "receiver has no time"
	case ReasonNotSupported:
		return "message version not supported"
	case ReasonSizeMismatch:
		return "message size mismatch"
	case ReasonNotStored:
		return "receiver could not store data"
	case ReasonNotReady:
		return "receiver not ready"
	case ReasonTypeUnknown:
		return "message type unknown"
	case ReasonReceiverNak:
		return "receiver nak"
	case ReasonTooManyRetries:
		return "too many retries"
	case ReasonProtocolError:
		return "protocol error"
	case ReasonHostCancel:
		return "cancelled by host"
	case ReasonLinkError:
		return "link write failed"
	default:
		return "unknown"
	}
}

// reasonFromInfoCode maps the MGA-ACK infoCode of a NAK.
func reasonFromInfoCode(code byte) FailureReason {
	switch code {
	case 1:
		return ReasonNoTime
	case 2:
		return ReasonNotSupported
	case 3:
		return ReasonSizeMismatch
	case 4:
		return ReasonNotStored
	case 5:
		return ReasonNotReady
	case 6:
		return ReasonTypeUnknown
	default:
		return ReasonReceiverNak
	}
}

// BlockError is attached to failure events.
type BlockError struct {
	Seq    int
	Reason FailureReason
}

func (e *BlockError) Error() string {
	if e.Seq < 0 {
		return "mga transfer: " + e.Reason.String()
	}
	return fmt.Sprintf("mga block %d: %s", e.Seq, e.Reason)
}
