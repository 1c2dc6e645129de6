package mga

import (
	"time"

	"assistnow/internal/ubx"
)

// BlockState is the per-block transfer state.
type BlockState uint8

const (
	WaitingToSend BlockState = iota
	WaitingForAck
	WaitingForAckSecondChance
	Received
	Failed
)

func (s BlockState) String() string {
	switch s {
	case WaitingToSend:
		return "waiting_to_send"
	case WaitingForAck:
		return "waiting_for_ack"
	case WaitingForAckSecondChance:
		return "waiting_for_ack_second_chance"
	case Received:
		return "received"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s BlockState) waiting() bool {
	return s == WaitingForAck || s == WaitingForAckSecondChance
}

// MessageBlock is one transfer unit. Payload is the exact frame written to
// the link and is never modified once the block is built.
type MessageBlock struct {
	Payload []byte
	// Size is the number of bytes this block carries: the whole frame for
	// catalog blocks, the data slice for flash and legacy blocks.
	Size int
	Seq  int
	Key  ubx.Key

	State    BlockState
	Retries  int
	Deadline time.Time
	Reason   FailureReason
}

func newFrameBlock(frame []byte, seq int) *MessageBlock {
	return &MessageBlock{
		Payload: frame,
		Size:    len(frame),
		Seq:     seq,
		Key:     ubx.KeyOf(frame),
	}
}

func (b *MessageBlock) reset() {
	b.State = WaitingToSend
	b.Retries = 0
	b.Deadline = time.Time{}
	b.Reason = ReasonNone
}

func (b *MessageBlock) class() byte { return ubx.Class(b.Payload) }
func (b *MessageBlock) id() byte    { return ubx.ID(b.Payload) }
