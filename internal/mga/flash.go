package mga

import (
	"time"

	"assistnow/internal/ubx"
)

// nudge is written instead of a full resend after the first flash timeout.
var nudge = []byte{0x00}

// flashTransfer writes one contiguous buffer as MGA-FLASH-DATA blocks, one
// at a time, then closes with MGA-FLASH-STOP. Blocks must land in order, so
// any block failure ends the whole transfer.
type flashTransfer struct {
	e      *Engine
	blocks []*MessageBlock
	stop   *MessageBlock
	cur    int // == len(blocks) once the stop frame is in flight
	sent   int
	acked  int
}

func (e *Engine) startFlash(buf []byte) {
	parts := splitBlocks(buf, FlashBlockSize)
	blocks := make([]*MessageBlock, len(parts))
	for i, p := range parts {
		blocks[i] = &MessageBlock{Payload: ubx.FlashData(uint16(i), p), Size: len(p), Seq: i}
	}
	t := &flashTransfer{
		e:      e,
		blocks: blocks,
		stop:   &MessageBlock{Payload: ubx.FlashStop(), Seq: len(blocks)},
	}
	e.begin(VariantFlash, t)

	ev := e.event(EventStart)
	ev.Total = len(blocks)
	e.log.Info("mga flash transfer started", "blocks", len(blocks), "bytes", len(buf))
	e.report(ev)
	t.sendCurrent()
}

func (t *flashTransfer) status(st *Status) {
	st.Total = len(t.blocks)
	st.Sent = t.sent
	st.Acked = t.acked
}

func (t *flashTransfer) current() *MessageBlock {
	if t.cur < len(t.blocks) {
		return t.blocks[t.cur]
	}
	return t.stop
}

func (t *flashTransfer) sendCurrent() {
	b := t.current()
	if !t.e.write(b.Payload) {
		return
	}
	b.State = WaitingForAck
	b.Deadline = t.e.deadline()
	t.sent++
	ev := t.e.event(EventMsgSent)
	ev.Seq = b.Seq
	ev.Size = b.Size
	ev.Total = len(t.blocks)
	t.e.report(ev)
}

func (t *flashTransfer) resend(b *MessageBlock) {
	if !t.e.write(b.Payload) {
		return
	}
	b.State = WaitingForAck
	b.Deadline = t.e.deadline()
	ev := t.e.event(EventMsgRetry)
	ev.Seq = b.Seq
	ev.Size = b.Size
	ev.Retries = b.Retries
	t.e.report(ev)
}

func (t *flashTransfer) inbound(frame []byte) {
	ack, ok := ubx.ParseFlashAck(frame)
	if !ok {
		return
	}
	b := t.current()
	if !b.State.waiting() {
		return
	}
	if b != t.stop && ack.Sequence != uint16(b.Seq) {
		ev := t.e.event(EventProtocolError)
		ev.Seq = int(ack.Sequence)
		ev.Reason = ReasonProtocolError
		t.e.report(ev)
		return
	}

	switch ack.Code {
	case ubx.FlashAckOK:
		b.State = Received
		if b != t.stop {
			t.acked++
		}
		ev := t.e.event(EventMsgAcked)
		ev.Seq = b.Seq
		ev.Size = b.Size
		ev.Total = len(t.blocks)
		t.e.report(ev)
		if b == t.stop {
			fin := t.e.event(EventFinish)
			fin.Total = len(t.blocks)
			fin.Acked = t.acked
			t.e.finish(fin)
			return
		}
		t.cur++
		t.sendCurrent()
	case ubx.FlashAckRetry:
		if b.Retries >= t.e.opts.MaxRetries {
			t.fail(b, ReasonReceiverNak)
			return
		}
		b.Retries++
		t.resend(b)
	default:
		t.fail(b, ReasonReceiverNak)
	}
}

func (t *flashTransfer) tick(now time.Time) {
	b := t.current()
	if !b.State.waiting() || now.Before(b.Deadline) {
		return
	}
	if b.State == WaitingForAckSecondChance {
		t.fail(b, ReasonTooManyRetries)
		return
	}
	if !t.e.write(nudge) {
		return
	}
	b.State = WaitingForAckSecondChance
	b.Deadline = t.e.deadline()
	t.e.log.Debug("mga flash nudge", "seq", b.Seq)
	ev := t.e.event(EventMsgRetry)
	ev.Seq = b.Seq
	ev.Size = len(nudge)
	t.e.report(ev)
}

func (t *flashTransfer) fail(b *MessageBlock, reason FailureReason) {
	b.State = Failed
	b.Reason = reason
	ev := t.e.event(EventMsgFailed)
	ev.Seq = b.Seq
	ev.Size = b.Size
	ev.Reason = reason
	ev.Err = &BlockError{Seq: b.Seq, Reason: reason}
	t.e.report(ev)
	t.e.terminate(reason)
}
