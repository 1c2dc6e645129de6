package mga

import (
	"time"

	"assistnow/internal/ubx"
)

// catalogTransfer delivers whole assistance frames under one flow mode.
type catalogTransfer struct {
	e      *Engine
	flow   FlowMode
	blocks []*MessageBlock

	next     int // first block not yet sent
	sent     int
	acked    int
	failed   int
	inFlight int // bytes outstanding, Smart only
}

func (e *Engine) startCatalog(blocks []*MessageBlock, flow FlowMode) {
	for _, b := range blocks {
		b.reset()
	}
	t := &catalogTransfer{e: e, flow: flow, blocks: blocks}
	e.begin(VariantCatalog, t)

	ev := e.event(EventStart)
	ev.Total = len(blocks)
	e.log.Info("mga transfer started", "flow", flow.String(), "blocks", len(blocks), "bytes", catalogBytes(blocks))
	e.report(ev)

	switch flow {
	case FlowNone:
		t.sendAllUnacked()
	case FlowSmart:
		t.prime()
	default:
		t.flow = FlowSimple
		t.pump()
	}
}

func (t *catalogTransfer) alive() bool { return t.e.running(t) }

func (t *catalogTransfer) status(st *Status) {
	st.Flow = t.flow
	st.Total = len(t.blocks)
	st.Sent = t.sent
	st.Acked = t.acked
	st.Failed = t.failed
}

func (t *catalogTransfer) sentEvent(b *MessageBlock) {
	ev := t.e.event(EventMsgSent)
	ev.Seq = b.Seq
	ev.Size = b.Size
	ev.Total = len(t.blocks)
	t.e.report(ev)
}

// sendAllUnacked is FlowNone: write everything, assume delivery.
func (t *catalogTransfer) sendAllUnacked() {
	for _, b := range t.blocks {
		if !t.e.write(b.Payload) {
			return
		}
		b.State = Received
		t.sent++
		t.acked++
		t.next++
		t.sentEvent(b)
	}
	t.finish()
}

func (t *catalogTransfer) send(b *MessageBlock) bool {
	if !t.e.write(b.Payload) {
		return false
	}
	b.State = WaitingForAck
	b.Deadline = t.e.deadline()
	t.sent++
	if t.flow == FlowSmart {
		t.inFlight += b.Size
	}
	t.e.log.Debug("mga block sent", "seq", b.Seq, "size", b.Size, "in_flight", t.inFlight)
	t.sentEvent(b)
	return true
}

func (t *catalogTransfer) outstanding() bool {
	for _, b := range t.blocks[:t.next] {
		if b.State.waiting() {
			return true
		}
	}
	return false
}

// pump is FlowSimple: one block in flight at a time.
func (t *catalogTransfer) pump() {
	if t.outstanding() || t.next >= len(t.blocks) {
		return
	}
	b := t.blocks[t.next]
	t.next++
	t.send(b)
}

func (t *catalogTransfer) fits(b *MessageBlock) bool {
	return t.inFlight == 0 || t.inFlight+b.Size <= t.e.opts.SmartBudget
}

// prime fills the Smart window up to the byte budget.
func (t *catalogTransfer) prime() {
	for t.next < len(t.blocks) {
		b := t.blocks[t.next]
		if !t.fits(b) {
			return
		}
		t.next++
		if !t.send(b) {
			return
		}
	}
}

// topUp sends at most one more block after a Smart resolution.
func (t *catalogTransfer) topUp() {
	if t.next >= len(t.blocks) {
		return
	}
	b := t.blocks[t.next]
	if !t.fits(b) {
		return
	}
	t.next++
	t.send(b)
}

func (t *catalogTransfer) inbound(frame []byte) {
	ack, ok := ubx.ParseAck(frame)
	if !ok {
		return
	}
	b := t.match(ack)
	if b == nil {
		ev := t.e.event(EventProtocolError)
		ev.Reason = ReasonProtocolError
		ev.InfoCode = ack.InfoCode
		t.e.log.Debug("mga ack without outstanding block", "shape", ack.Shape, "ok", ack.OK)
		t.e.report(ev)
		return
	}
	switch {
	case ack.OK:
		t.resolve(b, ReasonNone, ack.InfoCode)
	case ack.Shape == ubx.AckMGA:
		t.resolve(b, reasonFromInfoCode(ack.InfoCode), ack.InfoCode)
	default:
		t.resolve(b, ReasonReceiverNak, 0)
	}
}

// match finds the outstanding block an ack answers. Under Simple there is
// at most one candidate; under Smart MGA-ACKs are matched by key and generic
// acks by the oldest block of the echoed class/id.
func (t *catalogTransfer) match(ack ubx.Ack) *MessageBlock {
	for _, b := range t.blocks[:t.next] {
		if !b.State.waiting() {
			continue
		}
		switch ack.Shape {
		case ubx.AckMGA:
			if b.Key == ack.Key {
				return b
			}
		case ubx.AckGeneric:
			if b.class() == ack.Class && b.id() == ack.ID {
				return b
			}
		}
	}
	return nil
}

// resolve settles b. ReasonNone means success.
func (t *catalogTransfer) resolve(b *MessageBlock, reason FailureReason, infoCode byte) {
	ev := t.e.event(EventMsgAcked)
	ev.Seq = b.Seq
	ev.Size = b.Size
	ev.Retries = b.Retries
	ev.Total = len(t.blocks)
	ev.InfoCode = infoCode
	if reason == ReasonNone {
		b.State = Received
		t.acked++
	} else {
		b.State = Failed
		b.Reason = reason
		t.failed++
		ev.Kind = EventMsgFailed
		ev.Reason = reason
		ev.Err = &BlockError{Seq: b.Seq, Reason: reason}
		t.e.log.Warn("mga block failed", "seq", b.Seq, "reason", reason.String())
	}
	if t.flow == FlowSmart {
		t.inFlight -= b.Size
	}
	t.e.report(ev)

	if t.acked+t.failed == len(t.blocks) {
		t.finish()
		return
	}
	if t.flow == FlowSmart {
		t.topUp()
	} else {
		t.pump()
	}
}

func (t *catalogTransfer) tick(now time.Time) {
	for _, b := range t.blocks[:t.next] {
		if !b.State.waiting() || now.Before(b.Deadline) {
			continue
		}
		if b.Retries < t.e.opts.MaxRetries {
			b.Retries++
			if !t.e.write(b.Payload) {
				return
			}
			b.Deadline = t.e.deadline()
			ev := t.e.event(EventMsgRetry)
			ev.Seq = b.Seq
			ev.Size = b.Size
			ev.Retries = b.Retries
			t.e.report(ev)
			continue
		}
		t.resolve(b, ReasonTooManyRetries, 0)
		if !t.alive() {
			return
		}
	}
}

func (t *catalogTransfer) finish() {
	ev := t.e.event(EventFinish)
	ev.Total = len(t.blocks)
	ev.Acked = t.acked
	ev.Failed = t.failed
	t.e.finish(ev)
}
