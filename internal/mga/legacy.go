package mga

import (
	"bytes"
	"time"

	"assistnow/internal/ubx"
)

// LegacyPhase is the state of an AID-ALP transfer.
type LegacyPhase uint8

const (
	LegacyIdle LegacyPhase = iota
	LegacyStarting
	LegacyMainSequence
	LegacyStopping
)

func (p LegacyPhase) String() string {
	switch p {
	case LegacyStarting:
		return "starting"
	case LegacyMainSequence:
		return "main_sequence"
	case LegacyStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// legacyTransfer streams an ALP blob with AID-ALP frames and, while it runs,
// answers AID-ALPSRV read and update requests against its copy of the blob.
type legacyTransfer struct {
	e      *Engine
	phase  LegacyPhase
	blob   []byte
	fileID uint16
	blocks []*MessageBlock
	cur    int
	ctl    *MessageBlock // stop frame in flight during Starting and Stopping

	sent  int
	acked int
}

func (e *Engine) startLegacy(blob []byte) {
	owned := bytes.Clone(blob)
	parts := splitBlocks(owned, LegacyBlockSize)
	blocks := make([]*MessageBlock, len(parts))
	for i, p := range parts {
		blocks[i] = &MessageBlock{Payload: ubx.AlpData(p), Size: len(p), Seq: i}
	}
	t := &legacyTransfer{e: e, blob: owned, fileID: e.opts.FileID(), blocks: blocks}
	e.begin(VariantLegacy, t)

	ev := e.event(EventStart)
	ev.Total = len(blocks)
	e.log.Info("mga legacy transfer started", "blocks", len(blocks), "bytes", len(owned), "file_id", t.fileID)
	e.report(ev)

	// The receiver expects a stop frame before any data.
	t.setPhase(LegacyStarting)
	t.sendControl()
}

func (t *legacyTransfer) status(st *Status) {
	st.Phase = t.phase
	st.Total = len(t.blocks)
	st.Sent = t.sent
	st.Acked = t.acked
}

func (t *legacyTransfer) setPhase(p LegacyPhase) {
	t.phase = p
	ev := t.e.event(EventLegacyPhase)
	ev.Phase = p
	t.e.report(ev)
}

func (t *legacyTransfer) sendControl() {
	t.ctl = &MessageBlock{Payload: ubx.AlpStop(), Seq: -1}
	if !t.e.write(t.ctl.Payload) {
		return
	}
	t.ctl.State = WaitingForAck
	t.ctl.Deadline = t.e.deadline()
}

func (t *legacyTransfer) sendBlock(b *MessageBlock) {
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

// advance sends the next data block, or the real stop frame after the last.
func (t *legacyTransfer) advance() {
	if t.cur < len(t.blocks) {
		t.sendBlock(t.blocks[t.cur])
		return
	}
	t.setPhase(LegacyStopping)
	t.sendControl()
}

// inflight is the frame currently awaiting an answer.
func (t *legacyTransfer) inflight() *MessageBlock {
	if t.phase == LegacyMainSequence && t.cur < len(t.blocks) {
		return t.blocks[t.cur]
	}
	return t.ctl
}

func (t *legacyTransfer) inbound(frame []byte) {
	if req, ok := ubx.ParseAlpSrvRequest(frame); ok {
		t.serve(req)
		return
	}
	ok, matched := ubx.ParseAlpAck(frame)
	if !matched {
		return
	}
	b := t.inflight()
	if b == nil || !b.State.waiting() {
		return
	}

	switch t.phase {
	case LegacyStarting:
		// ACK and NAK both mean the receiver is ready.
		b.State = Received
		t.setPhase(LegacyMainSequence)
		t.advance()
	case LegacyMainSequence:
		if !ok {
			if b.Retries >= t.e.opts.MaxRetries {
				t.fail(b, ReasonReceiverNak)
				return
			}
			b.Retries++
			t.resend(b)
			return
		}
		b.State = Received
		t.acked++
		ev := t.e.event(EventMsgAcked)
		ev.Seq = b.Seq
		ev.Size = b.Size
		ev.Total = len(t.blocks)
		t.e.report(ev)
		t.cur++
		t.advance()
	case LegacyStopping:
		b.State = Received
		t.finish()
	}
}

func (t *legacyTransfer) resend(b *MessageBlock) {
	if !t.e.write(b.Payload) {
		return
	}
	b.State = WaitingForAck
	b.Deadline = t.e.deadline()
	ev := t.e.event(EventMsgRetry)
	ev.Seq = b.Seq
	ev.Size = b.Size
	ev.Retries = b.Retries
	ev.Phase = t.phase
	t.e.report(ev)
}

func (t *legacyTransfer) tick(now time.Time) {
	b := t.inflight()
	if b == nil || !b.State.waiting() || now.Before(b.Deadline) {
		return
	}
	if t.phase == LegacyStopping {
		// Best effort: the data is already on the receiver.
		t.e.log.Debug("mga legacy stop not acknowledged, finishing anyway")
		t.finish()
		return
	}
	if b.Retries >= t.e.opts.MaxRetries {
		t.fail(b, ReasonTooManyRetries)
		return
	}
	b.Retries++
	t.resend(b)
}

func (t *legacyTransfer) serve(req ubx.AlpSrvRequest) {
	off := int(req.Offset)
	if req.IsUpdate() {
		if req.FileID != t.fileID {
			ev := t.e.event(EventServerIDMismatch)
			ev.Size = len(req.Data)
			t.e.log.Warn("mga legacy update for wrong file", "want", t.fileID, "got", req.FileID)
			t.e.report(ev)
			return
		}
		n := 0
		if off < len(t.blob) {
			n = copy(t.blob[off:], req.Data)
		}
		ev := t.e.event(EventServerUpdated)
		ev.Size = n
		t.e.report(ev)
		return
	}

	var data []byte
	if off < len(t.blob) {
		end := off + int(req.Size)
		if end > len(t.blob) {
			end = len(t.blob)
		}
		data = t.blob[off:end]
	}
	// The reply echoes the request header and must fit one frame.
	if room := ubx.MaxPayload - len(req.Header); len(data) > room {
		data = data[:room]
	}
	if !t.e.write(ubx.AlpSrvReply(req, data)) {
		return
	}
	ev := t.e.event(EventServerRequestCompleted)
	ev.Size = len(data)
	t.e.report(ev)
}

func (t *legacyTransfer) fail(b *MessageBlock, reason FailureReason) {
	b.State = Failed
	b.Reason = reason
	ev := t.e.event(EventMsgFailed)
	ev.Seq = b.Seq
	ev.Size = b.Size
	ev.Reason = reason
	ev.Phase = t.phase
	ev.Err = &BlockError{Seq: b.Seq, Reason: reason}
	t.e.report(ev)
	t.e.terminate(reason)
}

func (t *legacyTransfer) finish() {
	t.setPhase(LegacyIdle)
	ev := t.e.event(EventFinish)
	ev.Total = len(t.blocks)
	ev.Acked = t.acked
	ev.Data = t.blob
	t.blob = nil
	t.e.finish(ev)
}
