package mga

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"assistnow/internal/ubx"
)

const (
	DefaultAckTimeout       = 2 * time.Second
	DefaultMaxRetries       = 3
	DefaultSmartBudget      = 1000
	DefaultMaxTransferBytes = 4 << 20

	FlashBlockSize  = 512
	LegacyBlockSize = 512
)

// FlowMode governs how many catalog blocks may be unacknowledged at once.
type FlowMode uint8

const (
	FlowNone FlowMode = iota
	FlowSimple
	FlowSmart
)

func (f FlowMode) String() string {
	switch f {
	case FlowNone:
		return "none"
	case FlowSimple:
		return "simple"
	case FlowSmart:
		return "smart"
	default:
		return "unknown"
	}
}

// ParseFlowMode accepts the names printed by FlowMode.String.
func ParseFlowMode(s string) (FlowMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return FlowNone, nil
	case "simple", "":
		return FlowSimple, nil
	case "smart":
		return FlowSmart, nil
	default:
		return 0, fmt.Errorf("unknown flow mode %q", s)
	}
}

// Variant identifies which kind of transfer is running.
type Variant uint8

const (
	VariantNone Variant = iota
	VariantCatalog
	VariantFlash
	VariantLegacy
)

func (v Variant) String() string {
	switch v {
	case VariantCatalog:
		return "catalog"
	case VariantFlash:
		return "flash"
	case VariantLegacy:
		return "legacy"
	default:
		return "none"
	}
}

// Options tunes an Engine. Zero values pick the defaults above.
type Options struct {
	// AckTimeout is how long a sent block waits for its acknowledgement.
	AckTimeout time.Duration
	// MaxRetries is the number of resends after the first send. Negative
	// disables resending.
	MaxRetries int
	// SmartBudget is the number of unacknowledged bytes Smart flow allows.
	SmartBudget int
	// MaxTransferBytes rejects larger inputs with ErrOutOfMemory.
	MaxTransferBytes int

	Logger *slog.Logger
	Now    func() time.Time
	// FileID picks the legacy file id. Defaults to a random value.
	FileID func() uint16
}

func (o Options) withDefaults() Options {
	if o.AckTimeout <= 0 {
		o.AckTimeout = DefaultAckTimeout
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.SmartBudget <= 0 {
		o.SmartBudget = DefaultSmartBudget
	}
	if o.MaxTransferBytes <= 0 {
		o.MaxTransferBytes = DefaultMaxTransferBytes
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.FileID == nil {
		o.FileID = func() uint16 { return uint16(rand.UintN(1 << 16)) }
	}
	return o
}

// SendOptions controls catalog transfers started with SendOnline and
// SendOffline.
type SendOptions struct {
	Flow FlowMode
	Time *TimeAdjust
	Pos  *PosAdjust
}

// Status is a point-in-time view of the engine.
type Status struct {
	Variant Variant
	Flow    FlowMode
	Phase   LegacyPhase
	Total   int
	Sent    int
	Acked   int
	Failed  int
}

type transfer interface {
	inbound(frame []byte)
	tick(now time.Time)
	status(st *Status)
}

// Engine is the single session holder for one link. All methods are safe
// for concurrent use; they serialise on one lock.
type Engine struct {
	mu   sync.Mutex
	host Host
	opts Options
	log  *slog.Logger

	active  transfer
	variant Variant
}

// NewEngine returns an idle engine writing to and reporting through host.
func NewEngine(host Host, opts Options) *Engine {
	if host == nil {
		host = HostFuncs{}
	}
	opts = opts.withDefaults()
	return &Engine{host: host, opts: opts, log: opts.Logger}
}

// SendOnline transfers an online assistance bundle. The first message must
// be an INI-TIME; so.Time and so.Pos are applied to the engine's copy.
func (e *Engine) SendOnline(buf []byte, so SendOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		return ErrAlreadyRunning
	}
	if len(buf) > e.opts.MaxTransferBytes {
		return ErrOutOfMemory
	}
	blocks, err := BuildCatalog(buf, true)
	if err != nil {
		return err
	}
	if applyTimeAdjust(blocks, so.Time) {
		e.log.Debug("mga ini-time adjusted", "mode", so.Time.Mode)
	}
	blocks = insertPosition(blocks, so.Pos)
	e.startCatalog(blocks, so.Flow)
	return nil
}

// SendOffline transfers the part of an offline bundle valid for today (as
// given by so.Time) preceded by a generated INI-TIME.
func (e *Engine) SendOffline(buf []byte, so SendOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		return ErrAlreadyRunning
	}
	if len(buf) > e.opts.MaxTransferBytes {
		return ErrOutOfMemory
	}
	t, ok := offlineTime(so.Time, e.opts.Now())
	if !ok {
		return ErrNoMgaIniTime
	}
	blocks, err := buildOfflineCatalog(buf, t, so.Time)
	if err != nil {
		return err
	}
	blocks = insertPosition(blocks, so.Pos)
	e.startCatalog(blocks, so.Flow)
	return nil
}

// SendCatalog starts a transfer of prebuilt blocks. Block state is reset.
func (e *Engine) SendCatalog(blocks []*MessageBlock, flow FlowMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		return ErrAlreadyRunning
	}
	if len(blocks) == 0 {
		return ErrNoDataToSend
	}
	if catalogBytes(blocks) > e.opts.MaxTransferBytes {
		return ErrOutOfMemory
	}
	e.startCatalog(blocks, flow)
	return nil
}

// SendFlash writes buf into receiver flash in FlashBlockSize pieces.
func (e *Engine) SendFlash(buf []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		return ErrAlreadyRunning
	}
	if len(buf) == 0 {
		return ErrNoDataToSend
	}
	if len(buf) > e.opts.MaxTransferBytes || blockCount(len(buf), FlashBlockSize) > 1<<16 {
		return ErrOutOfMemory
	}
	e.startFlash(buf)
	return nil
}

// SendLegacy streams blob with the AID-ALP protocol and serves receiver
// read/update requests against the engine's copy of blob until it ends.
func (e *Engine) SendLegacy(blob []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		return ErrAlreadyRunning
	}
	if len(blob) == 0 {
		return ErrNoDataToSend
	}
	if len(blob) > e.opts.MaxTransferBytes || len(blob) > 1<<16 {
		return ErrOutOfMemory
	}
	e.startLegacy(blob)
	return nil
}

// OnInbound hands one complete frame read from the link to the running
// transfer. Frames the transfer does not expect are ignored.
func (e *Engine) OnInbound(frame []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return ErrAlreadyIdle
	}
	if !ubx.Validate(frame) {
		return ErrBadData
	}
	e.active.inbound(frame)
	return nil
}

// OnTimeoutTick checks deadlines of outstanding blocks against the clock.
func (e *Engine) OnTimeoutTick() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return ErrAlreadyIdle
	}
	e.active.tick(e.opts.Now())
	return nil
}

// Stop abandons the running transfer. No further writes happen.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return ErrAlreadyIdle
	}
	e.terminate(ReasonHostCancel)
	return nil
}

// Active reports whether a transfer is running.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// Status returns counters of the running transfer, or a zero Status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return Status{}
	}
	st := Status{Variant: e.variant}
	e.active.status(&st)
	return st
}

// Everything below runs with e.mu held.

func (e *Engine) begin(v Variant, t transfer) {
	e.active = t
	e.variant = v
}

func (e *Engine) running(t transfer) bool {
	return e.active != nil && e.active == t
}

func (e *Engine) event(kind EventKind) Event {
	return Event{Kind: kind, Variant: e.variant, At: e.opts.Now(), Seq: -1}
}

func (e *Engine) report(ev Event) {
	e.host.OnProgress(ev)
}

func (e *Engine) deadline() time.Time {
	return e.opts.Now().Add(e.opts.AckTimeout)
}

// write sends b to the link. On failure the transfer is terminated and
// false is returned; callers must stop touching state.
func (e *Engine) write(b []byte) bool {
	if err := e.host.WriteToLink(b); err != nil {
		e.log.Error("mga link write failed", "variant", e.variant, "err", err)
		ev := e.event(EventWriteError)
		ev.Err = err
		e.report(ev)
		e.terminate(ReasonLinkError)
		return false
	}
	return true
}

func (e *Engine) finish(ev Event) {
	ev.Kind = EventFinish
	e.log.Info("mga transfer finished", "variant", e.variant, "total", ev.Total)
	e.active = nil
	e.report(ev)
	e.variant = VariantNone
}

func (e *Engine) terminate(reason FailureReason) {
	ev := e.event(EventTerminated)
	ev.Reason = reason
	ev.Err = &BlockError{Seq: -1, Reason: reason}
	if e.active != nil {
		var st Status
		e.active.status(&st)
		ev.Total = st.Total
	}
	e.log.Warn("mga transfer terminated", "variant", e.variant, "reason", reason.String())
	e.active = nil
	e.report(ev)
	e.variant = VariantNone
}

func blockCount(n, size int) int {
	return (n + size - 1) / size
}

// splitBlocks cuts buf into size-byte slices; only a non-zero remainder
// produces a short trailing slice.
func splitBlocks(buf []byte, size int) [][]byte {
	out := make([][]byte, 0, blockCount(len(buf), size))
	for off := 0; off < len(buf); off += size {
		end := off + size
		if end > len(buf) {
			end = len(buf)
		}
		out = append(out, buf[off:end])
	}
	return out
}
