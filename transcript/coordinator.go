// Package transcript runs the two transcription passes for each utterance:
// throttled PREVIEW calls while it is open and exactly one FINAL call once it
// closes. Results are delivered on a single channel in Seq order.
package transcript

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"voxkey/transcriber"
)

type Kind int

const (
	Preview Kind = iota
	Final
)

func (k Kind) String() string {
	if k == Final {
		return "final"
	}
	return "preview"
}

// Event is one transcription result. Seq is global and monotonic across the
// session; for a given utterance every PREVIEW has a lower Seq than its FINAL.
// Gen is the CancelAll generation the call was dispatched in.
type Event struct {
	UtteranceID uint64
	Kind        Kind
	Text        string
	Seq         uint64
	Gen         uint64
}

// Outcome describes one finished call, emitted or not. It feeds logging.
type Outcome struct {
	UtteranceID uint64
	Kind        Kind
	Provider    string
	Result      *transcriber.Result
	Err         error
	Elapsed     time.Duration
	Emitted     bool
	Reason      string // why a result was not emitted
}

type Config struct {
	PreviewInterval time.Duration
	MinUtterance    time.Duration
	Timeout         time.Duration // per call, zero means none
}

type utterance struct {
	confirmed   bool
	closed      bool
	inFlight    bool
	lastPreview time.Time
}

type Coordinator struct {
	preview transcriber.Transcriber
	final   transcriber.Transcriber
	cfg     Config

	// OnResult, when set, is called from the call goroutine after every
	// finished call. Set it before the first Open.
	OnResult func(Outcome)

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	utts      map[uint64]*utterance
	gen       uint64
	genCtx    context.Context
	genCancel context.CancelFunc
	seq       uint64
	queue     []Event
	wake      chan struct{}
	closed    bool
	now       func() time.Time

	events  chan Event
	calls   sync.WaitGroup
	forward sync.WaitGroup
}

func NewCoordinator(preview, final transcriber.Transcriber, cfg Config) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		preview: preview,
		final:   final,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		utts:    make(map[uint64]*utterance),
		wake:    make(chan struct{}, 1),
		events:  make(chan Event, 16),
		now:     time.Now,
	}
	c.genCtx, c.genCancel = context.WithCancel(ctx)
	c.forward.Add(1)
	go c.forwardLoop()
	return c
}

// Events is the single-consumer result channel. It is closed by Shutdown.
func (c *Coordinator) Events() <-chan Event { return c.events }

func (c *Coordinator) Open(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.utts[id]; !ok {
		c.utts[id] = &utterance{}
	}
}

func (c *Coordinator) Confirm(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.utts[id]
	if !ok {
		u = &utterance{}
		c.utts[id] = u
	}
	u.confirmed = true
}

// PreviewDue reports whether Preview would dispatch a call now. It lets the
// caller skip copying audio on ticks that would be throttled anyway.
func (c *Coordinator) PreviewDue(id uint64, voiced time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previewDueLocked(id, voiced)
}

func (c *Coordinator) previewDueLocked(id uint64, voiced time.Duration) bool {
	if c.closed || c.preview == nil {
		return false
	}
	u, ok := c.utts[id]
	if !ok || !u.confirmed || u.closed || u.inFlight {
		return false
	}
	if voiced < c.cfg.MinUtterance {
		return false
	}
	if !u.lastPreview.IsZero() && c.now().Sub(u.lastPreview) < c.cfg.PreviewInterval {
		return false
	}
	return true
}

// Preview dispatches a PREVIEW call for the utterance if one is due and
// reports whether it did.
func (c *Coordinator) Preview(id uint64, samples []int16, voiced time.Duration) bool {
	c.mu.Lock()
	if !c.previewDueLocked(id, voiced) {
		c.mu.Unlock()
		return false
	}
	u := c.utts[id]
	u.inFlight = true
	u.lastPreview = c.now()
	gen, ctx := c.gen, c.genCtx
	c.mu.Unlock()

	c.dispatch(ctx, gen, id, Preview, c.preview, samples)
	return true
}

// Close marks the utterance closed and dispatches its one FINAL call.
// Utterances with less than MinUtterance of voiced audio are dropped
// without a call.
func (c *Coordinator) Close(id uint64, samples []int16, voiced time.Duration) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	u, ok := c.utts[id]
	if ok && u.closed {
		c.mu.Unlock()
		return false
	}
	if voiced < c.cfg.MinUtterance || len(samples) == 0 {
		delete(c.utts, id)
		c.mu.Unlock()
		return false
	}
	if !ok {
		u = &utterance{}
		c.utts[id] = u
	}
	u.closed = true
	gen, ctx := c.gen, c.genCtx
	c.mu.Unlock()

	c.dispatch(ctx, gen, id, Final, c.final, samples)
	return true
}

// Discard forgets the utterance. A PREVIEW still in flight for it is dropped
// when it returns.
func (c *Coordinator) Discard(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.utts, id)
}

// CancelAll abandons every utterance. Calls in flight are cancelled and
// whatever they return is ignored, and queued events are dropped. Events
// already handed to the channel keep their old Gen; consumers compare it
// with Gen.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.genCancel()
	c.genCtx, c.genCancel = context.WithCancel(c.ctx)
	clear(c.utts)
	c.queue = nil
}

// Gen returns the current CancelAll generation.
func (c *Coordinator) Gen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Pending returns how many utterances are tracked.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.utts)
}

// Shutdown cancels all calls, waits for them to return and closes Events.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.calls.Wait()
	c.forward.Wait()
	close(c.events)
}

func (c *Coordinator) dispatch(ctx context.Context, gen, id uint64, kind Kind, tr transcriber.Transcriber, samples []int16) {
	c.calls.Add(1)
	go func() {
		defer c.calls.Done()
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}
		start := time.Now()
		res, err := tr.Transcribe(ctx, samples)
		c.finish(Outcome{
			UtteranceID: id,
			Kind:        kind,
			Provider:    tr.Name(),
			Result:      res,
			Err:         err,
			Elapsed:     time.Since(start),
		}, gen)
	}()
}

func (c *Coordinator) finish(o Outcome, gen uint64) {
	c.mu.Lock()
	u, tracked := c.utts[o.UtteranceID]
	stale := gen != c.gen || c.closed
	if tracked && !stale {
		if o.Kind == Preview {
			u.inFlight = false
		} else {
			delete(c.utts, o.UtteranceID)
		}
	}

	var text string
	if o.Err == nil && o.Result != nil {
		text = strings.TrimSpace(o.Result.Text)
	}
	switch {
	case stale:
		o.Reason = "cancelled"
	case errors.Is(o.Err, context.DeadlineExceeded):
		o.Reason = "timeout"
	case o.Err != nil:
		o.Reason = "error"
	case text == "":
		o.Reason = "empty"
	case o.Kind == Preview && (!tracked || u.closed):
		o.Reason = "superseded"
	default:
		c.seq++
		c.queue = append(c.queue, Event{UtteranceID: o.UtteranceID, Kind: o.Kind, Text: text, Seq: c.seq, Gen: gen})
		o.Emitted = true
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
	c.mu.Unlock()

	if c.OnResult != nil {
		c.OnResult(o)
	}
}

// forwardLoop moves queued events to the channel in Seq order without ever
// blocking a call goroutine on the consumer.
func (c *Coordinator) forwardLoop() {
	defer c.forward.Done()
	for {
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()

		for _, ev := range batch {
			select {
			case c.events <- ev:
			case <-c.ctx.Done():
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-c.wake:
		case <-c.ctx.Done():
			return
		}
	}
}
