package panodecode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Options configures an Orchestrator.
type Options struct {
	// Logger receives lifecycle events. Defaults to discarding.
	Logger *slog.Logger
	// Metrics records activity when set, see MustNewMetrics.
	Metrics *Metrics
	// CacheSize enables an LRU of recent results when positive.
	CacheSize int

	decode func(ctx context.Context, req DecodeRequest) (*DecodeResult, error)
}

type messageKind int

const (
	msgDecode messageKind = iota
	msgResult
	msgError
)

// message travels between the orchestrator and its worker. Exactly one payload
// field is set, as selected by kind.
type message struct {
	kind messageKind
	seq  uint64

	ctx     context.Context
	request *DecodeRequest

	result *DecodeResult
	err    *DecodeError
}

func (m message) id() string {
	switch m.kind {
	case msgResult:
		return m.result.ID
	case msgError:
		return m.err.ID
	default:
		return m.request.ID
	}
}

// Ticket is the completion handle of a submitted request.
type Ticket struct {
	ID string

	o        *Orchestrator
	seq      uint64
	format   Format
	cacheKey cacheKey
	cancel   context.CancelFunc
	once     sync.Once
	done     chan struct{}
	res      *DecodeResult
	err      error
}

// Done is closed once the request has resolved.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Result returns the outcome of a resolved request. It must be called after Done is closed.
func (t *Ticket) Result() (*DecodeResult, error) {
	return t.res, t.err
}

// Wait blocks until the request resolves. If ctx ends first the request is
// withdrawn and the context error is returned wrapped in a DecodeError.
func (t *Ticket) Wait(ctx context.Context) (*DecodeResult, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		t.o.withdraw(t, ctx.Err())
		<-t.done
	}
	return t.res, t.err
}

func (t *Ticket) finish(res *DecodeResult, err error) bool {
	first := false
	t.once.Do(func() {
		first = true
		if t.cancel != nil {
			t.cancel()
		}
		t.res, t.err = res, err
		close(t.done)
	})
	return first
}

// Orchestrator runs decodes on a dedicated worker goroutine and correlates
// results with callers by request ID.
//
// Requests are decoded one at a time in submission order. Reusing the ID of an
// outstanding request supersedes it: the earlier caller gets ErrSuperseded at
// once and its decode is cancelled, or dropped if it has not started yet.
type Orchestrator struct {
	log     *slog.Logger
	metrics *Metrics
	cache   *resultCache
	decode  func(ctx context.Context, req DecodeRequest) (*DecodeResult, error)

	mu      sync.Mutex
	pending map[string]*Ticket
	seq     uint64
	closed  bool

	inbox     *mailbox
	responses chan message
	quit      chan struct{}
	root      context.Context
	stop      context.CancelFunc
}

// New starts an Orchestrator. Call Close to release it.
func New(opts ...func(o *Options)) (*Orchestrator, error) {
	opt := Options{}
	for _, apply := range opts {
		apply(&opt)
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opt.decode == nil {
		opt.decode = Decode
	}
	cache, err := newResultCache(opt.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("result cache: %w", err)
	}

	o := &Orchestrator{
		log:       opt.Logger,
		metrics:   opt.Metrics,
		cache:     cache,
		decode:    opt.decode,
		pending:   make(map[string]*Ticket),
		inbox:     newMailbox(),
		responses: make(chan message),
		quit:      make(chan struct{}),
	}
	o.root, o.stop = context.WithCancel(context.Background())

	go o.work()
	go o.respond()
	return o, nil
}

// Submit registers a request and queues it for decoding. Ownership of
// req.Data passes to the orchestrator.
func (o *Orchestrator) Submit(req DecodeRequest) (*Ticket, error) {
	t := &Ticket{ID: req.ID, o: o, format: req.Format, done: make(chan struct{})}
	if o.cache != nil {
		t.cacheKey = o.cache.key(&req)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, &DecodeError{ID: req.ID, Err: ErrTerminated}
	}
	if prev := o.pending[req.ID]; prev != nil {
		delete(o.pending, req.ID)
		prev.finish(nil, &DecodeError{ID: req.ID, Err: ErrSuperseded})
		o.metrics.resolved(outcomeSuperseded)
		o.log.Debug("decode superseded", "id", req.ID, "seq", prev.seq)
	}
	o.metrics.requested(req.Format, req.Target.Kind)

	if res, ok := o.cache.get(t.cacheKey, req.ID); ok {
		o.metrics.setPending(len(o.pending))
		o.mu.Unlock()
		o.metrics.cacheHit()
		o.metrics.resolved(outcomeOK)
		t.finish(res, nil)
		return t, nil
	}

	o.seq++
	t.seq = o.seq
	ctx, cancel := context.WithCancel(o.root)
	t.cancel = cancel
	o.pending[req.ID] = t
	o.metrics.setPending(len(o.pending))
	o.mu.Unlock()

	o.log.Debug("decode queued", "id", req.ID, "seq", t.seq, "format", req.Format.String(),
		"quality", req.Quality.String(), "target", req.Target.Kind.String(), "bytes", len(req.Data))
	o.inbox.push(message{kind: msgDecode, seq: t.seq, ctx: ctx, request: &req})
	return t, nil
}

// Decode submits req and waits for its result.
func (o *Orchestrator) Decode(ctx context.Context, req DecodeRequest) (*DecodeResult, error) {
	t, err := o.Submit(req)
	if err != nil {
		return nil, err
	}
	return t.Wait(ctx)
}

// Pending returns the number of outstanding requests.
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Close fails every outstanding request with ErrTerminated and stops the
// worker without waiting for an in-flight decode.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	pending := o.pending
	o.pending = map[string]*Ticket{}
	o.metrics.setPending(0)
	o.mu.Unlock()

	o.stop()
	close(o.quit)
	for id, t := range pending {
		t.finish(nil, &DecodeError{ID: id, Err: ErrTerminated})
		o.metrics.resolved(outcomeTerminated)
	}
	o.log.Debug("orchestrator closed", "terminated", len(pending))
	return nil
}

func (o *Orchestrator) withdraw(t *Ticket, cause error) {
	o.mu.Lock()
	if o.pending[t.ID] == t {
		delete(o.pending, t.ID)
		o.metrics.setPending(len(o.pending))
	}
	o.mu.Unlock()
	if t.finish(nil, &DecodeError{ID: t.ID, Err: cause}) {
		o.metrics.resolved(outcomeWithdrawn)
	}
}

// work is the isolated decode context: it owns request buffers while decoding
// and talks to the orchestrator only through messages.
func (o *Orchestrator) work() {
	for {
		msg, ok := o.inbox.pop(o.quit)
		if !ok {
			return
		}
		if msg.ctx.Err() != nil {
			continue
		}

		start := time.Now()
		res, err := o.run(msg)
		o.metrics.observeDecode(msg.request.Format, time.Since(start))

		out := message{kind: msgResult, seq: msg.seq, result: res}
		if err != nil {
			out = message{kind: msgError, seq: msg.seq, err: &DecodeError{ID: msg.request.ID, Err: err}}
		}
		select {
		case o.responses <- out:
		case <-o.quit:
			return
		}
	}
}

func (o *Orchestrator) run(msg message) (res *DecodeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("decode panic", "id", msg.request.ID, "panic", r, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("decode panic: %v", r)
		}
	}()
	res, err = o.decode(msg.ctx, *msg.request)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("decode returned no result")
	}
	res.ID = msg.request.ID
	return res, nil
}

func (o *Orchestrator) respond() {
	for {
		select {
		case msg := <-o.responses:
			o.resolve(msg)
		case <-o.quit:
			return
		}
	}
}

func (o *Orchestrator) resolve(msg message) {
	id := msg.id()

	o.mu.Lock()
	t := o.pending[id]
	if t == nil || t.seq != msg.seq {
		o.mu.Unlock()
		o.log.Debug("decode result discarded", "id", id, "seq", msg.seq)
		return
	}
	delete(o.pending, id)
	o.metrics.setPending(len(o.pending))
	o.mu.Unlock()

	switch msg.kind {
	case msgResult:
		o.cache.add(t.cacheKey, msg.result)
		t.finish(msg.result, nil)
		o.metrics.resolved(outcomeOK)
		o.log.Debug("decode done", "id", id, "width", msg.result.DecodeWidth, "height", msg.result.DecodeHeight)
	case msgError:
		t.finish(nil, msg.err)
		o.metrics.resolved(outcomeError)
		o.metrics.failed(msg.err)
		o.log.Warn("decode failed", "id", id, "format", t.format.String(), "error", msg.err.Err)
	}
}
