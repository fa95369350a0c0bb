package compiler

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/maxkra/sasshost/errors"
	"github.com/maxkra/sasshost/protocol"
	"github.com/maxkra/sasshost/value"
)

// pendingResponse is what a pending request resolves to: the matched
// response message, or the failure that cancelled it.
type pendingResponse struct {
	msg *protocol.Message
	err error
}

// dispatcher owns the request-id space and the pending-request map for one
// session. The map is the only state touched by multiple goroutines
// (issuers insert, the reader removes); the mutex covers exactly
// allocate/insert/remove.
type dispatcher struct {
	log   *zap.Logger
	write func(*protocol.Message) error

	mu      sync.Mutex
	nextID  uint32
	pending map[uint32]chan pendingResponse
	closed  error

	compilations sync.Map // uint32 -> *compilation
}

func newDispatcher(log *zap.Logger, write func(*protocol.Message) error) *dispatcher {
	return &dispatcher{
		log:     log,
		write:   write,
		pending: make(map[uint32]chan pendingResponse),
	}
}

// send allocates the next request id, registers the pending slot, and
// writes the message. It returns as soon as the write is handed off; the
// channel delivers exactly one pendingResponse.
func (d *dispatcher) send(msg *protocol.Message) (<-chan pendingResponse, error) {
	d.mu.Lock()
	if d.closed != nil {
		d.mu.Unlock()
		return nil, d.closed
	}
	// ID zero is reserved for events; skip it, and never reissue an id
	// that is still pending (relevant only after 2^32 requests).
	for {
		d.nextID++
		if d.nextID == 0 {
			continue
		}
		if _, live := d.pending[d.nextID]; !live {
			break
		}
	}
	id := d.nextID
	ch := make(chan pendingResponse, 1)
	d.pending[id] = ch
	d.mu.Unlock()

	msg.ID = id
	if err := d.write(msg); err != nil {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
		return nil, err
	}
	return ch, nil
}

// handle routes one inbound message. A returned error is session-fatal;
// per-message recoverable failures are answered on the wire instead.
func (d *dispatcher) handle(msg *protocol.Message) error {
	switch {
	case msg.Kind.IsResponse():
		d.mu.Lock()
		ch, ok := d.pending[msg.ID]
		if ok {
			delete(d.pending, msg.ID)
		}
		d.mu.Unlock()
		if !ok {
			// An unknown or duplicate response id means the two sides
			// disagree about outstanding requests; nothing after this
			// point can be trusted.
			return errors.Protocol("unexpected %s for request id %d", msg.Kind, msg.ID)
		}
		ch <- pendingResponse{msg: msg}
		return nil

	case msg.Kind.IsInboundCall():
		comp, _ := d.loadCompilation(msg.CompilationID)
		// Handlers run off the read loop so a slow or nested-requesting
		// handler cannot stall message draining.
		go d.serveInbound(comp, msg)
		return nil

	case msg.Kind.IsEvent():
		d.deliverEvent(msg)
		return nil
	}
	return errors.Protocol("unroutable message kind %s", msg.Kind)
}

// cancelAll fails every pending request with cause and refuses new sends.
// The first cause wins; later calls are no-ops.
func (d *dispatcher) cancelAll(cause error) {
	d.mu.Lock()
	if d.closed != nil {
		d.mu.Unlock()
		return
	}
	d.closed = cause
	for id, ch := range d.pending {
		delete(d.pending, id)
		ch <- pendingResponse{err: cause}
	}
	d.mu.Unlock()
}

func (d *dispatcher) registerCompilation(comp *compilation) {
	d.compilations.Store(comp.id, comp)
}

func (d *dispatcher) unregisterCompilation(id uint32) {
	d.compilations.Delete(id)
}

func (d *dispatcher) loadCompilation(id uint32) (*compilation, bool) {
	v, ok := d.compilations.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*compilation), true
}

// serveInbound answers one compiler-initiated call. The response reuses the
// caller's id and compilation id. Registry misses and handler failures are
// converted to error responses; only a write failure is surfaced, and the
// writer will already have torn the session down in that case.
func (d *dispatcher) serveInbound(comp *compilation, msg *protocol.Message) {
	resp := &protocol.Message{ID: msg.ID, CompilationID: msg.CompilationID}
	switch msg.Kind {
	case protocol.KindFunctionCallRequest:
		resp.Kind = protocol.KindFunctionCallResponse
		resp.FunctionCallResponse = d.callFunction(comp, msg.FunctionCallRequest)
	case protocol.KindCanonicalizeRequest:
		resp.Kind = protocol.KindCanonicalizeResponse
		resp.CanonicalizeResponse = d.canonicalize(comp, msg.CanonicalizeRequest)
	case protocol.KindImportRequest:
		resp.Kind = protocol.KindImportResponse
		resp.ImportResponse = d.load(comp, msg.ImportRequest)
	}
	if err := d.write(resp); err != nil {
		d.log.Debug("dropping inbound-call response", zap.Stringer("kind", resp.Kind), zap.Error(err))
	}
}

func (d *dispatcher) callFunction(comp *compilation, req *protocol.FunctionCallRequest) *protocol.FunctionCallResponse {
	if req == nil {
		return &protocol.FunctionCallResponse{Error: "function call request missing payload"}
	}
	if comp == nil {
		return &protocol.FunctionCallResponse{Error: "unknown compilation"}
	}
	reg := comp.lookupFunction(req.Name, len(req.Arguments), req.Keywords)
	if reg == nil {
		return &protocol.FunctionCallResponse{
			Error: fmt.Sprintf("no function registered matching %s with %d positional arguments", req.Name, len(req.Arguments)),
		}
	}

	args := make([]value.Value, len(req.Arguments))
	for i, wa := range req.Arguments {
		v, err := value.FromWire(wa)
		if err != nil {
			return &protocol.FunctionCallResponse{Error: fmt.Sprintf("argument %d: %v", i, err)}
		}
		args[i] = v
	}
	var keywords map[string]value.Value
	if len(req.Keywords) > 0 {
		keywords = make(map[string]value.Value, len(req.Keywords))
		for name, wv := range req.Keywords {
			v, err := value.FromWire(wv)
			if err != nil {
				return &protocol.FunctionCallResponse{Error: fmt.Sprintf("keyword argument %q: %v", name, err)}
			}
			keywords[name] = v
		}
	}

	result, err := invokeFunction(comp, reg, args, keywords)
	if err != nil {
		return &protocol.FunctionCallResponse{Error: err.Error()}
	}
	wire, err := value.ToWire(result)
	if err != nil {
		return &protocol.FunctionCallResponse{Error: err.Error()}
	}
	return &protocol.FunctionCallResponse{Success: &wire}
}

// invokeFunction runs a handler with panic containment: a panicking
// handler must fail its one call, not the reader loop or the session.
func invokeFunction(comp *compilation, reg *registeredFunction, args []value.Value, keywords map[string]value.Value) (result value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("function %s panicked: %v", reg.sig.name, r)
		}
	}()
	result, err = reg.fn.Callback(comp.ctx, args, keywords)
	if err == nil && result == nil {
		err = errors.New("function %s returned no value", reg.sig.name)
	}
	return result, err
}

func (d *dispatcher) canonicalize(comp *compilation, req *protocol.CanonicalizeRequest) *protocol.CanonicalizeResponse {
	if req == nil {
		return &protocol.CanonicalizeResponse{Error: "canonicalize request missing payload"}
	}
	if comp == nil {
		return &protocol.CanonicalizeResponse{Error: "unknown compilation"}
	}
	imp, ok := comp.importers[req.ImporterID]
	if !ok {
		return &protocol.CanonicalizeResponse{Error: fmt.Sprintf("no importer registered with id %d", req.ImporterID)}
	}
	url, err := invokeCanonicalize(comp, imp, req)
	if err != nil {
		return &protocol.CanonicalizeResponse{Error: err.Error()}
	}
	return &protocol.CanonicalizeResponse{URL: url}
}

func invokeCanonicalize(comp *compilation, imp Importer, req *protocol.CanonicalizeRequest) (url string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("importer panicked canonicalizing %q: %v", req.URL, r)
		}
	}()
	return imp.Canonicalize(comp.ctx, req.URL, req.FromImport)
}

func (d *dispatcher) load(comp *compilation, req *protocol.ImportRequest) *protocol.ImportResponse {
	if req == nil {
		return &protocol.ImportResponse{Error: "import request missing payload"}
	}
	if comp == nil {
		return &protocol.ImportResponse{Error: "unknown compilation"}
	}
	imp, ok := comp.importers[req.ImporterID]
	if !ok {
		return &protocol.ImportResponse{Error: fmt.Sprintf("no importer registered with id %d", req.ImporterID)}
	}
	result, err := invokeLoad(comp, imp, req)
	if err != nil {
		return &protocol.ImportResponse{Error: err.Error()}
	}
	if result == nil {
		return &protocol.ImportResponse{Error: fmt.Sprintf("importer returned nothing for %q", req.URL)}
	}
	return &protocol.ImportResponse{
		Contents:     result.Contents,
		Syntax:       result.Syntax,
		SourceMapURL: result.SourceMapURL,
	}
}

func invokeLoad(comp *compilation, imp Importer, req *protocol.ImportRequest) (result *ImporterResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("importer panicked loading %q: %v", req.URL, r)
		}
	}()
	return imp.Load(comp.ctx, req.URL)
}

// deliverEvent hands a fire-and-forget event to the subscriber of its
// compilation, falling back to the session logger.
func (d *dispatcher) deliverEvent(msg *protocol.Message) {
	ev := msg.LogEvent
	if ev == nil {
		return
	}
	if comp, ok := d.loadCompilation(msg.CompilationID); ok && comp.onLog != nil {
		comp.onLog(LogEvent{Level: ev.Level, Message: ev.Message, Span: ev.Span})
		return
	}
	d.log.Info("compiler log",
		zap.Uint32("compilation", msg.CompilationID),
		zap.Uint8("level", uint8(ev.Level)),
		zap.String("message", ev.Message))
}
