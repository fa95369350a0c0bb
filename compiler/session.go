package compiler

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/maxkra/sasshost/errors"
	"github.com/maxkra/sasshost/protocol"
)

// ErrSessionClosed is the uniform failure every request pending at
// teardown completes with when the session was closed deliberately.
var ErrSessionClosed = stderrors.New("session closed")

// State is the lifecycle phase of a Session.
type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	}
	return "closed"
}

// DefaultGracePeriod is how long Close waits for the process to exit after
// shutting its stdin before killing it.
const DefaultGracePeriod = 3 * time.Second

// Transport is a pre-connected duplex channel to a compiler, used instead
// of spawning Command. Wait and Kill are optional hooks for whatever owns
// the far end.
type Transport struct {
	Stdin  io.WriteCloser
	Stdout io.Reader
	Wait   func() error
	Kill   func() error
}

// SessionOptions configures a Session. Exactly one of Command and
// Transport must be set. Logger defaults to a nop logger.
type SessionOptions struct {
	// Command is the compiler invocation, e.g. supplied by an executable
	// discovery step: argv[0] plus arguments that put the compiler in
	// embedded mode.
	Command []string

	// Transport short-circuits process spawning; used by tests and by
	// callers that manage the process themselves.
	Transport *Transport

	Logger      *zap.Logger
	GracePeriod time.Duration
}

// Session drives one compiler process. The zero value is not usable; use
// NewSession. The process is spawned lazily on the first call.
type Session struct {
	opts SessionOptions
	log  *zap.Logger
	disp *dispatcher

	// handlerCtx is the context callback handlers run under; it carries
	// the session marker for reentrancy detection and is cancelled at
	// teardown.
	handlerCtx    context.Context
	handlerCancel context.CancelFunc

	startMu  sync.Mutex
	started  bool
	startErr error

	state  atomic.Int32
	compID atomic.Uint32

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	writeMu   sync.Mutex
	transport *Transport

	closing    atomic.Bool
	closeOnce  sync.Once
	readerDone chan struct{}
}

// handlerMarker is the context key tagging callback-handler contexts with
// their session.
type handlerMarker struct{}

// NewSession creates a cold session. No process is spawned until the first
// compile or version call.
func NewSession(opts SessionOptions) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	s := &Session{
		opts:       opts,
		log:        log,
		readerDone: make(chan struct{}),
	}
	s.handlerCtx, s.handlerCancel = context.WithCancel(
		context.WithValue(context.Background(), handlerMarker{}, s))
	s.disp = newDispatcher(log, s.writeMessage)
	return s
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// ensureStarted spawns the process on the first call. The spawn error, if
// any, is sticky: a session that failed to start stays failed.
func (s *Session) ensureStarted() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return s.startErr
	}
	s.started = true
	s.startErr = s.start()
	return s.startErr
}

func (s *Session) start() error {
	var stdout io.Reader
	switch {
	case s.opts.Transport != nil:
		s.transport = s.opts.Transport
		s.stdin = s.transport.Stdin
		stdout = s.transport.Stdout

	case len(s.opts.Command) > 0:
		cmd := exec.Command(s.opts.Command[0], s.opts.Command[1:]...)
		// Stderr is not part of the protocol channel; let it pass through.
		cmd.Stderr = os.Stderr
		in, err := cmd.StdinPipe()
		if err != nil {
			return errors.Host("opening compiler stdin: %v", err)
		}
		out, err := cmd.StdoutPipe()
		if err != nil {
			return errors.Host("opening compiler stdout: %v", err)
		}
		if err := cmd.Start(); err != nil {
			return errors.Host("spawning compiler %q: %v", s.opts.Command[0], err)
		}
		s.cmd = cmd
		s.stdin = in
		stdout = out

	default:
		return errors.New("session has neither a command nor a transport")
	}

	s.state.Store(int32(StateRunning))
	s.log.Debug("session started", zap.Strings("command", s.opts.Command))
	go s.readLoop(stdout)
	return nil
}

// writeMessage encodes, frames, and writes one message. The mutex keeps
// each frame's bytes contiguous on the pipe; concurrent writers queue
// whole messages, never interleave partial ones.
func (s *Session) writeMessage(msg *protocol.Message) error {
	payload, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	frame := protocol.AppendFrame(make([]byte, 0, len(payload)+5), payload)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.stdin.Write(frame); err != nil {
		return errors.Host("writing to compiler: %v", err)
	}
	s.log.Debug("sent", zap.Stringer("kind", msg.Kind),
		zap.Uint32("id", msg.ID), zap.Uint32("compilation", msg.CompilationID))
	return nil
}

// readLoop is the single reader draining the process's stdout. Messages
// are handled strictly in arrival order; only handler invocation leaves
// this goroutine. Any framing, decoding, or correlation failure is
// session-fatal.
func (s *Session) readLoop(stdout io.Reader) {
	defer close(s.readerDone)
	dec := protocol.NewFrameDecoder()
	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			frames, ferr := dec.Feed(buf[:n])
			if ferr != nil {
				s.teardown(ferr)
				return
			}
			for _, frame := range frames {
				msg, derr := protocol.DecodeMessage(frame)
				if derr != nil {
					s.teardown(derr)
					return
				}
				s.log.Debug("received", zap.Stringer("kind", msg.Kind),
					zap.Uint32("id", msg.ID), zap.Uint32("compilation", msg.CompilationID))
				if herr := s.disp.handle(msg); herr != nil {
					s.teardown(herr)
					return
				}
			}
		}
		if err != nil {
			if err == io.EOF && s.closing.Load() {
				s.teardown(ErrSessionClosed)
			} else {
				s.teardown(errors.Host("compiler process exited: %v", err))
			}
			return
		}
	}
}

// teardown moves the session to closed and fails all pending work with
// cause. The first cause wins. On an abnormal cause the process is killed
// so no orphan outlives the session.
func (s *Session) teardown(cause error) {
	s.state.Store(int32(StateClosed))
	s.handlerCancel()
	s.disp.cancelAll(cause)
	if cause != ErrSessionClosed {
		s.log.Debug("session torn down", zap.Error(cause))
		s.kill()
		go s.reap()
	}
}

func (s *Session) kill() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	} else if s.transport != nil && s.transport.Kill != nil {
		_ = s.transport.Kill()
	}
}

func (s *Session) reap() error {
	if s.cmd != nil {
		return s.cmd.Wait()
	}
	if s.transport != nil && s.transport.Wait != nil {
		return s.transport.Wait()
	}
	return nil
}

// Close shuts the session down: the protocol's close signal is shutting
// the compiler's stdin, after which the process is expected to exit on its
// own. If it is still alive after the grace period it is killed. Close
// waits for the reader to observe end-of-stream, then fails any still
// pending requests with ErrSessionClosed. Close is idempotent.
func (s *Session) Close() error {
	s.startMu.Lock()
	started, startErr := s.started, s.startErr
	s.startMu.Unlock()
	if !started || startErr != nil {
		s.state.Store(int32(StateClosed))
		s.disp.cancelAll(ErrSessionClosed)
		return nil
	}

	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.state.Store(int32(StateClosing))
		s.log.Debug("closing session")
		_ = s.stdin.Close()

		select {
		case <-s.readerDone:
		case <-time.After(s.opts.GracePeriod):
			s.log.Debug("grace period expired, killing compiler")
			s.kill()
			<-s.readerDone
		}
		_ = s.reap()
		// The reader's EOF path already cancelled pending requests; this
		// is a no-op then, and the safety net otherwise.
		s.handlerCancel()
		s.disp.cancelAll(ErrSessionClosed)
		s.state.Store(int32(StateClosed))
	})
	return nil
}

// Version performs the protocol's version handshake.
func (s *Session) Version(ctx context.Context) (*protocol.VersionResponse, error) {
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}
	ch, err := s.disp.send(&protocol.Message{
		Kind:           protocol.KindVersionRequest,
		VersionRequest: &protocol.VersionRequest{},
	})
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case pr := <-ch:
		if pr.err != nil {
			return nil, pr.err
		}
		if pr.msg.VersionResponse == nil {
			return nil, errors.Protocol("version response missing payload")
		}
		return pr.msg.VersionResponse, nil
	}
}
