package compiler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maxkra/sasshost/errors"
	"github.com/maxkra/sasshost/protocol"
	"github.com/maxkra/sasshost/value"
)

// stubEngine pretends to be a compiler process on the far side of a pair
// of in-memory pipes. Each decoded message is handed to serve, whose
// returned messages are framed and written back. When the host closes its
// write end the engine closes its own, which is exactly what a real
// compiler does on a clean shutdown.
type stubEngine struct {
	t     *testing.T
	serve func(msg *protocol.Message) []*protocol.Message
	in    *io.PipeReader
	out   *io.PipeWriter
	done  chan struct{}
}

func newStubSession(t *testing.T, serve func(msg *protocol.Message) []*protocol.Message) (*Session, *stubEngine) {
	t.Helper()
	hostToEngine, hostStdin := io.Pipe()
	engineStdout, engineOut := io.Pipe()

	engine := &stubEngine{
		t:     t,
		serve: serve,
		in:    hostToEngine,
		out:   engineOut,
		done:  make(chan struct{}),
	}
	go engine.run()

	sess := NewSession(SessionOptions{
		Transport:   &Transport{Stdin: hostStdin, Stdout: engineStdout},
		GracePeriod: 5 * time.Second,
	})
	t.Cleanup(func() {
		_ = sess.Close()
		<-engine.done
	})
	return sess, engine
}

func (e *stubEngine) run() {
	defer close(e.done)
	defer e.out.Close()
	dec := protocol.NewFrameDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := e.in.Read(buf)
		if n > 0 {
			frames, ferr := dec.Feed(buf[:n])
			if ferr != nil {
				e.t.Errorf("stub engine framing error: %v", ferr)
				return
			}
			for _, frame := range frames {
				msg, derr := protocol.DecodeMessage(frame)
				if derr != nil {
					e.t.Errorf("stub engine decode error: %v", derr)
					return
				}
				for _, resp := range e.serve(msg) {
					payload, eerr := protocol.EncodeMessage(resp)
					if eerr != nil {
						e.t.Errorf("stub engine encode error: %v", eerr)
						return
					}
					if _, werr := e.out.Write(protocol.AppendFrame(nil, payload)); werr != nil {
						return
					}
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// crash simulates the compiler dying: the host-facing stream ends without
// a close having been requested.
func (e *stubEngine) crash() {
	_ = e.in.CloseWithError(io.ErrClosedPipe)
	_ = e.out.Close()
}

func successResponse(id, compID uint32, css string) *protocol.Message {
	return &protocol.Message{
		Kind:          protocol.KindCompileResponse,
		ID:            id,
		CompilationID: compID,
		CompileResponse: &protocol.CompileResponse{
			Success: &protocol.CompileSuccess{CSS: css},
		},
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCompileEndToEnd(t *testing.T) {
	const css = ".t {\n  color: blue;\n}"
	sess, _ := newStubSession(t, func(msg *protocol.Message) []*protocol.Message {
		if msg.Kind != protocol.KindCompileRequest {
			t.Errorf("unexpected message %s", msg.Kind)
			return nil
		}
		if msg.CompileRequest.Source != "$c: blue; .t { color: $c; }" {
			t.Errorf("wrong source reached the engine: %q", msg.CompileRequest.Source)
		}
		return []*protocol.Message{successResponse(msg.ID, msg.CompilationID, css)}
	})

	result, err := sess.Compile(testCtx(t), "$c: blue; .t { color: $c; }", nil)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if result.CSS != css {
		t.Fatalf("got CSS %q, want %q", result.CSS, css)
	}
	if sess.State() != StateRunning {
		t.Fatalf("session should be running, is %s", sess.State())
	}
}

func TestCompileFailureKeepsSessionUsable(t *testing.T) {
	calls := 0
	sess, _ := newStubSession(t, func(msg *protocol.Message) []*protocol.Message {
		calls++
		if calls == 1 {
			return []*protocol.Message{{
				Kind:          protocol.KindCompileResponse,
				ID:            msg.ID,
				CompilationID: msg.CompilationID,
				CompileResponse: &protocol.CompileResponse{
					Failure: &protocol.CompileFailure{
						Message: "Undefined variable.",
						Spans: []protocol.SourceSpan{{
							URL:   "file:///main.scss",
							Start: protocol.SourceLocation{Line: 2, Column: 8},
							End:   protocol.SourceLocation{Line: 2, Column: 10},
						}},
					},
				},
			}}
		}
		return []*protocol.Message{successResponse(msg.ID, msg.CompilationID, "fine")}
	})

	_, err := sess.Compile(testCtx(t), ".t { color: $missing; }", nil)
	cerr, ok := err.(*CompilationError)
	if !ok {
		t.Fatalf("expected a *CompilationError, got %v", err)
	}
	if cerr.Message != "Undefined variable." {
		t.Fatalf("wrong message: %q", cerr.Message)
	}
	if want := "file:///main.scss:3:9: Undefined variable."; cerr.Error() != want {
		t.Fatalf("Error() = %q, want %q", cerr.Error(), want)
	}

	// A compilation failure is per-call; the session must still work.
	result, err := sess.Compile(testCtx(t), ".ok {}", nil)
	if err != nil {
		t.Fatalf("second compile failed: %v", err)
	}
	if result.CSS != "fine" {
		t.Fatalf("second compile returned %q", result.CSS)
	}
}

func TestConcurrentCompilesDoNotCrossTalk(t *testing.T) {
	// Hold every compile request until both have arrived, then answer in
	// reverse order.
	var held []*protocol.Message
	sess, _ := newStubSession(t, func(msg *protocol.Message) []*protocol.Message {
		if msg.Kind != protocol.KindCompileRequest {
			return nil
		}
		held = append(held, msg)
		if len(held) < 2 {
			return nil
		}
		var out []*protocol.Message
		for i := len(held) - 1; i >= 0; i-- {
			m := held[i]
			out = append(out, successResponse(m.ID, m.CompilationID, m.CompileRequest.Source))
		}
		return out
	})

	chA, err := sess.CompileAsync(".a {}", nil)
	if err != nil {
		t.Fatalf("CompileAsync failed: %v", err)
	}
	chB, err := sess.CompileAsync(".b {}", nil)
	if err != nil {
		t.Fatalf("CompileAsync failed: %v", err)
	}

	outA, outB := <-chA, <-chB
	if outA.Err != nil || outB.Err != nil {
		t.Fatalf("compiles failed: %v, %v", outA.Err, outB.Err)
	}
	if outA.Result.CSS != ".a {}" || outB.Result.CSS != ".b {}" {
		t.Fatalf("responses cross-matched: %q, %q", outA.Result.CSS, outB.Result.CSS)
	}
}

func TestFunctionCallbackRoundTrip(t *testing.T) {
	one := protocol.Value{Kind: protocol.ValueNumber, Number: &protocol.WireNumber{Value: 1}}
	var compileID uint32
	var compCompID uint32
	var returned atomic.Pointer[protocol.FunctionCallResponse]

	sess, _ := newStubSession(t, func(msg *protocol.Message) []*protocol.Message {
		switch msg.Kind {
		case protocol.KindCompileRequest:
			compileID, compCompID = msg.ID, msg.CompilationID
			return []*protocol.Message{{
				Kind:          protocol.KindFunctionCallRequest,
				ID:            1000, // engine-chosen id in the shared space
				CompilationID: msg.CompilationID,
				FunctionCallRequest: &protocol.FunctionCallRequest{
					Name:      "add",
					Arguments: []protocol.Value{one, one},
				},
			}}
		case protocol.KindFunctionCallResponse:
			if msg.ID != 1000 {
				t.Errorf("function response must reuse the engine's id, got %d", msg.ID)
			}
			returned.Store(msg.FunctionCallResponse)
			return []*protocol.Message{successResponse(compileID, compCompID, "with-callback")}
		}
		return nil
	})

	result, err := sess.Compile(testCtx(t), ".t { width: add(1, 1); }", &CompileOptions{
		Functions: []Function{{
			Signature: "add($a, $b)",
			Callback: func(_ context.Context, args []value.Value, _ map[string]value.Value) (value.Value, error) {
				return value.NewNumber(args[0].(*value.Number).Value + args[1].(*value.Number).Value), nil
			},
		}},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if result.CSS != "with-callback" {
		t.Fatalf("got CSS %q", result.CSS)
	}

	resp := returned.Load()
	if resp == nil || resp.Success == nil {
		t.Fatalf("engine never saw a function result: %+v", resp)
	}
	got, err := value.FromWire(*resp.Success)
	if err != nil {
		t.Fatalf("FromWire failed: %v", err)
	}
	if !got.Equal(value.NewNumber(2)) {
		t.Fatalf("add(1, 1) produced %#v on the wire, want 2", got)
	}
}

func TestUnregisteredFunctionGetsErrorResponse(t *testing.T) {
	var compileID, compCompID uint32
	var errText atomic.Pointer[string]
	sess, _ := newStubSession(t, func(msg *protocol.Message) []*protocol.Message {
		switch msg.Kind {
		case protocol.KindCompileRequest:
			compileID, compCompID = msg.ID, msg.CompilationID
			return []*protocol.Message{{
				Kind:                protocol.KindFunctionCallRequest,
				ID:                  2000,
				CompilationID:       msg.CompilationID,
				FunctionCallRequest: &protocol.FunctionCallRequest{Name: "missing"},
			}}
		case protocol.KindFunctionCallResponse:
			errText.Store(&msg.FunctionCallResponse.Error)
			return []*protocol.Message{successResponse(compileID, compCompID, "done")}
		}
		return nil
	})

	if _, err := sess.Compile(testCtx(t), ".t {}", nil); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if got := errText.Load(); got == nil || *got == "" {
		t.Fatal("an unregistered signature must produce an error response, not a hang")
	}
}

func TestBlockingCompileInsideHandlerFailsFast(t *testing.T) {
	var compileID, compCompID uint32
	nestedErr := make(chan error, 1)

	var sess *Session
	sess, _ = newStubSession(t, func(msg *protocol.Message) []*protocol.Message {
		switch msg.Kind {
		case protocol.KindCompileRequest:
			compileID, compCompID = msg.ID, msg.CompilationID
			return []*protocol.Message{{
				Kind:                protocol.KindFunctionCallRequest,
				ID:                  3000,
				CompilationID:       msg.CompilationID,
				FunctionCallRequest: &protocol.FunctionCallRequest{Name: "nest"},
			}}
		case protocol.KindFunctionCallResponse:
			return []*protocol.Message{successResponse(compileID, compCompID, "ok")}
		}
		return nil
	})

	_, err := sess.Compile(testCtx(t), ".t {}", &CompileOptions{
		Functions: []Function{{
			Signature: "nest()",
			Callback: func(ctx context.Context, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
				_, nerr := sess.Compile(ctx, ".nested {}", nil)
				nestedErr <- nerr
				return value.Null, nil
			},
		}},
	})
	if err != nil {
		t.Fatalf("outer compile failed: %v", err)
	}
	select {
	case nerr := <-nestedErr:
		if nerr == nil {
			t.Fatal("a blocking Compile inside a handler must fail fast")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestCloseCancelsPendingRequests(t *testing.T) {
	sess, _ := newStubSession(t, func(msg *protocol.Message) []*protocol.Message {
		return nil // never answer
	})

	const k = 3
	var outcomes []<-chan CompileOutcome
	for i := 0; i < k; i++ {
		ch, err := sess.CompileAsync(".x {}", nil)
		if err != nil {
			t.Fatalf("CompileAsync failed: %v", err)
		}
		outcomes = append(outcomes, ch)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	for i, ch := range outcomes {
		select {
		case oc := <-ch:
			if oc.Err != ErrSessionClosed {
				t.Errorf("request %d: got %v, want ErrSessionClosed", i, oc.Err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("request %d never completed", i)
		}
	}
	if sess.State() != StateClosed {
		t.Fatalf("session should be closed, is %s", sess.State())
	}

	// New work after close is refused with the same failure.
	if _, err := sess.CompileAsync(".y {}", nil); err != ErrSessionClosed {
		t.Fatalf("compile after close: got %v, want ErrSessionClosed", err)
	}
}

func TestUnexpectedExitFailsPendingWithHostError(t *testing.T) {
	sess, engine := newStubSession(t, func(msg *protocol.Message) []*protocol.Message {
		return nil
	})

	ch, err := sess.CompileAsync(".x {}", nil)
	if err != nil {
		t.Fatalf("CompileAsync failed: %v", err)
	}
	engine.crash()

	select {
	case oc := <-ch:
		if !errors.IsHost(oc.Err) {
			t.Fatalf("got %v, want a host error", oc.Err)
		}
		if oc.Err == ErrSessionClosed {
			t.Fatal("a crash must be distinguishable from a clean close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pending request never completed after the crash")
	}
	if sess.State() != StateClosed {
		t.Fatalf("session should be closed, is %s", sess.State())
	}
}

func TestUnexpectedResponseIDTearsSessionDown(t *testing.T) {
	sess, _ := newStubSession(t, func(msg *protocol.Message) []*protocol.Message {
		if msg.Kind != protocol.KindCompileRequest {
			return nil
		}
		return []*protocol.Message{successResponse(msg.ID+999, msg.CompilationID, "liar")}
	})

	_, err := sess.Compile(testCtx(t), ".x {}", nil)
	if err == nil {
		t.Fatal("a response with an unknown id must fail the compile")
	}
	if !errors.IsProtocol(err) {
		t.Fatalf("got %v, want a protocol error", err)
	}
	if sess.State() != StateClosed {
		t.Fatalf("a protocol error must close the session, state is %s", sess.State())
	}
}

func TestVersionHandshake(t *testing.T) {
	sess, _ := newStubSession(t, func(msg *protocol.Message) []*protocol.Message {
		if msg.Kind != protocol.KindVersionRequest {
			return nil
		}
		return []*protocol.Message{{
			Kind: protocol.KindVersionResponse,
			ID:   msg.ID,
			VersionResponse: &protocol.VersionResponse{
				ProtocolVersion: "2.7.1",
				CompilerVersion: "1.77.0",
				Implementation:  "stub",
			},
		}}
	})

	info, err := sess.Version(testCtx(t))
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if info.CompilerVersion != "1.77.0" || info.Implementation != "stub" {
		t.Fatalf("wrong version info: %+v", info)
	}
}

func TestLogEventsReachSubscriber(t *testing.T) {
	sess, _ := newStubSession(t, func(msg *protocol.Message) []*protocol.Message {
		if msg.Kind != protocol.KindCompileRequest {
			return nil
		}
		return []*protocol.Message{
			{
				Kind:          protocol.KindLogEvent,
				CompilationID: msg.CompilationID,
				LogEvent:      &protocol.LogEvent{Level: protocol.LogWarning, Message: "careful"},
			},
			successResponse(msg.ID, msg.CompilationID, "ok"),
		}
	})

	events := make(chan LogEvent, 1)
	_, err := sess.Compile(testCtx(t), ".x {}", &CompileOptions{
		OnLog: func(ev LogEvent) { events <- ev },
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Message != "careful" || ev.Level != protocol.LogWarning {
			t.Fatalf("wrong event: %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("log event never delivered")
	}
}

func TestCompileFileDerivesSyntaxAndURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "style.sass")
	if err := os.WriteFile(path, []byte(".a\n  color: red"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	var seen atomic.Pointer[protocol.CompileRequest]
	sess, _ := newStubSession(t, func(msg *protocol.Message) []*protocol.Message {
		if msg.Kind != protocol.KindCompileRequest {
			return nil
		}
		seen.Store(msg.CompileRequest)
		return []*protocol.Message{successResponse(msg.ID, msg.CompilationID, "compiled")}
	})

	result, err := sess.CompileFile(testCtx(t), path, nil)
	if err != nil {
		t.Fatalf("CompileFile failed: %v", err)
	}
	if result.CSS != "compiled" {
		t.Fatalf("got %q", result.CSS)
	}
	req := seen.Load()
	if req.Syntax != protocol.SyntaxIndented {
		t.Fatalf("a .sass file must compile as indented syntax, got %d", req.Syntax)
	}
	if req.Source != ".a\n  color: red" {
		t.Fatalf("wrong source: %q", req.Source)
	}
	if req.URL == "" {
		t.Fatal("CompileFile must attribute a URL")
	}
}

func TestSessionStateProgression(t *testing.T) {
	sess, _ := newStubSession(t, func(msg *protocol.Message) []*protocol.Message {
		if msg.Kind != protocol.KindCompileRequest {
			return nil
		}
		return []*protocol.Message{successResponse(msg.ID, msg.CompilationID, "x")}
	})
	if sess.State() != StateNotStarted {
		t.Fatalf("fresh session should be not-started, is %s", sess.State())
	}
	if _, err := sess.Compile(testCtx(t), ".a {}", nil); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if sess.State() != StateRunning {
		t.Fatalf("session should be running, is %s", sess.State())
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if sess.State() != StateClosed {
		t.Fatalf("session should be closed, is %s", sess.State())
	}
	// Close is idempotent.
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestCloseWithoutStartIsClean(t *testing.T) {
	sess := NewSession(SessionOptions{Command: []string{"/nonexistent"}})
	if err := sess.Close(); err != nil {
		t.Fatalf("closing a never-started session must succeed: %v", err)
	}
	if sess.State() != StateClosed {
		t.Fatalf("state should be closed, is %s", sess.State())
	}
}

func TestSpawnFailureIsHostError(t *testing.T) {
	sess := NewSession(SessionOptions{Command: []string{"/nonexistent-compiler-binary"}})
	defer sess.Close()
	_, err := sess.Compile(testCtx(t), ".a {}", nil)
	if err == nil {
		t.Fatal("expected a spawn failure")
	}
	if !errors.IsHost(err) {
		t.Fatalf("got %v, want a host error", err)
	}
	// The failure is sticky.
	if _, err2 := sess.Compile(testCtx(t), ".b {}", nil); err2 == nil {
		t.Fatal("a failed session must stay failed")
	}
}
