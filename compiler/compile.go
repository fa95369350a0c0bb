package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/maxkra/sasshost/errors"
	"github.com/maxkra/sasshost/protocol"
)

// CompileOptions configures one compile call. Functions and Importers are
// registered for the duration of that call only and must not be mutated
// while it is in flight.
type CompileOptions struct {
	// URL is the canonical URL attributed to the source, used in error
	// spans and source maps.
	URL string

	Syntax    protocol.Syntax
	Style     protocol.Style
	SourceMap bool

	// Importers are consulted in order for every load the source performs,
	// before the compiler's own filesystem resolution.
	Importers []Importer

	// Functions are announced to the compiler by signature and invoked
	// back on the host when the stylesheet calls them.
	Functions []Function

	// OnLog receives the compiler's warnings and debug messages for this
	// compilation. Events with no subscriber go to the session logger.
	OnLog func(LogEvent)
}

// CompileResult is a successful compilation.
type CompileResult struct {
	CSS        string
	SourceMap  string
	LoadedURLs []string
}

// CompilationError is the compiler rejecting the input. It is a per-call
// failure; the session stays usable.
type CompilationError struct {
	Message    string
	Spans      []protocol.SourceSpan
	StackTrace string
}

func (e *CompilationError) Error() string {
	if len(e.Spans) > 0 && e.Spans[0].URL != "" {
		sp := e.Spans[0]
		return fmt.Sprintf("%s:%d:%d: %s", sp.URL, sp.Start.Line+1, sp.Start.Column+1, e.Message)
	}
	return e.Message
}

// CompileOutcome is what a CompileAsync channel delivers: exactly one of
// Result and Err is set. Err is a *CompilationError for input problems and
// a protocol, host, or closed error when the session broke.
type CompileOutcome struct {
	Result *CompileResult
	Err    error
}

// CompileAsync submits a compilation and returns immediately with a
// channel delivering its single outcome. Any number of compilations may
// be in flight at once; each gets a distinct compilation id so callback
// traffic and responses stay separate. The context does not cancel the
// compilation (the protocol has no per-request cancellation); it is the
// blocking wrapper's job to race it.
func (s *Session) CompileAsync(source string, opts *CompileOptions) (<-chan CompileOutcome, error) {
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}
	compID := s.compID.Add(1)
	comp, err := newCompilation(compID, s.handlerCtx, opts)
	if err != nil {
		return nil, err
	}

	req := &protocol.CompileRequest{
		Source:    source,
		Importers: comp.importerIDs(),
		Functions: comp.signatureStrings(),
	}
	if opts != nil {
		req.URL = opts.URL
		req.Syntax = opts.Syntax
		req.Style = opts.Style
		req.SourceMap = opts.SourceMap
	}

	s.disp.registerCompilation(comp)
	ch, err := s.disp.send(&protocol.Message{
		Kind:           protocol.KindCompileRequest,
		CompilationID:  compID,
		CompileRequest: req,
	})
	if err != nil {
		s.disp.unregisterCompilation(compID)
		return nil, err
	}

	out := make(chan CompileOutcome, 1)
	go func() {
		pr := <-ch
		s.disp.unregisterCompilation(compID)
		out <- translateOutcome(pr)
	}()
	return out, nil
}

func translateOutcome(pr pendingResponse) CompileOutcome {
	if pr.err != nil {
		return CompileOutcome{Err: pr.err}
	}
	resp := pr.msg.CompileResponse
	if resp == nil {
		return CompileOutcome{Err: errors.Protocol("compile response missing payload")}
	}
	switch {
	case resp.Success != nil:
		return CompileOutcome{Result: &CompileResult{
			CSS:        resp.Success.CSS,
			SourceMap:  resp.Success.SourceMap,
			LoadedURLs: resp.Success.LoadedURLs,
		}}
	case resp.Failure != nil:
		return CompileOutcome{Err: &CompilationError{
			Message:    resp.Failure.Message,
			Spans:      resp.Failure.Spans,
			StackTrace: resp.Failure.StackTrace,
		}}
	}
	return CompileOutcome{Err: errors.Protocol("compile response carries neither success nor failure")}
}

// Compile is the blocking variant of CompileAsync. It must not be called
// from inside a callback handler running on this session: the handler
// already sits between the compiler and its response, and nesting a
// blocking wait there is a deadlock by construction on hosts that drain
// handlers inline. The misuse is detected through the handler's context
// and fails fast; handlers wanting nested compilations use CompileAsync.
//
// If ctx expires the call returns ctx.Err() and the request completes into
// the void; the protocol cannot cancel a single request.
func (s *Session) Compile(ctx context.Context, source string, opts *CompileOptions) (*CompileResult, error) {
	if owner, ok := ctx.Value(handlerMarker{}).(*Session); ok && owner == s {
		return nil, errors.New("Compile called from a callback handler of the same session; use CompileAsync")
	}
	ch, err := s.CompileAsync(source, opts)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case oc := <-ch:
		return oc.Result, oc.Err
	}
}

// CompileFile reads path and compiles it, deriving the syntax from the
// file extension (.sass is indented, .css is plain CSS, anything else is
// SCSS) unless opts already names one via URL-less default. The file's
// path becomes the compilation URL when opts does not set one.
func (s *Session) CompileFile(ctx context.Context, path string, opts *CompileOptions) (*CompileResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var local CompileOptions
	if opts != nil {
		local = *opts
	}
	local.Syntax = SyntaxForPath(path)
	if local.URL == "" {
		abs, err := filepath.Abs(path)
		if err == nil {
			local.URL = "file://" + filepath.ToSlash(abs)
		}
	}
	return s.Compile(ctx, string(data), &local)
}

// SyntaxForPath maps a stylesheet path to its syntax by extension.
func SyntaxForPath(path string) protocol.Syntax {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sass":
		return protocol.SyntaxIndented
	case ".css":
		return protocol.SyntaxCSS
	}
	return protocol.SyntaxSCSS
}
