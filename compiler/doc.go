// Package compiler drives an external stylesheet compiler process over its
// stdio streams using the embedded protocol.
//
// A Session owns one compiler process. It is created cold and spawns the
// process on the first call, then runs a single reader goroutine that
// drains the process's stdout through the frame decoder and routes every
// decoded message: responses complete their pending request, inbound calls
// (the compiler invoking a host function or importer mid-compilation) run
// their handler on a fresh goroutine and answer with a correlated response,
// and log events go to the subscriber of the compilation that produced
// them.
//
// The call surface is async-first. CompileAsync submits a compilation and
// returns a channel that delivers exactly one outcome; any number of
// compilations may be in flight against one session, each tagged with its
// own compilation ID so callback traffic cannot cross between them.
// Compile is a thin blocking wrapper over CompileAsync. It must not be
// called from inside a callback handler registered on the same session;
// handlers that need nested compilations use CompileAsync. The restriction
// is detected through the handler's context and fails fast.
//
// Closing the session is the only cancellation primitive. Close shuts the
// process's stdin, waits a bounded grace period for a clean exit, kills the
// process if it overstays, and fails every still-pending request with
// ErrSessionClosed. A process that dies on its own fails pending requests
// with a host error instead, so callers can tell a clean shutdown from a
// crash.
package compiler
