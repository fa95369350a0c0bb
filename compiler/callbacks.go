package compiler

import (
	"context"
	"sort"
	"strings"

	"github.com/maxkra/sasshost/errors"
	"github.com/maxkra/sasshost/protocol"
	"github.com/maxkra/sasshost/value"
)

// Function is a host-side Sass function. Signature is the Sass declaration
// the compiler sees, e.g. "invert($color, $weight: 100%)". Callback
// receives the positional and keyword arguments of one call and returns the
// value the compiler should substitute. A Callback error becomes a Sass
// error at the call site; it never affects the session.
type Function struct {
	Signature string
	Callback  func(ctx context.Context, args []value.Value, keywords map[string]value.Value) (value.Value, error)
}

// Importer resolves and loads stylesheets for the compiler in two phases.
// Canonicalize turns a load URL into a canonical URL, or returns "" with a
// nil error when the importer does not recognize the URL (the compiler then
// falls through to its next importer). Load supplies the source for a
// canonical URL previously returned by Canonicalize.
type Importer interface {
	Canonicalize(ctx context.Context, url string, fromImport bool) (string, error)
	Load(ctx context.Context, canonicalURL string) (*ImporterResult, error)
}

// ImporterResult is the outcome of Importer.Load.
type ImporterResult struct {
	Contents     string
	Syntax       protocol.Syntax
	SourceMapURL string
}

// signature is the normalized form a function is looked up by: name plus
// positional arity plus the set of declared keyword parameters. It is
// resolved once at registration so inbound calls never re-parse strings.
type signature struct {
	name       string
	positional int
	keywords   map[string]bool
	variadic   bool
}

type registeredFunction struct {
	sig signature
	fn  Function
}

// matches reports whether a call with the given argument shape binds to
// this registration.
func (r *registeredFunction) matches(positional int, keywords map[string]protocol.Value) bool {
	if r.sig.variadic {
		if positional < r.sig.positional {
			return false
		}
	} else if positional != r.sig.positional {
		return false
	}
	for name := range keywords {
		if !r.sig.keywords[name] {
			return false
		}
	}
	return true
}

// parseSignature splits a declaration like "name($a, $b: default, $rest...)"
// into its normalized form. Parameters without defaults count toward the
// positional arity; parameters with defaults are keyword-capable; a
// trailing "..." parameter makes the function variadic.
func parseSignature(decl string) (signature, error) {
	open := strings.IndexByte(decl, '(')
	if open <= 0 || !strings.HasSuffix(decl, ")") {
		return signature{}, errors.New("malformed function signature %q", decl)
	}
	sig := signature{
		name:     strings.TrimSpace(decl[:open]),
		keywords: make(map[string]bool),
	}
	params := strings.TrimSpace(decl[open+1 : len(decl)-1])
	if params == "" {
		return sig, nil
	}
	for _, param := range strings.Split(params, ",") {
		param = strings.TrimSpace(param)
		if sig.variadic {
			return signature{}, errors.New("signature %q has parameters after the variadic one", decl)
		}
		name, _, hasDefault := strings.Cut(param, ":")
		name = strings.TrimSpace(name)
		if rest, ok := strings.CutSuffix(name, "..."); ok {
			name = rest
			sig.variadic = true
		}
		if !strings.HasPrefix(name, "$") || len(name) < 2 {
			return signature{}, errors.New("malformed parameter %q in signature %q", param, decl)
		}
		name = name[1:]
		if sig.keywords[name] {
			return signature{}, errors.New("duplicate parameter $%s in signature %q", name, decl)
		}
		if sig.variadic {
			continue
		}
		sig.keywords[name] = true
		if !hasDefault {
			sig.positional++
		}
	}
	return sig, nil
}

// LogEvent is a diagnostic the compiler emitted during a compilation.
type LogEvent struct {
	Level   protocol.LogLevel
	Message string
	Span    *protocol.SourceSpan
}

// compilation carries the callback registrations of one compile call. The
// registries are built once here and read-only afterwards, so the inbound
// call path needs no locking.
type compilation struct {
	id        uint32
	ctx       context.Context
	functions map[string][]*registeredFunction
	importers map[uint32]Importer
	onLog     func(LogEvent)
}

func newCompilation(id uint32, ctx context.Context, opts *CompileOptions) (*compilation, error) {
	comp := &compilation{
		id:        id,
		ctx:       ctx,
		functions: make(map[string][]*registeredFunction),
		importers: make(map[uint32]Importer),
	}
	if opts == nil {
		return comp, nil
	}
	comp.onLog = opts.OnLog
	for _, fn := range opts.Functions {
		sig, err := parseSignature(fn.Signature)
		if err != nil {
			return nil, err
		}
		for _, prev := range comp.functions[sig.name] {
			if prev.sig.positional == sig.positional && prev.sig.variadic == sig.variadic {
				return nil, errors.New("function %q registered twice with the same shape", fn.Signature)
			}
		}
		comp.functions[sig.name] = append(comp.functions[sig.name], &registeredFunction{sig: sig, fn: fn})
	}
	for i, imp := range opts.Importers {
		comp.importers[uint32(i)] = imp
	}
	return comp, nil
}

// lookupFunction finds the registration matching a call shape, or nil.
func (c *compilation) lookupFunction(name string, positional int, keywords map[string]protocol.Value) *registeredFunction {
	for _, r := range c.functions[name] {
		if r.matches(positional, keywords) {
			return r
		}
	}
	return nil
}

// signatureStrings returns the declarations to announce in the compile
// request, in a deterministic order.
func (c *compilation) signatureStrings() []string {
	var sigs []string
	for _, regs := range c.functions {
		for _, r := range regs {
			sigs = append(sigs, r.fn.Signature)
		}
	}
	sort.Strings(sigs)
	return sigs
}

// importerIDs returns the announced importer IDs in priority order.
func (c *compilation) importerIDs() []uint32 {
	ids := make([]uint32, 0, len(c.importers))
	for i := 0; i < len(c.importers); i++ {
		ids = append(ids, uint32(i))
	}
	return ids
}
