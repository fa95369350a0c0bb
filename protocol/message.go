package protocol

// Kind discriminates the message union. The numeric values are part of the
// wire format and must not be reordered.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindCompileRequest
	KindCompileResponse
	KindCanonicalizeRequest
	KindCanonicalizeResponse
	KindImportRequest
	KindImportResponse
	KindFunctionCallRequest
	KindFunctionCallResponse
	KindVersionRequest
	KindVersionResponse
	KindLogEvent
)

func (k Kind) String() string {
	switch k {
	case KindCompileRequest:
		return "CompileRequest"
	case KindCompileResponse:
		return "CompileResponse"
	case KindCanonicalizeRequest:
		return "CanonicalizeRequest"
	case KindCanonicalizeResponse:
		return "CanonicalizeResponse"
	case KindImportRequest:
		return "ImportRequest"
	case KindImportResponse:
		return "ImportResponse"
	case KindFunctionCallRequest:
		return "FunctionCallRequest"
	case KindFunctionCallResponse:
		return "FunctionCallResponse"
	case KindVersionRequest:
		return "VersionRequest"
	case KindVersionResponse:
		return "VersionResponse"
	case KindLogEvent:
		return "LogEvent"
	}
	return "Invalid"
}

// IsResponse reports whether the kind answers an outstanding request.
func (k Kind) IsResponse() bool {
	switch k {
	case KindCompileResponse, KindCanonicalizeResponse, KindImportResponse,
		KindFunctionCallResponse, KindVersionResponse:
		return true
	}
	return false
}

// IsInboundCall reports whether the kind is a request the compiler initiates
// against the host.
func (k Kind) IsInboundCall() bool {
	switch k {
	case KindCanonicalizeRequest, KindImportRequest, KindFunctionCallRequest:
		return true
	}
	return false
}

// IsEvent reports whether the kind is fire-and-forget.
func (k Kind) IsEvent() bool { return k == KindLogEvent }

// Syntax identifies the source language variant of a stylesheet.
type Syntax uint8

const (
	SyntaxSCSS Syntax = iota
	SyntaxIndented
	SyntaxCSS
)

// Style selects the output formatting of compiled CSS.
type Style uint8

const (
	StyleExpanded Style = iota
	StyleCompressed
)

// LogLevel classifies a LogEvent.
type LogLevel uint8

const (
	LogWarning LogLevel = iota
	LogDeprecation
	LogDebug
)

// Message is the wire envelope. Kind selects exactly one payload field;
// all other payload fields must be nil. ID correlates requests with
// responses and is zero for events. CompilationID routes callback traffic
// to the compile call that registered the callbacks.
type Message struct {
	Kind          Kind   `cbor:"1,keyasint"`
	ID            uint32 `cbor:"2,keyasint,omitempty"`
	CompilationID uint32 `cbor:"3,keyasint,omitempty"`

	CompileRequest       *CompileRequest       `cbor:"4,keyasint,omitempty"`
	CompileResponse      *CompileResponse      `cbor:"5,keyasint,omitempty"`
	CanonicalizeRequest  *CanonicalizeRequest  `cbor:"6,keyasint,omitempty"`
	CanonicalizeResponse *CanonicalizeResponse `cbor:"7,keyasint,omitempty"`
	ImportRequest        *ImportRequest        `cbor:"8,keyasint,omitempty"`
	ImportResponse       *ImportResponse       `cbor:"9,keyasint,omitempty"`
	FunctionCallRequest  *FunctionCallRequest  `cbor:"10,keyasint,omitempty"`
	FunctionCallResponse *FunctionCallResponse `cbor:"11,keyasint,omitempty"`
	VersionRequest       *VersionRequest       `cbor:"12,keyasint,omitempty"`
	VersionResponse      *VersionResponse      `cbor:"13,keyasint,omitempty"`
	LogEvent             *LogEvent             `cbor:"14,keyasint,omitempty"`
}

// CompileRequest asks the compiler to compile one stylesheet. Importers are
// announced by ID so the compiler can target CanonicalizeRequest/
// ImportRequest traffic at them; functions are announced by their declared
// signature strings.
type CompileRequest struct {
	Source    string   `cbor:"1,keyasint"`
	URL       string   `cbor:"2,keyasint,omitempty"`
	Syntax    Syntax   `cbor:"3,keyasint,omitempty"`
	Style     Style    `cbor:"4,keyasint,omitempty"`
	SourceMap bool     `cbor:"5,keyasint,omitempty"`
	Importers []uint32 `cbor:"6,keyasint,omitempty"`
	Functions []string `cbor:"7,keyasint,omitempty"`
}

// CompileResponse carries exactly one of Success or Failure.
type CompileResponse struct {
	Success *CompileSuccess `cbor:"1,keyasint,omitempty"`
	Failure *CompileFailure `cbor:"2,keyasint,omitempty"`
}

type CompileSuccess struct {
	CSS        string   `cbor:"1,keyasint"`
	SourceMap  string   `cbor:"2,keyasint,omitempty"`
	LoadedURLs []string `cbor:"3,keyasint,omitempty"`
}

type CompileFailure struct {
	Message    string       `cbor:"1,keyasint"`
	Spans      []SourceSpan `cbor:"2,keyasint,omitempty"`
	StackTrace string       `cbor:"3,keyasint,omitempty"`
}

// SourceSpan locates a region of source text. Offsets are zero-based;
// Line and Column are zero-based as well, per protocol convention.
type SourceSpan struct {
	Text    string         `cbor:"1,keyasint,omitempty"`
	Start   SourceLocation `cbor:"2,keyasint"`
	End     SourceLocation `cbor:"3,keyasint"`
	URL     string         `cbor:"4,keyasint,omitempty"`
	Context string         `cbor:"5,keyasint,omitempty"`
}

type SourceLocation struct {
	Offset int `cbor:"1,keyasint"`
	Line   int `cbor:"2,keyasint"`
	Column int `cbor:"3,keyasint"`
}

// CanonicalizeRequest asks a host importer to resolve a URL. ContainingURL
// is the canonical URL of the stylesheet containing the load, when known.
type CanonicalizeRequest struct {
	ImporterID    uint32 `cbor:"1,keyasint"`
	URL           string `cbor:"2,keyasint"`
	FromImport    bool   `cbor:"3,keyasint,omitempty"`
	ContainingURL string `cbor:"4,keyasint,omitempty"`
}

// CanonicalizeResponse: an empty URL with an empty Error means "not found",
// which lets the compiler fall through to its next importer.
type CanonicalizeResponse struct {
	URL   string `cbor:"1,keyasint,omitempty"`
	Error string `cbor:"2,keyasint,omitempty"`
}

type ImportRequest struct {
	ImporterID uint32 `cbor:"1,keyasint"`
	URL        string `cbor:"2,keyasint"`
}

type ImportResponse struct {
	Contents     string `cbor:"1,keyasint,omitempty"`
	Syntax       Syntax `cbor:"2,keyasint,omitempty"`
	SourceMapURL string `cbor:"3,keyasint,omitempty"`
	Error        string `cbor:"4,keyasint,omitempty"`
}

// FunctionCallRequest invokes a host-registered function. Arguments are
// positional; Keywords carries arguments passed by name.
type FunctionCallRequest struct {
	Name      string           `cbor:"1,keyasint"`
	Arguments []Value          `cbor:"2,keyasint,omitempty"`
	Keywords  map[string]Value `cbor:"3,keyasint,omitempty"`
}

// FunctionCallResponse carries the returned value or an error string.
type FunctionCallResponse struct {
	Success *Value `cbor:"1,keyasint,omitempty"`
	Error   string `cbor:"2,keyasint,omitempty"`
}

type VersionRequest struct{}

type VersionResponse struct {
	ProtocolVersion string `cbor:"1,keyasint"`
	CompilerVersion string `cbor:"2,keyasint"`
	Implementation  string `cbor:"3,keyasint,omitempty"`
}

// LogEvent is emitted by the compiler out of band with any request.
type LogEvent struct {
	Level   LogLevel    `cbor:"1,keyasint"`
	Message string      `cbor:"2,keyasint"`
	Span    *SourceSpan `cbor:"3,keyasint,omitempty"`
}
