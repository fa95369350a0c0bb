package protocol

// ValueKind discriminates the wire value union. Singletons (true, false,
// null) are kinds of their own and carry no payload.
type ValueKind uint8

const (
	ValueInvalid ValueKind = iota
	ValueTrue
	ValueFalse
	ValueNull
	ValueString
	ValueNumber
	ValueList
	ValueMap
	ValueColor
	ValueCalculation
	ValueFunctionRef
	ValueArgumentList
)

// ListSeparator mirrors the separator kinds of the value model.
type ListSeparator uint8

const (
	SeparatorComma ListSeparator = iota
	SeparatorSpace
	SeparatorSlash
)

// ColorSpace identifies the channel interpretation of a wire color.
type ColorSpace uint8

const (
	SpaceRGB ColorSpace = iota
	SpaceHSL
	SpaceHWB
)

// Value is the wire form of a Sass value. Kind selects at most one payload
// field; singleton kinds select none.
type Value struct {
	Kind ValueKind `cbor:"1,keyasint"`

	String       *WireString       `cbor:"2,keyasint,omitempty"`
	Number       *WireNumber       `cbor:"3,keyasint,omitempty"`
	List         *WireList         `cbor:"4,keyasint,omitempty"`
	Map          *WireMap          `cbor:"5,keyasint,omitempty"`
	Color        *WireColor        `cbor:"6,keyasint,omitempty"`
	Calculation  *WireCalculation  `cbor:"7,keyasint,omitempty"`
	FunctionRef  *WireFunctionRef  `cbor:"8,keyasint,omitempty"`
	ArgumentList *WireArgumentList `cbor:"9,keyasint,omitempty"`
}

type WireString struct {
	Text   string `cbor:"1,keyasint"`
	Quoted bool   `cbor:"2,keyasint,omitempty"`
}

type WireNumber struct {
	Value     float64  `cbor:"1,keyasint"`
	Units     []string `cbor:"2,keyasint,omitempty"`
	Precision int      `cbor:"3,keyasint,omitempty"`
}

type WireList struct {
	Separator ListSeparator `cbor:"1,keyasint,omitempty"`
	Bracketed bool          `cbor:"2,keyasint,omitempty"`
	Elements  []Value       `cbor:"3,keyasint,omitempty"`
}

// WireMap preserves entry order; key uniqueness is the converter's problem,
// not the codec's.
type WireMap struct {
	Entries []WireMapEntry `cbor:"1,keyasint,omitempty"`
}

type WireMapEntry struct {
	Key   Value `cbor:"1,keyasint"`
	Value Value `cbor:"2,keyasint"`
}

// WireColor carries three channels interpreted per Space, plus an optional
// alpha. Channel ranges are validated by the converter on decode.
type WireColor struct {
	Space    ColorSpace `cbor:"1,keyasint,omitempty"`
	Channel1 float64    `cbor:"2,keyasint"`
	Channel2 float64    `cbor:"3,keyasint"`
	Channel3 float64    `cbor:"4,keyasint"`
	Alpha    *float64   `cbor:"5,keyasint,omitempty"`
}

// WireCalculation is opaque to the host: an operator and its operands,
// resolved only by the compiler.
type WireCalculation struct {
	Operator string  `cbor:"1,keyasint"`
	Operands []Value `cbor:"2,keyasint,omitempty"`
}

type WireFunctionRef struct {
	ID uint32 `cbor:"1,keyasint"`
}

// WireArgumentList is a list that additionally carries keyword arguments.
type WireArgumentList struct {
	Separator ListSeparator    `cbor:"1,keyasint,omitempty"`
	Elements  []Value          `cbor:"2,keyasint,omitempty"`
	Keywords  map[string]Value `cbor:"3,keyasint,omitempty"`
}
