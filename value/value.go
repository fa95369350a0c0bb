package value

import (
	"math"

	"github.com/maxkra/sasshost/errors"
)

// Epsilon is the comparison tolerance for numeric magnitudes and color
// channels.
const Epsilon = 1e-11

// Value is the closed union of Sass values the protocol can carry.
type Value interface {
	// Equal reports structural equality: numeric fields within Epsilon,
	// map entries order-insensitive, everything else exact.
	Equal(other Value) bool

	isValue()
}

func eqFloat(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// ---- Singletons ----

// Bool is the Sass boolean. Only two instances exist; decode always hands
// back True or False, never a fresh allocation, so identity comparison is
// sound.
type Bool struct {
	value bool
}

var (
	True  = &Bool{value: true}
	False = &Bool{value: false}

	// Null is the sole instance of the Sass null value.
	Null = &NullValue{}
)

// Boolean returns the singleton for v.
func Boolean(v bool) *Bool {
	if v {
		return True
	}
	return False
}

func (b *Bool) IsTrue() bool { return b.value }

func (b *Bool) Equal(other Value) bool { return b == other }

func (b *Bool) isValue() {}

// NullValue is the type of the Null singleton.
type NullValue struct{}

func (n *NullValue) Equal(other Value) bool { return n == other }

func (n *NullValue) isValue() {}

// ---- String ----

type String struct {
	Text   string
	Quoted bool
}

// NewString returns a quoted string, the default for text produced by host
// functions.
func NewString(text string) *String {
	return &String{Text: text, Quoted: true}
}

// UnquotedString returns an identifier-like unquoted string.
func UnquotedString(text string) *String {
	return &String{Text: text}
}

func (s *String) Equal(other Value) bool {
	o, ok := other.(*String)
	return ok && s.Text == o.Text && s.Quoted == o.Quoted
}

func (s *String) isValue() {}

// ---- Number ----

// DefaultPrecision is the display precision a number carries unless the
// wire says otherwise.
const DefaultPrecision = 10

// Number is a numeric magnitude with an ordered unit sequence and a display
// precision. Units are opaque to the host; unit arithmetic happens in the
// compiler.
type Number struct {
	Value     float64
	Units     []string
	Precision int
}

func NewNumber(v float64, units ...string) *Number {
	return &Number{Value: v, Units: units, Precision: DefaultPrecision}
}

func (n *Number) Equal(other Value) bool {
	o, ok := other.(*Number)
	if !ok || !eqFloat(n.Value, o.Value) || len(n.Units) != len(o.Units) {
		return false
	}
	for i, u := range n.Units {
		if o.Units[i] != u {
			return false
		}
	}
	return true
}

func (n *Number) isValue() {}

// ---- List ----

// Separator is the delimiter kind of a list.
type Separator uint8

const (
	Comma Separator = iota
	Space
	Slash
)

type List struct {
	Elements  []Value
	Separator Separator
	Bracketed bool
}

func NewList(sep Separator, elements ...Value) *List {
	return &List{Elements: elements, Separator: sep}
}

func (l *List) Equal(other Value) bool {
	o, ok := other.(*List)
	if !ok {
		return false
	}
	return l.Separator == o.Separator && l.Bracketed == o.Bracketed &&
		elementsEqual(l.Elements, o.Elements)
}

func (l *List) isValue() {}

func elementsEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if !v.Equal(b[i]) {
			return false
		}
	}
	return true
}

// ---- Map ----

// MapEntry is one key/value pair of a Map.
type MapEntry struct {
	Key   Value
	Value Value
}

// Map is an association from Value to Value. Keys are structurally unique;
// NewMap rejects duplicates so lookups never have to arbitrate. Insertion
// order is preserved for iteration and irrelevant to equality.
type Map struct {
	entries []MapEntry
}

func NewMap(entries ...MapEntry) (*Map, error) {
	for i, e := range entries {
		for _, prev := range entries[:i] {
			if prev.Key.Equal(e.Key) {
				return nil, errors.New("duplicate map key at entry %d", i)
			}
		}
	}
	return &Map{entries: entries}, nil
}

func (m *Map) Len() int { return len(m.entries) }

// Entries returns the pairs in insertion order. The slice is shared; the
// map is treated as immutable after construction.
func (m *Map) Entries() []MapEntry { return m.entries }

// Get finds the value for a structurally equal key.
func (m *Map) Get(key Value) (Value, bool) {
	for _, e := range m.entries {
		if e.Key.Equal(key) {
			return e.Value, true
		}
	}
	return nil, false
}

func (m *Map) Equal(other Value) bool {
	o, ok := other.(*Map)
	if !ok || len(m.entries) != len(o.entries) {
		return false
	}
	for _, e := range m.entries {
		v, found := o.Get(e.Key)
		if !found || !e.Value.Equal(v) {
			return false
		}
	}
	return true
}

func (m *Map) isValue() {}

// ---- Calculation ----

// Calculation is an unresolved calc expression: an operator and its operand
// values. The host never evaluates it.
type Calculation struct {
	Operator string
	Operands []Value
}

func (c *Calculation) Equal(other Value) bool {
	o, ok := other.(*Calculation)
	return ok && c.Operator == o.Operator && elementsEqual(c.Operands, o.Operands)
}

func (c *Calculation) isValue() {}

// ---- Function reference ----

// FunctionRef is an opaque handle to a function owned by the compiler or
// registered by the host.
type FunctionRef struct {
	ID uint32
}

func (f *FunctionRef) Equal(other Value) bool {
	o, ok := other.(*FunctionRef)
	return ok && f.ID == o.ID
}

func (f *FunctionRef) isValue() {}

// ---- Argument list ----

// ArgumentList is a List that additionally carries keyword arguments.
type ArgumentList struct {
	List
	Keywords map[string]Value
}

func (a *ArgumentList) Equal(other Value) bool {
	o, ok := other.(*ArgumentList)
	if !ok || !a.List.Equal(&o.List) || len(a.Keywords) != len(o.Keywords) {
		return false
	}
	for name, v := range a.Keywords {
		ov, found := o.Keywords[name]
		if !found || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (a *ArgumentList) isValue() {}
