package value

import (
	"github.com/maxkra/sasshost/errors"
	"github.com/maxkra/sasshost/protocol"
)

// ToWire converts a host value to its wire representation. It is total over
// the union; the only failure is a nil value inside a container.
func ToWire(v Value) (protocol.Value, error) {
	switch t := v.(type) {
	case *Bool:
		if t.IsTrue() {
			return protocol.Value{Kind: protocol.ValueTrue}, nil
		}
		return protocol.Value{Kind: protocol.ValueFalse}, nil

	case *NullValue:
		return protocol.Value{Kind: protocol.ValueNull}, nil

	case *String:
		return protocol.Value{
			Kind:   protocol.ValueString,
			String: &protocol.WireString{Text: t.Text, Quoted: t.Quoted},
		}, nil

	case *Number:
		return protocol.Value{
			Kind: protocol.ValueNumber,
			Number: &protocol.WireNumber{
				Value:     t.Value,
				Units:     t.Units,
				Precision: t.Precision,
			},
		}, nil

	case *List:
		elements, err := elementsToWire(t.Elements)
		if err != nil {
			return protocol.Value{}, err
		}
		return protocol.Value{
			Kind: protocol.ValueList,
			List: &protocol.WireList{
				Separator: protocol.ListSeparator(t.Separator),
				Bracketed: t.Bracketed,
				Elements:  elements,
			},
		}, nil

	case *Map:
		entries := make([]protocol.WireMapEntry, 0, t.Len())
		for _, e := range t.Entries() {
			k, err := ToWire(e.Key)
			if err != nil {
				return protocol.Value{}, err
			}
			val, err := ToWire(e.Value)
			if err != nil {
				return protocol.Value{}, err
			}
			entries = append(entries, protocol.WireMapEntry{Key: k, Value: val})
		}
		return protocol.Value{
			Kind: protocol.ValueMap,
			Map:  &protocol.WireMap{Entries: entries},
		}, nil

	case *Color:
		c1, c2, c3 := t.Channels()
		alpha := t.Alpha()
		return protocol.Value{
			Kind: protocol.ValueColor,
			Color: &protocol.WireColor{
				Space:    protocol.ColorSpace(t.Space),
				Channel1: c1,
				Channel2: c2,
				Channel3: c3,
				Alpha:    &alpha,
			},
		}, nil

	case *Calculation:
		operands, err := elementsToWire(t.Operands)
		if err != nil {
			return protocol.Value{}, err
		}
		return protocol.Value{
			Kind: protocol.ValueCalculation,
			Calculation: &protocol.WireCalculation{
				Operator: t.Operator,
				Operands: operands,
			},
		}, nil

	case *FunctionRef:
		return protocol.Value{
			Kind:        protocol.ValueFunctionRef,
			FunctionRef: &protocol.WireFunctionRef{ID: t.ID},
		}, nil

	case *ArgumentList:
		elements, err := elementsToWire(t.Elements)
		if err != nil {
			return protocol.Value{}, err
		}
		var keywords map[string]protocol.Value
		if len(t.Keywords) > 0 {
			keywords = make(map[string]protocol.Value, len(t.Keywords))
			for name, kv := range t.Keywords {
				wv, err := ToWire(kv)
				if err != nil {
					return protocol.Value{}, err
				}
				keywords[name] = wv
			}
		}
		return protocol.Value{
			Kind: protocol.ValueArgumentList,
			ArgumentList: &protocol.WireArgumentList{
				Separator: protocol.ListSeparator(t.Separator),
				Elements:  elements,
				Keywords:  keywords,
			},
		}, nil
	}
	return protocol.Value{}, errors.New("cannot encode value of type %T", v)
}

func elementsToWire(elements []Value) ([]protocol.Value, error) {
	if len(elements) == 0 {
		return nil, nil
	}
	out := make([]protocol.Value, len(elements))
	for i, e := range elements {
		w, err := ToWire(e)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

// FromWire converts a wire value back to a host value. Malformed input (an
// unknown tag, a payload missing for its kind, duplicate map keys, an
// out-of-range color channel) fails with an error naming the offending
// field. Singleton kinds decode to the singleton instances.
func FromWire(w protocol.Value) (Value, error) {
	switch w.Kind {
	case protocol.ValueTrue:
		return True, nil
	case protocol.ValueFalse:
		return False, nil
	case protocol.ValueNull:
		return Null, nil

	case protocol.ValueString:
		if w.String == nil {
			return nil, errors.New("string value missing payload")
		}
		return &String{Text: w.String.Text, Quoted: w.String.Quoted}, nil

	case protocol.ValueNumber:
		if w.Number == nil {
			return nil, errors.New("number value missing payload")
		}
		precision := w.Number.Precision
		if precision == 0 {
			precision = DefaultPrecision
		}
		return &Number{Value: w.Number.Value, Units: w.Number.Units, Precision: precision}, nil

	case protocol.ValueList:
		if w.List == nil {
			return nil, errors.New("list value missing payload")
		}
		sep, err := separatorFromWire(w.List.Separator)
		if err != nil {
			return nil, err
		}
		elements, err := elementsFromWire(w.List.Elements)
		if err != nil {
			return nil, err
		}
		return &List{Elements: elements, Separator: sep, Bracketed: w.List.Bracketed}, nil

	case protocol.ValueMap:
		if w.Map == nil {
			return nil, errors.New("map value missing payload")
		}
		entries := make([]MapEntry, 0, len(w.Map.Entries))
		for i, e := range w.Map.Entries {
			k, err := FromWire(e.Key)
			if err != nil {
				return nil, errors.Wrapf(err, "map key %d", i)
			}
			v, err := FromWire(e.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "map value %d", i)
			}
			entries = append(entries, MapEntry{Key: k, Value: v})
		}
		m, err := NewMap(entries...)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding map")
		}
		return m, nil

	case protocol.ValueColor:
		if w.Color == nil {
			return nil, errors.New("color value missing payload")
		}
		return colorFromWire(w.Color)

	case protocol.ValueCalculation:
		if w.Calculation == nil {
			return nil, errors.New("calculation value missing payload")
		}
		operands, err := elementsFromWire(w.Calculation.Operands)
		if err != nil {
			return nil, err
		}
		return &Calculation{Operator: w.Calculation.Operator, Operands: operands}, nil

	case protocol.ValueFunctionRef:
		if w.FunctionRef == nil {
			return nil, errors.New("function reference missing payload")
		}
		return &FunctionRef{ID: w.FunctionRef.ID}, nil

	case protocol.ValueArgumentList:
		if w.ArgumentList == nil {
			return nil, errors.New("argument list missing payload")
		}
		sep, err := separatorFromWire(w.ArgumentList.Separator)
		if err != nil {
			return nil, err
		}
		elements, err := elementsFromWire(w.ArgumentList.Elements)
		if err != nil {
			return nil, err
		}
		var keywords map[string]Value
		if len(w.ArgumentList.Keywords) > 0 {
			keywords = make(map[string]Value, len(w.ArgumentList.Keywords))
			for name, kw := range w.ArgumentList.Keywords {
				v, err := FromWire(kw)
				if err != nil {
					return nil, errors.Wrapf(err, "keyword argument %q", name)
				}
				keywords[name] = v
			}
		}
		return &ArgumentList{
			List:     List{Elements: elements, Separator: sep},
			Keywords: keywords,
		}, nil
	}
	return nil, errors.New("unknown value tag %d", w.Kind)
}

func elementsFromWire(elements []protocol.Value) ([]Value, error) {
	if len(elements) == 0 {
		return nil, nil
	}
	out := make([]Value, len(elements))
	for i, w := range elements {
		v, err := FromWire(w)
		if err != nil {
			return nil, errors.Wrapf(err, "element %d", i)
		}
		out[i] = v
	}
	return out, nil
}

func separatorFromWire(sep protocol.ListSeparator) (Separator, error) {
	switch sep {
	case protocol.SeparatorComma:
		return Comma, nil
	case protocol.SeparatorSpace:
		return Space, nil
	case protocol.SeparatorSlash:
		return Slash, nil
	}
	return 0, errors.New("unknown list separator %d", sep)
}

func colorFromWire(w *protocol.WireColor) (Value, error) {
	alpha := 1.0
	if w.Alpha != nil {
		alpha = *w.Alpha
	}
	switch w.Space {
	case protocol.SpaceRGB:
		return NewRGB(w.Channel1, w.Channel2, w.Channel3, alpha)
	case protocol.SpaceHSL:
		return NewHSL(w.Channel1, w.Channel2, w.Channel3, alpha)
	case protocol.SpaceHWB:
		return NewHWB(w.Channel1, w.Channel2, w.Channel3, alpha)
	}
	return nil, errors.New("unknown color space %d", w.Space)
}
