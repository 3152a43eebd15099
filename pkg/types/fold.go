package types

// ValueFold accumulates ADD/REMOVE Writes for a single (key, record) pair
// into the currently-present set of values. §3's Record view is "the set
// of values for (key, record)" — presence is tracked per distinct value,
// so a REMOVE only retracts the one value it names and a later ADD of a
// different value never disturbs values already present.
type ValueFold struct {
	order   []string
	present map[string]bool
	values  map[string]Value
}

// NewValueFold starts a fold, optionally seeded with values already known
// to be present — e.g. a Database result a Buffer overlays its own Writes
// on top of.
func NewValueFold(seed ...Value) *ValueFold {
	f := &ValueFold{present: make(map[string]bool), values: make(map[string]Value)}
	for _, v := range seed {
		f.Apply(Write{Op: OpAdd, Value: v})
	}
	return f
}

// Apply folds one Write's value into the running set. Writes must arrive
// in non-decreasing version order, same requirement as the rest of the
// fold paths in pkg/database and pkg/buffer.
func (f *ValueFold) Apply(w Write) {
	fp := string(w.Value.Encode(nil))
	if _, seen := f.values[fp]; !seen {
		f.values[fp] = w.Value
		f.order = append(f.order, fp)
	}
	f.present[fp] = w.Op == OpAdd
}

// Values returns the values currently present, in first-seen order.
func (f *ValueFold) Values() []Value {
	out := make([]Value, 0, len(f.order))
	for _, fp := range f.order {
		if f.present[fp] {
			out = append(out, f.values[fp])
		}
	}
	return out
}

// Present reports whether value is currently present in the fold, the
// same per-value parity check §4.2's verify(key, value, record) names.
func (f *ValueFold) Present(value Value) bool {
	return f.present[string(value.Encode(nil))]
}
