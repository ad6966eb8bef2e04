package ml

import (
	"fmt"
)

// Concatenate joins numeric columns into one vector column.
type Concatenate struct {
	Output string
	Inputs []string
}

// Fit checks the inputs and records the slot layout.
func (c Concatenate) Fit(f *Frame) (Transformer, error) {
	if len(c.Inputs) == 0 {
		return nil, fmt.Errorf("concatenate %q: no input columns", c.Output)
	}
	var slots []string
	for _, name := range c.Inputs {
		col, err := f.Column(name)
		if err != nil {
			return nil, fmt.Errorf("concatenate %q: %w", c.Output, err)
		}
		switch col.Kind {
		case KindFloat, KindBool:
			slots = append(slots, name)
		case KindVector:
			for _, s := range col.Slots {
				slots = append(slots, name+"."+s)
			}
		default:
			return nil, fmt.Errorf("concatenate %q: %w: %q is %s", c.Output, ErrColumnKind, name, col.Kind)
		}
	}
	return &ConcatModel{
		Output: c.Output,
		Inputs: append([]string(nil), c.Inputs...),
		Slots:  slots,
	}, nil
}

// ConcatModel is a fitted Concatenate stage.
type ConcatModel struct {
	Output string   `json:"output"`
	Inputs []string `json:"inputs"`
	Slots  []string `json:"slots"`
}

func (m *ConcatModel) Kind() string { return "concatenate" }

// Transform appends the output vector column.
func (m *ConcatModel) Transform(f *Frame) (*Frame, error) {
	cols := make([]*Column, len(m.Inputs))
	for i, name := range m.Inputs {
		col, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		if col.Kind == KindString {
			return nil, fmt.Errorf("%w: %q is %s", ErrColumnKind, name, col.Kind)
		}
		cols[i] = col
	}

	rows := f.Rows()
	flat := make([]float64, rows*len(m.Slots))
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		vec := flat[r*len(m.Slots) : (r+1)*len(m.Slots) : (r+1)*len(m.Slots)]
		j := 0
		for _, col := range cols {
			switch col.Kind {
			case KindFloat:
				vec[j] = col.Floats[r]
				j++
			case KindBool:
				if col.Bools[r] {
					vec[j] = 1
				}
				j++
			case KindVector:
				j += copy(vec[j:], col.Vectors[r])
			}
		}
		if j != len(m.Slots) {
			return nil, fmt.Errorf("concatenate %q: row %d has %d values, want %d", m.Output, r, j, len(m.Slots))
		}
		out[r] = vec
	}
	return f.With(VectorColumn(m.Output, m.Slots, out))
}

// OneHotEncode maps a string column to an indicator vector column.
type OneHotEncode struct {
	Output string
	Input  string
}

// Fit learns the category vocabulary in first-seen order.
func (o OneHotEncode) Fit(f *Frame) (Transformer, error) {
	col, err := f.ColumnOf(o.Input, KindString)
	if err != nil {
		return nil, fmt.Errorf("one-hot %q: %w", o.Output, err)
	}
	seen := make(map[string]bool)
	var categories []string
	for _, v := range col.Strings {
		if !seen[v] {
			seen[v] = true
			categories = append(categories, v)
		}
	}
	return NewOneHotModel(o.Output, o.Input, categories), nil
}

// OneHotModel is a fitted OneHotEncode stage.
type OneHotModel struct {
	Output     string   `json:"output"`
	Input      string   `json:"input"`
	Categories []string `json:"categories"`

	lookup map[string]int
}

// NewOneHotModel builds a model over a fixed vocabulary.
func NewOneHotModel(output, input string, categories []string) *OneHotModel {
	m := &OneHotModel{Output: output, Input: input, Categories: append([]string(nil), categories...)}
	m.index()
	return m
}

func (m *OneHotModel) index() {
	m.lookup = make(map[string]int, len(m.Categories))
	for i, c := range m.Categories {
		m.lookup[c] = i
	}
}

func (m *OneHotModel) Kind() string { return "one_hot_encode" }

// Encode returns the indicator vector for value. Unknown values map to the
// all-zero vector.
func (m *OneHotModel) Encode(value string) []float64 {
	if m.lookup == nil {
		m.index()
	}
	vec := make([]float64, len(m.Categories))
	if i, ok := m.lookup[value]; ok {
		vec[i] = 1
	}
	return vec
}

// Decode returns the category of an indicator vector. It reports false for
// the all-zero vector or a malformed one.
func (m *OneHotModel) Decode(vec []float64) (string, bool) {
	if len(vec) != len(m.Categories) {
		return "", false
	}
	hot := -1
	for i, v := range vec {
		switch v {
		case 0:
		case 1:
			if hot >= 0 {
				return "", false
			}
			hot = i
		default:
			return "", false
		}
	}
	if hot < 0 {
		return "", false
	}
	return m.Categories[hot], true
}

// Transform appends the encoded vector column.
func (m *OneHotModel) Transform(f *Frame) (*Frame, error) {
	col, err := f.ColumnOf(m.Input, KindString)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(col.Strings))
	for i, v := range col.Strings {
		out[i] = m.Encode(v)
	}
	return f.With(VectorColumn(m.Output, m.Categories, out))
}

// DropColumns removes columns from the frame.
type DropColumns struct {
	Names []string
}

// Fit checks that every column to drop exists.
func (d DropColumns) Fit(f *Frame) (Transformer, error) {
	for _, name := range d.Names {
		if !f.Has(name) {
			return nil, fmt.Errorf("drop columns: %w: %q", ErrColumnNotFound, name)
		}
	}
	return &DropModel{Names: append([]string(nil), d.Names...)}, nil
}

// DropModel is a fitted DropColumns stage.
type DropModel struct {
	Names []string `json:"names"`
}

func (m *DropModel) Kind() string { return "drop_columns" }

// Transform returns the frame without the dropped columns.
func (m *DropModel) Transform(f *Frame) (*Frame, error) {
	for _, name := range m.Names {
		if !f.Has(name) {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
	}
	return f.Without(m.Names...), nil
}
