package core

import (
	"fmt"
	"strings"
)

// Field is a single named value of a Record
type Field struct {
	Name  string
	Value interface{}
}

// Record is an ordered set of fields. Column order is the order in which
// fields were first set, which is what query building relies on.
type Record struct {
	fields []Field
	index  map[string]int
}

// NewRecord creates a record from fields, keeping their order. A repeated
// name overwrites the earlier value in place.
func NewRecord(fields ...Field) *Record {
	r := &Record{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
	return r
}

// RecordFromPairs builds a record from alternating name/value arguments.
func RecordFromPairs(pairs ...interface{}) *Record {
	r := NewRecord()
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(fmt.Sprint(pairs[i]), pairs[i+1])
	}
	return r
}

// Set assigns value to name, appending the field if it is new
func (r *Record) Set(name string, value interface{}) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[name]; ok {
		r.fields[i].Value = value
		return
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, Field{Name: name, Value: value})
}

// Get returns the value stored under name
func (r *Record) Get(name string) (interface{}, bool) {
	if r == nil || r.index == nil {
		return nil, false
	}
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.fields[i].Value, true
}

// Has reports whether name is present
func (r *Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Fields returns a copy of the fields in insertion order
func (r *Record) Fields() []Field {
	if r == nil {
		return nil
	}
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of fields
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.fields)
}

// Map returns the fields as an unordered map
func (r *Record) Map() map[string]interface{} {
	m := make(map[string]interface{}, r.Len())
	for _, f := range r.Fields() {
		m[f.Name] = f.Value
	}
	return m
}

// String renders the record as {name: value, ...} in field order
func (r *Record) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range r.Fields() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", f.Name, f.Value)
	}
	b.WriteByte('}')
	return b.String()
}
