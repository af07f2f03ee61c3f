// Package entity provides the row representation shared by the task and
// dependency collections.
//
// An Entity is an ordered mapping from field name to scalar value. The order
// is the order in which the client sent the fields, and it is the order in
// which columns appear in generated SQL. Entities are deliberately schemaless:
// the set of fields a grid record carries is open and grows with the client.
//
// Example:
//
//	var e entity.Entity
//	if err := json.Unmarshal([]byte(`{"name":"Design","duration":3}`), &e); err != nil {
//	    return err
//	}
//	e.Set("id", "4f1c...")
//	v, _ := e.Get("name") // "Design"
package entity

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// IDField is the name of the identifier field present on every stored row.
const IDField = "id"

// Field is a single name/value pair of an Entity.
type Field struct {
	Name  string
	Value any
}

// RawJSON carries a nested JSON object or array verbatim.
//
// Nested values have no column type of their own; they are stored as their
// JSON text and echoed back unchanged.
type RawJSON string

// MarshalJSON implements json.Marshaler.
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

// Value implements driver.Valuer so nested values bind as TEXT.
func (r RawJSON) Value() (driver.Value, error) {
	return string(r), nil
}

// Entity is an ordered field mapping. The zero value is an empty entity
// ready to use.
type Entity struct {
	fields []Field
}

// New creates an entity from the given fields, in order.
// Later duplicates replace earlier values in place.
func New(fields ...Field) *Entity {
	e := &Entity{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		e.Set(f.Name, f.Value)
	}
	return e
}

// Len returns the number of fields.
func (e *Entity) Len() int {
	if e == nil {
		return 0
	}
	return len(e.fields)
}

// Fields returns a copy of the fields in order.
func (e *Entity) Fields() []Field {
	if e == nil {
		return nil
	}
	out := make([]Field, len(e.fields))
	copy(out, e.fields)
	return out
}

// Get returns the value of a field and whether it is present.
func (e *Entity) Get(name string) (any, bool) {
	if e == nil {
		return nil, false
	}
	for _, f := range e.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Set assigns a field. An existing field keeps its position; a new field is
// appended after the others.
func (e *Entity) Set(name string, value any) {
	for i := range e.fields {
		if e.fields[i].Name == name {
			e.fields[i].Value = value
			return
		}
	}
	e.fields = append(e.fields, Field{Name: name, Value: value})
}

// ID returns the value of the id field, or nil when absent.
func (e *Entity) ID() any {
	v, _ := e.Get(IDField)
	return v
}

// Without returns a copy of the entity minus the named field.
func (e *Entity) Without(name string) *Entity {
	out := &Entity{fields: make([]Field, 0, e.Len())}
	for _, f := range e.Fields() {
		if f.Name != name {
			out.fields = append(out.fields, f)
		}
	}
	return out
}

// Clone returns a shallow copy of the entity.
func (e *Entity) Clone() *Entity {
	return &Entity{fields: e.Fields()}
}

// UnmarshalJSON decodes a JSON object, preserving the document order of its
// members.
func (e *Entity) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid JSON entity")
	}
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return fmt.Errorf("entity must be a JSON object, got %s", res.Type)
	}

	e.fields = e.fields[:0]
	res.ForEach(func(key, value gjson.Result) bool {
		e.Set(key.String(), fromResult(value))
		return true
	})
	return nil
}

// MarshalJSON encodes the entity as a JSON object in field order.
func (e *Entity) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range e.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field name %q: %w", f.Name, err)
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %q: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// fromResult maps a gjson value onto the scalar types the store binds.
func fromResult(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.String:
		return r.Str
	case gjson.Number:
		if !strings.ContainsAny(r.Raw, ".eE") {
			if n, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
				return n
			}
		}
		return r.Num
	default:
		return RawJSON(r.Raw)
	}
}
