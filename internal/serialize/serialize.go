// Package serialize implements the reflection-driven encoding between Go
// values and the JSON wire shape used across the API boundary, grounded on
// the field-by-field rules of subiquity's common/serialize.py: structs
// serialize to objects keyed by tag, slices to arrays, pointers to
// optional values, and named enum types to their variant name rather than
// their numeric value.
package serialize

import (
	"fmt"
	"reflect"
	"time"

	"github.com/gravitational/trace"
)

// Namer is implemented by enum-like types whose wire representation is
// their variant name, not their underlying numeric value.
type Namer interface {
	Name() string
}

// ParseFunc goes from an enum's wire name back to the typed value. Enum
// types register one with the Codec (typically a package-level function)
// rather than implementing a method, since Go cannot express "parse into
// my own type" as a method with a useful receiver.
type ParseFunc func(name string) (interface{}, error)

// SchemaError reports a wire value that does not match the shape a Go
// type requires. It is always returned through trace.Wrap, never panicked,
// mirroring the typed-error replacement this module uses in place of the
// original implementation's "divide by zero" assertions.
type SchemaError struct {
	Path     string
	Expected string
	Got      interface{}
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %#v", e.Path, e.Expected, e.Got)
}

// Codec controls the two wire-format choices spec.md leaves per endpoint
// family: whether unknown fields are rejected, and whether enums
// serialize by name (the default) or by their underlying numeric value.
type Codec struct {
	IgnoreUnknownFields bool
	EnumByValue         bool

	parsers map[reflect.Type]ParseFunc
	unions  map[reflect.Type]*unionEntry
}

// unionEntry is one interface type's registered set of variant
// implementations, indexed both ways: by concrete Go type (to pick a
// "$type" name when serializing a value found in the wild) and by wire
// name (to pick a concrete type when deserializing a "$type" field).
type unionEntry struct {
	nameOf map[reflect.Type]string
	typeOf map[string]reflect.Type
}

// NewCodec returns a Codec with the given options applied.
func NewCodec(ignoreUnknownFields, enumByValue bool) *Codec {
	return &Codec{
		IgnoreUnknownFields: ignoreUnknownFields,
		EnumByValue:         enumByValue,
		parsers:             make(map[reflect.Type]ParseFunc),
		unions:              make(map[reflect.Type]*unionEntry),
	}
}

// RegisterEnum associates a named enum type with the function used to
// parse its wire name back into a value during Deserialize.
func (c *Codec) RegisterEnum(t reflect.Type, parse ParseFunc) {
	if c.parsers == nil {
		c.parsers = make(map[reflect.Type]ParseFunc)
	}
	c.parsers[t] = parse
}

// RegisterUnion registers unionType (an interface type) as a tagged
// union: a value of this interface serializes to an object carrying a
// "$type" discriminator naming which of variants produced it, and
// Deserialize reads that field back to pick the right concrete type to
// allocate, mirroring spec's "tagged union {V_i(T_i)} | object {"$type":
// V_i, ...fields of T_i}" wire rule. Each entry in variants maps a wire
// name to the concrete Go type implementing unionType -- either a struct
// type or a pointer-to-struct type, whichever actually satisfies the
// interface.
func (c *Codec) RegisterUnion(unionType reflect.Type, variants map[string]reflect.Type) {
	if c.unions == nil {
		c.unions = make(map[reflect.Type]*unionEntry)
	}
	entry := &unionEntry{
		nameOf: make(map[reflect.Type]string, len(variants)),
		typeOf: make(map[string]reflect.Type, len(variants)),
	}
	for name, t := range variants {
		entry.nameOf[t] = name
		entry.typeOf[name] = t
	}
	c.unions[unionType] = entry
}

// Serialize converts v into a plain value made only of map[string]interface{},
// []interface{}, strings, Go numeric values, bool and nil -- suitable for
// encoding/json.Marshal.
func (c *Codec) Serialize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	return c.serializeValue(reflect.ValueOf(v))
}

func (c *Codec) serializeValue(rv reflect.Value) (interface{}, error) {
	if !rv.IsValid() {
		return nil, nil
	}

	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		if entry, ok := c.unions[rv.Type()]; ok {
			return c.serializeUnion(entry, rv.Elem())
		}
		return c.serializeValue(rv.Elem())
	}

	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		return c.serializeValue(rv.Elem())
	}

	if namer, ok := rv.Interface().(Namer); ok && !c.EnumByValue {
		return namer.Name(), nil
	}

	if t, ok := rv.Interface().(time.Time); ok {
		return t.Format(time.RFC3339), nil
	}

	switch rv.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.Interface(), nil

	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := c.serializeValue(rv.Index(i))
			if err != nil {
				return nil, trace.Wrap(err, "index %d", i)
			}
			out[i] = item
		}
		return out, nil

	case reflect.Map:
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			item, err := c.serializeValue(iter.Value())
			if err != nil {
				return nil, trace.Wrap(err)
			}
			out[fmt.Sprint(iter.Key().Interface())] = item
		}
		return out, nil

	case reflect.Struct:
		out := make(map[string]interface{})
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" {
				continue // unexported
			}
			name, omitempty, skip := jsonName(field)
			if skip {
				continue
			}
			fv := rv.Field(i)
			if omitempty && isEmpty(fv) {
				continue
			}
			item, err := c.serializeValue(fv)
			if err != nil {
				return nil, trace.Wrap(err, "field %s", field.Name)
			}
			out[name] = item
		}
		return out, nil

	default:
		return nil, trace.Wrap(&SchemaError{Expected: "serializable value", Got: rv.Kind().String()})
	}
}

// serializeUnion encodes elem (the concrete value held by a registered
// union interface) with a "$type" discriminator merged into its own
// object encoding.
func (c *Codec) serializeUnion(entry *unionEntry, elem reflect.Value) (interface{}, error) {
	name, ok := entry.nameOf[elem.Type()]
	if !ok {
		return nil, trace.Wrap(&SchemaError{Expected: "registered union variant", Got: elem.Type().String()})
	}
	inner, err := c.serializeValue(elem)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	obj, ok := inner.(map[string]interface{})
	if !ok {
		obj = make(map[string]interface{})
	}
	obj["$type"] = name
	return obj, nil
}

// Deserialize populates out (a non-nil pointer) from a JSON-decoded wire
// value (the result of json.Unmarshal into interface{}).
func (c *Codec) Deserialize(wire interface{}, out interface{}) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return trace.BadParameter("Deserialize requires a non-nil pointer")
	}
	return c.deserializeValue(wire, rv.Elem(), "$")
}

func (c *Codec) deserializeValue(wire interface{}, target reflect.Value, path string) error {
	t := target.Type()

	if parse, ok := c.parsers[t]; ok {
		name, ok := wire.(string)
		if !ok {
			return trace.Wrap(&SchemaError{Path: path, Expected: "enum name string", Got: wire})
		}
		parsed, err := parse(name)
		if err != nil {
			return trace.Wrap(err, "%s: invalid enum value %q", path, name)
		}
		target.Set(reflect.ValueOf(parsed))
		return nil
	}

	if t == reflect.TypeOf(time.Time{}) {
		s, ok := wire.(string)
		if !ok {
			return trace.Wrap(&SchemaError{Path: path, Expected: "RFC3339 timestamp", Got: wire})
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return trace.Wrap(err, "%s: bad timestamp", path)
		}
		target.Set(reflect.ValueOf(parsed))
		return nil
	}

	if t.Kind() == reflect.Ptr {
		if wire == nil {
			target.Set(reflect.Zero(t))
			return nil
		}
		elem := reflect.New(t.Elem())
		if err := c.deserializeValue(wire, elem.Elem(), path); err != nil {
			return err
		}
		target.Set(elem)
		return nil
	}

	if t.Kind() == reflect.Interface && t.NumMethod() == 0 {
		if wire != nil {
			target.Set(reflect.ValueOf(wire))
		}
		return nil
	}

	if t.Kind() == reflect.Interface {
		if entry, ok := c.unions[t]; ok {
			return c.deserializeUnion(entry, wire, target, path)
		}
	}

	if wire == nil {
		return trace.Wrap(&SchemaError{Path: path, Expected: t.String(), Got: nil})
	}

	switch t.Kind() {
	case reflect.String:
		s, ok := wire.(string)
		if !ok {
			return trace.Wrap(&SchemaError{Path: path, Expected: "string", Got: wire})
		}
		target.SetString(s)
		return nil

	case reflect.Bool:
		b, ok := wire.(bool)
		if !ok {
			return trace.Wrap(&SchemaError{Path: path, Expected: "bool", Got: wire})
		}
		target.SetBool(b)
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := wire.(float64)
		if !ok {
			return trace.Wrap(&SchemaError{Path: path, Expected: "number", Got: wire})
		}
		target.SetInt(int64(n))
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := wire.(float64)
		if !ok {
			return trace.Wrap(&SchemaError{Path: path, Expected: "number", Got: wire})
		}
		target.SetUint(uint64(n))
		return nil

	case reflect.Float32, reflect.Float64:
		n, ok := wire.(float64)
		if !ok {
			return trace.Wrap(&SchemaError{Path: path, Expected: "number", Got: wire})
		}
		target.SetFloat(n)
		return nil

	case reflect.Slice:
		arr, ok := wire.([]interface{})
		if !ok {
			return trace.Wrap(&SchemaError{Path: path, Expected: "array", Got: wire})
		}
		out := reflect.MakeSlice(t, len(arr), len(arr))
		for i, item := range arr {
			if err := c.deserializeValue(item, out.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		target.Set(out)
		return nil

	case reflect.Map:
		obj, ok := wire.(map[string]interface{})
		if !ok {
			return trace.Wrap(&SchemaError{Path: path, Expected: "object", Got: wire})
		}
		out := reflect.MakeMapWithSize(t, len(obj))
		for k, v := range obj {
			elem := reflect.New(t.Elem()).Elem()
			if err := c.deserializeValue(v, elem, path+"."+k); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(k), elem)
		}
		target.Set(out)
		return nil

	case reflect.Struct:
		obj, ok := wire.(map[string]interface{})
		if !ok {
			return trace.Wrap(&SchemaError{Path: path, Expected: "object", Got: wire})
		}
		seen := make(map[string]bool, len(obj))
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" {
				continue
			}
			name, _, skip := jsonName(field)
			if skip {
				continue
			}
			raw, present := obj[name]
			seen[name] = true
			if !present {
				continue
			}
			if err := c.deserializeValue(raw, target.Field(i), path+"."+name); err != nil {
				return err
			}
		}
		if !c.IgnoreUnknownFields {
			for k := range obj {
				if !seen[k] {
					return trace.Wrap(&SchemaError{Path: path, Expected: "known field", Got: k})
				}
			}
		}
		return nil

	default:
		return trace.Wrap(&SchemaError{Path: path, Expected: "deserializable type", Got: t.String()})
	}
}

// deserializeUnion reads wire's "$type" discriminator, resolves it
// against entry's registered variants, and fills target with a freshly
// allocated value of the matching concrete type.
func (c *Codec) deserializeUnion(entry *unionEntry, wire interface{}, target reflect.Value, path string) error {
	obj, ok := wire.(map[string]interface{})
	if !ok {
		return trace.Wrap(&SchemaError{Path: path, Expected: "tagged union object", Got: wire})
	}
	typeName, ok := obj["$type"].(string)
	if !ok {
		return trace.Wrap(&SchemaError{Path: path + ".$type", Expected: "string discriminator", Got: obj["$type"]})
	}
	concrete, ok := entry.typeOf[typeName]
	if !ok {
		return trace.Wrap(&SchemaError{Path: path + ".$type", Expected: "registered union variant", Got: typeName})
	}

	fields := make(map[string]interface{}, len(obj)-1)
	for k, v := range obj {
		if k != "$type" {
			fields[k] = v
		}
	}

	var value reflect.Value
	if concrete.Kind() == reflect.Ptr {
		value = reflect.New(concrete.Elem())
		if err := c.deserializeValue(fields, value.Elem(), path); err != nil {
			return err
		}
	} else {
		value = reflect.New(concrete).Elem()
		if err := c.deserializeValue(fields, value, path); err != nil {
			return err
		}
	}
	if !value.Type().AssignableTo(target.Type()) {
		return trace.Wrap(&SchemaError{Path: path, Expected: target.Type().String(), Got: value.Type().String()})
	}
	target.Set(value)
	return nil
}

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	case reflect.String:
		return v.Len() == 0
	default:
		return false
	}
}
