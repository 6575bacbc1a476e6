package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies the concrete shape held by a Value.
// The set is closed: attribute payloads are JSON documents, so every
// value is one of null, string, number, bool, list, or map.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a tagged variant representing one attribute value.
// Consumers switch on Kind() and use the matching accessor; accessors
// for a mismatched kind return the zero value rather than panicking,
// so heuristics can probe freely.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a float64.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool wraps a bool.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List wraps a slice of values.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// StringList wraps a slice of strings as a list value.
func StringList(items ...string) Value {
	vs := make([]Value, len(items))
	for i, s := range items {
		vs[i] = String(s)
	}
	return List(vs...)
}

// Map wraps a map of values.
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// Kind reports which variant this value holds.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload, or "" for non-string kinds.
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.str
}

// Num returns the numeric payload, or 0 for non-number kinds.
func (v Value) Num() float64 {
	if v.kind != KindNumber {
		return 0
	}
	return v.num
}

// Boolean returns the bool payload, or false for non-bool kinds.
func (v Value) Boolean() bool {
	if v.kind != KindBool {
		return false
	}
	return v.b
}

// Items returns the list payload, or nil for non-list kinds.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// Fields returns the map payload, or nil for non-map kinds.
func (v Value) Fields() map[string]Value {
	if v.kind != KindMap {
		return nil
	}
	return v.m
}

// SortedKeys returns the map payload's keys in ascending order.
// Attribute maps are iterated in sorted key order wherever ordering
// is observable (text extraction, serialization).
func (v Value) SortedKeys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON encodes the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindMap:
		// Sorted keys keep snapshot output stable.
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range v.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := json.Marshal(v.m[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON decodes any JSON value into the matching variant.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeJSON(dec)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return Null(), err
		}
		return Number(f), nil
	case json.Delim:
		switch t {
		case '[':
			var items []Value
			for dec.More() {
				item, err := decodeJSON(dec)
				if err != nil {
					return Null(), err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Null(), err
			}
			return List(items...), nil
		case '{':
			m := make(map[string]Value)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Null(), err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Null(), fmt.Errorf("object key is not a string: %v", keyTok)
				}
				val, err := decodeJSON(dec)
				if err != nil {
					return Null(), err
				}
				m[key] = val
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Null(), err
			}
			return Map(m), nil
		}
	}
	return Null(), fmt.Errorf("unexpected JSON token %v", tok)
}

// FromAny converts a decoded interface{} tree (as produced by
// encoding/json into map[string]interface{}) into a Value.
// Unrecognized Go types map to null.
func FromAny(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null()
		}
		return Number(f)
	case []interface{}:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = FromAny(it)
		}
		return List(items...)
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, it := range t {
			m[k] = FromAny(it)
		}
		return Map(m)
	default:
		return Null()
	}
}
