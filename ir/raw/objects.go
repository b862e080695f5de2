package raw

import (
	"errors"
	"strings"
)

// Name object
type NameObj struct{ Val string }

func (n NameObj) Type() string     { return "name" }
func (n NameObj) IsIndirect() bool { return false }
func (n NameObj) Value() string    { return n.Val }

// Number object
type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (n NumberObj) Type() string     { return "number" }
func (n NumberObj) IsIndirect() bool { return false }
func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}
func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}
func (n NumberObj) IsInteger() bool { return n.IsInt }

// Boolean object
type BoolObj struct{ V bool }

func (b BoolObj) Type() string     { return "boolean" }
func (b BoolObj) IsIndirect() bool { return false }
func (b BoolObj) Value() bool      { return b.V }

// Null object
type NullObj struct{}

func (n NullObj) Type() string     { return "null" }
func (n NullObj) IsIndirect() bool { return false }

// StringObj holds the bytes of a literal or hexadecimal string.
// Hex only records the source syntax; writers may choose either form.
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string     { return "string" }
func (s StringObj) IsIndirect() bool { return false }
func (s StringObj) Value() []byte    { return s.Bytes }
func (s StringObj) IsHex() bool      { return s.Hex }

// Text decodes the string as a PDF text string.
func (s StringObj) Text() string { return DecodeText(s.Bytes) }

// Array object
type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string     { return "array" }
func (a *ArrayObj) IsIndirect() bool { return false }
func (a *ArrayObj) Get(i int) (Object, bool) {
	if i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}
func (a *ArrayObj) Len() int        { return len(a.Items) }
func (a *ArrayObj) Append(o Object) { a.Items = append(a.Items, o) }

// DictObj is a dictionary that remembers key insertion order.
// Keys are stored without the leading slash.
type DictObj struct {
	keys []string
	kv   map[string]Object
}

func (d *DictObj) Type() string     { return "dict" }
func (d *DictObj) IsIndirect() bool { return false }

func (d *DictObj) Get(key string) (Object, bool) {
	if d == nil || d.kv == nil {
		return nil, false
	}
	o, ok := d.kv[key]
	return o, ok
}

// Set stores value under key, appending the key if it is new.
// A nil value removes the entry.
func (d *DictObj) Set(key string, value Object) {
	if value == nil {
		d.Delete(key)
		return
	}
	if d.kv == nil {
		d.kv = make(map[string]Object)
	}
	if _, ok := d.kv[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.kv[key] = value
}

// Delete removes key and reports whether it was present.
func (d *DictObj) Delete(key string) bool {
	if d == nil || d.kv == nil {
		return false
	}
	if _, ok := d.kv[key]; !ok {
		return false
	}
	delete(d.kv, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

func (d *DictObj) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Keys returns the keys in insertion order.
func (d *DictObj) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

func (d *DictObj) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Clone returns a shallow copy preserving key order.
func (d *DictObj) Clone() *DictObj {
	out := Dict()
	if d == nil {
		return out
	}
	for _, k := range d.keys {
		out.Set(k, d.kv[k])
	}
	return out
}

func (d *DictObj) GetName(key string) (string, bool) {
	o, _ := d.Get(key)
	n, ok := o.(NameObj)
	return n.Val, ok
}

func (d *DictObj) GetInt(key string) (int64, bool) {
	o, _ := d.Get(key)
	n, ok := o.(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

func (d *DictObj) GetBool(key string) (bool, bool) {
	o, _ := d.Get(key)
	b, ok := o.(BoolObj)
	return b.V, ok
}

func (d *DictObj) GetString(key string) ([]byte, bool) {
	o, _ := d.Get(key)
	s, ok := o.(StringObj)
	return s.Bytes, ok
}

func (d *DictObj) GetRef(key string) (ObjectRef, bool) {
	o, _ := d.Get(key)
	r, ok := o.(RefObj)
	return r.R, ok
}

// GetDict returns a direct dictionary value.
func (d *DictObj) GetDict(key string) (*DictObj, bool) {
	o, _ := d.Get(key)
	v, ok := o.(*DictObj)
	return v, ok
}

// GetArray returns a direct array value.
func (d *DictObj) GetArray(key string) (*ArrayObj, bool) {
	o, _ := d.Get(key)
	v, ok := o.(*ArrayObj)
	return v, ok
}

// StreamObj is a stream dictionary plus its payload. The payload is the
// filtered (encoded) data. For encrypted documents it may still hold
// ciphertext until the first call to Data.
type StreamObj struct {
	Dict    *DictObj
	payload []byte
	decrypt func([]byte) ([]byte, error)
}

func (s *StreamObj) Type() string     { return "stream" }
func (s *StreamObj) IsIndirect() bool { return false }

// Data returns the decrypted, still encoded stream payload.
func (s *StreamObj) Data() ([]byte, error) {
	if s.decrypt != nil {
		plain, err := s.decrypt(s.payload)
		if err != nil {
			return nil, err
		}
		s.payload = plain
		s.decrypt = nil
	}
	return s.payload, nil
}

// SetData replaces the payload and updates /Length.
func (s *StreamObj) SetData(data []byte) {
	s.payload = data
	s.decrypt = nil
	if s.Dict == nil {
		s.Dict = Dict()
	}
	s.Dict.Set("Length", NumberInt(int64(len(data))))
}

// Pending reports whether the payload is still awaiting decryption.
func (s *StreamObj) Pending() bool { return s.decrypt != nil }

// NewEncryptedStream returns a stream whose payload is decrypted on first access.
func NewEncryptedStream(dict *DictObj, ciphertext []byte, decrypt func([]byte) ([]byte, error)) *StreamObj {
	return &StreamObj{Dict: dict, payload: ciphertext, decrypt: decrypt}
}

// Reference object
type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string     { return "ref" }
func (r RefObj) IsIndirect() bool { return true }
func (r RefObj) Ref() ObjectRef   { return r.R }

// Helpers
func NameLiteral(v string) NameObj    { return NameObj{Val: strings.TrimPrefix(v, "/")} }
func NumberInt(i int64) NumberObj     { return NumberObj{I: i, IsInt: true} }
func NumberFloat(f float64) NumberObj { return NumberObj{F: f, IsInt: false} }
func Bool(v bool) BoolObj             { return BoolObj{V: v} }
func Str(bytes []byte) StringObj      { return StringObj{Bytes: bytes} }
func HexStr(bytes []byte) StringObj   { return StringObj{Bytes: bytes, Hex: true} }
func NewArray(items ...Object) *ArrayObj {
	return &ArrayObj{Items: items}
}
func Dict() *DictObj { return &DictObj{kv: make(map[string]Object)} }
func NewStream(dict *DictObj, data []byte) *StreamObj {
	s := &StreamObj{Dict: dict}
	s.SetData(data)
	return s
}
func Ref(num, gen int) RefObj { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }

// ErrLocked is returned when encrypted content is requested from a document
// whose password has not been supplied.
var ErrLocked = errors.New("document is encrypted and locked")

// Number converts a numeric object to float64.
func Number(o Object) (float64, bool) {
	n, ok := o.(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}
