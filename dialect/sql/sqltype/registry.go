package sqltype

import (
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/exo"
)

// Codec serializes one column type variant. The payload format is owned by
// the codec; the registry only routes on the type-name tag.
type Codec struct {
	Serialize   func(t Type) ([]byte, error)
	Deserialize func(data []byte) (Type, error)
}

// Serialized is the erased wire form of a column type: the registry tag plus
// an opaque payload. It is what travels inside the model artifact.
type Serialized struct {
	TypeName string `msgpack:"type_name"`
	Bytes    []byte `msgpack:"bytes"`
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Codec)
)

// Register adds a codec for the given tag. Registration happens at package
// initialization; the lock exists only to keep late registrations of custom
// types safe.
func Register(tag string, c Codec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[tag] = c
}

// Serialize converts a column type to its erased wire form.
func Serialize(t Type) (Serialized, error) {
	registryMu.RLock()
	c, ok := registry[t.TypeName()]
	registryMu.RUnlock()
	if !ok {
		return Serialized{}, exo.Validationf("unregistered column type %q", t.TypeName())
	}
	data, err := c.Serialize(t)
	if err != nil {
		return Serialized{}, err
	}
	return Serialized{TypeName: t.TypeName(), Bytes: data}, nil
}

// Deserialize dispatches on the tag and reconstructs the column type.
func Deserialize(s Serialized) (Type, error) {
	registryMu.RLock()
	c, ok := registry[s.TypeName]
	registryMu.RUnlock()
	if !ok {
		return nil, exo.Validationf("unregistered column type %q", s.TypeName)
	}
	return c.Deserialize(s.Bytes)
}

// msgpackCodec builds a codec for a variant with payload P and a pair of
// conversions between the payload and the Type.
func msgpackCodec[P any](to func(Type) P, from func(P) Type) Codec {
	return Codec{
		Serialize: func(t Type) ([]byte, error) {
			return msgpack.Marshal(to(t))
		},
		Deserialize: func(data []byte) (Type, error) {
			var p P
			if err := msgpack.Unmarshal(data, &p); err != nil {
				return nil, exo.Validationf("malformed column type payload: %v", err)
			}
			return from(p), nil
		},
	}
}

type intPayload struct {
	Bits int `msgpack:"bits"`
}

type floatPayload struct {
	Bits int `msgpack:"bits"`
}

type numericPayload struct {
	Precision *int `msgpack:"precision"`
	Scale     *int `msgpack:"scale"`
}

type stringPayload struct {
	MaxLength *int `msgpack:"max_length"`
}

type timePayload struct {
	Precision *int `msgpack:"precision"`
}

type timestampPayload struct {
	Precision *int `msgpack:"precision"`
	Timezone  bool `msgpack:"timezone"`
}

type enumPayload struct {
	Name string `msgpack:"name"`
}

type vectorPayload struct {
	Size int `msgpack:"size"`
}

type emptyPayload struct{}

func init() {
	Register("Int", msgpackCodec(
		func(t Type) intPayload { return intPayload{Bits: int(t.(Int).Bits)} },
		func(p intPayload) Type { return Int{Bits: IntBits(p.Bits)} },
	))
	Register("Float", msgpackCodec(
		func(t Type) floatPayload { return floatPayload{Bits: int(t.(Float).Bits)} },
		func(p floatPayload) Type { return Float{Bits: FloatBits(p.Bits)} },
	))
	Register("Numeric", msgpackCodec(
		func(t Type) numericPayload {
			n := t.(Numeric)
			return numericPayload{Precision: n.Precision, Scale: n.Scale}
		},
		func(p numericPayload) Type { return Numeric{Precision: p.Precision, Scale: p.Scale} },
	))
	Register("String", msgpackCodec(
		func(t Type) stringPayload { return stringPayload{MaxLength: t.(String).MaxLength} },
		func(p stringPayload) Type { return String{MaxLength: p.MaxLength} },
	))
	Register("Boolean", msgpackCodec(
		func(Type) emptyPayload { return emptyPayload{} },
		func(emptyPayload) Type { return Boolean{} },
	))
	Register("Date", msgpackCodec(
		func(Type) emptyPayload { return emptyPayload{} },
		func(emptyPayload) Type { return Date{} },
	))
	Register("Time", msgpackCodec(
		func(t Type) timePayload { return timePayload{Precision: t.(Time).Precision} },
		func(p timePayload) Type { return Time{Precision: p.Precision} },
	))
	Register("Timestamp", msgpackCodec(
		func(t Type) timestampPayload {
			ts := t.(Timestamp)
			return timestampPayload{Precision: ts.Precision, Timezone: ts.Timezone}
		},
		func(p timestampPayload) Type { return Timestamp{Precision: p.Precision, Timezone: p.Timezone} },
	))
	Register("Uuid", msgpackCodec(
		func(Type) emptyPayload { return emptyPayload{} },
		func(emptyPayload) Type { return Uuid{} },
	))
	Register("Blob", msgpackCodec(
		func(Type) emptyPayload { return emptyPayload{} },
		func(emptyPayload) Type { return Blob{} },
	))
	Register("Json", msgpackCodec(
		func(Type) emptyPayload { return emptyPayload{} },
		func(emptyPayload) Type { return Json{} },
	))
	Register("Enum", msgpackCodec(
		func(t Type) enumPayload { return enumPayload{Name: t.(Enum).Name} },
		func(p enumPayload) Type { return Enum{Name: p.Name} },
	))
	Register("Vector", msgpackCodec(
		func(t Type) vectorPayload { return vectorPayload{Size: t.(Vector).Size} },
		func(p vectorPayload) Type { return Vector{Size: p.Size} },
	))
	// Array nests another erased type, so it round-trips through Serialized.
	Register("Array", Codec{
		Serialize: func(t Type) ([]byte, error) {
			inner, err := Serialize(t.(Array).Inner)
			if err != nil {
				return nil, err
			}
			return msgpack.Marshal(inner)
		},
		Deserialize: func(data []byte) (Type, error) {
			var inner Serialized
			if err := msgpack.Unmarshal(data, &inner); err != nil {
				return nil, exo.Validationf("malformed column type payload: %v", err)
			}
			t, err := Deserialize(inner)
			if err != nil {
				return nil, err
			}
			return Array{Inner: t}, nil
		},
	})
}
