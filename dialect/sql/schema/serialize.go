package schema

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/exo/dialect/sql/sqltype"
)

// Columns carry an open-ended sqltype.Type, so they encode through the
// sqltype registry's erased {type_name, bytes} form.

var (
	_ msgpack.CustomEncoder = (*Column)(nil)
	_ msgpack.CustomDecoder = (*Column)(nil)
)

type columnWire struct {
	TableName  string             `msgpack:"table_name"`
	Name       string             `msgpack:"name"`
	Type       sqltype.Serialized `msgpack:"type"`
	Nullable   bool               `msgpack:"nullable"`
	IsPK       bool               `msgpack:"is_pk"`
	Unique     bool               `msgpack:"unique"`
	Default    *Default           `msgpack:"default"`
	References *Reference         `msgpack:"references"`
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (c *Column) EncodeMsgpack(enc *msgpack.Encoder) error {
	typ, err := sqltype.Serialize(c.Type)
	if err != nil {
		return err
	}
	return enc.Encode(columnWire{
		TableName:  c.TableName,
		Name:       c.Name,
		Type:       typ,
		Nullable:   c.Nullable,
		IsPK:       c.IsPK,
		Unique:     c.Unique,
		Default:    c.Default,
		References: c.References,
	})
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (c *Column) DecodeMsgpack(dec *msgpack.Decoder) error {
	var w columnWire
	if err := dec.Decode(&w); err != nil {
		return err
	}
	typ, err := sqltype.Deserialize(w.Type)
	if err != nil {
		return err
	}
	*c = Column{
		TableName:  w.TableName,
		Name:       w.Name,
		Type:       typ,
		Nullable:   w.Nullable,
		IsPK:       w.IsPK,
		Unique:     w.Unique,
		Default:    w.Default,
		References: w.References,
	}
	return nil
}
