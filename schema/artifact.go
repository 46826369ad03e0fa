package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	dbschema "github.com/syssam/exo/dialect/sql/schema"
)

// The on-disk artifact is length-prefixed binary: a magic header, then a
// sequence of subsystems, each an id plus opaque core and interface
// payloads. The loader only understands the framing; payloads are decoded
// by the subsystem that owns the id.

var artifactMagic = []byte("exoir\x01")

// PostgresSubsystemID is the id of the only subsystem this module emits.
const PostgresSubsystemID = "postgres"

// Subsystem is one framed entry of the artifact.
type Subsystem struct {
	ID        string
	Core      []byte
	Interface []byte
}

// systemCore is the request-time payload: everything the planner needs.
type systemCore struct {
	Database *dbschema.Database `msgpack:"database"`
	Entities []*Entity          `msgpack:"entities"`
	Contexts []*Context         `msgpack:"contexts"`
}

// systemInterface is the schema-facing payload: the generated operations.
type systemInterface struct {
	Queries   []*Query    `msgpack:"queries"`
	Mutations []*Mutation `msgpack:"mutations"`
}

// Serialize writes the system as an artifact.
func (s *System) Serialize(w io.Writer) error {
	core, err := msgpack.Marshal(systemCore{
		Database: s.Database,
		Entities: s.Entities,
		Contexts: s.Contexts,
	})
	if err != nil {
		return fmt.Errorf("schema: serialize core: %w", err)
	}
	iface, err := msgpack.Marshal(systemInterface{
		Queries:   s.Queries,
		Mutations: s.Mutations,
	})
	if err != nil {
		return fmt.Errorf("schema: serialize interface: %w", err)
	}
	return WriteArtifact(w, []Subsystem{{
		ID:        PostgresSubsystemID,
		Core:      core,
		Interface: iface,
	}})
}

// Deserialize reads a system back from an artifact.
func Deserialize(r io.Reader) (*System, error) {
	subsystems, err := ReadArtifact(r)
	if err != nil {
		return nil, err
	}
	for _, sub := range subsystems {
		if sub.ID != PostgresSubsystemID {
			continue
		}
		var core systemCore
		if err := msgpack.Unmarshal(sub.Core, &core); err != nil {
			return nil, fmt.Errorf("schema: deserialize core: %w", err)
		}
		var iface systemInterface
		if err := msgpack.Unmarshal(sub.Interface, &iface); err != nil {
			return nil, fmt.Errorf("schema: deserialize interface: %w", err)
		}
		return &System{
			Database:  core.Database,
			Entities:  core.Entities,
			Contexts:  core.Contexts,
			Queries:   iface.Queries,
			Mutations: iface.Mutations,
		}, nil
	}
	return nil, fmt.Errorf("schema: artifact has no %q subsystem", PostgresSubsystemID)
}

// WriteArtifact frames subsystems into w.
func WriteArtifact(w io.Writer, subsystems []Subsystem) error {
	if _, err := w.Write(artifactMagic); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(subsystems))); err != nil {
		return err
	}
	for _, sub := range subsystems {
		if err := writeBytes(w, []byte(sub.ID)); err != nil {
			return err
		}
		if err := writeBytes(w, sub.Core); err != nil {
			return err
		}
		if err := writeBytes(w, sub.Interface); err != nil {
			return err
		}
	}
	return nil
}

// ReadArtifact unframes subsystems from r.
func ReadArtifact(r io.Reader) ([]Subsystem, error) {
	magic := make([]byte, len(artifactMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("schema: truncated artifact: %w", err)
	}
	if !bytes.Equal(magic, artifactMagic) {
		return nil, fmt.Errorf("schema: not an exo artifact")
	}
	count, err := readU32(r)
	if err != nil {
		return nil, err
	}
	subsystems := make([]Subsystem, 0, count)
	for i := uint32(0); i < count; i++ {
		id, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		core, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		iface, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		subsystems = append(subsystems, Subsystem{ID: string(id), Core: core, Interface: iface})
	}
	return subsystems, nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("schema: truncated artifact: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeU32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("schema: truncated artifact: %w", err)
	}
	return b, nil
}
