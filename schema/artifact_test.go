package schema_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/exo/compiler/load"
	"github.com/syssam/exo/schema"
)

const concertModel = `
context AuthContext {
  @jwt("role") role: String
  @jwt("sub") userId: Int
}

@access(query: true, mutation: AuthContext.role == "ADMIN")
type Venue {
  @pk id: Int = autoIncrement()
  name: String
  concerts: Set<Concert>
}

@access(query: true, mutation: AuthContext.role == "ADMIN")
type Concert {
  @pk id: Int = autoIncrement()
  title: String
  venue: Venue
}
`

func TestArtifactRoundTrip(t *testing.T) {
	sys, err := load.Source("index.exo", concertModel)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, sys.Serialize(&buf))

	back, err := schema.Deserialize(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, sys, back)
}

func TestArtifactFraming(t *testing.T) {
	var buf bytes.Buffer
	subsystems := []schema.Subsystem{
		{ID: "postgres", Core: []byte("core-bytes"), Interface: []byte("iface-bytes")},
		{ID: "other", Core: []byte{}, Interface: []byte{1, 2, 3}},
	}
	require.NoError(t, schema.WriteArtifact(&buf, subsystems))

	back, err := schema.ReadArtifact(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, "postgres", back[0].ID)
	assert.Equal(t, []byte("core-bytes"), back[0].Core)
	assert.Equal(t, []byte{1, 2, 3}, back[1].Interface)
}

func TestArtifactRejectsGarbage(t *testing.T) {
	_, err := schema.ReadArtifact(bytes.NewReader([]byte("not an artifact")))
	require.Error(t, err)

	// Truncated payload.
	var buf bytes.Buffer
	require.NoError(t, schema.WriteArtifact(&buf, []schema.Subsystem{{ID: "postgres", Core: []byte("xx")}}))
	_, err = schema.ReadArtifact(bytes.NewReader(buf.Bytes()[:buf.Len()-1]))
	require.Error(t, err)
}

func TestArtifactMissingSubsystem(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, schema.WriteArtifact(&buf, []schema.Subsystem{{ID: "deno"}}))
	_, err := schema.Deserialize(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
}
