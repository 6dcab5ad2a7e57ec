/*
idgen.go - Record and opaque identifier generation

PURPOSE:
  Produces the two kinds of identifiers the system needs:
  - numeric record ids, monotonically increasing for the process lifetime
    (snowflake: timestamp-ordered, never reused)
  - opaque string ids for orders (ksuid) and products (25-char cuid)

  The generator is an injected struct, not a package-level counter, so
  isolated instances can coexist in tests.
*/
package docstore

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Generator hands out record ids and opaque string ids.
type Generator struct {
	node *snowflake.Node
}

// NewGenerator creates a Generator for the given snowflake node id.
func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &Generator{node: node}, nil
}

// MustGenerator is NewGenerator for wiring code where node 1 is always valid.
func MustGenerator() *Generator {
	g, err := NewGenerator(1)
	if err != nil {
		panic(err)
	}
	return g
}

// NextID returns a numeric record id. Ids are strictly increasing within the
// process and never reused.
func (g *Generator) NextID() int64 {
	return g.node.Generate().Int64()
}

// NewOrderID returns an opaque, K-sortable order identifier.
func (g *Generator) NewOrderID() string {
	return ksuid.New().String()
}

// NewCUID returns a 25-character opaque product identifier.
func (g *Generator) NewCUID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return hex[:25]
}
