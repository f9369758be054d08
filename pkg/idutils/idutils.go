// Package idutils builds the composite identifiers used to name runs,
// groups and tasks, following the coordination core's convention of
// dotted, hierarchical, human-legible identifiers rather than bare UUIDs.
package idutils

import (
	"fmt"

	"github.com/pborman/uuid"
)

// RunID identifies one execution of the combination loop.
type RunID string

// NewRunID synthesises a fresh run identifier.
func NewRunID() RunID {
	return RunID(uuid.New())
}

// GroupTaskID identifies a task within a run, scoped by owning group so two
// systems (or two groups) never collide even before a global task ID is
// assigned.
type GroupTaskID struct {
	Run   RunID
	Group uint
	Task  uint
}

func (g GroupTaskID) String() string {
	return fmt.Sprintf("%s.g%d.t%d", g.Run, g.Group, g.Task)
}

// NodeID identifies one rank within one process group, for log correlation.
type NodeID struct {
	Run   RunID
	Group uint
	Rank  int
}

func (n NodeID) String() string {
	return fmt.Sprintf("%s.g%d.r%d", n.Run, n.Group, n.Rank)
}
