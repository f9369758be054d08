package mpi

// System is one rank's view of the communicator topology of §5: world
// (every rank), global (one manager + one master per group), local (all
// workers of one group) and third-level-reduce (the designated manager
// plus its workers' masters). It is constructed once at startup and
// threaded explicitly into every operation that needs a communicator — §9
// permits a singleton only as an entry-point convenience, never as the
// primary access path, so callers always hold their own *System.
type System struct {
	World *Comm

	IsManager  bool
	GroupIndex int // -1 on the manager
	LocalRank  int // rank within Local; 0 is this group's master

	Global           *Comm // nil except on the manager and each group's master
	Local            *Comm // nil on the manager
	ThirdLevelReduce *Comm // nil unless this run participates in third-level reduce
}

// BuildSystems constructs the full topology for one HPC system: one manager
// rank plus len(groupSizes) process groups, each with groupSizes[i] ranks.
// thirdLevel selects whether a ThirdLevelReduce communicator is built
// alongside Global (spec: "the designated manager + its workers").
func BuildSystems(groupSizes []int, thirdLevel bool) []*System {
	numGroups := len(groupSizes)
	worldSize := 1
	for _, n := range groupSizes {
		worldSize += n
	}
	worldComms := NewComm(worldSize)

	// manager is world rank 0; group g's ranks occupy a contiguous block.
	groupStart := make([]int, numGroups)
	off := 1
	for g, n := range groupSizes {
		groupStart[g] = off
		off += n
	}

	globalComms := NewComm(1 + numGroups) // manager + one master per group
	var tlComms []*Comm
	if thirdLevel {
		tlComms = NewComm(1 + numGroups)
	}

	localCommsByGroup := make([][]*Comm, numGroups)
	for g, n := range groupSizes {
		localCommsByGroup[g] = NewComm(n)
	}

	systems := make([]*System, worldSize)
	systems[0] = &System{
		World:      worldComms[0],
		IsManager:  true,
		GroupIndex: -1,
		Global:     globalComms[0],
	}
	if thirdLevel {
		systems[0].ThirdLevelReduce = tlComms[0]
	}

	for g := 0; g < numGroups; g++ {
		for lr := 0; lr < groupSizes[g]; lr++ {
			wr := groupStart[g] + lr
			s := &System{
				World:      worldComms[wr],
				IsManager:  false,
				GroupIndex: g,
				LocalRank:  lr,
				Local:      localCommsByGroup[g][lr],
			}
			if lr == 0 {
				s.Global = globalComms[1+g]
				if thirdLevel {
					s.ThirdLevelReduce = tlComms[1+g]
				}
			}
			systems[wr] = s
		}
	}
	return systems
}

// IsGroupMaster reports whether this rank represents its group on Global
// and ThirdLevelReduce.
func (s *System) IsGroupMaster() bool {
	return !s.IsManager && s.LocalRank == 0
}
