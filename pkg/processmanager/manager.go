// Package processmanager implements ProcessManager (§4.G): the top-level
// orchestrator that owns every process group and the task list, drives the
// combination loop, and — on the system designated to carry the run's
// third-level reduce — talks to the external relay via pkg/thirdlevel.
//
// Everything below the communicator layer runs in one Go process (per
// pkg/mpi's in-process rank-group model), so ProcessManager holds direct
// references to every group's workers rather than reaching them only
// through the signal protocol; it still only ever talks to a group through
// its ProcessGroupManager proxy for anything the real coordination
// protocol covers, reserving direct Worker access for bookkeeping the
// protocol has no signal for (reading back unified subspace sizes,
// redistributing a failed group's static tasks).
package processmanager

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/sgct-project/combi/pkg/clog"
	"github.com/sgct-project/combi/pkg/config"
	"github.com/sgct-project/combi/pkg/errs"
	"github.com/sgct-project/combi/pkg/fullgrid"
	"github.com/sgct-project/combi/pkg/groupmanager"
	"github.com/sgct-project/combi/pkg/idutils"
	"github.com/sgct-project/combi/pkg/kv"
	"github.com/sgct-project/combi/pkg/levelvector"
	"github.com/sgct-project/combi/pkg/mpi"
	"github.com/sgct-project/combi/pkg/scheme"
	"github.com/sgct-project/combi/pkg/task"
	"github.com/sgct-project/combi/pkg/thirdlevel"
	"github.com/sgct-project/combi/pkg/worker"
)

// group is ProcessManager's own record of one process group: the
// groupmanager.ProcessGroupManager proxy everything in §4.F goes through,
// plus the direct Worker references used for the bookkeeping the signal
// protocol itself has no opinion on.
type group struct {
	id      uint
	gm      *groupmanager.ProcessGroupManager
	workers []*worker.Worker
	failed  bool
}

// Manager is ProcessManager: owns every group of one HPC system, the
// active CombiScheme/CombiParameters, and (when this system participates
// in third-level reduce) the relay client.
type Manager struct {
	Cfg      *config.Config
	Log      clog.Logger
	Store    kv.KV
	Registry *task.Registry

	RunID idutils.RunID

	Scheme scheme.Scheme
	// CommonSubspaces is the CommonSubspaceSet LoadScheme's decomposition
	// computed for this system, threaded into Params.CommonSubspaces by
	// BuildParams so COMBINE_THIRD_LEVEL knows which subspaces it may
	// exchange with the peer system.
	CommonSubspaces  []levelvector.V
	Params           config.CombiParameters
	StaticAssignment bool

	groups []*group

	// designatedGroup is the index into groups of the group whose master
	// represents this system at the relay boundary, per §4.G's "only the
	// third-level reduce manager... is active in this phase". Unused
	// unless Params.ThirdLevel != nil.
	designatedGroup int
	tlClient        *thirdlevel.Client
	tlEnabled       bool

	taskOwner map[idutils.GroupTaskID]uint // task -> owning group, for dynamic assignment bookkeeping

	// TaskKind selects the registered task.Func every term in the scheme
	// is instantiated as — the scheme file format of §6 has no concept of
	// task kind, so the run as a whole picks one (matching the original
	// source, where a run is compiled against a single application).
	TaskKind task.Kind

	mu   sync.Mutex
	step int
}

// New builds a Manager over groupSizes (one entry per process group, its
// worker count). reg resolves task Kinds on RUN_FIRST / static
// instantiation; log may be nil.
func New(cfg *config.Config, groupSizes []int, reg *task.Registry, log clog.Logger, store kv.KV) *Manager {
	if log == nil {
		log = clog.Discard()
	}
	if store == nil {
		store = kv.NewMemKV()
	}

	numGroups := len(groupSizes)
	// Global is the masters-only club of §5 that the intra-system combine
	// pipeline all-reduces sparse grids over; the manager itself never
	// contributes data to it, only issues signals over Go channels, per
	// §9's re-architecture away from a manager/group back-reference.
	globalComms := mpi.NewComm(numGroups)

	m := &Manager{
		Cfg:             cfg,
		Log:             log,
		Store:           store,
		Registry:        reg,
		RunID:           idutils.NewRunID(),
		taskOwner:       make(map[idutils.GroupTaskID]uint),
		designatedGroup: -1,
	}

	for g, size := range groupSizes {
		localComms := mpi.NewComm(size)
		workers := make([]*worker.Worker, size)
		for r := 0; r < size; r++ {
			isMaster := r == 0
			var gc *mpi.Comm
			if isMaster {
				gc = globalComms[g]
			}
			workers[r] = worker.New(uint(g), r, isMaster, 0, localComms[r], gc, reg, cfg, log.With("group", g).With("rank", r))
			go workers[r].Run()
		}
		m.groups = append(m.groups, &group{id: uint(g), gm: groupmanager.New(uint(g), workers), workers: workers})
	}
	return m
}

// NumGroups returns the number of process groups this manager owns.
func (m *Manager) NumGroups() int { return len(m.groups) }

// LoadScheme validates full, decomposes it for this system (systemIndex of
// systemCount, per §4.A), and installs the resulting part as the run's
// active CombiScheme, persisting it to Store.
func (m *Manager) LoadScheme(full scheme.Scheme, systemIndex, systemCount int) error {
	if err := scheme.Validate(full); err != nil {
		return err
	}
	part, common, err := scheme.Decompose(full, systemIndex, systemCount)
	if err != nil {
		return err
	}
	m.Scheme = part
	m.CommonSubspaces = common
	m.StaticAssignment = false
	return m.persistScheme()
}

// LoadSchemeFile loads a §6 JSON scheme file, which may carry a static
// group assignment per term (§4.H). It does not decompose across systems —
// a static scheme file is meant to be used directly as one system's part
// of a run.
func (m *Manager) LoadSchemeFile(path string) error {
	s, static, err := scheme.LoadFile(path)
	if err != nil {
		return err
	}
	if err := scheme.Validate(s); err != nil {
		return err
	}
	m.Scheme = s
	m.StaticAssignment = static
	if static {
		for _, t := range s.Terms {
			if t.Group < 0 || t.Group >= len(m.groups) {
				return errs.New(errs.InvalidScheme, "scheme file %s: term references group %d, have %d groups", path, t.Group, len(m.groups))
			}
		}
	}
	return m.persistScheme()
}

func (m *Manager) persistScheme() error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m.Scheme); err != nil {
		return errs.Wrap(errs.InvalidScheme, err, "processmanager: encode scheme for storage")
	}
	return m.Store.Put(fmt.Sprintf("run/%s/scheme", m.RunID), buf.String())
}

// BuildParams assembles CombiParameters from the active scheme plus the run
// options named in §3, assigning one GroupTaskID per term (dynamically, by
// round-robin across groups, unless the scheme carries a static
// assignment, in which case each term's recorded Group is used directly).
func (m *Manager) BuildParams(lmin, lmax levelvector.V, ncombi, numGrids int, et fullgrid.ElementType, parallelization []int, reduceDims []bool, reduceRanges [][]int, tl *config.ThirdLevel) config.CombiParameters {
	n := len(m.Scheme.Terms)
	levels := make([]levelvector.V, n)
	coeffs := make([]float64, n)
	ids := make([]idutils.GroupTaskID, n)

	for i, t := range m.Scheme.Terms {
		levels[i] = t.Level
		coeffs[i] = t.Coeff
		group := t.Group
		if !m.StaticAssignment {
			group = i % len(m.groups)
		}
		id := idutils.GroupTaskID{Run: m.RunID, Group: uint(group), Task: uint(i)}
		ids[i] = id
		m.taskOwner[id] = uint(group)
	}

	p := config.CombiParameters{
		Dim:             m.Scheme.Dim,
		LMin:            lmin,
		LMax:            lmax,
		Boundary:        m.Scheme.Boundary,
		Levels:          levels,
		Coeffs:          coeffs,
		TaskIDs:         ids,
		NCombi:          ncombi,
		NumGrids:        numGrids,
		Parallelization: parallelization,
		ReduceDims:      reduceDims,
		ReduceRanges:    reduceRanges,
		ElementType:     et,
		ThirdLevel:      tl,
		CommonSubspaces: m.CommonSubspaces,
	}
	m.Params = p
	return p
}
