package processmanager

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/sgct-project/combi/pkg/config"
	"github.com/sgct-project/combi/pkg/errs"
	"github.com/sgct-project/combi/pkg/idutils"
	"github.com/sgct-project/combi/pkg/mpi"
	"github.com/sgct-project/combi/pkg/task"
	"github.com/sgct-project/combi/pkg/thirdlevel"
	"github.com/sgct-project/combi/pkg/worker"
)

func paramsKey(id idutils.RunID) string {
	return fmt.Sprintf("run/%s/params", id)
}

// sharedExchange makes one real relay round-trip serve every group of a
// system for a single combination step. §4.E's combine pipeline step 4
// (the intra-system global reduce across groups) already leaves every
// group's DSG holding an identical copy of the whole system's combined
// solution, so the common-subspace slice each group's master would gather
// for the relay is identical across groups too — there is no need to, and
// §4.G's "exactly one reduce occurs per combination step" forbids, more
// than one real exchange per step. The first group master to call Exchange
// performs it; every other caller blocks on the same sync.Once and shares
// its result, so every group's DSG still receives the cross-system
// contribution before combine pipeline step 6 extracts each task's DFG
// back out of its own group's DSG.
type sharedExchange struct {
	client *thirdlevel.Client
	once   sync.Once
	result []float64
	err    error
}

func (s *sharedExchange) Exchange(local []float64) ([]float64, error) {
	s.once.Do(func() {
		s.result, s.err = s.client.Exchange(local)
	})
	return s.result, s.err
}

// Init installs params, distributes it to every group via
// UPDATE_COMBI_PARAMETERS, and brings up each group's tasks: under static
// assignment (§4.H) every worker self-instantiates the tasks tagged with
// its own group number as a side effect of receiving CombiParameters, so
// RUN_FIRST is never issued; under dynamic assignment Init issues RUN_FIRST
// itself, once per task, to that task's assigned group.
func (m *Manager) Init(params config.CombiParameters) error {
	m.Params = params

	if m.StaticAssignment {
		byGroup := m.staticRecordsByGroup()
		for _, g := range m.groups {
			for _, w := range g.workers {
				w.StaticAssignment = true
				w.StaticGroups = byGroup
			}
		}
	}

	if err := m.persistParams(); err != nil {
		return err
	}

	for _, g := range m.groups {
		if err := g.gm.UpdateCombiParameters(params); err != nil {
			return err
		}
	}
	if err := m.waitAll(); err != nil {
		return err
	}

	if !m.StaticAssignment {
		for i, term := range m.Scheme.Terms {
			id := params.TaskIDs[i]
			gid := m.taskOwner[id]
			rec := task.Record{ID: id, Level: term.Level, Coeff: term.Coeff, Boundary: m.Scheme.Boundary, Group: gid, Kind: m.TaskKind}
			m.groups[gid].gm.RunFirst(rec)
		}
		if err := m.waitAll(); err != nil {
			return err
		}
	}

	for _, g := range m.groups {
		g.gm.InitDsgus()
	}
	if err := m.waitAll(); err != nil {
		return err
	}

	if params.ThirdLevel != nil {
		return m.setUpThirdLevel(*params.ThirdLevel)
	}
	return nil
}

func (m *Manager) staticRecordsByGroup() map[uint][]task.Record {
	byGroup := make(map[uint][]task.Record)
	for i, term := range m.Scheme.Terms {
		id := m.Params.TaskIDs[i]
		gid := uint(term.Group)
		rec := task.Record{ID: id, Level: term.Level, Coeff: term.Coeff, Boundary: m.Scheme.Boundary, Group: gid, Kind: m.TaskKind}
		byGroup[gid] = append(byGroup[gid], rec)
	}
	return byGroup
}

// setUpThirdLevel dials the relay, designates group 0's master as this
// system's representative, and unifies subspace sizes across both systems
// before the combination loop starts — a one-time pre-loop negotiation, as
// opposed to the per-step relay exchange the combine pipeline itself drives
// (§4.G). A RelayFailure here disables third level for the whole run
// rather than retrying, since there is no partial combine state yet to
// fall back from.
func (m *Manager) setUpThirdLevel(tl config.ThirdLevel) error {
	client, err := thirdlevel.Dial(tl.Host, tl.Port, m.Log)
	if err != nil {
		m.Log.Log("err", err, "third-level dial failed, running without third-level reduce")
		return nil
	}
	m.tlClient = client
	m.designatedGroup = 0

	tlComms := mpi.NewComm(1)
	for i, g := range m.groups {
		if i == m.designatedGroup {
			g.gm.ReduceSubspaceSizesTL(tlComms[0])
		} else {
			g.gm.ReduceSubspaceSizesTL(nil)
		}
	}
	if err := m.waitAll(); err != nil {
		return err
	}

	master := m.groups[m.designatedGroup].workers[0]
	local := intsToFloats(master.DSG.GetSubspaceDataSizes())
	unified, err := client.ExchangeMax(local)
	if err != nil {
		m.Log.Log("err", err, "third-level size negotiation failed, running without third-level reduce")
		m.tlClient = nil
		return nil
	}
	sizes := floatsToInts(unified)

	for _, g := range m.groups {
		g.gm.WaitForTLSizeUpdate(sizes)
	}
	if err := m.waitAll(); err != nil {
		return err
	}
	m.tlEnabled = true
	return nil
}

// RunCombinationLoop drives NCombi steps of the data flow of §2: RUN_NEXT
// to advance every task's simulation, then a combine (local+global, or
// local+global+third-level when this run has it enabled). A progress bar
// on the terminal advances one tick per step.
func (m *Manager) RunCombinationLoop() error {
	bar := progressbar.Default(int64(m.Params.NCombi), "combining")
	for step := 0; step < m.Params.NCombi; step++ {
		m.step = step
		if err := m.runStep(); err != nil {
			return err
		}
		bar.Add(1)
	}
	return nil
}

func (m *Manager) runStep() error {
	for _, g := range m.activeGroups() {
		g.gm.RunNext()
	}
	m.waitActive()
	m.checkFailures()

	if len(m.activeGroups()) == 0 {
		return errs.New(errs.GroupFailure, "processmanager: every group has failed, aborting run")
	}

	if m.tlEnabled {
		ex := &sharedExchange{client: m.tlClient}
		for _, g := range m.activeGroups() {
			g.gm.CombineThirdLevel(ex)
		}
	} else {
		for _, g := range m.activeGroups() {
			g.gm.Combine()
		}
	}
	m.waitActive()
	m.checkFailures()

	if len(m.activeGroups()) == 0 {
		return errs.New(errs.GroupFailure, "processmanager: every group has failed, aborting run")
	}
	return nil
}

// activeGroups returns every group not yet marked GroupFailure'd.
func (m *Manager) activeGroups() []*group {
	var out []*group
	for _, g := range m.groups {
		if !g.failed {
			out = append(out, g)
		}
	}
	return out
}

func (m *Manager) waitAll() error {
	var firstErr error
	for _, g := range m.groups {
		if err := g.gm.WaitIdle(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// waitActive blocks until every currently active group reaches a terminal
// status (WAIT or FAIL). Unlike waitAll it does not surface a group's FAIL
// as an error of its own — checkFailures is what decides whether a failed
// group ends the run or is merely excluded going forward.
func (m *Manager) waitActive() {
	for _, g := range m.activeGroups() {
		g.gm.WaitIdle()
	}
}

// waitAllActive blocks until every currently active group reaches a
// terminal status, returning the first error among them. Unlike waitAll,
// it never considers a group already excluded by an earlier checkFailures
// pass — waitAll's unconditional m.groups scan would otherwise re-surface
// that group's stale FAIL on every later call.
func (m *Manager) waitAllActive() error {
	var firstErr error
	for _, g := range m.activeGroups() {
		if err := g.gm.WaitIdle(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// checkFailures implements §7's GroupFailure policy: every rank of a group
// unresponsive (here: reporting FAIL) past WaitIdle is removed from the
// run; under static assignment its tasks are redistributed to a surviving
// group (if fault tolerance is enabled), otherwise they are simply
// excluded.
func (m *Manager) checkFailures() {
	for _, g := range m.groups {
		if g.failed || g.gm.GetStatus() != worker.Fail {
			continue
		}
		g.failed = true
		m.Log.Log("group", g.id, "status", "FAIL", "msg", "group failure detected, excluding from subsequent steps")

		if m.StaticAssignment && m.Cfg != nil && m.Cfg.EnableFaultTolerance {
			survivor := m.firstSurvivor(g.id)
			if survivor != nil {
				recs := m.staticRecordsByGroup()[g.id]
				for _, w := range survivor.workers {
					if err := w.AdoptTasks(recs); err != nil {
						m.Log.Log("group", survivor.id, "err", err, "msg", "failed to adopt tasks from failed group")
					}
				}
				m.Log.Log("group", g.id, "redistributedTo", survivor.id, "tasks", humanize.Comma(int64(len(recs))))
			}
		}
	}
}

func (m *Manager) firstSurvivor(excluding uint) *group {
	for _, g := range m.groups {
		if g.id != excluding && !g.failed {
			return g
		}
	}
	return nil
}

// Exit sends EXIT to every surviving group and waits for them to drain,
// per §4.E's terminal signal, then closes the relay connection if one was
// opened.
func (m *Manager) Exit() error {
	for _, g := range m.activeGroups() {
		g.gm.Exit()
	}
	m.waitActive()
	if m.tlClient != nil {
		m.tlClient.Close()
	}
	return nil
}

// EvalNorm drives EVAL_NORM across every active group, returning one
// error-norm estimate per active group — §8 property 6's Monte-Carlo L²
// interpolation error, estimated from samples random points against the
// registered task kind's closed-form value (when it has one; see
// task.ExactFunc). Each group's estimate reflects that group's own
// combined solution; a caller decomposing a scheme across systems and
// running one Manager per system uses this to compare a single system's
// partial solution against the cross-system combined one.
func (m *Manager) EvalNorm(samples int, p float64, seed int64) ([]float64, error) {
	spec := worker.NormSpec{Samples: samples, P: p, Seed: seed}
	for _, g := range m.activeGroups() {
		g.gm.EvalNorm(spec)
	}
	if err := m.waitAllActive(); err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(m.activeGroups()))
	for _, g := range m.activeGroups() {
		out = append(out, g.workers[0].NormResult())
	}
	return out, nil
}

// InterpolateValues drives INTERPOLATE_VALUES across every active group,
// returning one slice of interpolated values per active group (one value
// per coordinate in coords), evaluating each group's own combined
// solution.
func (m *Manager) InterpolateValues(coords [][]float64) ([][]float64, error) {
	for _, g := range m.activeGroups() {
		g.gm.InterpolateValues(coords)
	}
	if err := m.waitAllActive(); err != nil {
		return nil, err
	}
	out := make([][]float64, 0, len(m.activeGroups()))
	for _, g := range m.activeGroups() {
		out = append(out, g.workers[0].InterpolatedValues())
	}
	return out, nil
}

// SaveCheckpoints writes a `.raw`/`.raw_header` pair (§6) for every grid
// owned by every task of every worker in every group, whatever the task's
// state, under dir. Intended to be
// called between RunCombinationLoop steps (or after it) by a caller that
// wants restart capability — the combination loop itself never calls this,
// since checkpoint cadence is an operator decision, not a protocol one.
func (m *Manager) SaveCheckpoints(dir string) error {
	for _, g := range m.groups {
		for _, w := range g.workers {
			for _, t := range w.Tasks {
				for i := 0; i < t.NumGrids(); i++ {
					dfg := t.GetDistributedFullGrid(i)
					if dfg == nil {
						continue
					}
					prefix := checkpointPathPrefix(dir, fmt.Sprintf("%s.grid%d", t.GetID(), i), w.Rank)
					if err := WriteCheckpoint(prefix, dfg, m.Params.Parallelization, w.Rank); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (m *Manager) persistParams() error {
	raw, err := config.EncodeCombiParameters(m.Params)
	if err != nil {
		return err
	}
	return m.Store.Put(paramsKey(m.RunID), string(raw))
}

func intsToFloats(ints []int) []float64 {
	out := make([]float64, len(ints))
	for i, v := range ints {
		out[i] = float64(v)
	}
	return out
}

func floatsToInts(floats []float64) []int {
	out := make([]int, len(floats))
	for i, v := range floats {
		out[i] = int(v)
	}
	return out
}
