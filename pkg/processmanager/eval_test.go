package processmanager

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/sgct-project/combi/pkg/config"
	"github.com/sgct-project/combi/pkg/fullgrid"
	"github.com/sgct-project/combi/pkg/kv"
	"github.com/sgct-project/combi/pkg/levelvector"
	"github.com/sgct-project/combi/pkg/scheme"
	"github.com/sgct-project/combi/pkg/task"
)

// diagonalParaboloidScheme is a classical two-dimensional combination
// scheme: the +1 diagonal l1+l2=4 and the -1 diagonal l1+l2=3, the minimal
// telescoping pair that cancels the leading-order interpolation error of
// any single diagonal alone. Used with task.KindParaboloid, whose closed
// form (ParaboloidFunc.Exact in kinds.go) is the reference the Monte-Carlo
// error is measured against, this is the fixture §8 property 6 is checked
// against.
func diagonalParaboloidScheme() scheme.Scheme {
	return scheme.Scheme{
		Dim:      2,
		Boundary: []bool{true, true},
		Terms: []scheme.Term{
			{Level: levelvector.New(3, 1), Coeff: 1, Group: -1},
			{Level: levelvector.New(2, 2), Coeff: 1, Group: -1},
			{Level: levelvector.New(1, 3), Coeff: 1, Group: -1},
			{Level: levelvector.New(2, 1), Coeff: -1, Group: -1},
			{Level: levelvector.New(1, 2), Coeff: -1, Group: -1},
		},
	}
}

// startFakeRelay accepts exactly two connections and plays rounds
// alternations of §4.G's handshake over them: the first connection to
// connect always plays "sendSubspaces", the second always "receiveSubspaces"
// -- which side that is doesn't matter since both reductions this relay
// needs to drive (additive and max) are commutative. One round is consumed
// by each ExchangeMax/Exchange call a dialled Client makes.
func startFakeRelay(t *testing.T, rounds int) (host string, port int, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		c0, err := ln.Accept()
		if err != nil {
			return
		}
		c1, err := ln.Accept()
		if err != nil {
			return
		}
		defer c0.Close()
		defer c1.Close()
		rw0 := bufio.NewReadWriter(bufio.NewReader(c0), bufio.NewWriter(c0))
		rw1 := bufio.NewReadWriter(bufio.NewReader(c1), bufio.NewWriter(c1))
		for i := 0; i < rounds; i++ {
			relayRound(rw0, rw1)
		}
	}()

	h, p, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split host/port: %v", err)
	}
	portNum, err := strconv.Atoi(p)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return h, portNum, func() { ln.Close() }
}

func relayRound(sender, receiver *bufio.ReadWriter) {
	if !expectReady(sender) || !expectReady(receiver) {
		return
	}
	if !writeLine(sender, "sendSubspaces") || !writeLine(receiver, "receiveSubspaces") {
		return
	}
	payload := readFramed(sender)
	writeFramed(receiver, payload)
	reduced := readFramed(receiver)
	writeFramed(sender, reduced)
}

func expectReady(rw *bufio.ReadWriter) bool {
	line, err := rw.ReadString('\n')
	return err == nil && strings.TrimSpace(line) == "ready"
}

func writeLine(rw *bufio.ReadWriter, s string) bool {
	if _, err := rw.WriteString(s + "\n"); err != nil {
		return false
	}
	return rw.Flush() == nil
}

func readFramed(rw *bufio.ReadWriter) []byte {
	var lenBuf [8]byte
	if _, err := io.ReadFull(rw, lenBuf[:]); err != nil {
		return nil
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	buf := make([]byte, 8*n)
	if _, err := io.ReadFull(rw, buf); err != nil {
		return nil
	}
	return buf
}

func writeFramed(rw *bufio.ReadWriter, payload []byte) bool {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(payload)/8))
	if _, err := rw.Write(lenBuf[:]); err != nil {
		return false
	}
	if _, err := rw.Write(payload); err != nil {
		return false
	}
	return rw.Flush() == nil
}

// newEvalManager builds a one-group Manager seeded with the paraboloid
// reference kind, ready for LoadScheme/BuildParams/Init.
func newEvalManager() *Manager {
	reg := task.NewRegistry()
	task.RegisterBuiltins(reg)
	m := New(&config.Config{}, []int{1}, reg, nil, kv.NewMemKV())
	m.TaskKind = task.KindParaboloid
	return m
}

// TestThirdLevelCombinedErrorDominatesSingleSystems exercises §8 property
// 6: the Monte-Carlo L2 interpolation error of a two-system third-level
// combined run is no worse than the error of either system's own partial
// combination alone. Systems A and B each own half of a classical diagonal
// combination scheme (via scheme.Decompose's midpoint split); run
// standalone, each reconstructs only its own half of the full scheme, while
// the cross-system relay exchange recovers the full scheme's common
// subspaces for both, which is exactly what property 6 says should never
// hurt accuracy.
func TestThirdLevelCombinedErrorDominatesSingleSystems(t *testing.T) {
	full := diagonalParaboloidScheme()
	if err := scheme.Validate(full); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	lmin := levelvector.New(1, 1)
	lmax := levelvector.New(3, 3)
	const ncombi = 1

	host, port, stopRelay := startFakeRelay(t, 1+ncombi)
	defer stopRelay()

	mA := newEvalManager()
	if err := mA.LoadScheme(full, 0, 2); err != nil {
		t.Fatalf("system A LoadScheme: %v", err)
	}
	paramsA := mA.BuildParams(lmin, lmax, ncombi, 1, fullgrid.Real, []int{1, 1}, nil, nil,
		&config.ThirdLevel{Host: host, Port: port, SystemNumber: 0})

	mB := newEvalManager()
	if err := mB.LoadScheme(full, 1, 2); err != nil {
		t.Fatalf("system B LoadScheme: %v", err)
	}
	paramsB := mB.BuildParams(lmin, lmax, ncombi, 1, fullgrid.Real, []int{1, 1}, nil, nil,
		&config.ThirdLevel{Host: host, Port: port, SystemNumber: 1})

	var wg sync.WaitGroup
	runErrs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); runErrs[0] = runCombinedSystem(mA, paramsA) }()
	go func() { defer wg.Done(); runErrs[1] = runCombinedSystem(mB, paramsB) }()
	wg.Wait()
	for _, err := range runErrs {
		if err != nil {
			t.Fatalf("combined run: %v", err)
		}
	}

	combined, err := mA.EvalNorm(200, 2, 1)
	if err != nil {
		t.Fatalf("combined EvalNorm: %v", err)
	}
	if err := mA.Exit(); err != nil {
		t.Fatalf("system A Exit: %v", err)
	}
	if err := mB.Exit(); err != nil {
		t.Fatalf("system B Exit: %v", err)
	}
	combinedErr := combined[0]

	singleAErr := standaloneSystemError(t, full, 0, lmin, lmax, ncombi)
	singleBErr := standaloneSystemError(t, full, 1, lmin, lmax, ncombi)

	if combinedErr > singleAErr {
		t.Fatalf("combined error %g exceeds single-system A error %g", combinedErr, singleAErr)
	}
	if combinedErr > singleBErr {
		t.Fatalf("combined error %g exceeds single-system B error %g", combinedErr, singleBErr)
	}
}

func runCombinedSystem(m *Manager, params config.CombiParameters) error {
	if err := m.Init(params); err != nil {
		return err
	}
	return m.RunCombinationLoop()
}

// standaloneSystemError runs systemIndex's decomposed part of full with no
// third level at all, returning its own partial combination's L2
// interpolation error.
func standaloneSystemError(t *testing.T, full scheme.Scheme, systemIndex int, lmin, lmax levelvector.V, ncombi int) float64 {
	t.Helper()
	m := newEvalManager()
	if err := m.LoadScheme(full, systemIndex, 2); err != nil {
		t.Fatalf("system %d LoadScheme: %v", systemIndex, err)
	}
	params := m.BuildParams(lmin, lmax, ncombi, 1, fullgrid.Real, []int{1, 1}, nil, nil, nil)
	if err := m.Init(params); err != nil {
		t.Fatalf("system %d Init: %v", systemIndex, err)
	}
	if err := m.RunCombinationLoop(); err != nil {
		t.Fatalf("system %d RunCombinationLoop: %v", systemIndex, err)
	}
	result, err := m.EvalNorm(200, 2, 1)
	if err != nil {
		t.Fatalf("system %d EvalNorm: %v", systemIndex, err)
	}
	if err := m.Exit(); err != nil {
		t.Fatalf("system %d Exit: %v", systemIndex, err)
	}
	return result[0]
}
