// Package thirdlevel implements the client side of the third-level relay
// wire protocol (§4.G, §6): a blocking ASCII-framed handshake followed by
// length-prefixed binary payload transfers, run once per combination step
// by the designated third-level reduce manager of each system.
//
// The relay itself is an external TCP daemon (§1's "a separate TCP process;
// we specify only the wire contract consumed from it") — this package only
// ever dials out to it, the same direction flock's UDPNode dials peers in
// the wider example pack, just over TCP with a textual handshake instead of
// a signed datagram.
package thirdlevel

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sgct-project/combi/pkg/clog"
	"github.com/sgct-project/combi/pkg/errs"
)

// Instruction is the relay's response to "ready", per §6.
type Instruction string

// Instruction values.
const (
	SendSubspaces    Instruction = "sendSubspaces"
	ReceiveSubspaces Instruction = "receiveSubspaces"
)

// Client is one system's connection to the external relay. It is owned by
// the designated third-level reduce manager and dialled once at run start;
// Exchange is called once per combination step that uses
// COMBINE_THIRD_LEVEL.
type Client struct {
	Host string
	Port int
	// DialTimeout bounds the initial connection attempt; zero means the
	// net package's default (no timeout).
	DialTimeout time.Duration
	Log         clog.Logger

	conn net.Conn
	rw   *bufio.ReadWriter
}

// Dial connects to the relay at host:port.
func Dial(host string, port int, log clog.Logger) (*Client, error) {
	if log == nil {
		log = clog.Discard()
	}
	c := &Client{Host: host, Port: port, Log: log}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	addr := net.JoinHostPort(c.Host, portString(c.Port))
	conn, err := net.DialTimeout("tcp", addr, c.DialTimeout)
	if err != nil {
		return errs.Wrap(errs.RelayFailure, err, "thirdlevel: dial "+addr)
	}
	c.conn = conn
	c.rw = bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Exchange runs one full handshake of §4.G step 1-4 and returns the
// combined common-subspace buffer: this system sends "ready", the relay
// names which side sends and which receives, and the two buffers are
// reduced additively as described in §4.G. local is this system's
// common-subspace slice in SchemeDecomposer's deterministic order.
func (c *Client) Exchange(local []float64) ([]float64, error) {
	return c.exchange(local, addElementwise)
}

// ExchangeMax runs the identical handshake of Exchange but combines the two
// systems' buffers with an elementwise maximum instead of a sum. The wire
// contract of §6 only pins down the payload framing, not the reduction
// operator; REDUCE_SUBSPACE_SIZES_TL / WAIT_FOR_TL_SIZE_UPDATE need a
// cross-system size *unification* (every participant ends up able to hold
// the largest size anyone reported, mirroring the intra-system
// AllreduceMax of pkg/mpi), not an additive combine of grid data — this is
// that operation run over the same relay connection used for the per-step
// subspace-data exchange.
func (c *Client) ExchangeMax(local []float64) ([]float64, error) {
	return c.exchange(local, maxElementwise)
}

func (c *Client) exchange(local []float64, reduce func(a, b []float64) ([]float64, error)) ([]float64, error) {
	if c.conn == nil {
		if err := c.connect(); err != nil {
			return nil, err
		}
	}
	if err := c.sendLine("ready"); err != nil {
		return nil, err
	}
	instr, err := c.readInstruction()
	if err != nil {
		return nil, err
	}

	c.Log.Log("instruction", instr, "localBytes", humanize.Bytes(uint64(len(local)*8)))

	switch instr {
	case SendSubspaces:
		return c.doSend(local)
	case ReceiveSubspaces:
		return c.doReceive(local, reduce)
	default:
		return nil, errs.New(errs.RelayFailure, "thirdlevel: unrecognised instruction %q", instr)
	}
}

// doSend is the "sendSubspaces" side of §4.G step 3: send the locally
// gathered common-subspace slice, then receive the peer's buffer (already
// reduced on their side) and use it as-is — the receiving system performed
// the reduction, this system only forwards and adopts the result.
func (c *Client) doSend(local []float64) ([]float64, error) {
	if err := c.writePayload(local); err != nil {
		return nil, err
	}
	combined, err := c.readPayload()
	if err != nil {
		return nil, err
	}
	return combined, nil
}

// doReceive is the "receiveSubspaces" side of §4.G step 4: receive the
// peer's buffer first, reduce it with the local common-subspace slice using
// reduce, then send the combined result back (the relay forwards it to the
// peer as that side's reply).
func (c *Client) doReceive(local []float64, reduce func(a, b []float64) ([]float64, error)) ([]float64, error) {
	remote, err := c.readPayload()
	if err != nil {
		return nil, err
	}
	combined, err := reduce(local, remote)
	if err != nil {
		return nil, err
	}
	if err := c.writePayload(combined); err != nil {
		return nil, err
	}
	return combined, nil
}

func addElementwise(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, errs.New(errs.RelayFailure, "thirdlevel: local/remote common-subspace length mismatch: %d vs %d", len(a), len(b))
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out, nil
}

func maxElementwise(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, errs.New(errs.RelayFailure, "thirdlevel: local/remote size vector length mismatch: %d vs %d", len(a), len(b))
	}
	out := make([]float64, len(a))
	for i := range a {
		if a[i] >= b[i] {
			out[i] = a[i]
		} else {
			out[i] = b[i]
		}
	}
	return out, nil
}

func (c *Client) sendLine(s string) error {
	if _, err := c.rw.WriteString(s + "\n"); err != nil {
		return errs.Wrap(errs.RelayFailure, err, "thirdlevel: write "+s)
	}
	if err := c.rw.Flush(); err != nil {
		return errs.Wrap(errs.RelayFailure, err, "thirdlevel: flush "+s)
	}
	return nil
}

func (c *Client) readInstruction() (Instruction, error) {
	line, err := c.rw.ReadString('\n')
	if err != nil {
		return "", errs.Wrap(errs.RelayFailure, err, "thirdlevel: read instruction")
	}
	return Instruction(strings.TrimSpace(line)), nil
}

// writePayload sends a length-prefixed (uint64 little-endian) binary block
// of IEEE754 float64s, per §6's payload framing.
func (c *Client) writePayload(data []float64) error {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))
	if _, err := c.rw.Write(lenBuf[:]); err != nil {
		return errs.Wrap(errs.RelayFailure, err, "thirdlevel: write payload length")
	}
	buf := make([]byte, 8*len(data))
	for i, f := range data {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	if _, err := c.rw.Write(buf); err != nil {
		return errs.Wrap(errs.RelayFailure, err, "thirdlevel: write payload")
	}
	if err := c.rw.Flush(); err != nil {
		return errs.Wrap(errs.RelayFailure, err, "thirdlevel: flush payload")
	}
	return nil
}

func (c *Client) readPayload() ([]float64, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(c.rw, lenBuf[:]); err != nil {
		return nil, errs.Wrap(errs.RelayFailure, err, "thirdlevel: read payload length")
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	buf := make([]byte, 8*n)
	if _, err := io.ReadFull(c.rw, buf); err != nil {
		return nil, errs.Wrap(errs.RelayFailure, err, "thirdlevel: read payload")
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}

func portString(p int) string {
	return strconv.Itoa(p)
}
