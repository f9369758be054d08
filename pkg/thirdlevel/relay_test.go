package thirdlevel

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeRelay is a minimal stand-in for the external relay daemon (§1
// excludes that daemon's own implementation; only the wire contract this
// test exercises is in scope). It accepts exactly two connections — one
// per system — and plays the alternation described in §4.G: the first
// connection accepted is told to send, the second is told to
// receive, and each side's payload is framed exactly as Client expects.
func startFakeRelay(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		c0, err := ln.Accept()
		if err != nil {
			return
		}
		c1, err := ln.Accept()
		if err != nil {
			return
		}
		relayPair(t, c0, c1)
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func relayPair(t *testing.T, sendConn, recvConn net.Conn) {
	defer sendConn.Close()
	defer recvConn.Close()

	sendRW := bufio.NewReadWriter(bufio.NewReader(sendConn), bufio.NewWriter(sendConn))
	recvRW := bufio.NewReadWriter(bufio.NewReader(recvConn), bufio.NewWriter(recvConn))

	readReady(t, sendRW)
	readReady(t, recvRW)

	writeLine(t, sendRW, "sendSubspaces")
	writeLine(t, recvRW, "receiveSubspaces")

	payload := readFramed(t, sendRW)
	writeFramed(t, recvRW, payload)

	reduced := readFramed(t, recvRW)
	writeFramed(t, sendRW, reduced)
}

func readReady(t *testing.T, rw *bufio.ReadWriter) {
	line, err := rw.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "ready\n", line)
}

func writeLine(t *testing.T, rw *bufio.ReadWriter, s string) {
	_, err := rw.WriteString(s + "\n")
	require.NoError(t, err)
	require.NoError(t, rw.Flush())
}

func readFramed(t *testing.T, rw *bufio.ReadWriter) []byte {
	var lenBuf [8]byte
	_, err := io.ReadFull(rw, lenBuf[:])
	require.NoError(t, err)
	n := binary.LittleEndian.Uint64(lenBuf[:])
	buf := make([]byte, 8*n)
	_, err = io.ReadFull(rw, buf)
	require.NoError(t, err)
	return buf
}

func writeFramed(t *testing.T, rw *bufio.ReadWriter, payload []byte) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(payload)/8))
	_, err := rw.Write(lenBuf[:])
	require.NoError(t, err)
	_, err = rw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, rw.Flush())
}

func TestExchangeReducesAcrossSystems(t *testing.T) {
	addr, stop := startFakeRelay(t)
	defer stop()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port := mustAtoi(t, portStr)

	sysA, err := Dial(host, port, nil)
	require.NoError(t, err)
	defer sysA.Close()
	sysB, err := Dial(host, port, nil)
	require.NoError(t, err)
	defer sysB.Close()

	localA := []float64{1, 2, 3}
	localB := []float64{10, 20, 30}

	resultCh := make(chan []float64, 2)
	errCh := make(chan error, 2)
	go func() {
		r, err := sysA.Exchange(localA)
		resultCh <- r
		errCh <- err
	}()
	go func() {
		r, err := sysB.Exchange(localB)
		resultCh <- r
		errCh <- err
	}()

	r1 := <-resultCh
	require.NoError(t, <-errCh)
	r2 := <-resultCh
	require.NoError(t, <-errCh)

	require.Equal(t, []float64{11, 22, 33}, r1)
	require.Equal(t, []float64{11, 22, 33}, r2)
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, c := range s {
		require.True(t, c >= '0' && c <= '9')
		n = n*10 + int(c-'0')
	}
	return n
}
