// Package iface implements the interface port: a non-blocking
// send/receive abstraction over a raw AF_PACKET socket, generalized
// from the teacher's discovery-only pppoe/conn.go to carry every
// frame type this emulator needs (PPPoE, IPv4/IPv6, ARP, LLC/IS-IS).
package iface

import (
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/domthera/bngblaster/internal/protocol"
)

// SendResult is the outcome of a non-blocking Send call (spec.md §4.2:
// "send(frame) → {OK, FULL, ERROR}").
type SendResult int

const (
	SendOK SendResult = iota
	SendFull
	SendError
)

func (r SendResult) String() string {
	switch r {
	case SendOK:
		return "OK"
	case SendFull:
		return "FULL"
	default:
		return "ERROR"
	}
}

// Dispatcher receives a decoded Ethernet header and the frame's
// payload (everything after the header, including any VLAN tags
// already stripped).
type Dispatcher func(eth *protocol.EthHeader, payload []byte)

// Port owns a raw AF_PACKET socket bound to one network interface. TX
// is non-blocking: a frame that the driver can't currently accept is
// retained and retried on the next call to Tick, rather than dropped
// or blocked on (spec.md §4.2).
type Port struct {
	Name    string
	Ifindex int
	HWAddr  [6]byte

	mu      sync.Mutex
	fd      int
	file    *os.File
	pending []byte

	rxCounters txrxCounters
	txCounters txrxCounters

	dispatch Dispatcher
}

type txrxCounters struct {
	packets uint64
	bytes   uint64
	ppsEWMA float64
	bpsEWMA float64
	lastPkt uint64
	lastByt uint64
}

// ewmaAlpha mirrors the smoothing constant the original uses for its
// sliding-window interface counters: fast enough to track a ramp,
// slow enough not to jitter on every single packet.
const ewmaAlpha = 0.2

func (c *txrxCounters) sample(intervalSeconds float64) {
	dp := c.packets - c.lastPkt
	db := c.bytes - c.lastByt
	c.lastPkt = c.packets
	c.lastByt = c.bytes
	pps := float64(dp) / intervalSeconds
	bps := float64(db) / intervalSeconds
	c.ppsEWMA = ewmaAlpha*pps + (1-ewmaAlpha)*c.ppsEWMA
	c.bpsEWMA = ewmaAlpha*bps + (1-ewmaAlpha)*c.bpsEWMA
}

// Counters is a point-in-time snapshot of a port's I/O statistics.
type Counters struct {
	RxPackets, RxBytes uint64
	TxPackets, TxBytes uint64
	RxPPS, RxBPS       float64
	TxPPS, TxBPS       float64
}

// NewPort opens a raw AF_PACKET socket on the named interface and
// binds it to receive all link-layer traffic (ETH_P_ALL), so a single
// port can carry PPPoE, IPv4/IPv6 and IS-IS/LLC frames.
func NewPort(name string, dispatch Dispatcher) (*Port, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("interface %q: %v", name, err)
	}

	const ethPAll = 0x0003 // ETH_P_ALL, network byte order handled by htons below
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, htons(ethPAll))
	if err != nil {
		return nil, fmt.Errorf("socket: %v", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set nonblocking: %v", err)
	}
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("fcntl(F_GETFD): %v", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("fcntl(F_SETFD): %v", err)
	}
	sa := &unix.SockaddrLinklayer{Protocol: htons(ethPAll), Ifindex: ifi.Index}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %v", err)
	}

	file := os.NewFile(uintptr(fd), name)
	p := &Port{
		Name:     name,
		Ifindex:  ifi.Index,
		fd:       fd,
		file:     file,
		dispatch: dispatch,
	}
	copy(p.HWAddr[:], ifi.HardwareAddr)
	return p, nil
}

func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}

// AttachFilter assembles a classic BPF program and attaches it to the
// socket via SO_ATTACH_FILTER, so the kernel drops frames the port
// doesn't care about before they ever wake the RX loop.
func (p *Port) AttachFilter(insns []bpf.Instruction) error {
	raw, err := bpf.Assemble(insns)
	if err != nil {
		return fmt.Errorf("assemble bpf program: %v", err)
	}
	filters := make([]unix.SockFilter, len(raw))
	for i, ri := range raw {
		filters[i] = unix.SockFilter{Code: ri.Op, Jt: ri.Jt, Jf: ri.Jf, K: ri.K}
	}
	prog := unix.SockFprog{
		Len:    uint16(len(filters)),
		Filter: &filters[0],
	}
	return unix.SetsockoptSockFprog(p.fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &prog)
}

// Close releases the underlying socket.
func (p *Port) Close() error {
	return p.file.Close()
}

// Send transmits frame, or retains it for retry if the driver
// currently has no space. While a frame is pending, further Send
// calls are rejected with SendFull until Tick succeeds in draining it
// — callers must not silently drop state on FULL (spec.md §8).
func (p *Port) Send(frame []byte) SendResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) > 0 {
		return SendFull
	}
	n, err := p.file.Write(frame)
	if err == nil {
		p.txCounters.packets++
		p.txCounters.bytes += uint64(n)
		return SendOK
	}
	if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
		p.pending = append([]byte{}, frame...)
		return SendFull
	}
	return SendError
}

// Tick retries any pending frame and samples the EWMA counters. It is
// driven by the global TX interval timer (spec.md §4.2, "retried on
// the next TX tick, typically 1ms").
func (p *Port) Tick(interval time.Duration) {
	p.mu.Lock()
	if len(p.pending) > 0 {
		n, err := p.file.Write(p.pending)
		if err == nil {
			p.txCounters.packets++
			p.txCounters.bytes += uint64(n)
			p.pending = nil
		} else if err != syscall.EAGAIN && err != syscall.EWOULDBLOCK {
			p.pending = nil
		}
	}
	p.rxCounters.sample(interval.Seconds())
	p.txCounters.sample(interval.Seconds())
	p.mu.Unlock()
}

// Snapshot returns the port's current I/O counters.
func (p *Port) Snapshot() Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Counters{
		RxPackets: p.rxCounters.packets,
		RxBytes:   p.rxCounters.bytes,
		TxPackets: p.txCounters.packets,
		TxBytes:   p.txCounters.bytes,
		RxPPS:     p.rxCounters.ppsEWMA,
		RxBPS:     p.rxCounters.bpsEWMA,
		TxPPS:     p.txCounters.ppsEWMA,
		TxBPS:     p.txCounters.bpsEWMA,
	}
}

// Run blocks reading frames and invoking the dispatcher until the
// socket is closed or stop is closed.
func (p *Port) Run(stop <-chan struct{}) error {
	buf := make([]byte, 9216)
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		n, err := p.file.Read(buf)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				continue
			}
			return err
		}
		p.mu.Lock()
		p.rxCounters.packets++
		p.rxCounters.bytes += uint64(n)
		p.mu.Unlock()

		eth, err := protocol.DecodeEth(buf[:n])
		if err != nil {
			continue
		}
		if p.dispatch != nil {
			p.dispatch(eth, buf[eth.HeaderLen:n])
		}
	}
}
