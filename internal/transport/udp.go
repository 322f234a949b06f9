package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/andrijaa/opusrtp-streamer/internal/obs"
)

// RecvTimeout is the short UDP recv timeout so the receiver's ingress
// activity can observe a shutdown signal promptly.
const RecvTimeout = 100 * time.Millisecond

// maxSpin bounds how long the sender retries a would-block send before
// giving up on that packet.
const maxSpin = 1 * time.Millisecond

// Sender transmits RTP datagrams to a fixed remote address.
type Sender struct {
	conn *net.UDPConn
}

// NewSender dials a UDP "connection" to remote — dialed UDP sockets let
// Write return net errors directly instead of requiring WriteToUDP on
// every call.
func NewSender(remote string) (*Sender, error) {
	addr, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		return nil, obs.Wrap(obs.KindConfig, "transport.NewSender", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, obs.Wrap(obs.KindResource, "transport.NewSender", err)
	}
	return &Sender{conn: conn}, nil
}

// Send writes one datagram, retrying briefly on a transient would-block
// condition before counting the packet as a send error. Other I/O errors
// are returned immediately for the caller to log and count.
func (s *Sender) Send(buf []byte) (int, error) {
	deadline := time.Now().Add(maxSpin)
	for {
		n, err := s.conn.Write(buf)
		if err == nil {
			return n, nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() && time.Now().Before(deadline) {
			continue
		}
		return n, obs.Wrap(obs.KindIO, "transport.Send", err)
	}
}

// Close releases the underlying socket.
func (s *Sender) Close() error { return s.conn.Close() }

// Receiver listens for inbound RTP datagrams on a fixed local port.
type Receiver struct {
	conn *net.UDPConn
}

// NewReceiver binds a UDP listener to port.
func NewReceiver(port int) (*Receiver, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, obs.Wrap(obs.KindConfig, "transport.NewReceiver", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, obs.Wrap(obs.KindResource, "transport.NewReceiver", err)
	}
	return &Receiver{conn: conn}, nil
}

// Recv reads one datagram into buf, returning (0, err) with a timeout
// error roughly every RecvTimeout so the ingress loop can poll for
// shutdown.
func (r *Receiver) Recv(buf []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(RecvTimeout)); err != nil {
		return 0, obs.Wrap(obs.KindResource, "transport.Recv", err)
	}
	n, err := r.conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, netErr
		}
		return 0, obs.Wrap(obs.KindIO, "transport.Recv", err)
	}
	return n, nil
}

// LocalAddr returns the socket's bound address, useful when NewReceiver
// was given port 0 and the OS chose one.
func (r *Receiver) LocalAddr() *net.UDPAddr { return r.conn.LocalAddr().(*net.UDPAddr) }

// Close releases the underlying socket.
func (r *Receiver) Close() error { return r.conn.Close() }
