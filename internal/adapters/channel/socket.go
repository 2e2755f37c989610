//go:build unix

package channel

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"sensormux/internal/ports"
)

// SocketPair is the OS transport for out-of-process clients: an AF_UNIX
// SOCK_SEQPACKET pair whose send side is non-blocking. A full kernel buffer
// surfaces as ports.ErrWouldBlock; the receive side stays blocking and is
// handed to the client.
type SocketPair struct {
	sendFd int
	recvFd int
}

func NewSocketPair(sendBufBytes int) (*SocketPair, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "socketpair")
	}
	s := &SocketPair{sendFd: fds[0], recvFd: fds[1]}
	if err := unix.SetNonblock(s.sendFd, true); err != nil {
		_ = s.Close()
		return nil, errors.Wrap(err, "set nonblock")
	}
	if sendBufBytes > 0 {
		if err := unix.SetsockoptInt(s.sendFd, unix.SOL_SOCKET, unix.SO_SNDBUF, sendBufBytes); err != nil {
			_ = s.Close()
			return nil, errors.Wrap(err, "set sndbuf")
		}
	}
	return s, nil
}

func (s *SocketPair) Write(p []byte) (int, error) {
	if s.sendFd < 0 {
		return 0, ErrClosed
	}
	n, err := unix.Write(s.sendFd, p)
	if err != nil {
		if err == unix.EAGAIN {
			return 0, ports.ErrWouldBlock
		}
		return 0, errors.Wrap(err, "channel write")
	}
	return n, nil
}

// Read drains one message from the receive side. Blocks; meant for
// in-process consumers and tests.
func (s *SocketPair) Read(p []byte) (int, error) {
	n, err := unix.Read(s.recvFd, p)
	if err != nil {
		return 0, errors.Wrap(err, "channel read")
	}
	return n, nil
}

// ReceiveFile transfers ownership of the receive descriptor to the caller,
// typically for handing to the client process. After this call Close only
// tears down the send side.
func (s *SocketPair) ReceiveFile() *os.File {
	f := os.NewFile(uintptr(s.recvFd), "sensormux-events")
	s.recvFd = -1
	return f
}

func (s *SocketPair) Close() error {
	var err error
	if s.sendFd >= 0 {
		err = multierr.Append(err, unix.Close(s.sendFd))
		s.sendFd = -1
	}
	if s.recvFd >= 0 {
		err = multierr.Append(err, unix.Close(s.recvFd))
		s.recvFd = -1
	}
	return err
}

var _ ports.EventChannel = (*SocketPair)(nil)
