//go:build !unix

package channel

import (
	"errors"
	"os"
)

// SocketPair channels need AF_UNIX socketpair support.
type SocketPair struct{}

func NewSocketPair(int) (*SocketPair, error) {
	return nil, errors.New("socketpair channels are not supported on this platform")
}

func (s *SocketPair) Write([]byte) (int, error) { return 0, ErrClosed }
func (s *SocketPair) Read([]byte) (int, error)  { return 0, ErrClosed }
func (s *SocketPair) ReceiveFile() *os.File     { return nil }
func (s *SocketPair) Close() error              { return nil }
