// Package uds provides the gateway's local admin socket transport.
package uds

import (
	"errors"
	"net"
	"os"
)

const unixNetwork = "unix"

var (
	ErrEmptyPath        = errors.New("uds: empty socket path")
	ErrAlreadyListening = errors.New("uds: already listening")
	ErrNotListening     = errors.New("uds: not listening")
	ErrPathNotSocket    = errors.New("uds: path exists and is not a socket")
)

// Server listens for local admin connections on a Unix domain socket.
type Server struct {
	addr net.UnixAddr
	ln   *net.UnixListener
}

// NewServer creates a server for the provided socket path.
func NewServer(path string) (*Server, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	return &Server{addr: net.UnixAddr{Name: path, Net: unixNetwork}}, nil
}

// Path returns the configured socket path.
func (s *Server) Path() string { return s.addr.Name }

// Listen binds the socket, replacing a stale socket file when present.
func (s *Server) Listen() error {
	if s.ln != nil {
		return ErrAlreadyListening
	}
	if err := removeIfExists(s.addr.Name); err != nil {
		return err
	}
	ln, err := net.ListenUnix(unixNetwork, &s.addr)
	if err != nil {
		return err
	}
	ln.SetUnlinkOnClose(true)
	s.ln = ln
	return nil
}

// Accept waits for the next incoming connection.
func (s *Server) Accept() (*net.UnixConn, error) {
	if s.ln == nil {
		return nil, ErrNotListening
	}
	return s.ln.AcceptUnix()
}

// Close stops listening and unlinks the socket file.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.ln = nil
	return err
}

// removeIfExists unlinks a leftover socket file. A path occupied by anything
// other than a socket is refused.
func removeIfExists(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return ErrPathNotSocket
	}
	return os.Remove(path)
}
