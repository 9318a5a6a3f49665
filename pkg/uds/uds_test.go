package uds

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewClientEmptyPath(t *testing.T) {
	if _, err := NewClient(""); err != ErrEmptyPath {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}

func TestNewServerEmptyPath(t *testing.T) {
	if _, err := NewServer(""); err != ErrEmptyPath {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}

func TestListenRejectsNonSocketPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-socket")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	srv, err := NewServer(path)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Listen(); err != ErrPathNotSocket {
		t.Fatalf("expected ErrPathNotSocket, got %v", err)
	}
}

func TestAcceptBeforeListen(t *testing.T) {
	srv, err := NewServer(filepath.Join(t.TempDir(), "admin.sock"))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if _, err := srv.Accept(); err != ErrNotListening {
		t.Fatalf("expected ErrNotListening, got %v", err)
	}
}

func TestServerDialAccept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.sock")

	srv, err := NewServer(path)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	acceptCh := make(chan *net.UnixConn, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := srv.Accept()
		if err != nil {
			errCh <- err
			return
		}
		acceptCh <- conn
	}()

	client, err := NewClient(path)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	conn, err := client.Dial()
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	select {
	case accepted := <-acceptCh:
		_ = accepted.Close()
	case err := <-errCh:
		t.Fatalf("Accept: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept timed out")
	}
}
