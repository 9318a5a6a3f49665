package uds

import "net"

// Client dials the gateway's admin socket.
type Client struct {
	addr net.UnixAddr
}

// NewClient creates a client for the provided socket path.
func NewClient(path string) (*Client, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	return &Client{addr: net.UnixAddr{Name: path, Net: unixNetwork}}, nil
}

// Path returns the configured socket path.
func (c *Client) Path() string { return c.addr.Name }

// Dial opens a connection to the admin socket.
func (c *Client) Dial() (*net.UnixConn, error) {
	return net.DialUnix(unixNetwork, nil, &c.addr)
}
