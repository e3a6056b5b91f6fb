// Package connection provides connection management for jmapstore-cli.
package connection

// Manager tracks the jmapstore-cli process's current connection to a
// node's local admin socket.
type Manager struct {
	current *Connection
}

// Connection represents a connection to one node's admin socket.
type Connection struct {
	Name       string
	SocketPath string
}

// NewManager creates a new connection manager.
func NewManager() *Manager {
	return &Manager{}
}

// Connect records conn as the current connection.
func (m *Manager) Connect(conn *Connection) error {
	m.current = conn
	return nil
}

// Disconnect clears the current connection.
func (m *Manager) Disconnect() {
	m.current = nil
}

// Current returns the current connection.
func (m *Manager) Current() *Connection {
	return m.current
}

// IsConnected returns true if a connection is set.
func (m *Manager) IsConnected() bool {
	return m.current != nil
}
