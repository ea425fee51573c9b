package interfaces

// Connection is one live client socket as seen by the chat core.
// WriteJSON must be safe for concurrent use.
type Connection interface {
	// ID returns the server-assigned connection id.
	ID() string

	// WriteJSON queues v for delivery to the client.
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its resources.
	Close() error
}

// ConnectionDirectory tracks every live connection, joined or not.
type ConnectionDirectory interface {
	Get(id string) (Connection, bool)
	All() []Connection
	Count() int
}
