package realtime

// Peer is one live connection as seen by the registry and the router.
// Send must not block; implementations queue or fail fast.
type Peer interface {
	ID() string
	Send(payload []byte) error
}

// closer is implemented by peers that own a transport to tear down.
type closer interface {
	Close()
}
