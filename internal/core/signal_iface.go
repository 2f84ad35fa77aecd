package core

// Frame is one encoded server->client event, ready for the wire.
type Frame []byte

// SignalConnection is the write side of one client transport. TrySend never
// blocks: a full queue is ErrBackpressure and a closed transport is
// ErrConnectionClosed. Close is idempotent and makes the adapter's read loop
// exit, which in turn unregisters the session.
type SignalConnection interface {
	TrySend(f Frame) error
	Close()
}
