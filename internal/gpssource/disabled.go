package gpssource

// NoOpSource is a no-op Source implementation used when no GPS receiver
// is attached (e.g. --disable-gps for bench testing the rest of the
// pipeline against a synthetic position injected via the debug routes).
// Always reachable, never produces a fix on its own.
type NoOpSource struct{}

func NewNoOpSource() *NoOpSource { return &NoOpSource{} }

func (NoOpSource) Connect() error    { return nil }
func (NoOpSource) Disconnect() error { return nil }

// ReadPosition always reports no fix; the orchestrator publishes "no-gps"
// and keeps polling.
func (NoOpSource) ReadPosition() (Position, error) { return Position{}, ErrNoFix }
