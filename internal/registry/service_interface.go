package registry

// Service is the lifecycle contract shared by the monitor, the position
// sources and the notification bridge.
type Service interface {
	Start() error
	Stop() error
}
