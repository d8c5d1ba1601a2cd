// Package service is the host-facing shim: the two lifecycle callbacks of
// an unbound, non-sticky background service and the three decoder calls a
// host binds to the plugin_h264 library.
package service

// Values a host accepts from OnStartCommand.
const (
	StartStickyCompatibility = 0
	StartSticky              = 1
	StartNotSticky           = 2
	StartRedeliverIntent     = 3
)

// Intent is the request a host passes to lifecycle callbacks.
type Intent struct {
	Action string
	Extras map[string]string
}

// Binder is the channel a bound client would talk through. Service never
// returns one.
type Binder interface{}

// Service answers host lifecycle callbacks. It holds no state.
type Service struct{}

// NewService creates a Service.
func NewService() *Service {
	return &Service{}
}

// OnBind returns no binder for any intent, including nil: the service
// cannot be bound.
func (s *Service) OnBind(intent *Intent) Binder {
	return nil
}

// OnStartCommand tells the host not to restart the service after killing
// it, whatever the intent, flags or start ID.
func (s *Service) OnStartCommand(intent *Intent, flags, startID int) int {
	return StartNotSticky
}
