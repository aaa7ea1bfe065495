package domain

// DeviceFlowSession is the envelope returned when a device-authorization
// grant is started. It is ephemeral: never persisted beyond the coordinator's
// in-memory state.
//
// DeviceCode is used only when polling the provider and must never be shown
// to the user; only UserCode and VerificationURI are displayed.
type DeviceFlowSession struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresIn       int // seconds until the whole flow expires
	Interval        int // minimum seconds between polls
}

// DeviceFlowStatus is the outcome of a single poll.
type DeviceFlowStatus string

const (
	DeviceFlowPending   DeviceFlowStatus = "pending"
	DeviceFlowCompleted DeviceFlowStatus = "completed"
	DeviceFlowDeclined  DeviceFlowStatus = "declined"
	DeviceFlowExpired   DeviceFlowStatus = "expired"
)

// Terminal reports whether the status ends the flow. A terminal device code
// must never be polled again; callers start a fresh flow instead.
func (s DeviceFlowStatus) Terminal() bool { return s != DeviceFlowPending }

// DeviceFlowResult couples a poll status with the Principal built on
// completion. Principal is only set when Status is DeviceFlowCompleted.
type DeviceFlowResult struct {
	Status    DeviceFlowStatus
	Principal *Principal
}
