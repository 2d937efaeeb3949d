package g3types

// InvalidResponseError is reported when the device sends a message that
// matches none of the valid response shapes. The receiver logs it and
// keeps the channel alive.
type InvalidResponseError struct {
	Message string
}

func (e *InvalidResponseError) Error() string {
	if e.Message == "" {
		return "invalid response from device"
	}
	return "invalid response from device: " + e.Message
}

// FeatureNotAvailableError is returned when a capability was not configured
// on the device handle, for example streaming without an RTSP URL.
type FeatureNotAvailableError struct {
	Feature string
}

func (e *FeatureNotAvailableError) Error() string {
	return "feature not available: " + e.Feature
}
