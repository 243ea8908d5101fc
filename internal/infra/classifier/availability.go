package classifier

// Availability says whether a real classifier was configured for this process.
// It is decided once at startup and injected into the pipeline.
type Availability int

const (
	Unavailable Availability = iota
	Available
)

// AvailabilityFor reports Available only when both an endpoint and credentials are configured.
func AvailabilityFor(endpoint, token string) Availability {
	if endpoint == "" || token == "" {
		return Unavailable
	}
	return Available
}

func (a Availability) String() string {
	if a == Available {
		return "available"
	}
	return "unavailable"
}
