package health

// Error reports a failed readiness probe: bad configuration or an expired deadline.
type Error struct {
	GameID string
	Reason string
}

func (e *Error) Error() string {
	if e.GameID == "" {
		return e.Reason
	}
	return "healthcheck for " + e.GameID + ": " + e.Reason
}
