package domain

// Status is the lifecycle state of an asynchronous panel action.
type Status string

const (
	StatusReady   Status = "ready"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
)
