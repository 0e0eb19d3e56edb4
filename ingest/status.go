package ingest

// Status is the outcome of a completed bulk reconfiguration.
type Status string

const (
	// StatusOK means the document was parsed and published.
	StatusOK Status = "OK"

	// StatusNOK means the document was rejected and the registry was left
	// unchanged.
	StatusNOK Status = "NOK"
)
