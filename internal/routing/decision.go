package routing

// Decision is the trunk chosen for one outbound attempt.
type Decision struct {
	// Endpoint is the dial string, e.g. PJSIP/+15551234567@carrier-a.
	Endpoint string `json:"endpoint"`
	// Trunk is the template the endpoint was built from.
	Trunk string `json:"trunk"`

	// Share is the trunk's fraction of total weight at selection time, for logs.
	Share float64 `json:"share"`
}
