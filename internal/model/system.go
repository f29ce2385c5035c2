package model

// HealthStatus is the payload of the health endpoint.
type HealthStatus struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	SchemaVersion string `json:"schemaVersion,omitempty"`
	Error         string `json:"error,omitempty"`
}
