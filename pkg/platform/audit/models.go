package audit

import "time"

// EventCategory classifies audit events by their primary purpose so sinks
// can route or retain them differently.
type EventCategory string

const (
	// CategorySecurity covers rejected credentials and access violations.
	CategorySecurity EventCategory = "security"

	// CategoryCompliance covers account lifecycle.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine activity such as token issue and
	// workload changes. It can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Subject   string        `json:"subject,omitempty"`
	Action    string        `json:"action"`
	Reason    string        `json:"reason,omitempty"`
	Namespace string        `json:"namespace,omitempty"`
	Resource  string        `json:"resource,omitempty"`
	Count     int           `json:"count,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	ClientIP  string        `json:"client_ip,omitempty"`
}

type AuditEvent string

const (
	// Identity events
	EventAuthFailed      AuditEvent = "auth_failed"
	EventOwnershipDenied AuditEvent = "ownership_denied"
	EventUserRegistered  AuditEvent = "user_registered"
	EventTokenIssued     AuditEvent = "token_issued"

	// Deployment events
	EventDeploymentCreated     AuditEvent = "deployment_created"
	EventDeploymentsBackfilled AuditEvent = "deployments_backfilled"
	EventDeploymentDeleted     AuditEvent = "deployment_deleted"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAuthFailed:      CategorySecurity,
	EventOwnershipDenied: CategorySecurity,

	EventUserRegistered: CategoryCompliance,

	EventTokenIssued:           CategoryOperations,
	EventDeploymentCreated:     CategoryOperations,
	EventDeploymentsBackfilled: CategoryOperations,
	EventDeploymentDeleted:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// NewEvent stamps the action's category. Callers fill in the rest.
func NewEvent(action AuditEvent, subject string) Event {
	return Event{
		Category: action.Category(),
		Action:   string(action),
		Subject:  subject,
	}
}
