package audit

import (
	"time"

	"go.uber.org/zap"
)

// OperationType represents the kind of action performed on a resource.
type OperationType string

const (
	OperationConfigure OperationType = "CONFIGURE"
	OperationVerify    OperationType = "VERIFY"
	OperationEnable    OperationType = "ENABLE"
	OperationDisable   OperationType = "DISABLE"
	OperationClear     OperationType = "CLEAR"
	OperationDeliver   OperationType = "DELIVER"
)

// ResourceType represents the resource an audited action touched.
type ResourceType string

const (
	ResourceWebhookConfig       ResourceType = "webhook_config"
	ResourceTranscriptionConfig ResourceType = "transcription_config"
	ResourceParaclinicConfig    ResourceType = "paraclinic_config"
	ResourceConsultation        ResourceType = "consultation"
	ResourceParaclinicUpload    ResourceType = "paraclinic_upload"
)

// Entry is one audit trail record.
type Entry struct {
	Operation OperationType
	Resource  ResourceType
	Timestamp time.Time
	IPAddress string
	RequestID string
	Outcome   string
}

// Logger writes an audit trail of integration-configuration changes and
// outbound deliveries to the structured log. Entries carry only operation
// metadata; clinical content, credentials and endpoints never appear in the
// trail.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates an audit logger on top of the given structured logger.
func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{
		logger: logger.Named("audit"),
	}
}

// Log records one audit entry.
func (l *Logger) Log(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.logger.Info("Audit log entry",
		zap.String("operation", string(entry.Operation)),
		zap.String("resource", string(entry.Resource)),
		zap.Time("timestamp", entry.Timestamp),
		zap.String("ip_address", entry.IPAddress),
		zap.String("request_id", entry.RequestID),
		zap.String("outcome", entry.Outcome),
	)
}

// LogConfigure records a configuration change on an integration.
func (l *Logger) LogConfigure(resource ResourceType, ip, requestID, outcome string) {
	l.Log(Entry{Operation: OperationConfigure, Resource: resource, IPAddress: ip, RequestID: requestID, Outcome: outcome})
}

// LogVerify records a verification attempt against an integration endpoint.
func (l *Logger) LogVerify(resource ResourceType, ip, requestID, outcome string) {
	l.Log(Entry{Operation: OperationVerify, Resource: resource, IPAddress: ip, RequestID: requestID, Outcome: outcome})
}

// LogToggle records an integration being switched on or off.
func (l *Logger) LogToggle(resource ResourceType, enabled bool, ip, requestID, outcome string) {
	op := OperationDisable
	if enabled {
		op = OperationEnable
	}
	l.Log(Entry{Operation: op, Resource: resource, IPAddress: ip, RequestID: requestID, Outcome: outcome})
}

// LogClear records the removal of an integration configuration.
func (l *Logger) LogClear(resource ResourceType, ip, requestID, outcome string) {
	l.Log(Entry{Operation: OperationClear, Resource: resource, IPAddress: ip, RequestID: requestID, Outcome: outcome})
}

// LogDeliver records an outbound delivery attempt.
func (l *Logger) LogDeliver(resource ResourceType, ip, requestID, outcome string) {
	l.Log(Entry{Operation: OperationDeliver, Resource: resource, IPAddress: ip, RequestID: requestID, Outcome: outcome})
}
