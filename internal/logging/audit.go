package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType identifies the kind of session-layer event being recorded.
type AuditEventType string

const (
	AuditLogonAccepted      AuditEventType = "logon_accepted"
	AuditLogonRejected      AuditEventType = "logon_rejected"
	AuditLogout             AuditEventType = "logout"
	AuditSequenceReset      AuditEventType = "sequence_reset"
	AuditResendRequest      AuditEventType = "resend_request"
	AuditSessionReject      AuditEventType = "session_reject"
	AuditCredentialIssued   AuditEventType = "credential_issued"
	AuditCredentialRevoked  AuditEventType = "credential_revoked"
	AuditCredentialRotated  AuditEventType = "credential_rotated"
	AuditAdminAction        AuditEventType = "admin_action"
	AuditConfigChange       AuditEventType = "config_change"
)

// Event is a single audit trail entry, durably persisted independent of
// the session's own message log.
type Event struct {
	EventID     string                 `json:"event_id"`
	Timestamp   time.Time              `json:"timestamp"`
	EventType   AuditEventType         `json:"event_type"`
	SessionID   string                 `json:"session_id,omitempty"`
	RequestID   string                 `json:"request_id,omitempty"`
	Action      string                 `json:"action"`
	Resource    string                 `json:"resource,omitempty"`
	ResourceID  string                 `json:"resource_id,omitempty"`
	Before      map[string]interface{} `json:"before,omitempty"`
	After       map[string]interface{} `json:"after,omitempty"`
	Status      string                 `json:"status"` // success, failed, denied
	Reason      string                 `json:"reason,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Compliance  bool                   `json:"compliance"`
	Environment string                 `json:"environment"`
}

// AuditLogger buffers audit events and flushes them to a dedicated,
// append-only, rotated file, independent of the structured application
// log so retention policy can differ.
type AuditLogger struct {
	mu          sync.Mutex
	file        *os.File
	encoder     *json.Encoder
	filePath    string
	rotateSize  int64
	currentSize int64
	buffer      []*Event
	bufferSize  int
	flushTicker *time.Ticker
	stopChan    chan struct{}
	environment string
}

// NewAuditLogger opens (creating if necessary) the audit log under
// auditDir and starts its periodic flush loop.
func NewAuditLogger(auditDir string) (*AuditLogger, error) {
	if err := os.MkdirAll(auditDir, 0755); err != nil {
		return nil, err
	}

	filePath := filepath.Join(auditDir, "audit.log")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	stat, _ := file.Stat()

	al := &AuditLogger{
		file:        file,
		encoder:     json.NewEncoder(file),
		filePath:    filePath,
		rotateSize:  100 * 1024 * 1024,
		currentSize: stat.Size(),
		buffer:      make([]*Event, 0, 100),
		bufferSize:  100,
		flushTicker: time.NewTicker(5 * time.Second),
		stopChan:    make(chan struct{}),
		environment: getEnvironment(),
	}

	go al.autoFlush()

	return al, nil
}

// LogCredentialOperation implements credentials.AuditLogger, adapting the
// store's operation/success shape into a structured Event.
func (al *AuditLogger) LogCredentialOperation(operation, sessionID, details string, success bool) {
	eventType := AuditCredentialIssued
	switch {
	case hasSuffix(operation, "set_status_revoked_success"):
		eventType = AuditCredentialRevoked
	case hasSuffix(operation, "rotate_success"):
		eventType = AuditCredentialRotated
	}
	status := "success"
	if !success {
		status = "failed"
	}
	al.logEvent(context.Background(), &Event{
		EventID:    generateEventID(),
		EventType:  eventType,
		SessionID:  sessionID,
		Action:     operation,
		Resource:   "credential",
		ResourceID: sessionID,
		Reason:     details,
		Status:     status,
		Compliance: true,
	})
}

// LogLogon records a Logon handshake outcome.
func (al *AuditLogger) LogLogon(ctx context.Context, sessionID, senderCompID string, accepted bool, reason string) {
	eventType := AuditLogonAccepted
	status := "success"
	if !accepted {
		eventType = AuditLogonRejected
		status = "denied"
	}
	al.logEvent(ctx, &Event{
		EventID:    generateEventID(),
		EventType:  eventType,
		SessionID:  sessionID,
		Action:     "logon",
		Resource:   "session",
		ResourceID: sessionID,
		Reason:     reason,
		Status:     status,
		Metadata:   map[string]interface{}{"sender_comp_id": senderCompID},
		Compliance: true,
	})
}

// LogLogout records a session logout.
func (al *AuditLogger) LogLogout(ctx context.Context, sessionID, reason string, graceful bool) {
	al.logEvent(ctx, &Event{
		EventID:    generateEventID(),
		EventType:  AuditLogout,
		SessionID:  sessionID,
		Action:     "logout",
		Resource:   "session",
		ResourceID: sessionID,
		Reason:     reason,
		Status:     "success",
		Metadata:   map[string]interface{}{"graceful": graceful},
		Compliance: true,
	})
}

// LogSequenceReset records an inbound SequenceReset, gap-fill or hard.
func (al *AuditLogger) LogSequenceReset(ctx context.Context, sessionID string, newSeqNo uint64, gapFill bool) {
	al.logEvent(ctx, &Event{
		EventID:    generateEventID(),
		EventType:  AuditSequenceReset,
		SessionID:  sessionID,
		Action:     "sequence_reset",
		Resource:   "session",
		ResourceID: sessionID,
		Status:     "success",
		Metadata: map[string]interface{}{
			"new_seq_no": newSeqNo,
			"gap_fill":   gapFill,
		},
		Compliance: true,
	})
}

// LogResendRequest records a resend request, outbound or inbound.
func (al *AuditLogger) LogResendRequest(ctx context.Context, sessionID string, beginSeqNo, endSeqNo uint64) {
	al.logEvent(ctx, &Event{
		EventID:    generateEventID(),
		EventType:  AuditResendRequest,
		SessionID:  sessionID,
		Action:     "resend_request",
		Resource:   "session",
		ResourceID: sessionID,
		Status:     "success",
		Metadata: map[string]interface{}{
			"begin_seq_no": beginSeqNo,
			"end_seq_no":   endSeqNo,
		},
		Compliance: true,
	})
}

// LogSessionReject records an outbound session-level Reject.
func (al *AuditLogger) LogSessionReject(ctx context.Context, sessionID string, refSeqNum uint64, reason int) {
	al.logEvent(ctx, &Event{
		EventID:    generateEventID(),
		EventType:  AuditSessionReject,
		SessionID:  sessionID,
		Action:     "session_reject",
		Resource:   "session",
		ResourceID: sessionID,
		Status:     "success",
		Metadata: map[string]interface{}{
			"ref_seq_num": refSeqNum,
			"reason":      reason,
		},
		Compliance: true,
	})
}

// LogAdminAction records an operator-initiated action against a session.
func (al *AuditLogger) LogAdminAction(ctx context.Context, operatorID, action, resource, resourceID string, before, after map[string]interface{}) {
	al.logEvent(ctx, &Event{
		EventID:    generateEventID(),
		EventType:  AuditAdminAction,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Before:     before,
		After:      after,
		Status:     "success",
		Metadata:   map[string]interface{}{"operator_id": operatorID},
		Compliance: true,
	})
}

// LogConfigChange records a change to session or engine configuration.
func (al *AuditLogger) LogConfigChange(ctx context.Context, operatorID, configKey string, before, after interface{}) {
	al.logEvent(ctx, &Event{
		EventID:    generateEventID(),
		EventType:  AuditConfigChange,
		Action:     "config_change",
		Resource:   "config",
		ResourceID: configKey,
		Before:     map[string]interface{}{configKey: before},
		After:      map[string]interface{}{configKey: after},
		Status:     "success",
		Metadata:   map[string]interface{}{"operator_id": operatorID},
		Compliance: true,
	})
}

func (al *AuditLogger) logEvent(ctx context.Context, event *Event) {
	event.Timestamp = time.Now().UTC()
	event.Environment = al.environment

	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		event.RequestID = requestID
	}
	if event.SessionID == "" {
		if sessionID, ok := ctx.Value(sessionIDKey).(string); ok {
			event.SessionID = sessionID
		}
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.buffer = append(al.buffer, event)
	if len(al.buffer) >= al.bufferSize {
		al.flush()
	}
}

func (al *AuditLogger) flush() {
	if len(al.buffer) == 0 {
		return
	}
	for _, event := range al.buffer {
		if err := al.encoder.Encode(event); err == nil {
			al.currentSize += 500 // rough per-record estimate
		}
	}
	al.file.Sync()
	al.buffer = al.buffer[:0]

	if al.currentSize >= al.rotateSize {
		al.rotate()
	}
}

func (al *AuditLogger) autoFlush() {
	for {
		select {
		case <-al.flushTicker.C:
			al.mu.Lock()
			al.flush()
			al.mu.Unlock()
		case <-al.stopChan:
			return
		}
	}
}

func (al *AuditLogger) rotate() {
	al.file.Close()

	timestamp := time.Now().Format("20060102-150405")
	rotatedPath := al.filePath + "." + timestamp
	os.Rename(al.filePath, rotatedPath)

	file, err := os.OpenFile(al.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	al.file = file
	al.encoder = json.NewEncoder(file)
	al.currentSize = 0
}

// Close flushes any buffered events and closes the underlying file.
func (al *AuditLogger) Close() error {
	close(al.stopChan)
	al.flushTicker.Stop()

	al.mu.Lock()
	defer al.mu.Unlock()

	al.flush()
	return al.file.Close()
}

func generateEventID() string {
	return fmt.Sprintf("audit-%d", time.Now().UnixNano())
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
