package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actions written by the session and vault services.
const (
	ActionRegister          = "user_register"
	ActionLogin             = "user_login"
	ActionLoginFailed       = "user_login_failed"
	ActionOTPRequest        = "otp_request"
	ActionOTPLogin          = "otp_login"
	ActionOAuthLogin        = "oauth_login"
	ActionOAuthUnlink       = "oauth_unlink"
	ActionTokenRefresh      = "token_refresh"
	ActionLogout            = "user_logout"
	ActionProfileUpdate     = "user_profile_update"
	ActionUserStatus        = "user_status_change"
	ActionCredentialSave    = "platform_credential_save"
	ActionCredentialAccess  = "platform_credential_access"
	ActionCredentialDisable = "platform_credential_disable"
)

// Entry is one security-relevant action. UserID is nil for events that
// happen before the caller is identified.
type Entry struct {
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink persists or forwards audit entries.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// GormSink appends entries to the audit_logs table.
type GormSink struct {
	db *gorm.DB
}

func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

func (s *GormSink) Write(ctx context.Context, entry Entry) error {
	row := models.AuditLog{
		UserID:    entry.UserID,
		Action:    entry.Action,
		Resource:  entry.Resource,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
		CreatedAt: entry.Timestamp,
	}
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		row.Details = datatypes.JSON(b)
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, entry Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder is the write-only front of the audit trail. Failures are logged
// and never returned: auditing must not change the outcome of a request.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.sink == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now().UTC()
	}
	if err := r.sink.Write(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "audit write failed", "action", entry.Action, "error", err)
	}
}
