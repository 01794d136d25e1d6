package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/identity-core/internal/models"
	"github.com/ahmetcoskunkizilkaya/identity-core/internal/testutil"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	entries []Entry
	err     error
}

func (c *captureSink) Write(_ context.Context, e Entry) error {
	c.entries = append(c.entries, e)
	return c.err
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

func TestGormSinkPersistsEntry(t *testing.T) {
	db := testutil.NewDB(t)
	rec := NewRecorder(NewGormSink(db))
	userID := uuid.New()

	rec.Record(context.Background(), Entry{
		UserID:    &userID,
		Action:    ActionLogin,
		Resource:  "user",
		Details:   map[string]any{"method": "password"},
		IPAddress: "203.0.113.7",
		UserAgent: "curl/8.0",
	})
	rec.Record(context.Background(), Entry{Action: ActionOTPRequest, Resource: "otp"})

	var rows []models.AuditLog
	require.NoError(t, db.Order("action").Find(&rows).Error)
	require.Len(t, rows, 2)

	login := rows[1]
	assert.Equal(t, ActionLogin, login.Action)
	require.NotNil(t, login.UserID)
	assert.Equal(t, userID, *login.UserID)
	assert.Equal(t, "203.0.113.7", login.IPAddress)
	assert.False(t, login.CreatedAt.IsZero())

	var details map[string]any
	require.NoError(t, json.Unmarshal(login.Details, &details))
	assert.Equal(t, "password", details["method"])

	assert.Nil(t, rows[0].UserID)
}

func TestRecorderSwallowsSinkErrors(t *testing.T) {
	sink := &captureSink{err: errors.New("disk full")}
	rec := NewRecorder(sink)

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), Entry{Action: ActionLogout})
	})
	require.Len(t, sink.entries, 1)
	assert.False(t, sink.entries[0].Timestamp.IsZero())
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	assert.NotPanics(t, func() {
		rec.Record(context.Background(), Entry{Action: ActionLogout})
	})
}

func TestMultiSinkWritesAllAndJoinsErrors(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{err: errors.New("b failed")}
	c := &captureSink{}

	err := MultiSink{a, b, c}.Write(context.Background(), Entry{Action: ActionRegister})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b failed")
	assert.Len(t, a.entries, 1)
	assert.Len(t, c.entries, 1)
}

func TestKafkaSinkPublishesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w}
	userID := uuid.New()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, sink.Write(context.Background(), Entry{
		UserID:    &userID,
		Action:    ActionCredentialAccess,
		Resource:  "platform_credential",
		Timestamp: ts,
	}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, userID.String(), string(w.msgs[0].Key))
	assert.Equal(t, ts, w.msgs[0].Time)

	var decoded Entry
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, ActionCredentialAccess, decoded.Action)

	w.err = errors.New("broker down")
	err := sink.Write(context.Background(), Entry{Action: ActionLogout})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
