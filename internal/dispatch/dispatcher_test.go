// internal/dispatch/dispatcher_test.go
package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrimarket-onboarding/internal/common/logger"
	"agrimarket-onboarding/internal/models"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	mu            sync.Mutex
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	calls         []*ses.SendEmailInput
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.mu.Lock()
	m.calls = append(m.calls, params)
	m.mu.Unlock()
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, params, optFns...)
	}
	return &ses.SendEmailOutput{}, nil
}

func (m *MockSESService) sentInputs() []*ses.SendEmailInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ses.SendEmailInput(nil), m.calls...)
}

type MockSNSService struct {
	mu          sync.Mutex
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	calls       []*sns.PublishInput
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.mu.Lock()
	m.calls = append(m.calls, params)
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, params, optFns...)
	}
	return &sns.PublishOutput{}, nil
}

func (m *MockSNSService) published() []*sns.PublishInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*sns.PublishInput(nil), m.calls...)
}

type recordingNotificationStore struct {
	mu      sync.Mutex
	records []*models.Notification
	err     error
}

func (s *recordingNotificationStore) Insert(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, n)
	return nil
}

func (s *recordingNotificationStore) all() []*models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Notification(nil), s.records...)
}

type staticAdminDirectory struct {
	admins []*models.Account
	err    error
}

func (d *staticAdminDirectory) ListAdmins(context.Context) ([]*models.Account, error) {
	return d.admins, d.err
}

// ==========================
// Test Fixtures
// ==========================

func testApplicant() *models.Account {
	return &models.Account{
		ID:    "applicant-1",
		Email: "jane@example.com",
		Name:  "Jane",
		Role:  models.RolePendingFarmer,
	}
}

func testApplication() *models.Application {
	return &models.Application{
		ID:          "app-1",
		ApplicantID: "applicant-1",
		Type:        models.TypeFarmer,
		Status:      models.StatusPending,
		Version:     1,
		Profile:     map[string]interface{}{"farmName": "Green Acres"},
	}
}

// ==========================
// Emailer Tests
// ==========================

func TestEmailer_Send(t *testing.T) {
	mockSES := &MockSESService{}
	emailer := NewEmailer(mockSES, "noreply@agrimarket.com", true, logger.NewNoOpLogger())

	err := emailer.Send(context.Background(), testApplicant(), TypeApplicationApproved, map[string]interface{}{
		"recipientName":   "Jane",
		"applicationType": "farmer",
	})
	require.NoError(t, err)

	inputs := mockSES.sentInputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, "noreply@agrimarket.com", *inputs[0].Source)
	assert.Equal(t, []string{"jane@example.com"}, inputs[0].Destination.ToAddresses)
	assert.Equal(t, "Application Approved", *inputs[0].Message.Subject.Data)
	assert.Contains(t, *inputs[0].Message.Body.Text.Data, "Congratulations Jane!")
	assert.Contains(t, *inputs[0].Message.Body.Text.Data, "farmer")
}

func TestEmailer_DisabledSkipsSend(t *testing.T) {
	mockSES := &MockSESService{}
	emailer := NewEmailer(mockSES, "noreply@agrimarket.com", false, logger.NewNoOpLogger())

	err := emailer.Send(context.Background(), testApplicant(), TypeApplicationApproved, nil)
	require.NoError(t, err)
	assert.Empty(t, mockSES.sentInputs())
}

func TestEmailer_UnknownTemplate(t *testing.T) {
	emailer := NewEmailer(&MockSESService{}, "noreply@agrimarket.com", true, logger.NewNoOpLogger())

	err := emailer.Send(context.Background(), testApplicant(), "unknown_type", nil)
	assert.Error(t, err)
}

// ==========================
// Notifier Tests
// ==========================

func TestNotifier_Push(t *testing.T) {
	mockSNS := &MockSNSService{}
	store := &recordingNotificationStore{}
	notifier := NewNotifier(mockSNS, store, "arn:aws:sns:us-east-1:000000000000:onboarding-", true, logger.NewNoOpLogger())

	err := notifier.Push(context.Background(), testApplicant(), "applicant", TypeApplicationSubmitted, map[string]interface{}{
		"recipientName":   "Jane",
		"applicationType": "farmer",
	})
	require.NoError(t, err)

	published := mockSNS.published()
	require.Len(t, published, 1)
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:onboarding-application_submitted", *published[0].TopicArn)
	assert.Contains(t, *published[0].Message, "awaiting review")

	records := store.all()
	require.Len(t, records, 1)
	assert.Equal(t, "sent", records[0].Status)
	assert.Equal(t, "push", records[0].Channel)
	assert.Equal(t, "applicant-1", records[0].RecipientID)
	assert.NotEmpty(t, records[0].SentAt)
}

func TestNotifier_RecordsFailedPublish(t *testing.T) {
	mockSNS := &MockSNSService{
		PublishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("sns unavailable")
		},
	}
	store := &recordingNotificationStore{}
	notifier := NewNotifier(mockSNS, store, "arn:prefix-", true, logger.NewNoOpLogger())

	err := notifier.Push(context.Background(), testApplicant(), "applicant", TypeApplicationSubmitted, nil)
	require.Error(t, err)

	records := store.all()
	require.Len(t, records, 1)
	assert.Equal(t, "failed", records[0].Status)
	assert.Empty(t, records[0].SentAt)
}

func TestNotifier_DisabledStillRecords(t *testing.T) {
	mockSNS := &MockSNSService{}
	store := &recordingNotificationStore{}
	notifier := NewNotifier(mockSNS, store, "arn:prefix-", false, logger.NewNoOpLogger())

	err := notifier.Push(context.Background(), testApplicant(), "applicant", TypeApplicationSubmitted, nil)
	require.NoError(t, err)
	assert.Empty(t, mockSNS.published())

	records := store.all()
	require.Len(t, records, 1)
	assert.Equal(t, "disabled", records[0].Status)
	assert.Empty(t, records[0].SentAt)
}

// ==========================
// Dispatcher Tests
// ==========================

func newTestDispatcher(mockSES *MockSESService, mockSNS *MockSNSService, store *recordingNotificationStore, admins AdminDirectory) *Dispatcher {
	log := logger.NewNoOpLogger()
	emailer := NewEmailer(mockSES, "noreply@agrimarket.com", true, log)
	notifier := NewNotifier(mockSNS, store, "arn:prefix-", true, log)
	return New(Options{QueueSize: 32, Workers: 2, TaskTimeout: time.Second}, emailer, notifier, nil, admins, log)
}

func TestDispatcher_ApplicationSubmitted(t *testing.T) {
	mockSES := &MockSESService{}
	mockSNS := &MockSNSService{}
	store := &recordingNotificationStore{}
	admins := &staticAdminDirectory{admins: []*models.Account{
		{ID: "admin-1", Email: "admin1@agrimarket.com", Name: "Root", Role: models.RoleAdmin},
		{ID: "admin-2", Email: "admin2@agrimarket.com", Name: "Ops", Role: models.RoleAdmin},
	}}

	d := newTestDispatcher(mockSES, mockSNS, store, admins)
	d.Start()
	d.ApplicationSubmitted(testApplication(), testApplicant())
	d.Stop()

	// Applicant email.
	require.Len(t, mockSES.sentInputs(), 1)

	// Applicant push plus one per admin.
	assert.Len(t, mockSNS.published(), 3)

	records := store.all()
	assert.Len(t, records, 3)
	recipientTypes := map[string]int{}
	for _, r := range records {
		recipientTypes[r.RecipientType]++
	}
	assert.Equal(t, 1, recipientTypes["applicant"])
	assert.Equal(t, 2, recipientTypes["admin"])
}

func TestDispatcher_ApplicationDecided(t *testing.T) {
	mockSES := &MockSESService{}
	mockSNS := &MockSNSService{}
	store := &recordingNotificationStore{}

	app := testApplication()
	app.Status = models.StatusRejected
	app.Review = &models.AdminReview{AdminID: "admin-1", RejectionReason: "license expired"}

	d := newTestDispatcher(mockSES, mockSNS, store, &staticAdminDirectory{})
	d.Start()
	d.ApplicationDecided(app, testApplicant(), "rejected")
	d.Stop()

	inputs := mockSES.sentInputs()
	require.Len(t, inputs, 1)
	assert.Contains(t, *inputs[0].Message.Body.Text.Data, "license expired")
	require.Len(t, mockSNS.published(), 1)
}

func TestDispatcher_FailuresDoNotPropagate(t *testing.T) {
	mockSES := &MockSESService{
		SendEmailFunc: func(context.Context, *ses.SendEmailInput, ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("ses throttled")
		},
	}
	mockSNS := &MockSNSService{
		PublishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("sns unavailable")
		},
	}
	store := &recordingNotificationStore{}
	admins := &staticAdminDirectory{err: errors.New("directory down")}

	d := newTestDispatcher(mockSES, mockSNS, store, admins)
	d.Start()
	// Must not panic or block the caller.
	d.ApplicationSubmitted(testApplication(), testApplicant())
	d.Stop()

	// Attempts were made and recorded despite every backend failing.
	assert.NotEmpty(t, store.all())
}

func TestDispatcher_QueueFullDropsTask(t *testing.T) {
	mockSES := &MockSESService{}
	mockSNS := &MockSNSService{}
	store := &recordingNotificationStore{}

	log := logger.NewNoOpLogger()
	emailer := NewEmailer(mockSES, "noreply@agrimarket.com", true, log)
	notifier := NewNotifier(mockSNS, store, "arn:prefix-", true, log)
	d := New(Options{QueueSize: 1, Workers: 1, TaskTimeout: time.Second}, emailer, notifier, nil, &staticAdminDirectory{}, log)

	// Workers not started: the queue fills and further enqueues drop instead
	// of blocking.
	for i := 0; i < 10; i++ {
		d.enqueue("noop", func(context.Context) error { return nil })
	}
	assert.Len(t, d.queue, 1)

	d.Start()
	d.Stop()
}
