// Package notification delivers coordinator alerts raised by the compliance
// workflow. Messages are rendered from {{key}} templates, handed to a Sender
// (SQS in production, the log in development) and kept in memory so failed
// deliveries can be retried on the next sweep tick.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status values of a Notification.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Built-in template ids.
const (
	TemplateStepOverdue       = "step-overdue"
	TemplateCaseEscalated     = "case-escalated"
	TemplateAssignmentCreated = "assignment-created"
)

// DefaultMaxAttempts bounds automatic retries of a failed notification.
const DefaultMaxAttempts = 5

// Notification represents a single outbound notification.
type Notification struct {
	ID           string            `json:"id"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	Attempts     int               `json:"attempts"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Sender delivers a rendered notification.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}

// Notifier is the narrow surface domain services depend on.
type Notifier interface {
	Notify(ctx context.Context, templateID string, data map[string]string, recipient string) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateStepOverdue,
			Name:    "Workflow Step Overdue",
			Subject: "Overdue: {{stage}} for case {{case_id}}",
			Body:    "The {{stage}} step for case {{case_id}} passed its deadline of {{deadline}}. Legislative basis: {{references}}.",
		},
		{
			ID:      TemplateCaseEscalated,
			Name:    "Case Escalated",
			Subject: "Non-compliance escalation for case {{case_id}}",
			Body:    "Case {{case_id}} has been escalated for non-compliance. Respond by {{deadline}}. Reason: {{reason}}.",
		},
		{
			ID:      TemplateAssignmentCreated,
			Name:    "Case Assigned",
			Subject: "New case assigned: {{case_id}}",
			Body:    "Case {{case_id}} has been assigned to you ({{reason}}).",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement. Keys
// present in the template but absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, n *Notification) error {
	s.logger.Info().
		Str("notification_id", n.ID).
		Str("recipient", n.Recipient).
		Str("template", n.TemplateID).
		Str("subject", n.Subject).
		Msg("notification")
	return nil
}

// MockSender is a test double for Sender.
type MockSender struct {
	mu         sync.Mutex
	calls      []Notification
	ShouldFail bool
	FailError  string
}

func (m *MockSender) Send(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, *n)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// SetFailing toggles failure mode.
func (m *MockSender) SetFailing(fail bool) {
	m.mu.Lock()
	m.ShouldFail = fail
	m.mu.Unlock()
}

// Calls returns a copy of recorded sends.
func (m *MockSender) Calls() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Notification Manager
// ---------------------------------------------------------------------------

// Manager orchestrates rendering, delivery and retry of notifications.
type Manager struct {
	sender        Sender
	templates     *TemplateEngine
	logger        zerolog.Logger
	maxAttempts   int
	now           func() time.Time
	mu            sync.RWMutex
	notifications map[string]*Notification
}

func NewManager(sender Sender, tpl *TemplateEngine, logger zerolog.Logger) *Manager {
	return &Manager{
		sender:        sender,
		templates:     tpl,
		logger:        logger,
		maxAttempts:   DefaultMaxAttempts,
		now:           func() time.Time { return time.Now().UTC() },
		notifications: make(map[string]*Notification),
	}
}

// Send delivers n and records the outcome. A failed send is kept for retry.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = m.now()
	n.Status = StatusPending

	m.mu.Lock()
	m.notifications[n.ID] = n
	m.mu.Unlock()

	return m.deliver(ctx, n)
}

func (m *Manager) deliver(ctx context.Context, n *Notification) error {
	sendErr := m.sender.Send(ctx, n)

	m.mu.Lock()
	defer m.mu.Unlock()
	n.Attempts++
	if sendErr != nil {
		n.Status = StatusFailed
		n.Error = sendErr.Error()
		return sendErr
	}
	n.Status = StatusSent
	sentAt := m.now()
	n.SentAt = &sentAt
	n.Error = ""
	return nil
}

// SendFromTemplate renders a template and sends the resulting notification.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		Recipient:    recipient,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}
	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Notify implements Notifier. Delivery failures are logged and left for
// RetryFailed; only rendering errors are returned.
func (m *Manager) Notify(ctx context.Context, templateID string, data map[string]string, recipient string) error {
	n, err := m.SendFromTemplate(ctx, templateID, data, recipient)
	if err != nil && n == nil {
		return err
	}
	if err != nil {
		m.logger.Warn().Err(err).Str("notification_id", n.ID).Str("template", templateID).Msg("notification delivery failed, queued for retry")
	}
	return nil
}

// Get retrieves a notification by ID.
func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	n, ok := m.notifications[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return n, nil
}

// ListByRecipient returns notifications for a recipient, newest first, up to limit.
func (m *Manager) ListByRecipient(_ context.Context, recipient string, limit int) []*Notification {
	m.mu.RLock()
	var result []*Notification
	for _, n := range m.notifications {
		if n.Recipient == recipient {
			result = append(result, n)
		}
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Retry re-sends a failed notification.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.RLock()
	n, ok := m.notifications[id]
	var status string
	if ok {
		status = n.Status
	}
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("notification %q not found", id)
	}
	if status != StatusFailed {
		return fmt.Errorf("notification %q is not in failed status (current: %s)", id, status)
	}
	return m.deliver(ctx, n)
}

// RetryFailed re-sends every failed notification that still has attempts
// left and returns how many were delivered.
func (m *Manager) RetryFailed(ctx context.Context) int {
	m.mu.RLock()
	var ids []string
	for id, n := range m.notifications {
		if n.Status == StatusFailed && n.Attempts < m.maxAttempts {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	delivered := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if err := m.Retry(ctx, id); err != nil {
			m.logger.Debug().Err(err).Str("notification_id", id).Msg("retry failed")
			continue
		}
		delivered++
	}
	if delivered > 0 {
		m.logger.Info().Int("retried", delivered).Int("pending", len(ids)-delivered).Msg("failed notifications retried")
	}
	return delivered
}

// Stats returns counts of notifications grouped by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}
