package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestManager(sender Sender) *Manager {
	return NewManager(sender, NewTemplateEngine(), zerolog.Nop())
}

// ---------------------------------------------------------------------------
// Template Engine Tests
// ---------------------------------------------------------------------------

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "test-tpl",
		Subject: "Hello {{name}}",
		Body:    "Dear {{name}}, your code is {{code}}.",
	})

	subject, body, err := eng.Render("test-tpl", map[string]string{"name": "Alice", "code": "1234"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Hello Alice" {
		t.Errorf("subject = %q, want %q", subject, "Hello Alice")
	}
	if body != "Dear Alice, your code is 1234." {
		t.Errorf("body = %q", body)
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	if _, _, err := NewTemplateEngine().Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

func TestTemplateEngine_BuiltInTemplates(t *testing.T) {
	eng := NewTemplateEngine()
	for _, id := range []string{TemplateStepOverdue, TemplateCaseEscalated, TemplateAssignmentCreated} {
		if _, _, err := eng.Render(id, nil); err != nil {
			t.Errorf("built-in template %q: %v", id, err)
		}
	}
}

func TestTemplateEngine_StepOverdue(t *testing.T) {
	subject, body, err := NewTemplateEngine().Render(TemplateStepOverdue, map[string]string{
		"stage":      "month_2_review",
		"case_id":    "c-1",
		"deadline":   "2026-03-15",
		"references": "WIRC Act 2013 s.105",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Overdue: month_2_review for case c-1" {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "2026-03-15") || !strings.Contains(body, "s.105") {
		t.Errorf("body missing fields: %q", body)
	}
}

func TestTemplateEngine_RenderMissingKey(t *testing.T) {
	_, body, err := NewTemplateEngine().Render(TemplateCaseEscalated, map[string]string{"case_id": "c-9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "{{deadline}}") {
		t.Errorf("expected unreplaced placeholder to remain, got %q", body)
	}
}

// ---------------------------------------------------------------------------
// Manager Tests
// ---------------------------------------------------------------------------

func TestManager_Send(t *testing.T) {
	sender := &MockSender{}
	mgr := newTestManager(sender)

	n := &Notification{Recipient: "coord@example.com", Subject: "s", Body: "b"}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if n.Status != StatusSent || n.SentAt == nil || n.Attempts != 1 {
		t.Errorf("unexpected state %+v", n)
	}
	if len(sender.Calls()) != 1 {
		t.Errorf("expected 1 send, got %d", len(sender.Calls()))
	}
}

func TestManager_SendFailed(t *testing.T) {
	sender := &MockSender{ShouldFail: true, FailError: "queue unavailable"}
	mgr := newTestManager(sender)

	n := &Notification{Recipient: "coord@example.com", Body: "b"}
	if err := mgr.Send(context.Background(), n); err == nil {
		t.Fatal("expected send error")
	}
	if n.Status != StatusFailed || n.Error != "queue unavailable" {
		t.Errorf("unexpected state %+v", n)
	}
	stored, err := mgr.Get(context.Background(), n.ID)
	if err != nil || stored.Status != StatusFailed {
		t.Errorf("expected failed notification to be stored, got %+v, %v", stored, err)
	}
}

func TestManager_NotifySwallowsDeliveryErrors(t *testing.T) {
	sender := &MockSender{ShouldFail: true, FailError: "boom"}
	mgr := newTestManager(sender)

	err := mgr.Notify(context.Background(), TemplateStepOverdue, map[string]string{"case_id": "c-1"}, "coord@example.com")
	if err != nil {
		t.Fatalf("expected delivery error to be queued, got %v", err)
	}
	if mgr.Stats(context.Background())[StatusFailed] != 1 {
		t.Error("expected one failed notification queued for retry")
	}
}

func TestManager_NotifyUnknownTemplate(t *testing.T) {
	mgr := newTestManager(&MockSender{})
	if err := mgr.Notify(context.Background(), "missing", nil, "x@example.com"); err == nil {
		t.Fatal("expected render error")
	}
}

func TestManager_Retry(t *testing.T) {
	sender := &MockSender{ShouldFail: true, FailError: "down"}
	mgr := newTestManager(sender)

	n := &Notification{Recipient: "coord@example.com", Body: "b"}
	_ = mgr.Send(context.Background(), n)

	sender.SetFailing(false)
	if err := mgr.Retry(context.Background(), n.ID); err != nil {
		t.Fatalf("unexpected retry error: %v", err)
	}
	if n.Status != StatusSent || n.Error != "" || n.Attempts != 2 {
		t.Errorf("unexpected state after retry %+v", n)
	}
}

func TestManager_RetryNonFailed(t *testing.T) {
	mgr := newTestManager(&MockSender{})
	n := &Notification{Recipient: "coord@example.com", Body: "b"}
	_ = mgr.Send(context.Background(), n)

	if err := mgr.Retry(context.Background(), n.ID); err == nil {
		t.Fatal("expected error retrying a sent notification")
	}
}

func TestManager_RetryFailed(t *testing.T) {
	sender := &MockSender{ShouldFail: true, FailError: "down"}
	mgr := newTestManager(sender)

	for i := 0; i < 3; i++ {
		_ = mgr.Send(context.Background(), &Notification{Recipient: "coord@example.com", Body: "b"})
	}
	if got := mgr.RetryFailed(context.Background()); got != 0 {
		t.Errorf("expected 0 delivered while sender is down, got %d", got)
	}

	sender.SetFailing(false)
	if got := mgr.RetryFailed(context.Background()); got != 3 {
		t.Errorf("expected 3 delivered, got %d", got)
	}
	if mgr.Stats(context.Background())[StatusSent] != 3 {
		t.Errorf("expected all sent, got %v", mgr.Stats(context.Background()))
	}
}

func TestManager_RetryFailedLogsOnlyDeliveries(t *testing.T) {
	var buf bytes.Buffer
	sender := &MockSender{ShouldFail: true, FailError: "down"}
	mgr := NewManager(sender, NewTemplateEngine(), zerolog.New(&buf))

	_ = mgr.Send(context.Background(), &Notification{Recipient: "coord@example.com", Body: "b"})
	mgr.RetryFailed(context.Background())
	if strings.Contains(buf.String(), "failed notifications retried") {
		t.Fatalf("nothing was delivered, got log %s", buf.String())
	}

	sender.SetFailing(false)
	mgr.RetryFailed(context.Background())
	if got := strings.Count(buf.String(), "failed notifications retried"); got != 1 {
		t.Errorf("expected one retry summary, got %d in %s", got, buf.String())
	}
}

func TestManager_RetryFailedRespectsMaxAttempts(t *testing.T) {
	sender := &MockSender{ShouldFail: true, FailError: "down"}
	mgr := newTestManager(sender)
	mgr.maxAttempts = 2

	_ = mgr.Send(context.Background(), &Notification{Recipient: "coord@example.com", Body: "b"})
	mgr.RetryFailed(context.Background())
	mgr.RetryFailed(context.Background())

	if got := len(sender.Calls()); got != 2 {
		t.Errorf("expected 2 attempts in total, got %d", got)
	}
}

func TestManager_ListByRecipient(t *testing.T) {
	mgr := newTestManager(&MockSender{})
	for i := 0; i < 3; i++ {
		_ = mgr.Send(context.Background(), &Notification{Recipient: "a@example.com", Body: "b"})
	}
	_ = mgr.Send(context.Background(), &Notification{Recipient: "b@example.com", Body: "b"})

	if got := len(mgr.ListByRecipient(context.Background(), "a@example.com", 10)); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := len(mgr.ListByRecipient(context.Background(), "a@example.com", 2)); got != 2 {
		t.Errorf("expected limit 2 to apply, got %d", got)
	}
}

func TestManager_ConcurrentSend(t *testing.T) {
	sender := &MockSender{}
	mgr := newTestManager(sender)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = mgr.SendFromTemplate(context.Background(), TemplateStepOverdue, map[string]string{"case_id": "c"}, "coord@example.com")
		}()
	}
	wg.Wait()

	if got := mgr.Stats(context.Background())[StatusSent]; got != 50 {
		t.Errorf("expected 50 sent, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Handler Tests
// ---------------------------------------------------------------------------

func TestHandler_Stats(t *testing.T) {
	mgr := newTestManager(&MockSender{})
	_ = mgr.Send(context.Background(), &Notification{Recipient: "a@example.com", Body: "b"})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/notifications/stats", nil), rec)

	if err := NewHandler(mgr).HandleStats(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var stats map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats[StatusSent] != 1 {
		t.Errorf("expected 1 sent, got %v", stats)
	}
}

func TestHandler_ListRequiresRecipient(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/notifications", nil), httptest.NewRecorder())

	err := NewHandler(newTestManager(&MockSender{})).HandleList(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_GetNotFound(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("missing")

	err := NewHandler(newTestManager(&MockSender{})).HandleGet(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
