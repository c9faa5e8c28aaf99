package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/schoolms/portal-client/internal/api/middleware"
	"github.com/schoolms/portal-client/internal/core/domain"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func dashboardContext(e *echo.Echo, method, target string, roles ...string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(middleware.CtxUserID, "1")
	c.Set(middleware.CtxRoles, roles)
	return c, rec
}

func TestDashboardHandler_StatsDefaultsToFirstRole(t *testing.T) {
	h := NewDashboardHandler(func() time.Time { return fixedNow })
	c, rec := dashboardContext(newTestEcho(), http.MethodGet, "/dashboard/stats/", domain.RoleTeacher)

	if err := h.Stats(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var stats domain.DashboardStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if stats.PendingMarks == nil || stats.TotalStudents != nil {
		t.Fatalf("expected teacher stats, got %s", rec.Body.String())
	}
}

func TestDashboardHandler_StatsRoleAccess(t *testing.T) {
	h := NewDashboardHandler(func() time.Time { return fixedNow })
	e := newTestEcho()

	c, _ := dashboardContext(e, http.MethodGet, "/dashboard/stats/?role=ADMIN", domain.RoleStudent)
	if err := h.Stats(c); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a student asking admin stats, got %v", err)
	}

	c, rec := dashboardContext(e, http.MethodGet, "/dashboard/stats/?role=PARENT", domain.RoleAdmin)
	if err := h.Stats(c); err != nil {
		t.Fatalf("admin should read any role: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, _ = dashboardContext(e, http.MethodGet, "/dashboard/stats/?role=JANITOR", domain.RoleAdmin)
	var he *echo.HTTPError
	if err := h.Stats(c); !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown role, got %v", err)
	}
}

func TestDashboardHandler_RecentActivityLimit(t *testing.T) {
	h := NewDashboardHandler(func() time.Time { return fixedNow })
	c, rec := dashboardContext(newTestEcho(), http.MethodGet, "/dashboard/recent-activity/?limit=2", domain.RoleAdmin)

	if err := h.RecentActivity(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var items []domain.RecentActivity
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if !items[0].Timestamp.After(items[1].Timestamp) {
		t.Fatalf("expected newest first")
	}
}

func TestDashboardHandler_BadLimit(t *testing.T) {
	h := NewDashboardHandler(func() time.Time { return fixedNow })
	c, _ := dashboardContext(newTestEcho(), http.MethodGet, "/dashboard/recent-activity/?limit=abc", domain.RoleAdmin)

	var he *echo.HTTPError
	if err := h.RecentActivity(c); !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestDashboardHandler_UpcomingEventsWindow(t *testing.T) {
	h := NewDashboardHandler(func() time.Time { return fixedNow })
	e := newTestEcho()

	c, rec := dashboardContext(e, http.MethodGet, "/dashboard/upcoming-events/?days_ahead=7", domain.RoleStudent)
	if err := h.UpcomingEvents(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var items []domain.UpcomingEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(items) != 1 || items[0].ID != "evt-1" {
		t.Fatalf("expected only the exam within 7 days, got %+v", items)
	}

	c, rec = dashboardContext(e, http.MethodGet, "/dashboard/upcoming-events/", domain.RoleStudent)
	if err := h.UpcomingEvents(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	items = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 events in the default window, got %d", len(items))
	}
}

func TestDashboardHandler_CreateEvent(t *testing.T) {
	h := NewDashboardHandler(func() time.Time { return fixedNow })
	e := newTestEcho()

	body := `{"title":"Science fair","type":"cultural","start_date":"2026-03-05T10:00:00Z"}`
	c, rec := postJSON(e, "/dashboard/upcoming-events/", body)
	c.Set(middleware.CtxUserID, "2")
	if err := h.CreateEvent(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	c, rec = dashboardContext(e, http.MethodGet, "/dashboard/upcoming-events/?days_ahead=7", domain.RoleStudent)
	if err := h.UpcomingEvents(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var items []domain.UpcomingEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(items) != 2 || items[1].Title != "Science fair" {
		t.Fatalf("expected the new event after the exam, got %+v", items)
	}
	if items[1].CreatedBy == nil || items[1].CreatedBy.ID != "2" {
		t.Fatalf("expected creator recorded, got %+v", items[1].CreatedBy)
	}
}
