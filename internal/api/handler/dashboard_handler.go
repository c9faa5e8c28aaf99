package handler

import (
	"net/http"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/schoolms/portal-client/internal/core/domain"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
	defaultDaysAhead = 30
)

// DashboardHandler serves role-specific dashboard data. Activity and events
// come from an in-memory calendar seeded at construction.
type DashboardHandler struct {
	now func() time.Time

	mu       sync.RWMutex
	activity []domain.RecentActivity
	events   []domain.UpcomingEvent
}

func NewDashboardHandler(now func() time.Time) *DashboardHandler {
	if now == nil {
		now = time.Now
	}
	h := &DashboardHandler{now: now}
	h.seed(now())
	return h
}

type createEventRequest struct {
	Title       string           `json:"title"      validate:"required"`
	Description string           `json:"description"`
	Type        domain.EventType `json:"type"       validate:"required"`
	StartDate   time.Time        `json:"start_date" validate:"required"`
	Location    string           `json:"location"`
	Audience    []string         `json:"audience"`
	IsAllDay    bool             `json:"is_all_day"`
}

// Stats returns counters for the requested role. The role defaults to the
// caller's first role; only admins may ask for a role they do not hold.
//
//	GET /dashboard/stats/?role=TEACHER
func (h *DashboardHandler) Stats(c echo.Context) error {
	_, roles, err := ctxClaims(c)
	if err != nil {
		return err
	}

	role := c.QueryParam("role")
	if role == "" {
		if len(roles) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "role is required")
		}
		role = roles[0]
	}
	if !slices.Contains(roles, role) && !slices.Contains(roles, domain.RoleAdmin) {
		return domain.ErrForbidden
	}

	stats, ok := statsForRole(role)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown role: "+role)
	}
	return c.JSON(http.StatusOK, stats)
}

// RecentActivity returns the newest activity items first.
//
//	GET /dashboard/recent-activity/?limit=10
func (h *DashboardHandler) RecentActivity(c echo.Context) error {
	if _, _, err := ctxClaims(c); err != nil {
		return err
	}
	limit, err := intParam(c, "limit", defaultListLimit)
	if err != nil {
		return err
	}

	h.mu.RLock()
	items := slices.Clone(h.activity)
	h.mu.RUnlock()

	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	if len(items) > limit {
		items = items[:limit]
	}
	return c.JSON(http.StatusOK, items)
}

// UpcomingEvents returns events starting within days_ahead, soonest first.
//
//	GET /dashboard/upcoming-events/?days_ahead=30&limit=10
func (h *DashboardHandler) UpcomingEvents(c echo.Context) error {
	if _, _, err := ctxClaims(c); err != nil {
		return err
	}
	days, err := intParam(c, "days_ahead", defaultDaysAhead)
	if err != nil {
		return err
	}
	limit, err := intParam(c, "limit", defaultListLimit)
	if err != nil {
		return err
	}

	now := h.now()
	horizon := now.AddDate(0, 0, days)

	h.mu.RLock()
	items := make([]domain.UpcomingEvent, 0, len(h.events))
	for _, ev := range h.events {
		if !ev.StartDate.Before(now) && !ev.StartDate.After(horizon) {
			items = append(items, ev)
		}
	}
	h.mu.RUnlock()

	sort.SliceStable(items, func(i, j int) bool { return items[i].StartDate.Before(items[j].StartDate) })
	if len(items) > limit {
		items = items[:limit]
	}
	return c.JSON(http.StatusOK, items)
}

// CreateEvent adds a calendar event. Restricted by RBAC at the router.
//
//	POST /dashboard/upcoming-events/
func (h *DashboardHandler) CreateEvent(c echo.Context) error {
	userID, _, err := ctxClaims(c)
	if err != nil {
		return err
	}
	var req createEventRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ev := domain.UpcomingEvent{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		StartDate:   req.StartDate.UTC(),
		Location:    req.Location,
		Audience:    req.Audience,
		IsAllDay:    req.IsAllDay,
		CreatedBy:   &domain.ActorRef{ID: userID},
	}

	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()

	return c.JSON(http.StatusCreated, ev)
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a positive integer")
	}
	return min(n, maxListLimit), nil
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func statsForRole(role string) (domain.DashboardStats, bool) {
	switch role {
	case domain.RoleAdmin:
		return domain.DashboardStats{
			TotalStudents:    intp(1240),
			TotalTeachers:    intp(86),
			TotalClasses:     intp(42),
			PendingApprovals: intp(7),
			ActiveUsers:      intp(1105),
			TotalStaff:       intp(120),
		}, true
	case domain.RoleTeacher:
		return domain.DashboardStats{
			AssignedClasses:  intp(4),
			AssignedSubjects: intp(2),
			PendingMarks:     intp(18),
			AttendanceRate:   floatp(94.5),
		}, true
	case domain.RoleStudent:
		return domain.DashboardStats{
			AttendanceRate:     floatp(96.2),
			AverageGrade:       floatp(78.4),
			PendingAssignments: intp(3),
		}, true
	case domain.RoleParent:
		return domain.DashboardStats{
			ChildrenCount:        intp(2),
			TotalOutstandingFees: floatp(450),
			AttendanceRate:       floatp(95),
		}, true
	case domain.RoleBursar:
		return domain.DashboardStats{
			TotalCollections:   floatp(182500),
			OutstandingBalance: floatp(23400),
			Arrears:            floatp(5100),
		}, true
	case domain.RoleHostelWarden:
		return domain.DashboardStats{
			TotalCapacity:    intp(300),
			CurrentOccupancy: intp(271),
			AvailableRooms:   intp(9),
		}, true
	}
	return domain.DashboardStats{}, false
}

func (h *DashboardHandler) seed(now time.Time) {
	admin := &domain.ActorRef{ID: "1", Name: "Admin User"}
	teacher := &domain.ActorRef{ID: "2", Name: "John Teacher"}

	h.activity = []domain.RecentActivity{
		{ID: "act-1", Type: domain.ActivityStudentEnrollment, Title: "New student enrolled",
			Description: "Jane Student joined Form 2B", User: admin, Timestamp: now.Add(-2 * time.Hour)},
		{ID: "act-2", Type: domain.ActivityMarksEntry, Title: "Marks entered",
			Description: "Mathematics mid-term marks for Form 2B", User: teacher, Timestamp: now.Add(-5 * time.Hour),
			Metadata: map[string]any{"subject": "Mathematics", "count": 38}},
		{ID: "act-3", Type: domain.ActivityAttendanceMarked, Title: "Attendance marked",
			Description: "Morning roll call for Form 2B", User: teacher, Timestamp: now.Add(-26 * time.Hour)},
		{ID: "act-4", Type: domain.ActivityPaymentReceived, Title: "Fee payment received",
			Description: "Term 3 fees for Jane Student", Timestamp: now.Add(-50 * time.Hour),
			Metadata: map[string]any{"amount": 450.0}},
		{ID: "act-5", Type: domain.ActivityAnnouncementPublished, Title: "Announcement published",
			Description: "Sports day schedule", User: admin, Timestamp: now.Add(-72 * time.Hour)},
	}

	day := func(n int) time.Time { return now.Add(time.Duration(n) * 24 * time.Hour).UTC() }
	h.events = []domain.UpcomingEvent{
		{ID: "evt-1", Title: "Mid-term exams", Type: domain.EventExam, StartDate: day(3),
			Audience: []string{domain.RoleStudent, domain.RoleTeacher}, CreatedBy: admin},
		{ID: "evt-2", Title: "Parent-teacher meeting", Type: domain.EventParentTeacherMeeting, StartDate: day(10),
			Location: "Main hall", Audience: []string{domain.RoleParent, domain.RoleTeacher}, CreatedBy: admin},
		{ID: "evt-3", Title: "Sports day", Type: domain.EventSports, StartDate: day(21), IsAllDay: true,
			Location: "School field", CreatedBy: teacher},
		{ID: "evt-4", Title: "End of term", Type: domain.EventHoliday, StartDate: day(45), IsAllDay: true},
	}
}
