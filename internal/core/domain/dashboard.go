package domain

import "time"

// DashboardStats carries role-specific counters. Every field is optional;
// the API only fills the ones relevant to the requesting role.
type DashboardStats struct {
	TotalStudents *int `json:"total_students,omitempty"`
	TotalTeachers *int `json:"total_teachers,omitempty"`
	TotalClasses  *int `json:"total_classes,omitempty"`

	PendingApprovals *int `json:"pending_approvals,omitempty"`
	ActiveUsers      *int `json:"active_users,omitempty"`
	TotalStaff       *int `json:"total_staff,omitempty"`

	AssignedClasses  *int `json:"assigned_classes,omitempty"`
	AssignedSubjects *int `json:"assigned_subjects,omitempty"`
	PendingMarks     *int `json:"pending_marks,omitempty"`

	AttendanceRate     *float64 `json:"attendance_rate,omitempty"`
	AverageGrade       *float64 `json:"average_grade,omitempty"`
	PendingAssignments *int     `json:"pending_assignments,omitempty"`

	ChildrenCount        *int     `json:"children_count,omitempty"`
	TotalOutstandingFees *float64 `json:"total_outstanding_fees,omitempty"`

	TotalCollections   *float64 `json:"total_collections,omitempty"`
	OutstandingBalance *float64 `json:"outstanding_balance,omitempty"`
	Arrears            *float64 `json:"arrears,omitempty"`

	TotalCapacity    *int `json:"total_capacity,omitempty"`
	CurrentOccupancy *int `json:"current_occupancy,omitempty"`
	AvailableRooms   *int `json:"available_rooms,omitempty"`
}

type ActivityType string

const (
	ActivityStudentEnrollment     ActivityType = "student_enrollment"
	ActivityTeacherAssignment     ActivityType = "teacher_assignment"
	ActivityMarksEntry            ActivityType = "marks_entry"
	ActivityAttendanceMarked      ActivityType = "attendance_marked"
	ActivityPaymentReceived       ActivityType = "payment_received"
	ActivityAnnouncementPublished ActivityType = "announcement_published"
	ActivityTimetableUpdated      ActivityType = "timetable_updated"
	ActivityLeaveRequest          ActivityType = "leave_request"
	ActivityTransferRequest       ActivityType = "transfer_request"
	ActivityUserLogin             ActivityType = "user_login"
	ActivityUserLogout            ActivityType = "user_logout"
)

// ActorRef is the short user reference embedded in activity and event items.
type ActorRef struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

type RecentActivity struct {
	ID          string         `json:"id"`
	Type        ActivityType   `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	User        *ActorRef      `json:"user,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type EventType string

const (
	EventExam                 EventType = "exam"
	EventHoliday              EventType = "holiday"
	EventMeeting              EventType = "meeting"
	EventSports               EventType = "sports"
	EventCultural             EventType = "cultural"
	EventParentTeacherMeeting EventType = "parent_teacher_meeting"
	EventAssessment           EventType = "assessment"
	EventDeadline             EventType = "deadline"
	EventOther                EventType = "other"
)

type UpcomingEvent struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Type        EventType  `json:"type"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Location    string     `json:"location,omitempty"`
	Audience    []string   `json:"audience,omitempty"`
	IsAllDay    bool       `json:"is_all_day,omitempty"`
	CreatedBy   *ActorRef  `json:"created_by,omitempty"`
}

// StatsQuery filters GET /dashboard/stats/. Zero values are omitted.
type StatsQuery struct {
	Role  string
	Limit int
}

type ActivityQuery struct {
	Limit int
}

type EventsQuery struct {
	DaysAhead int
	Limit     int
}

// NewEvent is the payload for creating a calendar event.
type NewEvent struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Type        EventType `json:"type"`
	StartDate   time.Time `json:"start_date"`
	Location    string    `json:"location,omitempty"`
	Audience    []string  `json:"audience,omitempty"`
	IsAllDay    bool      `json:"is_all_day,omitempty"`
}
