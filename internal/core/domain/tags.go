package domain

// Tag names an entity category attached to cached responses for bulk invalidation.
type Tag string

const (
	TagUser          Tag = "User"
	TagStudent       Tag = "Student"
	TagTeacher       Tag = "Teacher"
	TagAssessment    Tag = "Assessment"
	TagMark          Tag = "Mark"
	TagAttendance    Tag = "Attendance"
	TagFee           Tag = "Fee"
	TagPayment       Tag = "Payment"
	TagTimetable     Tag = "Timetable"
	TagAnnouncement  Tag = "Announcement"
	TagMessage       Tag = "Message"
	TagNotification  Tag = "Notification"
	TagHostel        Tag = "Hostel"
	TagRoom          Tag = "Room"
	TagSubject       Tag = "Subject"
	TagClass         Tag = "Class"
	TagDepartment    Tag = "Department"
	TagCalendarEvent Tag = "CalendarEvent"
)

// KnownTags lists every tag the API declares.
var KnownTags = []Tag{
	TagUser, TagStudent, TagTeacher, TagAssessment, TagMark, TagAttendance,
	TagFee, TagPayment, TagTimetable, TagAnnouncement, TagMessage,
	TagNotification, TagHostel, TagRoom, TagSubject, TagClass, TagDepartment,
	TagCalendarEvent,
}
