package models

import (
	"time"

	"gorm.io/gorm"
)

type Course struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Code      string         `json:"code" gorm:"not null;uniqueIndex;size:32"`
	Title     string         `json:"title" gorm:"not null;size:200"`
	OwnerID   string         `json:"owner_id" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

type Enrollment struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	CourseID   uint      `json:"course_id" gorm:"not null;uniqueIndex:idx_enrollment_course_student"`
	StudentID  string    `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_enrollment_course_student;index"`
	EnrolledAt time.Time `json:"enrolled_at"`

	Course Course `json:"-" gorm:"foreignKey:CourseID"`
}

type Quiz struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	CourseID    uint    `json:"course_id" gorm:"not null;index"`
	Title       string  `json:"title" gorm:"not null;size:200"`
	Description *string `json:"description" gorm:"type:text"`

	// TimeLimit is in minutes; nil means the attempt has no countdown.
	TimeLimit *int `json:"time_limit"`
	// MaxAttempts caps completed attempts per learner; nil means unlimited.
	MaxAttempts *int `json:"max_attempts"`
	// TotalMarks is the sum of question marks, recomputed on every question change.
	TotalMarks float64 `json:"total_marks" gorm:"not null;default:0"`

	StartTime time.Time `json:"start_time" gorm:"not null"`
	EndTime   time.Time `json:"end_time" gorm:"not null;index"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:false;index"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Course    Course     `json:"-" gorm:"foreignKey:CourseID"`
	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:QuizID"`
}

func (Course) TableName() string {
	return "courses"
}

func (Enrollment) TableName() string {
	return "enrollments"
}

func (Quiz) TableName() string {
	return "quizzes"
}

// WindowOpen reports whether now falls inside [StartTime, EndTime].
func (q *Quiz) WindowOpen(now time.Time) bool {
	return !now.Before(q.StartTime) && !now.After(q.EndTime)
}

// HasTimeLimit reports whether attempts at this quiz are timed.
func (q *Quiz) HasTimeLimit() bool {
	return q.TimeLimit != nil && *q.TimeLimit > 0
}

// TimeLimitDuration returns the attempt duration, or zero when untimed.
func (q *Quiz) TimeLimitDuration() time.Duration {
	if !q.HasTimeLimit() {
		return 0
	}
	return time.Duration(*q.TimeLimit) * time.Minute
}
