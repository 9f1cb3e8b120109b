package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/hostelmess/core"
)

// Complaint statuses
const (
	ComplaintPending    = "pending"
	ComplaintInProgress = "in-progress"
	ComplaintResolved   = "resolved"
	ComplaintRejected   = "rejected"
)

// OpenComplaintStatuses are the statuses of complaints still awaiting action.
var OpenComplaintStatuses = []string{ComplaintPending, ComplaintInProgress}

// FeedbackEntry is a student's rating of a served meal.
type FeedbackEntry struct {
	ID        string        `json:"id"`
	StudentID string        `json:"student_id"`
	MealType  core.MealType `json:"meal_type"`
	Rating    int           `json:"rating"` // 1-5
	Comment   string        `json:"comment,omitempty"`
	Date      time.Time     `json:"date"`
	CreatedAt time.Time     `json:"created_at"`
}

type Complaint struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MenuEntry struct {
	ID        string        `json:"id"`
	Date      time.Time     `json:"date"`
	MealType  core.MealType `json:"meal_type"`
	Items     []string      `json:"items"`
	CreatedAt time.Time     `json:"created_at"`
}

type Overview struct {
	Period            core.Period     `json:"period"`
	ActiveStudents    int             `json:"active_students"`
	PresentAttendance int             `json:"present_attendance"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	AverageRating     float64         `json:"average_rating"`
	OpenComplaints    int             `json:"open_complaints"`
	MenusCreated      int             `json:"menus_created"`
}

type AttendanceTrend struct {
	Date     time.Time     `json:"date"`
	MealType core.MealType `json:"meal_type"`
	Present  int           `json:"present"`
	Absent   int           `json:"absent"`
	Total    int           `json:"total"`
}

type RevenueTrend struct {
	Month   int             `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
	Bills   int             `json:"bills"`
}

type RatingBucket struct {
	Rating int `json:"rating"`
	Count  int `json:"count"`
}

type MealRating struct {
	MealType core.MealType `json:"meal_type"`
	Average  float64       `json:"average"`
	Count    int           `json:"count"`
}

type DailyRating struct {
	Date    time.Time `json:"date"`
	Average float64   `json:"average"`
	Count   int       `json:"count"`
}

type FeedbackAnalytics struct {
	Histogram []RatingBucket `json:"histogram"`
	ByMeal    []MealRating   `json:"by_meal"`
	Daily     []DailyRating  `json:"daily"`
}

type ComplaintAnalytics struct {
	ByStatus              map[string]int `json:"by_status"`
	ByCategory            map[string]int `json:"by_category"`
	Resolved              int            `json:"resolved"`
	AverageResolutionDays float64        `json:"average_resolution_days"`
}

type MealCount struct {
	MealType core.MealType `json:"meal_type"`
	Count    int           `json:"count"`
}
