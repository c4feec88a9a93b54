package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleMentor  Role = "MENTOR"
)

type User struct {
	ID         string `json:"id"`
	NIM        string `json:"nim,omitempty"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Role       Role   `json:"role"`
	Major      string `json:"major,omitempty"`
	Status     string `json:"status,omitempty"`
	MaxCredits int    `json:"maxCredits,omitempty"`
}

type LoginResult struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	User    User   `json:"user"`
	Message string `json:"message,omitempty"`
}

type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatReserved  SeatStatus = "RESERVED"
	SeatOccupied  SeatStatus = "OCCUPIED"
)

type Seat struct {
	ID                string     `json:"id"`
	WorkshopSessionID string     `json:"workshopSessionId,omitempty"`
	SeatNumber        string     `json:"seatNumber,omitempty"`
	RowLetter         string     `json:"rowLetter"`
	ColumnNumber      int        `json:"columnNumber"`
	Status            SeatStatus `json:"status"`
	ReservedBy        string     `json:"reservedBy,omitempty"`
	ReservedAt        string     `json:"reservedAt,omitempty"`
}

type SeatReservation struct {
	SeatID     string `json:"seatId"`
	SeatNumber string `json:"seatNumber"`
	ReservedAt string `json:"reservedAt"`
	ExpiresIn  int    `json:"expiresIn"`
}

type Schedule struct {
	Day       string `json:"day"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Room      string `json:"room"`
}

type Workshop struct {
	ID                string     `json:"workshopId"`
	SessionID         string     `json:"sessionId"`
	Code              string     `json:"code"`
	Name              string     `json:"name"`
	Credits           int        `json:"credits"`
	Semester          string     `json:"semester,omitempty"`
	Faculty           string     `json:"faculty,omitempty"`
	WorkshopType      string     `json:"workshopType,omitempty"`
	Quota             int        `json:"quota"`
	Enrolled          int        `json:"enrolled"`
	MentorID          string     `json:"mentorId,omitempty"`
	Mentor            string     `json:"mentor,omitempty"`
	Schedules         []Schedule `json:"schedules,omitempty"`
	Schedule          string     `json:"schedule,omitempty"`
	Room              string     `json:"room,omitempty"`
	SeatsEnabled      bool       `json:"seatsEnabled"`
	SeatLayout        string     `json:"seatLayout,omitempty"`
	Month             int        `json:"month,omitempty"`
	Year              int        `json:"year,omitempty"`
	Status            string     `json:"status,omitempty"`
	Date              string     `json:"date,omitempty"`
	RegistrationStart string     `json:"registrationStart,omitempty"`
	RegistrationEnd   string     `json:"registrationEnd,omitempty"`
}

// UnmarshalJSON folds the legacy "classId" key into SessionID so the rest of
// the client never has to ask which one is set.
func (w *Workshop) UnmarshalJSON(b []byte) error {
	type plain Workshop
	var aux struct {
		plain
		ClassID string `json:"classId"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*w = Workshop(aux.plain)
	if w.SessionID == "" {
		w.SessionID = aux.ClassID
	}
	return nil
}

func (w Workshop) Full() bool { return w.Quota > 0 && w.Enrolled >= w.Quota }

// RegistrationWindow parses the registration bounds. Zero values mean the
// bound is unset or unparseable.
func (w Workshop) RegistrationWindow() (start, end time.Time) {
	return parseTime(w.RegistrationStart), parseTime(w.RegistrationEnd)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

type Enrollment struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	WorkshopCode string          `json:"workshopCode"`
	WorkshopName string          `json:"workshopName"`
	SessionCode  string          `json:"sessionCode,omitempty"`
	Credits      int             `json:"credits"`
	EnrolledAt   string          `json:"enrolledAt,omitempty"`
	Schedules    []Schedule      `json:"schedules,omitempty"`
	Schedule     string          `json:"schedule,omitempty"`
	Mentor       string          `json:"mentor,omitempty"`
	Tuition      decimal.Decimal `json:"tuition"`
	SeatNumber   string          `json:"seatNumber,omitempty"`
	SeatID       string          `json:"seatId,omitempty"`
	Date         string          `json:"date,omitempty"`
	Rating       int             `json:"rating,omitempty"`
	Review       string          `json:"review,omitempty"`
	RatedAt      string          `json:"ratedAt,omitempty"`
	IsCompleted  bool            `json:"isCompleted"`
}

type Student struct {
	ID         string `json:"id"`
	NIM        string `json:"nim"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Major      string `json:"major,omitempty"`
	MaxCredits int    `json:"maxCredits"`
	Status     string `json:"status,omitempty"`
}

type PasswordResetRequest struct {
	ID          string `json:"id"`
	NIM         string `json:"nim"`
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	Status      string `json:"status"`
	RequestedAt string `json:"requestedAt,omitempty"`
}

type FeedbackSummary struct {
	Workshops []WorkshopFeedback `json:"workshops"`
	Overall   float64            `json:"overallAverage"`
	Total     int                `json:"totalRatings"`
}

type WorkshopFeedback struct {
	WorkshopName  string   `json:"workshopName"`
	WorkshopCode  string   `json:"workshopCode"`
	AverageRating float64  `json:"averageRating"`
	TotalRatings  int      `json:"totalRatings"`
	Reviews       []string `json:"reviews,omitempty"`
}

type AISuggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Priority    string `json:"priority,omitempty"`
}
