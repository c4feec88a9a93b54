package types

import "encoding/json"

// DefaultMaxCredits applies when the server omits maxCredits.
const DefaultMaxCredits = 24

// WorkshopList is the normalized body of GET /workshops/available. Older
// servers call the list "courses".
type WorkshopList struct {
	Success   bool       `json:"success"`
	Workshops []Workshop `json:"workshops"`
}

func (l *WorkshopList) UnmarshalJSON(b []byte) error {
	var aux struct {
		Success   bool       `json:"success"`
		Workshops []Workshop `json:"workshops"`
		Courses   []Workshop `json:"courses"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	l.Success = aux.Success
	l.Workshops = aux.Workshops
	if l.Workshops == nil {
		l.Workshops = aux.Courses
	}
	return nil
}

// MyWorkshops is the normalized body of GET /enrollment/my-workshops.
type MyWorkshops struct {
	Workshops    []Enrollment `json:"workshops"`
	TotalCredits int          `json:"totalCredits"`
	MaxCredits   int          `json:"maxCredits"`
}

func (m *MyWorkshops) UnmarshalJSON(b []byte) error {
	var aux struct {
		Workshops    []Enrollment `json:"workshops"`
		Courses      []Enrollment `json:"courses"`
		TotalCredits int          `json:"totalCredits"`
		MaxCredits   int          `json:"maxCredits"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	m.Workshops = aux.Workshops
	if m.Workshops == nil {
		m.Workshops = aux.Courses
	}
	m.TotalCredits = aux.TotalCredits
	m.MaxCredits = aux.MaxCredits
	if m.MaxCredits == 0 {
		m.MaxCredits = DefaultMaxCredits
	}
	return nil
}

type WorkshopDetails struct {
	Success  bool     `json:"success"`
	Workshop Workshop `json:"workshop"`
}

type SeatList struct {
	Success bool   `json:"success"`
	Seats   []Seat `json:"seats"`
}

type EnrollResult struct {
	Success      bool   `json:"success"`
	EnrollmentID string `json:"enrollmentId,omitempty"`
	TotalCredits int    `json:"totalCredits"`
	Message      string `json:"message,omitempty"`
}

type History struct {
	History []Enrollment `json:"history"`
}

// Ack is the {success, message} envelope most mutating endpoints return.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	NIMNIDN  string `json:"nimNidn"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Major    string `json:"major"`
	Role     Role   `json:"role"`
}

type WorkshopInput struct {
	Name              string `json:"name"`
	Code              string `json:"code"`
	Credits           int    `json:"credits"`
	Quota             int    `json:"quota"`
	WorkshopType      string `json:"workshopType,omitempty"`
	Day               string `json:"day,omitempty"`
	TimeStart         string `json:"timeStart,omitempty"`
	TimeEnd           string `json:"timeEnd,omitempty"`
	SeatsEnabled      bool   `json:"seatsEnabled"`
	Rows              int    `json:"rows,omitempty"`
	Cols              int    `json:"cols,omitempty"`
	Month             int    `json:"month,omitempty"`
	Year              int    `json:"year,omitempty"`
	Date              string `json:"date,omitempty"`
	Room              string `json:"room,omitempty"`
	RegistrationStart string `json:"registrationStart,omitempty"`
	RegistrationEnd   string `json:"registrationEnd,omitempty"`
}

type MentorWorkshops struct {
	Workshops []Workshop `json:"workshops"`
}

func (m *MentorWorkshops) UnmarshalJSON(b []byte) error {
	var l WorkshopList
	if err := json.Unmarshal(b, &l); err != nil {
		return err
	}
	m.Workshops = l.Workshops
	return nil
}

type StudentList struct {
	Students []Student `json:"students"`
}

type UserList struct {
	Users []User `json:"users"`
}

type QueueUserList struct {
	Users []QueueUser `json:"users"`
}

type PasswordResetList struct {
	Requests []PasswordResetRequest `json:"requests"`
}

type AISuggestions struct {
	Success     bool           `json:"success"`
	Suggestions []AISuggestion `json:"suggestions"`
	CachedAt    string         `json:"cachedAt,omitempty"`
	ExpiresAt   string         `json:"expiresAt,omitempty"`
}
