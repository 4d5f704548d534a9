package model

import "time"

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

type User struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Name      string    `db:"name,omitempty" json:"name,omitempty"`
	Email     string    `db:"email,omitempty" json:"email,omitempty"`
	Role      Role      `db:"role" json:"role"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DisplayName is what parents see as the teacher's name.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

type Template struct {
	ID                  string `db:"id" json:"id"`
	Name                string `db:"name" json:"name"`
	Description         string `db:"description,omitempty" json:"description,omitempty"`
	CollectDonationLink bool   `db:"collect_donation_link" json:"collect_donation_link"`
	CollectContributing bool   `db:"collect_contributing" json:"collect_contributing"`
	CollectDonating     bool   `db:"collect_donating" json:"collect_donating"`
	DisplayNameAsTitle  bool   `db:"display_name_as_title" json:"display_name_as_title"`
	HideEndTime         bool   `db:"hide_end_time" json:"hide_end_time"`
	IsDefault           bool   `db:"is_default" json:"is_default"`
}

type Slot struct {
	ID           string    `db:"id" json:"id"`
	StartTime    time.Time `db:"start_time" json:"start_time"`
	EndTime      time.Time `db:"end_time" json:"end_time"`
	MaxCapacity  int       `db:"max_capacity" json:"max_capacity"`
	Name         string    `db:"name,omitempty" json:"name,omitempty"`
	Description  string    `db:"description,omitempty" json:"description,omitempty"`
	DonationLink string    `db:"donation_link,omitempty" json:"donation_link,omitempty"`
	HideTime     bool      `db:"hide_time" json:"hide_time"`
	HideEndTime  bool      `db:"hide_end_time" json:"hide_end_time"`
	TemplateID   *string   `db:"template_id" json:"template_id,omitempty"`
	EventPageID  *string   `db:"event_page_id" json:"event_page_id,omitempty"`
	CreatedByID  string    `db:"created_by_id" json:"created_by_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type Signup struct {
	ID                string    `db:"id" json:"id"`
	SlotID            string    `db:"slot_id" json:"slot_id"`
	ParentName        string    `db:"parent_name" json:"parent_name"`
	ChildName         string    `db:"child_name,omitempty" json:"child_name,omitempty"`
	Email             string    `db:"email" json:"email"`
	Contribution      string    `db:"contribution,omitempty" json:"contribution,omitempty"`
	Donation          string    `db:"donation,omitempty" json:"donation,omitempty"`
	AttendeeCount     int       `db:"attendee_count" json:"attendee_count"`
	CancellationToken string    `db:"cancellation_token" json:"-"`
	ReminderSent      bool      `db:"reminder_sent" json:"reminder_sent"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// SlotView is a slot together with its live occupancy.
type SlotView struct {
	Slot
	Occupied  int    `json:"occupied"`
	Remaining int    `json:"remaining"`
	OwnerName string `json:"owner_name"`
}

func NewSlotView(s Slot, occupied int, ownerName string) SlotView {
	remaining := s.MaxCapacity - occupied
	if remaining < 0 {
		remaining = 0
	}
	return SlotView{Slot: s, Occupied: occupied, Remaining: remaining, OwnerName: ownerName}
}

// SignupDetails is a signup with the slot it belongs to and the slot owner's display name.
type SignupDetails struct {
	Signup    Signup
	Slot      Slot
	OwnerName string
}

type SlotFilter struct {
	EventPageID string
	OwnerID     string
	From        time.Time
}

// Actor is the authenticated caller of a request, resolved once per request
// by middleware and passed explicitly to service calls.
type Actor struct {
	UserID string
	Role   Role
	Status Status
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin && a.Status == StatusActive
}

func (a Actor) IsActive() bool {
	return a.UserID != "" && a.Status == StatusActive
}

// CanManage reports whether the actor may mutate a slot owned by ownerID.
func (a Actor) CanManage(ownerID string) bool {
	if !a.IsActive() {
		return false
	}
	return a.IsAdmin() || (ownerID != "" && a.UserID == ownerID)
}
