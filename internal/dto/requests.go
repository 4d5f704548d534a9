package dto

import (
	"time"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
)

type SignupRequest struct {
	ParentName    string `json:"parent_name" validate:"required,min=2,max=255"`
	ChildName     string `json:"child_name" validate:"max=255"`
	Email         string `json:"email" validate:"required,email,max=320"`
	AttendeeCount int    `json:"attendee_count" validate:"omitempty,positive,lte=50"`
	Contribution  string `json:"contribution" validate:"max=1000"`
	Donation      string `json:"donation" validate:"max=1000"`
}

type SignupResponse struct {
	ID            string    `json:"id"`
	SlotID        string    `json:"slot_id"`
	ParentName    string    `json:"parent_name"`
	ChildName     string    `json:"child_name,omitempty"`
	Email         string    `json:"email"`
	AttendeeCount int       `json:"attendee_count"`
	CancelURL     string    `json:"cancel_url"`
	CreatedAt     time.Time `json:"created_at"`
}

type CreateSlotRequest struct {
	StartTime    time.Time  `json:"start_time" validate:"required,future"`
	EndTime      *time.Time `json:"end_time"`
	MaxCapacity  int        `json:"max_capacity" validate:"required,positive,lte=10000"`
	Name         string     `json:"name" validate:"max=255"`
	Description  string     `json:"description" validate:"max=5000"`
	DonationLink string     `json:"donation_link" validate:"omitempty,url,max=2048"`
	HideTime     *bool      `json:"hide_time"`
	HideEndTime  *bool      `json:"hide_end_time"`
	TemplateID   string     `json:"template_id" validate:"max=64"`
	EventPageID  string     `json:"event_page_id" validate:"max=64"`
}

type UpdateSlotRequest struct {
	StartTime    *time.Time `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	MaxCapacity  *int       `json:"max_capacity" validate:"omitempty,gte=1,lte=10000"`
	Name         *string    `json:"name" validate:"omitempty,max=255"`
	Description  *string    `json:"description" validate:"omitempty,max=5000"`
	DonationLink *string    `json:"donation_link" validate:"omitempty,max=2048"`
	HideTime     *bool      `json:"hide_time"`
	HideEndTime  *bool      `json:"hide_end_time"`
}

type TokenParam struct {
	Token string `uri:"token" validate:"required,token"`
}

// CancellationView is what the cancellation page shows before the parent confirms.
type CancellationView struct {
	SignupID      string    `json:"signup_id"`
	ParentName    string    `json:"parent_name"`
	ChildName     string    `json:"child_name,omitempty"`
	Email         string    `json:"email"`
	AttendeeCount int       `json:"attendee_count"`
	TeacherName   string    `json:"teacher_name"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	HideTime      bool      `json:"hide_time"`
	HideEndTime   bool      `json:"hide_end_time"`
}

func NewCancellationView(d model.SignupDetails) CancellationView {
	return CancellationView{
		SignupID:      d.Signup.ID,
		ParentName:    d.Signup.ParentName,
		ChildName:     d.Signup.ChildName,
		Email:         d.Signup.Email,
		AttendeeCount: d.Signup.AttendeeCount,
		TeacherName:   d.OwnerName,
		StartTime:     d.Slot.StartTime,
		EndTime:       d.Slot.EndTime,
		HideTime:      d.Slot.HideTime,
		HideEndTime:   d.Slot.HideEndTime,
	}
}

type NotificationKind string

const (
	NotifyConfirmation NotificationKind = "confirmation"
	NotifyReminder     NotificationKind = "reminder"
	NotifyCancellation NotificationKind = "cancellation"
)

// NotificationMessage is the RabbitMQ payload for a queued email.
type NotificationMessage struct {
	Kind              NotificationKind `json:"kind"`
	SignupID          string           `json:"signup_id,omitempty"`
	Email             string           `json:"email"`
	ParentName        string           `json:"parent_name"`
	ChildName         string           `json:"child_name,omitempty"`
	TeacherName       string           `json:"teacher_name,omitempty"`
	StartTime         time.Time        `json:"start_time"`
	EndTime           time.Time        `json:"end_time,omitempty"`
	HideTime          bool             `json:"hide_time,omitempty"`
	HideEndTime       bool             `json:"hide_end_time,omitempty"`
	CancellationToken string           `json:"cancellation_token,omitempty"`
}

func NewNotificationMessage(kind NotificationKind, d model.SignupDetails) NotificationMessage {
	return NotificationMessage{
		Kind:              kind,
		SignupID:          d.Signup.ID,
		Email:             d.Signup.Email,
		ParentName:        d.Signup.ParentName,
		ChildName:         d.Signup.ChildName,
		TeacherName:       d.OwnerName,
		StartTime:         d.Slot.StartTime,
		EndTime:           d.Slot.EndTime,
		HideTime:          d.Slot.HideTime,
		HideEndTime:       d.Slot.HideEndTime,
		CancellationToken: d.Signup.CancellationToken,
	}
}

func (m NotificationMessage) Details() model.SignupDetails {
	return model.SignupDetails{
		Signup: model.Signup{
			ID:                m.SignupID,
			Email:             m.Email,
			ParentName:        m.ParentName,
			ChildName:         m.ChildName,
			CancellationToken: m.CancellationToken,
		},
		Slot: model.Slot{
			StartTime:   m.StartTime,
			EndTime:     m.EndTime,
			HideTime:    m.HideTime,
			HideEndTime: m.HideEndTime,
		},
		OwnerName: m.TeacherName,
	}
}
