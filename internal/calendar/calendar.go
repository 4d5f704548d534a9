// Package calendar renders a teacher's slots as an iCalendar feed parents can
// subscribe to.
package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
)

const productID = "-//parent-invite-app//Conference Slots//EN"

type Feed struct {
	Teacher string
	BaseURL string
	Slots   []model.SlotView
	// Stamp is written as DTSTAMP on every event.
	Stamp time.Time
}

func (f Feed) Calendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText("X-WR-CALNAME", f.Teacher+" conferences")

	for _, s := range f.Slots {
		cal.Children = append(cal.Children, f.event(s).Component)
	}
	return cal
}

func (f Feed) event(s model.SlotView) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, s.ID+"@parent-invite-app")
	event.Props.SetDateTime(ical.PropDateTimeStamp, f.Stamp.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, s.StartTime.UTC())
	if !s.HideEndTime {
		event.Props.SetDateTime(ical.PropDateTimeEnd, s.EndTime.UTC())
	}
	event.Props.SetText(ical.PropSummary, summary(s, f.Teacher))

	var desc []string
	if s.Description != "" {
		desc = append(desc, s.Description)
	}
	desc = append(desc, fmt.Sprintf("%d of %d spots available", s.Remaining, s.MaxCapacity))
	if f.BaseURL != "" {
		desc = append(desc, strings.TrimRight(f.BaseURL, "/")+"/slots/"+s.ID)
	}
	event.Props.SetText(ical.PropDescription, strings.Join(desc, "\n"))
	return event
}

func summary(s model.SlotView, teacher string) string {
	name := s.Name
	if name == "" {
		name = "Conference"
	}
	if teacher == "" {
		return name
	}
	return name + " with " + teacher
}

func (f Feed) Encode(w io.Writer) error {
	if err := ical.NewEncoder(w).Encode(f.Calendar()); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}
