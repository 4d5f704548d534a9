package calendar

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
)

func TestFeed_EncodeDecode(t *testing.T) {
	start := time.Date(2026, 11, 3, 15, 0, 0, 0, time.UTC)
	slots := []model.SlotView{
		model.NewSlotView(model.Slot{ID: "s1", StartTime: start, EndTime: start.Add(15 * time.Minute), MaxCapacity: 2}, 1, "Ms. Rivera"),
		model.NewSlotView(model.Slot{ID: "s2", Name: "Open House", StartTime: start.Add(time.Hour), EndTime: start.Add(2 * time.Hour), MaxCapacity: 30, HideEndTime: true}, 0, "Ms. Rivera"),
	}
	feed := Feed{Teacher: "Ms. Rivera", BaseURL: "https://school.example/", Slots: slots, Stamp: start.Add(-time.Hour)}

	var buf bytes.Buffer
	if err := feed.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "BEGIN:VCALENDAR") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}

	cal, err := ical.NewDecoder(&buf).Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	events := cal.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	first := events[0]
	if uid, _ := first.Props.Text(ical.PropUID); uid != "s1@parent-invite-app" {
		t.Fatalf("unexpected uid %q", uid)
	}
	if sum, _ := first.Props.Text(ical.PropSummary); sum != "Conference with Ms. Rivera" {
		t.Fatalf("unexpected summary %q", sum)
	}
	got, err := first.DateTimeStart(time.UTC)
	if err != nil || !got.Equal(start) {
		t.Fatalf("DTSTART = %v, %v", got, err)
	}
	desc, _ := first.Props.Text(ical.PropDescription)
	if !strings.Contains(desc, "1 of 2 spots available") || !strings.Contains(desc, "https://school.example/slots/s1") {
		t.Fatalf("unexpected description %q", desc)
	}

	if events[1].Props.Get(ical.PropDateTimeEnd) != nil {
		t.Fatalf("hidden end time was written")
	}
}
