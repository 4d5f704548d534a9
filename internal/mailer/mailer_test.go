package mailer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testConference() Conference {
	return Conference{
		Email:             "parent@example.com",
		ParentName:        "Dana <script>",
		ChildName:         "Sam",
		TeacherName:       "Ms. Rivera",
		Start:             time.Date(2026, 11, 3, 23, 0, 0, 0, time.UTC),
		End:               time.Date(2026, 11, 3, 23, 30, 0, 0, time.UTC),
		CancellationToken: "tok_-123",
	}
}

func TestConfirmation_ContainsCancelLinkAndEscapesNames(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	r := NewRenderer("https://school.example", "Quail Run Elementary", loc)

	e, err := r.Confirmation(testConference())
	if err != nil {
		t.Fatalf("Confirmation: %v", err)
	}
	if e.To != "parent@example.com" {
		t.Fatalf("unexpected recipient %q", e.To)
	}
	if e.Subject != "Conference Confirmed - Quail Run Elementary" {
		t.Fatalf("unexpected subject %q", e.Subject)
	}
	if !strings.Contains(e.HTML, "https://school.example/cancel/tok_-123") {
		t.Fatalf("cancel link missing from body:\n%s", e.HTML)
	}
	if e.CancelURL != "https://school.example/cancel/tok_-123" {
		t.Fatalf("unexpected CancelURL %q", e.CancelURL)
	}
	if strings.Contains(e.HTML, "<script>") {
		t.Fatalf("parent name was not escaped:\n%s", e.HTML)
	}
	if !strings.Contains(e.HTML, "3:00 PM - 3:30 PM") {
		t.Fatalf("expected local time range in body:\n%s", e.HTML)
	}
}

func TestReminder_DefaultsChildName(t *testing.T) {
	r := NewRenderer("https://school.example", "", time.UTC)
	c := testConference()
	c.ChildName = ""

	e, err := r.Reminder(c)
	if err != nil {
		t.Fatalf("Reminder: %v", err)
	}
	if e.Subject != "Reminder: Conference Tomorrow" {
		t.Fatalf("unexpected subject %q", e.Subject)
	}
	if !strings.Contains(e.HTML, "your student") {
		t.Fatalf("expected default child name:\n%s", e.HTML)
	}
}

func TestFormatWhen(t *testing.T) {
	start := time.Date(2026, 11, 3, 15, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	cases := []struct {
		name              string
		hideEnd, hideTime bool
		want              string
	}{
		{"full", false, false, "Tuesday, November 3, 2026 3:00 PM - 3:30 PM"},
		{"hide end", true, false, "Tuesday, November 3, 2026 3:00 PM"},
		{"hide time", false, true, "Tuesday, November 3, 2026"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatWhen(start, end, tc.hideEnd, tc.hideTime, time.UTC); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestLogSink_NeverFails(t *testing.T) {
	log := zerolog.Nop()
	if err := NewLogSink(&log).Send(context.Background(), Email{To: "a@b.c", Subject: "s"}); err != nil {
		t.Fatalf("LogSink.Send: %v", err)
	}
}

func TestSMTPSink_CancelledContext(t *testing.T) {
	log := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewSMTPSink(SMTPConfig{Host: "127.0.0.1", Port: 1}, &log).Send(ctx, Email{To: "a@b.c"})
	if err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
