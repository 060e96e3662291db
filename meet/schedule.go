package meet

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bosley/parley/sheet"
)

const (
	columnName      = "Candidate Name"
	columnEmail     = "Email"
	columnRole      = "Role"
	columnScheduled = "Scheduled Time"
	columnLink      = "Meeting Link"
)

// ScheduleLayouts are the accepted "Scheduled Time" formats, tried in order.
var ScheduleLayouts = []string{
	"02-01-2006 03:04 PM",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/06 15:04",
}

// Meeting is one scheduled interview slot.
type Meeting struct {
	CandidateName string
	Email         string
	Role          string
	Link          string
	Scheduled     time.Time
	// Slot is the scheduled time as written in the sheet.
	Slot string
}

// ID identifies the meeting across schedule reloads.
func (m Meeting) ID() string {
	return m.CandidateName + "_" + m.Slot
}

// ParseSlot reads a scheduled time in loc.
func ParseSlot(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range ScheduleLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized scheduled time %q", raw)
}

// ReadSchedule loads meetings from the first sheet of path. Rows without a
// link or with an unreadable time are skipped. Missing emails are filled
// from contacts, keyed by candidate name.
func ReadSchedule(path string, loc *time.Location, contacts map[string]string) ([]Meeting, error) {
	tbl, err := sheet.Read(path)
	if err != nil {
		return nil, err
	}

	var out []Meeting
	for i := 0; i < tbl.Len(); i++ {
		m := Meeting{
			CandidateName: orDefault(tbl.Get(i, columnName), "Unknown"),
			Email:         tbl.Get(i, columnEmail),
			Role:          orDefault(tbl.Get(i, columnRole), "Unknown"),
			Link:          tbl.Get(i, columnLink),
			Slot:          tbl.Get(i, columnScheduled),
		}
		if m.Link == "" {
			continue
		}
		t, err := ParseSlot(m.Slot, loc)
		if err != nil {
			slog.Warn("Skipping meeting", "candidate", m.CandidateName, "error", err)
			continue
		}
		m.Scheduled = t
		if m.Email == "" || strings.EqualFold(m.Email, "nan") {
			m.Email = orDefault(contacts[m.CandidateName], "Not provided")
		}
		out = append(out, m)
	}
	return out, nil
}

// ReadContacts maps candidate names to emails from a sheet with
// "Candidate Name" and "Email" columns.
func ReadContacts(path string) (map[string]string, error) {
	tbl, err := sheet.Read(path)
	if err != nil {
		return nil, err
	}
	contacts := make(map[string]string)
	for i := 0; i < tbl.Len(); i++ {
		name, email := tbl.Get(i, columnName), tbl.Get(i, columnEmail)
		if name != "" && email != "" {
			contacts[name] = email
		}
	}
	return contacts, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
