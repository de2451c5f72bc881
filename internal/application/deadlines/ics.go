package deadlines

import (
	"fmt"
	"strings"
	"time"
)

// alarmDays are the VALARM triggers attached to every deadline.
var alarmDays = []int{30, 7, 1}

// BuildICS renders l as an RFC 5545 calendar with one all-day event per
// deadline.  UIDs are stable per (client, filing type, date) so calendar
// clients update events in place on re-import.
func BuildICS(l *Listing, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//Practice Reminders//Filing Deadlines//EN\r\n")
	b.WriteString("CALSCALE:GREGORIAN\r\n")
	b.WriteString("METHOD:PUBLISH\r\n")
	fmt.Fprintf(&b, "X-WR-CALNAME:%s\r\n", escapeText(calendarName(l)))

	stamp := now.UTC().Format("20060102T150405Z")
	for _, it := range l.Items {
		b.WriteString("BEGIN:VEVENT\r\n")
		fmt.Fprintf(&b, "UID:%s-%s-%s@reminders\r\n", l.ClientID, it.FilingType, it.Deadline.Format("20060102"))
		fmt.Fprintf(&b, "DTSTAMP:%s\r\n", stamp)
		fmt.Fprintf(&b, "DTSTART;VALUE=DATE:%s\r\n", it.Deadline.Format("20060102"))
		fmt.Fprintf(&b, "DTEND;VALUE=DATE:%s\r\n", it.Deadline.AddDate(0, 0, 1).Format("20060102"))
		fmt.Fprintf(&b, "SUMMARY:%s\r\n", escapeText(it.DisplayName+" deadline"))
		desc := fmt.Sprintf("%s deadline (%s)", it.DisplayName, it.Source)
		if !it.WorkingDay.Equal(it.Deadline) {
			desc += ", next working day " + it.WorkingDay.Format("2 January 2006")
		}
		fmt.Fprintf(&b, "DESCRIPTION:%s\r\n", escapeText(desc))
		fmt.Fprintf(&b, "CATEGORIES:%s\r\n", it.FilingType)
		for _, d := range alarmDays {
			b.WriteString("BEGIN:VALARM\r\n")
			b.WriteString("ACTION:DISPLAY\r\n")
			fmt.Fprintf(&b, "TRIGGER:-P%dD\r\n", d)
			fmt.Fprintf(&b, "DESCRIPTION:%s\r\n", escapeText(fmt.Sprintf("%s due in %d day(s)", it.DisplayName, d)))
			b.WriteString("END:VALARM\r\n")
		}
		b.WriteString("END:VEVENT\r\n")
	}
	b.WriteString("END:VCALENDAR\r\n")
	return []byte(b.String())
}

func calendarName(l *Listing) string {
	if l.CompanyName != "" {
		return l.CompanyName + " filing deadlines"
	}
	return l.ClientID + " filing deadlines"
}

var icsEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\n", `\n`)

func escapeText(s string) string {
	return icsEscaper.Replace(s)
}
