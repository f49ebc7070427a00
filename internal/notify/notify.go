package notify

import (
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/agrc/auditor/internal/audit"
)

// Mailer sends the post-run summary over plain SMTP.
type Mailer struct {
	Host string
	Port int
	From string
	To   []string
}

// Send mails body to the configured recipients.
func (m Mailer) Send(subject, body string) error {
	if m.Host == "" {
		return fmt.Errorf("smtp host is not configured")
	}
	if m.From == "" || len(m.To) == 0 {
		return fmt.Errorf("notify sender and recipients are required")
	}

	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	if err := smtp.SendMail(addr, nil, m.From, m.To, message(m.From, m.To, subject, body)); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func message(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// Subject returns a one-line subject for the run notification.
func Subject(run *audit.Run) string {
	day := run.StartedAt.Format("2006-01-02")
	if run.Failures > 0 {
		return fmt.Sprintf("AGOL item audit %s: %d items failed", day, run.Failures)
	}
	return fmt.Sprintf("AGOL item audit %s", day)
}

// Summary builds the notification body from a finished run.
func Summary(run *audit.Run, reportPath string) string {
	fixes := 0
	for _, n := range run.FixCounts() {
		fixes += n
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Audited %d items in %s.\n", len(run.Items), run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	fmt.Fprintf(&b, "Fixes applied: %d\n", fixes)
	fmt.Fprintf(&b, "Items with failures: %d\n", run.Failures)
	if len(run.DuplicateTitles) > 0 {
		fmt.Fprintf(&b, "Titles shared by more than one item: %d\n", len(run.DuplicateTitles))
	}
	if reportPath != "" {
		fmt.Fprintf(&b, "Full report: %s\n", reportPath)
	}
	return b.String()
}
