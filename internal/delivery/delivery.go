// Package delivery emails a built artifact to its site's configured
// recipient, isolating one site's failure from every other site's.
package delivery

import (
	"fmt"
	"strings"

	gomail "gopkg.in/gomail.v2"

	"github.com/ntchinda/posync/internal/errs"
	"github.com/ntchinda/posync/internal/model"
)

// Sender delivers artifacts over SMTP using a fixed transport.
type Sender struct {
	Transport model.EmailTransport
	dialer    *gomail.Dialer
}

// NewSender builds a Sender bound to transport. The dialer itself opens
// its connection lazily on the first Send call. transport.StartTLS picks
// between mandatory and disabled STARTTLS; posync never falls back to
// gomail's opportunistic default, since that would silently downgrade to
// plaintext against a relay that doesn't advertise STARTTLS.
func NewSender(transport model.EmailTransport) *Sender {
	d := gomail.NewDialer(transport.Host, transport.Port, transport.Username, transport.Password)
	if transport.StartTLS {
		d.StartTLSPolicy = gomail.MandatoryStartTLS
	} else {
		d.StartTLSPolicy = gomail.NoStartTLS
	}
	return &Sender{Transport: transport, dialer: d}
}

// Send emails artifact to recipient, with subject formatted as
// "Database Sync - <site> - <T> tables, <R> records" to match the
// summary line recipients have always seen. A failure here is wrapped as
// an *errs.DeliveryError so the caller can isolate it per site.
func (s *Sender) Send(artifact model.Artifact, recipient string) error {
	if recipient == "" {
		recipient = s.Transport.DefaultReceiver
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.Transport.From)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", Subject(artifact))
	m.SetBody("text/plain", Body(artifact))
	m.Attach(artifact.Path)

	if err := s.dialer.DialAndSend(m); err != nil {
		return &errs.DeliveryError{Site: artifact.Site, Err: err}
	}
	return nil
}

// Subject formats the summary line recipients have always seen for a
// delivered artifact: "Database Sync - <site> - <T> tables, <R> records".
func Subject(artifact model.Artifact) string {
	return fmt.Sprintf("Database Sync - %s - %d tables, %d records",
		artifact.Site, artifact.TableCount, artifact.RowCount)
}

// Body builds the email's text body: a summary line followed by one
// "<table>: <N> records" line per table in the artifact, matching the
// per-table breakdown recipients have always seen in their sync reports.
func Body(artifact model.Artifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sync Report for %s\n\n", artifact.Site)
	fmt.Fprintf(&b, "Attached: %d tables, %d records.\n\n", artifact.TableCount, artifact.RowCount)
	for _, tc := range artifact.TableCounts {
		fmt.Fprintf(&b, "%s: %d records\n", tc.Table, tc.Rows)
	}
	return b.String()
}
