// Package notify relays new contact submissions to the site owner by email.
//
// Delivery is best effort: a Notifier never returns an error to its caller.
// Every attempt produces a Result, and a failed attempt carries an error that
// wraps ErrDelivery. There is no retry, queue or persistence of failures.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/cis-contact/internal/domain"
)

// ErrDelivery marks a failed delivery attempt (dial, auth, recipient rejected).
var ErrDelivery = errors.New("notification delivery failed")

// Notifier delivers one notification for a stored submission.
//
// Implementations must be safe for concurrent use and must report failures
// through Result.Err instead of panicking.
type Notifier interface {
	Notify(ctx context.Context, sub domain.Submission) Result
}

// Result is the observable outcome of one delivery attempt.
type Result struct {
	SubmissionID uint
	To           string
	Skipped      bool // no transport configured
	Elapsed      time.Duration
	Err          error
}

// OK reports whether the attempt succeeded or was deliberately skipped.
func (r Result) OK() bool { return r.Err == nil }

// Message is a transport-neutral email.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

const (
	subjectPrefix = "Nuevo mensaje de contacto: "
	textTemplate  = "Has recibido un nuevo mensaje desde el sitio web de CIS:\n\nNombre: %s\nEmail: %s\nMensaje:\n%s"
	htmlTemplate  = "<p>Has recibido un nuevo mensaje desde el sitio web de CIS:</p>\n" +
		"<p><strong>Nombre:</strong> %s<br>\n<strong>Email:</strong> %s</p>\n" +
		"<p><strong>Mensaje:</strong><br>\n%s</p>\n"
)

// strict strips every tag and escapes the remaining text.
var strict = bluemonday.StrictPolicy()

// Compose builds the fixed-format notification for sub, addressed from -> to.
// The subject carries the sender name; both bodies carry name, email and
// message. Replies go to the address the visitor typed in.
func Compose(sub domain.Submission, from, to string) Message {
	return Message{
		From:    from,
		To:      to,
		ReplyTo: sub.Email,
		Subject: subjectPrefix + oneLine(sub.Name),
		Text:    fmt.Sprintf(textTemplate, sub.Name, sub.Email, sub.Message),
		HTML: fmt.Sprintf(htmlTemplate,
			strict.Sanitize(sub.Name),
			strict.Sanitize(sub.Email),
			strings.ReplaceAll(strict.Sanitize(sub.Message), "\n", "<br>\n"),
		),
	}
}

// oneLine collapses whitespace (including CR/LF) so user input cannot split
// the Subject header, and composes the result to NFC for header display.
// Bodies carry the stored values verbatim.
func oneLine(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// Nop skips delivery. It is used when no mail transport is configured.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(_ context.Context, sub domain.Submission) Result {
	return Result{SubmissionID: sub.ID, Skipped: true}
}

// Recorder keeps composed messages in memory instead of sending them.
// Setting Fail makes every attempt fail with an error wrapping ErrDelivery.
type Recorder struct {
	From string
	To   string
	Fail error

	mu    sync.Mutex
	calls int
	sent  []Message
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, sub domain.Submission) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	res := Result{SubmissionID: sub.ID, To: r.To}
	if r.Fail != nil {
		res.Err = fmt.Errorf("%w: %w", ErrDelivery, r.Fail)
		return res
	}
	r.sent = append(r.sent, Compose(sub, r.From, r.To))
	return res
}

// Calls returns how many delivery attempts were made.
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Sent returns a copy of the successfully "delivered" messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}
