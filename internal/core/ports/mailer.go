package ports

import "context"

// Mailer delivers account lifecycle notifications. Delivery failure is a
// side-channel concern: callers persist state first and never roll back on a
// failed send.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, otp, name string) error
	SendWelcomeEmail(ctx context.Context, to, name string) error
	SendPasswordResetEmail(ctx context.Context, to, otp, name string) error
}

// MailKind identifies a notification template.
type MailKind string

const (
	MailVerification  MailKind = "verification"
	MailWelcome       MailKind = "welcome"
	MailPasswordReset MailKind = "password_reset"
)

// MailJob is a queued notification. OTP is empty for kinds that carry no code.
type MailJob struct {
	Kind MailKind
	To   string
	Name string
	OTP  string
}

// MailEnqueuer hands a notification to the background delivery pipeline.
// Enqueue never fails from the caller's point of view.
type MailEnqueuer interface {
	Enqueue(job MailJob)
}
