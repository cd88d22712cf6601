package email

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// Config captures SMTP delivery settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers account lifecycle notifications over SMTP.
type SMTPMailer struct {
	cfg Config
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendVerificationEmail(ctx context.Context, to, otp, name string) error {
	body := fmt.Sprintf("<p>Hello %s,</p><p>Your verification code is: <strong>%s</strong>. It expires in 10 minutes.</p>", name, otp)
	return m.send(ctx, to, "Your verification code for Melkam Psychotherapy", body)
}

func (m *SMTPMailer) SendWelcomeEmail(ctx context.Context, to, name string) error {
	body := fmt.Sprintf("<p>Hello %s,</p><p>Your email is verified. Welcome aboard!</p>", name)
	return m.send(ctx, to, "Welcome to Melkam Psychotherapy", body)
}

func (m *SMTPMailer) SendPasswordResetEmail(ctx context.Context, to, otp, name string) error {
	body := fmt.Sprintf("<p>Hello %s,</p><p>Your OTP for password reset is: <strong>%s</strong>. Expires in 10 minutes.</p>", name, otp)
	return m.send(ctx, to, "Reset Your Password for Melkam Psychotherapy", body)
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, htmlBody string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)

	client, err := gomail.NewClient(m.cfg.Host,
		gomail.WithPort(m.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.cfg.Username),
		gomail.WithPassword(m.cfg.Password),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
