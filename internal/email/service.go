package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/redmonkez12/blog-api/internal/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Config describes the links and wording of outgoing mail
type Config struct {
	AppName string
	// AppURL is the public base URL of the API, e.g. https://api.example.com
	AppURL             string
	VerificationExpiry time.Duration
	ResetExpiry        time.Duration
}

// Service renders account emails and hands them to a Sender
type Service struct {
	sender Sender
	cfg    Config
	logger *logging.Logger
}

func NewService(sender Sender, cfg Config, logger *logging.Logger) *Service {
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	if cfg.AppName == "" {
		cfg.AppName = "Blog"
	}
	return &Service{sender: sender, cfg: cfg, logger: logger}
}

type linkData struct {
	AppName   string
	Link      string
	ExpiresIn string
}

// SendVerificationEmail sends an email verification link to the user
func (s *Service) SendVerificationEmail(ctx context.Context, toEmail, token string) error {
	link := s.VerificationLink(token)

	body, err := render("verification.html", linkData{
		AppName:   s.cfg.AppName,
		Link:      link,
		ExpiresIn: humanizeDuration(s.cfg.VerificationExpiry),
	})
	if err != nil {
		s.logger.Error("failed to render email template", "template", "verification", "error", err)
		return err
	}

	if err := s.sender.Send(ctx, Message{To: toEmail, Subject: "Verify Your Email", HTML: body}); err != nil {
		s.logger.Error("failed to send verification email", "email", toEmail, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info("verification email sent", "email", toEmail)
	return nil
}

// SendPasswordResetEmail sends a password reset link to the user
func (s *Service) SendPasswordResetEmail(ctx context.Context, toEmail, token string) error {
	link := s.ResetLink(token)

	body, err := render("password_reset.html", linkData{
		AppName:   s.cfg.AppName,
		Link:      link,
		ExpiresIn: humanizeDuration(s.cfg.ResetExpiry),
	})
	if err != nil {
		s.logger.Error("failed to render email template", "template", "password_reset", "error", err)
		return err
	}

	if err := s.sender.Send(ctx, Message{To: toEmail, Subject: "Reset Password", HTML: body}); err != nil {
		s.logger.Error("failed to send password reset email", "email", toEmail, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info("password reset email sent", "email", toEmail)
	return nil
}

// VerificationLink is the URL a user follows to verify their address
func (s *Service) VerificationLink(token string) string {
	return fmt.Sprintf("%s/api/auth/verify/%s", s.cfg.AppURL, url.PathEscape(token))
}

// ResetLink is the URL a user follows to reset their password
func (s *Service) ResetLink(token string) string {
	return fmt.Sprintf("%s/api/auth/reset-password/%s", s.cfg.AppURL, url.PathEscape(token))
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

// humanizeDuration formats d as "60 minutes" or "24 hours"
func humanizeDuration(d time.Duration) string {
	switch {
	case d >= 2*time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d >= 2*time.Minute:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return "a few minutes"
	}
}
