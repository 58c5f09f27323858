// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mail provides the outbound email collaborator for identity flows.

Callers invoke it with a template name and a payload; the sender renders the
registered template and delivers it. Two implementations exist:

  - SMTPSender: real delivery over SMTP with AUTH PLAIN.
  - NoopSender: used when mail sending is disabled; flows that would mail a
    link return it directly instead.

Delivery is best-effort from the caller's perspective: orchestration decides
whether a send failure aborts the flow or only logs a warning.
*/
package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"text/template"
)

// Template names accepted by [Sender.Send].
const (
	TemplateVerifyEmail     = "verify_email"
	TemplatePasswordReset   = "password_reset"
	TemplatePasswordChanged = "password_changed"
	TemplateTwoFactorCode   = "two_factor_code"
)

// Sender delivers a templated email to a single recipient.
type Sender interface {
	// Send renders the named template with data and delivers it to the
	// recipient. It must respect ctx cancellation for the dial phase.
	Send(ctx context.Context, to, templateName string, data map[string]string) error

	// Enabled reports whether mail actually leaves the process.
	Enabled() bool
}

// templates holds the subject line and plain-text body per template name.
var templates = map[string]struct {
	subject string
	body    *template.Template
}{
	TemplateVerifyEmail: {
		subject: "Verify your Parley email address",
		body: template.Must(template.New(TemplateVerifyEmail).Parse(
			"Hi {{.Name}},\n\nConfirm your email address by opening the link below:\n\n{{.Link}}\n\nThe link expires in {{.TTL}}.\n")),
	},
	TemplatePasswordReset: {
		subject: "Reset your Parley password",
		body: template.Must(template.New(TemplatePasswordReset).Parse(
			"Hi,\n\nA password reset was requested for your account. Open the link below to choose a new password:\n\n{{.Link}}\n\nThe link expires in {{.TTL}}. If you did not request this, you can ignore this email.\n")),
	},
	TemplatePasswordChanged: {
		subject: "Your Parley password was changed",
		body: template.Must(template.New(TemplatePasswordChanged).Parse(
			"Hi,\n\nYour password was just changed. If this was not you, reset your password immediately and contact support.\n")),
	},
	TemplateTwoFactorCode: {
		subject: "Your Parley sign-in code",
		body: template.Must(template.New(TemplateTwoFactorCode).Parse(
			"Hi {{.Name}},\n\nYour sign-in code is:\n\n{{.Code}}\n\nIt expires in a few minutes. If you did not try to sign in, change your password.\n")),
	},
}

// # SMTP Implementation

// SMTPConfig holds connection settings for the SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers templated email through an SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
	log *slog.Logger
}

// NewSMTPSender constructs a sender for the given relay.
func NewSMTPSender(cfg SMTPConfig, log *slog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, log: log}
}

// Enabled implements [Sender].
func (sender *SMTPSender) Enabled() bool { return true }

// Send implements [Sender].
func (sender *SMTPSender) Send(ctx context.Context, to, templateName string, data map[string]string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mail: context finished before send: %w", err)
	}

	tmpl, ok := templates[templateName]
	if !ok {
		return fmt.Errorf("mail: unknown template %q", templateName)
	}

	var body bytes.Buffer
	if err := tmpl.body.Execute(&body, data); err != nil {
		return fmt.Errorf("mail: failed to render template %q: %w", templateName, err)
	}

	message := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		sender.cfg.From, to, tmpl.subject, body.String())

	addr := fmt.Sprintf("%s:%d", sender.cfg.Host, sender.cfg.Port)
	auth := smtp.PlainAuth("", sender.cfg.Username, sender.cfg.Password, sender.cfg.Host)

	if err := smtp.SendMail(addr, auth, sender.cfg.From, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("mail: smtp delivery failed: %w", err)
	}

	sender.log.Info("mail_sent",
		slog.String("template", templateName),
		slog.String("to", to),
	)
	return nil
}

// # Disabled Implementation

// NoopSender is used when outbound mail is disabled. Sends are logged and
// discarded; orchestration is expected to surface links directly instead.
type NoopSender struct {
	log *slog.Logger
}

// NewNoopSender constructs the disabled sender.
func NewNoopSender(log *slog.Logger) *NoopSender {
	return &NoopSender{log: log}
}

// Enabled implements [Sender].
func (sender *NoopSender) Enabled() bool { return false }

// Send implements [Sender].
func (sender *NoopSender) Send(_ context.Context, to, templateName string, _ map[string]string) error {
	sender.log.Debug("mail_suppressed",
		slog.String("template", templateName),
		slog.String("to", to),
	)
	return nil
}
