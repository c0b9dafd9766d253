// email.go
//
// Email transport and retry queue for qatrack
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of qatrack.
// qatrack is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// qatrack is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with qatrack.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"log"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/localnerve/qatrack/internal/config"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Email types, stored on queued messages.
const (
	EmailTypeInvite = "invite"
	EmailTypeReset  = "password_reset"
	EmailTypeTest   = "test"
)

// EmailSettingsKey is the system config key holding SMTP settings.
const EmailSettingsKey = "email_settings"

// PasswordMask replaces the SMTP password on read.
const PasswordMask = "********"

const smtpDialTimeout = 10 * time.Second

// ErrEmailNotConfigured is returned when no SMTP host is set.
var ErrEmailNotConfigured = errors.New("email transport is not configured")

var (
	emailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qatrack_emails_sent_total",
		Help: "Emails delivered, by type.",
	}, []string{"type"})
	emailsQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qatrack_emails_queued_total",
		Help: "Emails queued for retry after a failed send, by type.",
	}, []string{"type"})
	emailsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qatrack_emails_failed_total",
		Help: "Queued emails that exhausted their attempts.",
	})
)

// EmailSettings is the SMTP transport configuration.
type EmailSettings struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	From     string `json:"from"`
	Secure   bool   `json:"secure"`
}

// EmailSettingsFromConfig returns the environment defaults.
func EmailSettingsFromConfig(cfg *config.Config) EmailSettings {
	return EmailSettings{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Secure:   cfg.SMTPSecure,
	}
}

// Masked returns a copy safe to send to clients.
func (s EmailSettings) Masked() EmailSettings {
	if s.Password != "" {
		s.Password = PasswordMask
	}
	return s
}

// Message is one outgoing transactional email.
type Message struct {
	To      string
	Subject string
	Body    string
	Type    string
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer is the SMTP transport. It is rebuilt through Reconfigure when the
// stored settings change.
type Mailer struct {
	mu       sync.RWMutex
	settings EmailSettings
}

// NewMailer creates a mailer with the given settings.
func NewMailer(settings EmailSettings) *Mailer {
	return &Mailer{settings: settings}
}

// Reconfigure replaces the transport settings.
func (m *Mailer) Reconfigure(settings EmailSettings) {
	m.mu.Lock()
	m.settings = settings
	m.mu.Unlock()
	log.Printf("email: transport reconfigured for %s", net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port)))
}

// Settings returns the current transport settings.
func (m *Mailer) Settings() EmailSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Send builds and delivers msg over SMTP.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	s := m.Settings()
	if s.Host == "" || s.From == "" {
		return ErrEmailNotConfigured
	}

	raw, err := BuildMessage(s.From, msg, time.Now())
	if err != nil {
		return err
	}
	return sendSMTP(ctx, s, msg.To, raw)
}

// BuildMessage renders msg as an RFC 5322 HTML message.
func BuildMessage(from string, msg Message, date time.Time) ([]byte, error) {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	toAddr, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}

	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{fromAddr})
	h.SetAddressList("To", []*mail.Address{toAddr})
	h.SetSubject(msg.Subject)
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(msg.Body)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sendSMTP(ctx context.Context, s EmailSettings, to string, raw []byte) error {
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	tlsConfig := &tls.Config{ServerName: s.Host}

	dialer := &net.Dialer{Timeout: smtpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// Secure means implicit TLS, otherwise STARTTLS is used when offered
	if s.Secure {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if !s.Secure {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}

	if s.User != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", s.User, s.Password, s.Host)); err != nil {
				return err
			}
		}
	}

	fromAddr, err := mail.ParseAddress(s.From)
	if err != nil {
		return err
	}
	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return err
	}
	if err := client.Mail(fromAddr.Address); err != nil {
		return err
	}
	if err := client.Rcpt(toAddr.Address); err != nil {
		return err
	}

	wc, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(raw); err != nil {
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// Dispatcher sends transactional email immediately and queues what fails.
type Dispatcher struct {
	DB          *gorm.DB
	Sender      Sender
	MaxAttempts int
	Timeout     time.Duration

	sweep sync.Mutex
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(db *gorm.DB, sender Sender, maxAttempts int) *Dispatcher {
	return &Dispatcher{DB: db, Sender: sender, MaxAttempts: maxAttempts, Timeout: 30 * time.Second}
}

func (d *Dispatcher) send(ctx context.Context, msg Message) error {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return d.Sender.Send(sendCtx, msg)
}

// Dispatch attempts an immediate send. A failed send is persisted for the
// retry sweep and reported as queued; only a failure to queue is an error.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (queued bool, err error) {
	sendErr := d.send(ctx, msg)
	if sendErr == nil {
		emailsSent.WithLabelValues(msg.Type).Inc()
		return false, nil
	}

	log.Printf("email: send %s to %s failed, queueing: %v", msg.Type, msg.To, sendErr)
	pending := models.PendingEmail{
		To:        msg.To,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Type:      msg.Type,
		Status:    models.EmailPending,
		Attempts:  1,
		LastError: sendErr.Error(),
	}
	if err := d.DB.WithContext(context.WithoutCancel(ctx)).Create(&pending).Error; err != nil {
		log.Printf("email: queue %s to %s: %v", msg.Type, msg.To, err)
		return false, fmt.Errorf("queue email: %w", err)
	}
	emailsQueued.WithLabelValues(msg.Type).Inc()
	return true, nil
}

// RetryResult summarizes one sweep.
type RetryResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Queued int `json:"queued"`
}

// RetryPending resends every pending email. A message that reaches the
// attempt limit is marked failed. Concurrent sweeps are serialized.
func (d *Dispatcher) RetryPending(ctx context.Context) (RetryResult, error) {
	d.sweep.Lock()
	defer d.sweep.Unlock()

	var result RetryResult
	var pending []models.PendingEmail
	if err := d.DB.WithContext(ctx).Where("status = ?", models.EmailPending).
		Order("created_at ASC").Find(&pending).Error; err != nil {
		return result, err
	}

	for i := range pending {
		p := &pending[i]
		updates := map[string]interface{}{}

		if err := d.send(ctx, Message{To: p.To, Subject: p.Subject, Body: p.Body, Type: p.Type}); err != nil {
			p.Attempts++
			updates["attempts"] = p.Attempts
			updates["last_error"] = err.Error()
			if p.Attempts >= d.MaxAttempts {
				updates["status"] = models.EmailFailed
				result.Failed++
				emailsAbandoned.Inc()
				log.Printf("email: giving up on %s to %s after %d attempts: %v", p.Type, p.To, p.Attempts, err)
			} else {
				result.Queued++
			}
		} else {
			updates["status"] = models.EmailSent
			updates["attempts"] = p.Attempts + 1
			updates["last_error"] = ""
			result.Sent++
			emailsSent.WithLabelValues(p.Type).Inc()
		}

		if err := d.DB.WithContext(ctx).Model(p).Updates(updates).Error; err != nil {
			return result, fmt.Errorf("update pending email %s: %w", p.ID, err)
		}
	}

	if len(pending) > 0 {
		log.Printf("email: retry sweep sent=%d queued=%d failed=%d", result.Sent, result.Queued, result.Failed)
	}
	return result, nil
}

// Schedule runs the retry sweep on a cron spec such as "@every 5m" or
// "*/10 * * * *". The caller owns the returned scheduler and stops it.
func (d *Dispatcher) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := d.RetryPending(context.Background()); err != nil {
			log.Printf("email: retry sweep: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid retry schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}

// LoadEmailSettings returns the stored settings layered over the defaults.
func LoadEmailSettings(db *gorm.DB, defaults EmailSettings) (EmailSettings, error) {
	var row models.SystemConfig
	err := db.Where(&models.SystemConfig{Key: EmailSettingsKey}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaults, nil
	}
	if err != nil {
		return defaults, err
	}

	settings := defaults
	if err := row.Value.Decode(&settings); err != nil {
		return defaults, fmt.Errorf("decode email settings: %w", err)
	}
	return settings, nil
}

// SaveEmailSettings stores the settings. A masked or empty password keeps
// the current one. It returns the settings before and after the write.
func SaveEmailSettings(db *gorm.DB, defaults, in EmailSettings) (EmailSettings, EmailSettings, error) {
	before, err := LoadEmailSettings(db, defaults)
	if err != nil {
		return before, before, err
	}

	in.Host = strings.TrimSpace(in.Host)
	in.From = strings.TrimSpace(in.From)
	if in.Port < 0 || in.Port > 65535 {
		return before, before, invalid("port must be between 0 and 65535")
	}
	if in.From != "" {
		if _, err := mail.ParseAddress(in.From); err != nil {
			return before, before, invalid("from is not a valid address")
		}
	}
	if in.Password == "" || in.Password == PasswordMask {
		in.Password = before.Password
	}

	value, err := models.NewJSON(in)
	if err != nil {
		return before, before, err
	}
	row := models.SystemConfig{Key: EmailSettingsKey, Value: value}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return before, before, err
	}
	return before, in, nil
}

// InviteMessage is the account setup email.
func InviteMessage(frontendURL string, user *models.User, token string) Message {
	link := fmt.Sprintf("%s/reset-password/%s", frontendURL, token)
	return Message{
		To:      user.Email,
		Subject: "You have been invited to QA Track",
		Type:    EmailTypeInvite,
		Body: fmt.Sprintf(`<p>Hello %s,</p><p>An account with username <b>%s</b> was created for you.</p>`+
			`<p><a href="%s">Set your password</a> to get started.</p>`,
			html.EscapeString(displayName(user)), html.EscapeString(user.Username), html.EscapeString(link)),
	}
}

// ResetMessage is the password recovery email.
func ResetMessage(frontendURL string, user *models.User, token string) Message {
	link := fmt.Sprintf("%s/reset-password/%s", frontendURL, token)
	return Message{
		To:      user.Email,
		Subject: "QA Track password reset",
		Type:    EmailTypeReset,
		Body: fmt.Sprintf(`<p>Hello %s,</p><p><a href="%s">Reset your password</a>. The link expires in one hour.</p>`+
			`<p>If you did not ask for this, ignore this email.</p>`,
			html.EscapeString(displayName(user)), html.EscapeString(link)),
	}
}

// TestMessage checks the transport end to end.
func TestMessage(to string) Message {
	return Message{
		To:      to,
		Subject: "QA Track test email",
		Type:    EmailTypeTest,
		Body:    "<p>The email settings are working.</p>",
	}
}

func displayName(u *models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
