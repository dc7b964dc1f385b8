// Package notify sends per-event email alerts and periodic recap
// documents to the users mapped to a camera.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"text/template"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/technosupport/ppe-guard/internal/config"
	"github.com/technosupport/ppe-guard/internal/data"
)

// Store is the narrow data dependency notify needs.
type Store interface {
	UsersForCamera(ctx context.Context, cctvID int64) ([]data.NotifyRecipient, error)
	GetEmailTemplate(ctx context.Context, key string) (*data.EmailTemplate, error)
	GetEmailSettings(ctx context.Context) (*data.EmailSettings, error)
	GetCameraByID(ctx context.Context, id int64) (*data.CCTVCamera, error)
}

const violationTemplateKey = "violation_alert"

// defaultSubject/defaultBody are used when no active row exists for
// violationTemplateKey — the deployment still gets alerted even before
// an operator has customized the wording.
const (
	defaultSubject = "PPE violation detected: {{.ClassName}} on {{.CameraName}}"
	defaultBody    = "A {{.ClassName}} violation was detected on camera {{.CameraName}} at {{.When}}.\n\nEvidence: {{.ImageURL}}"
)

// Mailer is the per-message dependency; satisfied by a *gomail.Dialer
// in production and a recording fake in tests.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Service dispatches templated violation alerts over SMTP.
type Service struct {
	store  Store
	dialer Mailer
	cfg    config.SMTP
}

func NewService(store Store, cfg config.SMTP) *Service {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	return &Service{store: store, dialer: dialer, cfg: cfg}
}

type templateData struct {
	ClassName  string
	CameraName string
	ImageURL   string
	When       string
}

// NotifyViolation implements internal/violation.Notifier. Failures are
// logged, never retried or propagated: a lost email never blocks the
// persisted violation record, which is the system of record.
func (s *Service) NotifyViolation(ctx context.Context, cctvID int64, className string, imageURL string, when time.Time) {
	settings, err := s.store.GetEmailSettings(ctx)
	if err != nil || settings == nil || !settings.EnableAutoMail {
		return
	}

	recipients, err := s.store.UsersForCamera(ctx, cctvID)
	if err != nil || len(recipients) == 0 {
		return
	}

	cam, err := s.store.GetCameraByID(ctx, cctvID)
	cameraName := "camera " + strconv.FormatInt(cctvID, 10)
	if err == nil && cam != nil && cam.Name != "" {
		cameraName = cam.Name
	}

	subjectTpl, bodyTpl := defaultSubject, defaultBody
	if tpl, err := s.store.GetEmailTemplate(ctx, violationTemplateKey); err == nil && tpl != nil {
		subjectTpl, bodyTpl = tpl.SubjectTemplate, tpl.BodyTemplate
	}

	data := templateData{
		ClassName:  className,
		CameraName: cameraName,
		ImageURL:   imageURL,
		When:       when.Format("2006-01-02 15:04:05"),
	}

	subject, err := render(subjectTpl, data)
	if err != nil {
		log.Printf("[NOTIFY] subject template render failed: %v", err)
		return
	}
	body, err := render(bodyTpl, data)
	if err != nil {
		log.Printf("[NOTIFY] body template render failed: %v", err)
		return
	}

	for _, r := range recipients {
		if strings.TrimSpace(r.Email) == "" {
			continue
		}
		m := gomail.NewMessage()
		m.SetHeader("From", s.cfg.From)
		m.SetHeader("To", r.Email)
		m.SetHeader("Subject", subject)
		m.SetBody("text/plain", body)

		if err := s.dialer.DialAndSend(m); err != nil {
			log.Printf("[NOTIFY] send to %s failed: %v", r.Email, err)
		}
	}
}

func render(tpl string, data templateData) (string, error) {
	t, err := template.New("notify").Parse(tpl)
	if err != nil {
		return "", fmt.Errorf("notify: parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: execute template: %w", err)
	}
	return buf.String(), nil
}
