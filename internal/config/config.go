// Package config loads and hot-reloads the operator-tunable detection
// settings plus the deployment wiring (DB, Redis, NATS, evidence store,
// SMTP) from a single YAML file.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Detection holds the per-process defaults applied to every camera
// unless a camera-specific override exists in the DB; no such override
// table exists yet, so these are the process-wide knobs.
type Detection struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	CooldownSeconds     int     `yaml:"cooldown_seconds"`
	CleanupIntervalSec  int     `yaml:"cleanup_interval_seconds"`
	FrameSkip           int     `yaml:"frame_skip"`
	QueueSize           int     `yaml:"queue_size"`
	PaddingPercent      float64 `yaml:"padding_percent"`
	TargetMaxWidth      int     `yaml:"target_max_width"`
	MaxTrackedObjects   int     `yaml:"max_tracked_objects"`
}

// Schedule holds the weekly-schedule evaluator's clock settings.
type Schedule struct {
	// TimezoneOffset is the schedule clock's UTC offset, e.g. "+07:00".
	// The original deployment hardcoded WIB; this makes it an explicit
	// per-deployment setting instead.
	TimezoneOffset string `yaml:"timezone_offset"`
	RecapHour      int    `yaml:"recap_hour"`
	RecapMinute    int    `yaml:"recap_minute"`
	RetentionDays  int    `yaml:"retention_days"`
}

type Database struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

func (d Database) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type Evidence struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	PublicBase string `yaml:"public_base_url"`
}

type SMTP struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	From           string `yaml:"from"`
	EnableAutoMail bool   `yaml:"enable_auto_email"`
}

type NATS struct {
	URL              string `yaml:"url"`
	CameraSubject    string `yaml:"camera_subject"`
	ScheduleSubject  string `yaml:"schedule_subject"`
	ViolationSubject string `yaml:"violation_config_subject"`
}

// Root is the top-level parsed config document.
type Root struct {
	Database  Database  `yaml:"database"`
	Redis     string    `yaml:"redis_addr"`
	Evidence  Evidence  `yaml:"evidence"`
	SMTP      SMTP      `yaml:"smtp"`
	NATS      NATS      `yaml:"nats"`
	Detection Detection `yaml:"detection"`
	Schedule  Schedule  `yaml:"schedule"`
	ModelPath string    `yaml:"model_path"`
}

func defaults() Root {
	return Root{
		Redis: "localhost:6379",
		Detection: Detection{
			ConfidenceThreshold: 0.4,
			CooldownSeconds:     60,
			CleanupIntervalSec:  60,
			FrameSkip:           15,
			QueueSize:           3,
			PaddingPercent:      0.5,
			TargetMaxWidth:      320,
			MaxTrackedObjects:   4096,
		},
		Schedule: Schedule{
			TimezoneOffset: "+07:00",
			RecapHour:      7,
			RecapMinute:    30,
			RetentionDays:  32,
		},
	}
}

// Store owns the current config snapshot behind a copy-on-swap pointer,
// a reader-never-blocks-writer discipline shared with this codebase's
// other caches.
type Store struct {
	mu      sync.RWMutex
	current *Root
	path    string
}

func Load(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload() error {
	root := defaults()
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return fmt.Errorf("config: parse %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.current = &root
	s.mu.Unlock()
	return nil
}

// Reload re-reads the file and atomically swaps the snapshot. Callers
// that already hold a Root from Get keep seeing the old values; there
// is no shared mutable state inside Root once published.
func (s *Store) Reload() error {
	return s.reload()
}

func (s *Store) Get() Root {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.current
}

// Location resolves the configured schedule timezone offset to a
// *time.Location. Falls back to +07:00 (WIB) on parse failure: the
// "evaluator failure means not scheduled" fail-closed policy applies to
// schedule lookups, not to this resolution step, which must always
// produce something usable.
func (s *Store) Location() *time.Location {
	off := s.Get().Schedule.TimezoneOffset
	sign := 1
	if len(off) > 0 && off[0] == '-' {
		sign = -1
	}
	var hh, mm int
	if _, err := fmt.Sscanf(trimSign(off), "%d:%d", &hh, &mm); err != nil {
		return time.FixedZone("WIB", 7*3600)
	}
	secs := sign * (hh*3600 + mm*60)
	return time.FixedZone("SCHEDULE", secs)
}

func trimSign(s string) string {
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		return s[1:]
	}
	return s
}
