package data

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
)

// ObjectClass is one detectable category, e.g. "no-helmet" or "vest".
type ObjectClass struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ColorR      int    `json:"color_r"`
	ColorG      int    `json:"color_g"`
	ColorB      int    `json:"color_b"`
	IsViolation bool   `json:"is_violation"`
	PairID      *int64 `json:"pair_id,omitempty"`
}

// Region is one polygon or line inside a camera's ROIConfig.
type Region struct {
	Type              string       `json:"type"` // "polygon" | "line"
	Name              string       `json:"name,omitempty"`
	Points            [][2]float64 `json:"points"`
	AllowedViolations []int64      `json:"allowed_violations,omitempty"`
}

// ROIConfig is the full region set for a camera, in the pixel space it
// was drawn in.
type ROIConfig struct {
	ImageWidth  int      `json:"image_width"`
	ImageHeight int      `json:"image_height"`
	Items       []Region `json:"items"`
}

// CCTVCamera is a monitored RTSP/RTSPS source. It is not a multi-tenant
// inventory camera type; no NVR fleet CRUD surface is part of this
// repository. It backs the cctv_data table the capture/detection
// pipeline reads directly.
type CCTVCamera struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IPAddress string    `json:"ip_address"`
	Port      int       `json:"port"`
	Token     string    `json:"token"`
	Location  string    `json:"location"`
	Enabled   bool      `json:"enabled"`
	ROI       ROIConfig `json:"roi"`
	// AreaRef is set when the area column holds a filename pointing at
	// an object-storage JSON blob instead of inline JSON.
	AreaRef   string    `json:"area_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CameraSchedule is one weekly activation window row.
type CameraSchedule struct {
	CCTVID    int64     `json:"cctv_id"`
	DayOfWeek int       `json:"day_of_week"` // 0=Sunday..6=Saturday
	StartTime time.Time `json:"start_time"`  // time-of-day, date component ignored
	EndTime   time.Time `json:"end_time"`
	IsActive  bool      `json:"is_active"`
}

// CameraViolationConfig is a per-camera activation of one class id.
type CameraViolationConfig struct {
	CCTVID   int64 `json:"cctv_id"`
	ClassID  int64 `json:"class_id"`
	IsActive bool  `json:"is_active"`
}

// ViolationEvent is one recorded incident.
type ViolationEvent struct {
	ID          int64     `json:"id"`
	CCTVID      int64     `json:"cctv_id"`
	ViolationID int64     `json:"violation_id"`
	ImageURL    string    `json:"image"`
	Timestamp   time.Time `json:"timestamp"`
}

// DailyRollup is the materialized per-day violation count used by the
// recap job and the dashboard summary endpoints.
type DailyRollup struct {
	LogDate        time.Time `json:"log_date"`
	CCTVID         int64     `json:"cctv_id"`
	ViolationID    int64     `json:"violation_id"`
	TotalViolation int       `json:"total_violation"`
	LatestUpdate   time.Time `json:"latest_update"`
}

// EmailTemplate is a stored subject/body template keyed by template_key.
type EmailTemplate struct {
	TemplateKey     string `json:"template_key"`
	SubjectTemplate string `json:"subject_template"`
	BodyTemplate    string `json:"body_template"`
	IsActive        bool   `json:"is_active"`
}

// EmailSettings is the singleton SMTP deployment configuration row.
type EmailSettings struct {
	SMTPHost       string `json:"smtp_host"`
	SMTPPort       int    `json:"smtp_port"`
	SMTPUser       string `json:"smtp_user"`
	SMTPPass       string `json:"smtp_pass"`
	SMTPFrom       string `json:"smtp_from"`
	EnableAutoMail bool   `json:"enable_auto_email"`
}

// DetectionSetting is one operator-tunable knob row of
// detection_settings. ListDetectionSettings reads them; the pipeline
// service does not call it and takes its knobs from the YAML config.
type DetectionSetting struct {
	Key         string   `json:"key"`
	Value       string   `json:"value"`
	Description string   `json:"description"`
	MinValue    *float64 `json:"min_value,omitempty"`
	MaxValue    *float64 `json:"max_value,omitempty"`
}

// NotifyRecipient is the subset of a user's identity notification
// routing needs. It is not a UUID-keyed, multi-tenant user type (no
// such type is part of this repository): this system's user_cctv_map
// and users tables are the simpler, integer-keyed ones this pipeline
// was distilled from.
type NotifyRecipient struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

var ErrROIParseFailed = errors.New("roi: unrecognized storage shape")

// ParseROI accepts either shape the area column is stored in: a JSON
// blob already scanned from the DB column, or raw bytes fetched from
// object storage by filename. Both normalize to the same ROIConfig.
func ParseROI(raw []byte) (ROIConfig, error) {
	if len(raw) == 0 {
		return ROIConfig{}, nil
	}
	var cfg ROIConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return ROIConfig{}, ErrROIParseFailed
	}
	return cfg, nil
}

// CCTVRepository is the persistence contract the camera cache,
// violation cache, violation writer, and recap scheduler depend on.
type CCTVRepository interface {
	ListEnabledCameras(ctx context.Context) ([]*CCTVCamera, error)
	ListActiveViolationConfig(ctx context.Context) (map[int64][]int64, error)
	ListSchedules(ctx context.Context) ([]CameraSchedule, error)
	ListObjectClasses(ctx context.Context) ([]ObjectClass, error)

	InsertViolationEvent(ctx context.Context, cctvID int64, className string, imageURL string) (int64, error)
	UpsertDailyRollup(ctx context.Context, cctvID, violationID int64, day time.Time) error
	RecomputeDailyRollup(ctx context.Context, cctvID, violationID int64, day time.Time, count int) error
	DeleteViolationsBefore(ctx context.Context, cutoff time.Time) ([]ViolationEvent, error)
	DeleteViolationByID(ctx context.Context, id int64) error

	GetCameraByID(ctx context.Context, id int64) (*CCTVCamera, error)
	UsersForCamera(ctx context.Context, cctvID int64) ([]NotifyRecipient, error)
	CamerasForUser(ctx context.Context, userID int64) ([]int64, error)

	GetEmailTemplate(ctx context.Context, key string) (*EmailTemplate, error)
	GetEmailSettings(ctx context.Context) (*EmailSettings, error)

	ListViolationEventsBetween(ctx context.Context, cctvIDs []int64, start, end time.Time) ([]ViolationEvent, error)
	ListDetectionSettings(ctx context.Context) ([]DetectionSetting, error)
}

// CCTVModel is the database/sql-backed CCTVRepository implementation,
// using the `type XModel struct{ DB DBTX }` convention used throughout
// this package.
type CCTVModel struct {
	DB DBTX
}

func (m CCTVModel) ListEnabledCameras(ctx context.Context) ([]*CCTVCamera, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT id, name, ip_address, port, token, location, enabled, area
		FROM cctv_data WHERE enabled = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CCTVCamera
	for rows.Next() {
		var c CCTVCamera
		var areaRaw []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.IPAddress, &c.Port, &c.Token, &c.Location, &c.Enabled, &areaRaw); err != nil {
			return nil, err
		}
		if looksLikeFilename(areaRaw) {
			c.AreaRef = string(areaRaw)
		} else if roi, err := ParseROI(areaRaw); err == nil {
			c.ROI = roi
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// looksLikeFilename distinguishes the "area is a JSON blob" shape from
// the "area is a filename referencing an object-storage JSON file"
// shape; both are valid contents of the same column.
func looksLikeFilename(raw []byte) bool {
	if len(raw) == 0 {
		return false
	}
	trimmed := raw
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\t' || trimmed[0] == '\n') {
		trimmed = trimmed[1:]
	}
	return len(trimmed) > 0 && trimmed[0] != '{' && trimmed[0] != '['
}

func (m CCTVModel) ListActiveViolationConfig(ctx context.Context) (map[int64][]int64, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT cctv_id, class_id FROM cctv_violation_config WHERE is_active = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]int64)
	for rows.Next() {
		var cctvID, classID int64
		if err := rows.Scan(&cctvID, &classID); err != nil {
			return nil, err
		}
		out[cctvID] = append(out[cctvID], classID)
	}
	return out, rows.Err()
}

func (m CCTVModel) ListSchedules(ctx context.Context) ([]CameraSchedule, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT cctv_id, day_of_week, start_time, end_time, is_active FROM cctv_scheduler`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CameraSchedule
	for rows.Next() {
		var s CameraSchedule
		if err := rows.Scan(&s.CCTVID, &s.DayOfWeek, &s.StartTime, &s.EndTime, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (m CCTVModel) ListObjectClasses(ctx context.Context) ([]ObjectClass, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT id, name, color_r, color_g, color_b, is_violation, pair_id FROM object_class`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ObjectClass
	for rows.Next() {
		var c ObjectClass
		if err := rows.Scan(&c.ID, &c.Name, &c.ColorR, &c.ColorG, &c.ColorB, &c.IsViolation, &c.PairID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (m CCTVModel) InsertViolationEvent(ctx context.Context, cctvID int64, className string, imageURL string) (int64, error) {
	var id int64
	err := m.DB.QueryRowContext(ctx, `
		INSERT INTO violation_detection (id_cctv, id_violation, image, timestamp)
		VALUES ($1, (SELECT id FROM object_class WHERE name = $2 LIMIT 1), $3, NOW())
		RETURNING id`, cctvID, className, imageURL).Scan(&id)
	return id, err
}

func (m CCTVModel) UpsertDailyRollup(ctx context.Context, cctvID, violationID int64, day time.Time) error {
	_, err := m.DB.ExecContext(ctx, `
		INSERT INTO violation_daily_log (log_date, id_cctv, id_violation, total_violation, latest_update)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (log_date, id_cctv, id_violation)
		DO UPDATE SET total_violation = violation_daily_log.total_violation + 1,
		              latest_update = EXCLUDED.latest_update`,
		day, cctvID, violationID)
	return err
}

// RecomputeDailyRollup overwrites (rather than increments) the stored
// count for (day, cctvID, violationID) — used by the periodic
// materialization job to correct drift from any event that was
// inserted without going through the per-event UpsertDailyRollup call,
// e.g. a worker crash between the insert and the rollup upsert.
func (m CCTVModel) RecomputeDailyRollup(ctx context.Context, cctvID, violationID int64, day time.Time, count int) error {
	_, err := m.DB.ExecContext(ctx, `
		INSERT INTO violation_daily_log (log_date, id_cctv, id_violation, total_violation, latest_update)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (log_date, id_cctv, id_violation)
		DO UPDATE SET total_violation = EXCLUDED.total_violation,
		              latest_update = EXCLUDED.latest_update`,
		day, cctvID, violationID, count)
	return err
}

func (m CCTVModel) DeleteViolationsBefore(ctx context.Context, cutoff time.Time) ([]ViolationEvent, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT id, id_cctv, id_violation, image, timestamp FROM violation_detection WHERE timestamp < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	var out []ViolationEvent
	for rows.Next() {
		var v ViolationEvent
		if err := rows.Scan(&v.ID, &v.CCTVID, &v.ViolationID, &v.ImageURL, &v.Timestamp); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := m.DB.ExecContext(ctx, `DELETE FROM violation_detection WHERE timestamp < $1`, cutoff); err != nil {
		return nil, err
	}
	return out, nil
}

func (m CCTVModel) DeleteViolationByID(ctx context.Context, id int64) error {
	_, err := m.DB.ExecContext(ctx, `DELETE FROM violation_detection WHERE id = $1`, id)
	return err
}

func (m CCTVModel) GetCameraByID(ctx context.Context, id int64) (*CCTVCamera, error) {
	var c CCTVCamera
	var areaRaw []byte
	err := m.DB.QueryRowContext(ctx, `
		SELECT id, name, ip_address, port, token, location, enabled, area
		FROM cctv_data WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.IPAddress, &c.Port, &c.Token, &c.Location, &c.Enabled, &areaRaw)
	if err != nil {
		return nil, err
	}
	if looksLikeFilename(areaRaw) {
		c.AreaRef = string(areaRaw)
	} else if roi, perr := ParseROI(areaRaw); perr == nil {
		c.ROI = roi
	}
	return &c, nil
}

func (m CCTVModel) UsersForCamera(ctx context.Context, cctvID int64) ([]NotifyRecipient, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT u.id, u.username, u.full_name, u.email, u.role
		FROM users u
		JOIN user_cctv_map map ON map.user_id = u.id
		WHERE map.cctv_id = $1`, cctvID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotifyRecipient
	for rows.Next() {
		var u NotifyRecipient
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.Role); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (m CCTVModel) CamerasForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := m.DB.QueryContext(ctx, `SELECT cctv_id FROM user_cctv_map WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (m CCTVModel) GetEmailTemplate(ctx context.Context, key string) (*EmailTemplate, error) {
	var t EmailTemplate
	err := m.DB.QueryRowContext(ctx, `
		SELECT template_key, subject_template, body_template, is_active
		FROM email_templates WHERE template_key = $1 AND is_active = true`, key).
		Scan(&t.TemplateKey, &t.SubjectTemplate, &t.BodyTemplate, &t.IsActive)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (m CCTVModel) GetEmailSettings(ctx context.Context) (*EmailSettings, error) {
	var s EmailSettings
	err := m.DB.QueryRowContext(ctx, `
		SELECT smtp_host, smtp_port, smtp_user, smtp_pass, smtp_from, enable_auto_email
		FROM email_settings WHERE id = 1`).
		Scan(&s.SMTPHost, &s.SMTPPort, &s.SMTPUser, &s.SMTPPass, &s.SMTPFrom, &s.EnableAutoMail)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (m CCTVModel) ListViolationEventsBetween(ctx context.Context, cctvIDs []int64, start, end time.Time) ([]ViolationEvent, error) {
	if len(cctvIDs) == 0 {
		return nil, nil
	}
	rows, err := m.DB.QueryContext(ctx, `
		SELECT id, id_cctv, id_violation, image, timestamp
		FROM violation_detection
		WHERE id_cctv = ANY($1) AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp DESC`, pq.Array(cctvIDs), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ViolationEvent
	for rows.Next() {
		var v ViolationEvent
		if err := rows.Scan(&v.ID, &v.CCTVID, &v.ViolationID, &v.ImageURL, &v.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (m CCTVModel) ListDetectionSettings(ctx context.Context) ([]DetectionSetting, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT key, value, description, min_value, max_value FROM detection_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DetectionSetting
	for rows.Next() {
		var d DetectionSetting
		if err := rows.Scan(&d.Key, &d.Value, &d.Description, &d.MinValue, &d.MaxValue); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
