package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"gopkg.in/gomail.v2"

	"github.com/technosupport/ppe-guard/internal/data"
)

// RollupStore is the narrow data dependency the recap builder needs.
type RollupStore interface {
	ListViolationEventsBetween(ctx context.Context, cctvIDs []int64, start, end time.Time) ([]data.ViolationEvent, error)
}

// RecapRow is one camera/class line in the generated recap table.
type RecapRow struct {
	CameraName string
	ClassName  string
	Count      int
}

// BuildRecapPDF renders a tabular summary of rows between start and
// end into a PDF document and returns the raw bytes, ready to attach
// to an outbound recap email or upload to evidence.
func BuildRecapPDF(title string, start, end time.Time, rows []RecapRow) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	period := fmt.Sprintf("%s — %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	pdf.CellFormat(0, 8, period, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 11)
	colWidths := []float64{80, 60, 30}
	headers := []string{"Camera", "Violation class", "Count"}
	for i, h := range headers {
		pdf.CellFormat(colWidths[i], 8, h, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 11)
	for _, r := range rows {
		pdf.CellFormat(colWidths[0], 8, r.CameraName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colWidths[1], 8, r.ClassName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colWidths[2], 8, fmt.Sprintf("%d", r.Count), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(rows) == 0 {
		pdf.CellFormat(0, 8, "No violations recorded in this period.", "", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("notify: render recap pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// NotifyRecap emails the rendered recap PDF to every distinct
// recipient mapped to any of cctvIDs, deduplicating by address so a
// user watching several cameras in the batch gets one copy. Same
// log-and-continue failure posture as NotifyViolation.
func (s *Service) NotifyRecap(ctx context.Context, cctvIDs []int64, title string, pdf []byte) {
	settings, err := s.store.GetEmailSettings(ctx)
	if err != nil || settings == nil || !settings.EnableAutoMail {
		return
	}

	seen := map[string]bool{}
	var recipients []string
	for _, id := range cctvIDs {
		users, err := s.store.UsersForCamera(ctx, id)
		if err != nil {
			continue
		}
		for _, u := range users {
			email := strings.TrimSpace(u.Email)
			if email == "" || seen[email] {
				continue
			}
			seen[email] = true
			recipients = append(recipients, email)
		}
	}
	if len(recipients) == 0 {
		return
	}

	attachmentName := strings.ToLower(strings.ReplaceAll(title, " ", "_")) + ".pdf"
	for _, email := range recipients {
		m := gomail.NewMessage()
		m.SetHeader("From", s.cfg.From)
		m.SetHeader("To", email)
		m.SetHeader("Subject", title)
		m.SetBody("text/plain", fmt.Sprintf("Attached: %s.", title))
		m.Attach(attachmentName, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(pdf)
			return err
		}))

		if err := s.dialer.DialAndSend(m); err != nil {
			log.Printf("[NOTIFY] recap send to %s failed: %v", email, err)
		}
	}
}

// AggregateByCameraClass groups raw violation events into RecapRow
// counts, joining each event's camera/class names via the supplied
// lookup functions since ViolationEvent only carries ids.
func AggregateByCameraClass(events []data.ViolationEvent, cameraName func(int64) string, className func(int64) string) []RecapRow {
	type key struct {
		cctvID      int64
		violationID int64
	}
	counts := map[key]int{}
	order := []key{}
	for _, e := range events {
		k := key{e.CCTVID, e.ViolationID}
		if _, ok := counts[k]; !ok {
			order = append(order, k)
		}
		counts[k]++
	}

	rows := make([]RecapRow, 0, len(order))
	for _, k := range order {
		rows = append(rows, RecapRow{
			CameraName: cameraName(k.cctvID),
			ClassName:  className(k.violationID),
			Count:      counts[k],
		})
	}
	return rows
}
