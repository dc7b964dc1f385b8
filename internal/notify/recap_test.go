package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/technosupport/ppe-guard/internal/data"
)

func TestBuildRecapPDF_ProducesNonEmptyBytes(t *testing.T) {
	rows := []RecapRow{{CameraName: "Gate A", ClassName: "no_helmet", Count: 3}}
	pdf, err := BuildRecapPDF("Weekly recap", time.Now().AddDate(0, 0, -7), time.Now(), rows)
	assert.NoError(t, err)
	assert.NotEmpty(t, pdf)
}

func TestBuildRecapPDF_HandlesNoRows(t *testing.T) {
	pdf, err := BuildRecapPDF("Monthly recap", time.Now().AddDate(0, -1, 0), time.Now(), nil)
	assert.NoError(t, err)
	assert.NotEmpty(t, pdf)
}

func TestAggregateByCameraClass_CountsPerCameraAndClass(t *testing.T) {
	events := []data.ViolationEvent{
		{CCTVID: 1, ViolationID: 10},
		{CCTVID: 1, ViolationID: 10},
		{CCTVID: 1, ViolationID: 11},
		{CCTVID: 2, ViolationID: 10},
	}
	names := map[int64]string{1: "Gate A", 2: "Dock"}
	classes := map[int64]string{10: "no_helmet", 11: "no_vest"}

	rows := AggregateByCameraClass(events,
		func(id int64) string { return names[id] },
		func(id int64) string { return classes[id] })

	assert.Len(t, rows, 3)
	assert.Equal(t, RecapRow{CameraName: "Gate A", ClassName: "no_helmet", Count: 2}, rows[0])
	assert.Equal(t, RecapRow{CameraName: "Gate A", ClassName: "no_vest", Count: 1}, rows[1])
	assert.Equal(t, RecapRow{CameraName: "Dock", ClassName: "no_helmet", Count: 1}, rows[2])
}

func TestNotifyRecap_DedupesRecipientsAcrossCameras(t *testing.T) {
	store := &stubStore{
		settings: &data.EmailSettings{EnableAutoMail: true},
	}
	store.recipients = []data.NotifyRecipient{{Email: "dup@x.com"}}
	mailer := &recordingMailer{}
	svc := newTestService(store, mailer)

	// Same recipient mapped to both cameras in the batch should receive
	// exactly one email, not two.
	svc.NotifyRecap(context.Background(), []int64{1, 2}, "Weekly recap", []byte("pdf-bytes"))
	assert.Len(t, mailer.sent, 1)
}

func TestNotifyRecap_SkipsWhenAutoMailDisabled(t *testing.T) {
	store := &stubStore{settings: &data.EmailSettings{EnableAutoMail: false}}
	mailer := &recordingMailer{}
	svc := newTestService(store, mailer)

	svc.NotifyRecap(context.Background(), []int64{1}, "Weekly recap", []byte("pdf"))
	assert.Empty(t, mailer.sent)
}
