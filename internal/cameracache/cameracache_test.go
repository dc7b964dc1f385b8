package cameracache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/technosupport/ppe-guard/internal/data"
)

type stubLoader struct {
	cams []*data.CCTVCamera
	err  error
}

func (s *stubLoader) ListEnabledCameras(ctx context.Context) ([]*data.CCTVCamera, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.cams, nil
}

type stubAreas struct {
	roiJSON map[string][]byte
	err     error
}

func (s *stubAreas) Download(ctx context.Context, relativePath string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.roiJSON[relativePath], nil
}

func TestCache_RefreshInlineROI(t *testing.T) {
	loader := &stubLoader{cams: []*data.CCTVCamera{
		{ID: 1, Name: "Gate A", Enabled: true},
	}}
	c := New(loader, nil)
	assert.NoError(t, c.Refresh(context.Background()))

	cam, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "Gate A", cam.Name)
	assert.Equal(t, "Gate A", c.CameraName(1))
}

func TestCache_RefreshResolvesFilenameAreaRef(t *testing.T) {
	loader := &stubLoader{cams: []*data.CCTVCamera{
		{ID: 2, Name: "Dock", Enabled: true, AreaRef: "roi/2.json"},
	}}
	areas := &stubAreas{roiJSON: map[string][]byte{
		"roi/2.json": []byte(`{"image_width":1920,"image_height":1080,"items":[]}`),
	}}
	c := New(loader, areas)
	assert.NoError(t, c.Refresh(context.Background()))

	cam, ok := c.Get(2)
	assert.True(t, ok)
	assert.Equal(t, 1920, cam.ROI.ImageWidth)
}

func TestCache_RefreshKeepsCameraWhenAreaDownloadFails(t *testing.T) {
	loader := &stubLoader{cams: []*data.CCTVCamera{
		{ID: 3, Name: "Yard", Enabled: true, AreaRef: "roi/missing.json"},
	}}
	areas := &stubAreas{err: errors.New("not found")}
	c := New(loader, areas)
	assert.NoError(t, c.Refresh(context.Background()))

	cam, ok := c.Get(3)
	assert.True(t, ok)
	assert.Equal(t, "Yard", cam.Name)
}

func TestCache_CameraNameFallsBackForUnknownID(t *testing.T) {
	c := New(&stubLoader{}, nil)
	assert.Equal(t, "camera 42", c.CameraName(42))
}

func TestCache_All(t *testing.T) {
	loader := &stubLoader{cams: []*data.CCTVCamera{
		{ID: 1, Name: "A", Enabled: true},
		{ID: 2, Name: "B", Enabled: true},
	}}
	c := New(loader, nil)
	assert.NoError(t, c.Refresh(context.Background()))
	assert.Len(t, c.All(), 2)
}

func TestCache_RefreshLoaderErrorReturnsErr(t *testing.T) {
	c := New(&stubLoader{err: errors.New("db down")}, nil)
	assert.Error(t, c.Refresh(context.Background()))
}
