package classcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/technosupport/ppe-guard/internal/data"
)

type stubLoader struct {
	classes []data.ObjectClass
	err     error
	calls   int
}

func (s *stubLoader) ListObjectClasses(ctx context.Context) ([]data.ObjectClass, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.classes, nil
}

func TestCache_RefreshAndLookup(t *testing.T) {
	pairID := int64(2)
	loader := &stubLoader{classes: []data.ObjectClass{
		{ID: 1, Name: "helmet", IsViolation: false, ColorR: 0, ColorG: 255, ColorB: 0},
		{ID: 2, Name: "no_helmet", IsViolation: true, PairID: &pairID, ColorR: 255, ColorG: 0, ColorB: 0},
	}}
	c := New(loader)

	err := c.Refresh(context.Background())
	assert.NoError(t, err)

	cl, ok := c.LookupByName(context.Background(), "no_helmet")
	assert.True(t, ok)
	assert.True(t, cl.IsViolation)

	assert.True(t, c.IsViolation(context.Background(), "no_helmet"))
	assert.False(t, c.IsViolation(context.Background(), "helmet"))

	_, ok = c.LookupByName(context.Background(), "missing")
	assert.False(t, ok)
}

func TestCache_ColorDefaultsToWhiteWhenBlack(t *testing.T) {
	loader := &stubLoader{classes: []data.ObjectClass{
		{ID: 1, Name: "unset_color", ColorR: 0, ColorG: 0, ColorB: 0},
	}}
	c := New(loader)
	assert.NoError(t, c.Refresh(context.Background()))

	r, g, b := c.Color(context.Background(), "unset_color")
	assert.Equal(t, 255, r)
	assert.Equal(t, 255, g)
	assert.Equal(t, 255, b)
}

func TestCache_ColorUnknownNameDefaultsToWhite(t *testing.T) {
	c := New(&stubLoader{})
	r, g, b := c.Color(context.Background(), "nope")
	assert.Equal(t, 255, r)
	assert.Equal(t, 255, g)
	assert.Equal(t, 255, b)
}

func TestCache_NameByIDAndClassNameFallback(t *testing.T) {
	loader := &stubLoader{classes: []data.ObjectClass{{ID: 7, Name: "vest"}}}
	c := New(loader)
	assert.NoError(t, c.Refresh(context.Background()))

	name, ok := c.NameByID(context.Background(), 7)
	assert.True(t, ok)
	assert.Equal(t, "vest", name)

	assert.Equal(t, "vest", c.ClassName(context.Background(), 7))
	assert.Equal(t, "class 99", c.ClassName(context.Background(), 99))
}

func TestCache_PairOf(t *testing.T) {
	pairID := int64(1)
	loader := &stubLoader{classes: []data.ObjectClass{
		{ID: 1, Name: "helmet"},
		{ID: 2, Name: "no_helmet", PairID: &pairID},
	}}
	c := New(loader)
	assert.NoError(t, c.Refresh(context.Background()))

	pair, ok := c.PairOf(context.Background(), 2)
	assert.True(t, ok)
	assert.Equal(t, int64(1), pair)

	_, ok = c.PairOf(context.Background(), 1)
	assert.False(t, ok)
}

func TestCache_RefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	loader := &stubLoader{classes: []data.ObjectClass{{ID: 1, Name: "helmet"}}}
	c := New(loader)
	assert.NoError(t, c.Refresh(context.Background()))

	loader.err = errors.New("db down")
	assert.Error(t, c.Refresh(context.Background()))

	cl, ok := c.LookupByName(context.Background(), "helmet")
	assert.True(t, ok)
	assert.Equal(t, int64(1), cl.ID)
}
