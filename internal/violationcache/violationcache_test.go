package violationcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubLoader struct {
	data map[int64][]int64
	err  error
}

func (s *stubLoader) ListActiveViolationConfig(ctx context.Context) (map[int64][]int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}

func TestCache_IsActiveAndNonEmpty(t *testing.T) {
	c := New(&stubLoader{data: map[int64][]int64{
		1: {10, 11},
		2: {},
	}})
	assert.NoError(t, c.Refresh(context.Background()))

	assert.True(t, c.IsActive(1, 10))
	assert.False(t, c.IsActive(1, 99))
	assert.False(t, c.IsActive(3, 10))

	assert.True(t, c.NonEmpty(1))
	assert.False(t, c.NonEmpty(2))
	assert.False(t, c.NonEmpty(3))
}

func TestCache_RefreshErrorPropagates(t *testing.T) {
	c := New(&stubLoader{err: errors.New("db down")})
	assert.Error(t, c.Refresh(context.Background()))
	assert.False(t, c.NonEmpty(1))
}
