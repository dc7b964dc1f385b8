package evidence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCreateSignedURL_PublicBaseSkipsPresign(t *testing.T) {
	s := &Store{publicBase: "https://cdn.example.com/evidence"}

	url, err := s.CreateSignedURL(context.Background(), "/violations/1/2.jpg", time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/evidence/violations/1/2.jpg", url)
}

func TestCreateSignedURL_PublicBaseTrimsLeadingSlash(t *testing.T) {
	s := &Store{publicBase: "https://cdn.example.com"}

	url, err := s.CreateSignedURL(context.Background(), "/a/b.jpg", time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a/b.jpg", url)
}
