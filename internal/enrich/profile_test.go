package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/jina"
)

type fakeJina struct {
	resp *jina.ReadResponse
	err  error
}

func (f *fakeJina) Read(context.Context, string) (*jina.ReadResponse, error) {
	return f.resp, f.err
}

func TestJinaProfileReader(t *testing.T) {
	r := NewJinaProfileReader(&fakeJina{resp: &jina.ReadResponse{Data: jina.ReadData{
		Title:   "Alice Example",
		Content: "Head of Operations at Acme. Writes about lean manufacturing.",
	}}})
	text, err := r.ReadProfile(context.Background(), "https://linkedin.com/in/alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice Example\nHead of Operations at Acme. Writes about lean manufacturing.", text)
}

func TestJinaProfileReader_Errors(t *testing.T) {
	_, err := NewJinaProfileReader(&fakeJina{resp: &jina.ReadResponse{}}).ReadProfile(context.Background(), "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no content")

	_, err = NewJinaProfileReader(&fakeJina{err: &jina.StatusError{StatusCode: 503}}).ReadProfile(context.Background(), "u")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))

	_, err = NewJinaProfileReader(&fakeJina{err: &jina.StatusError{StatusCode: 451}}).ReadProfile(context.Background(), "u")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}
