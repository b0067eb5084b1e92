package enrich

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/jina"
)

// JinaProfileReader reads profiles through Jina AI Reader.
type JinaProfileReader struct {
	client jina.Client
}

// NewJinaProfileReader wraps a Jina client.
func NewJinaProfileReader(client jina.Client) *JinaProfileReader {
	return &JinaProfileReader{client: client}
}

// ReadProfile implements ProfileReader.
func (r *JinaProfileReader) ReadProfile(ctx context.Context, url string) (string, error) {
	resp, err := r.client.Read(ctx, url)
	if err != nil {
		var se *jina.StatusError
		if errors.As(err, &se) && resilience.IsTransientHTTPStatus(se.StatusCode) {
			return "", resilience.NewTransientError(err, se.StatusCode)
		}
		return "", err
	}

	content := strings.TrimSpace(resp.Data.Content)
	if content == "" {
		return "", eris.Errorf("profile %s returned no content", url)
	}
	if title := strings.TrimSpace(resp.Data.Title); title != "" && !strings.HasPrefix(content, title) {
		content = title + "\n" + content
	}
	return content, nil
}
