package pipeline

import (
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	types "github.com/docvault/docvault-backend/internal/domain"
	"github.com/docvault/docvault-backend/internal/jobs/runtime"
	"github.com/docvault/docvault-backend/internal/platform/gcs"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

// ParseDocument extracts plain text from the raw upload and writes it back
// to the bucket as the parsed artifact for the chunk stage.
type ParseDocument struct {
	log    *logger.Logger
	bucket gcs.BucketService
}

func NewParseDocument(baseLog *logger.Logger, bucket gcs.BucketService) *ParseDocument {
	return &ParseDocument{
		log:    baseLog.With("pipeline", "ParseDocument"),
		bucket: bucket,
	}
}

func (p *ParseDocument) Type() string { return types.JobTypeParse }

func (p *ParseDocument) Run(jc *runtime.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	storageKey, ok := jc.PayloadString("storage_key")
	if !ok {
		return jc.Fail(fmt.Errorf("payload missing storage_key"), nil)
	}

	rc, err := p.bucket.Download(jc.Ctx, storageKey)
	if err != nil {
		return jc.Fail(fmt.Errorf("download raw document: %w", err), nil)
	}
	raw, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return jc.Fail(fmt.Errorf("read raw document: %w", err), nil)
	}
	jc.Progress(50)

	text := extractPlainText(raw)
	if text == "" {
		return jc.Fail(fmt.Errorf("document has no extractable text"), map[string]any{
			"storage_key": storageKey,
			"size_bytes":  len(raw),
		})
	}

	parsedKey := strings.TrimSuffix(storageKey, "/raw") + "/parsed.txt"
	if err := p.bucket.Upload(jc.Ctx, parsedKey, "text/plain; charset=utf-8", strings.NewReader(text)); err != nil {
		return jc.Fail(fmt.Errorf("store parsed text: %w", err), nil)
	}

	return jc.Succeed(map[string]any{
		"parsed_text_key": parsedKey,
		"text_length":     utf8.RuneCountInString(text),
	})
}

// extractPlainText keeps printable text and normalizes whitespace runs.
// Binary junk from non-text uploads is dropped rather than failing the
// stage; the empty-result check above catches truly unparseable inputs.
func extractPlainText(raw []byte) string {
	cleaned := strings.ToValidUTF8(string(raw), " ")
	var b strings.Builder
	b.Grow(len(cleaned))
	for _, r := range cleaned {
		switch {
		case r == '\n' || r == '\t' || r == ' ':
			b.WriteRune(r)
		case unicode.IsGraphic(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(strings.Join(strings.Fields(b.String()), " "))
}
