package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/spinta/internal/domain/form"
	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/internal/domain/upload"
	"github.com/okian/spinta/pkg/logger"
)

const (
	// multipartMemory is kept in memory; larger parts go to temp files.
	multipartMemory = 32 << 20
	// bodyOverhead covers text fields and multipart framing.
	bodyOverhead = 1 << 20
)

var fileFields = []string{form.FieldOpponentLogo, form.FieldHomeLineup, form.FieldAwayLineup, form.FieldMatchVideo}

// maxBody is the largest request the match form can legitimately produce.
func maxBody() int64 {
	n := int64(bodyOverhead)
	for _, p := range []upload.Policy{upload.LogoPolicy, upload.LineupPolicy, upload.LineupPolicy, upload.VideoPolicy} {
		n += p.LimitBytes()
	}
	return n
}

// spool holds the files written for one request.
type spool struct {
	dir string
	log logger.Logger
}

func newSpool(root string, log logger.Logger) (*spool, error) {
	dir := filepath.Join(root, uuid.NewString())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &spool{dir: dir, log: log}, nil
}

// write copies one uploaded part to disk and sniffs its type. Files are
// stored per field, so two slots may carry the same file name.
func (s *spool) write(field string, fh *multipart.FileHeader) (model.Attachment, error) {
	src, err := fh.Open()
	if err != nil {
		return model.Attachment{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := filepath.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	path := filepath.Join(s.dir, field+"-"+name)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("create spool file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return model.Attachment{}, fmt.Errorf("write spool file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return model.Attachment{}, fmt.Errorf("close spool file: %w", err)
	}
	return upload.FromFile(path, name)
}

func (s *spool) discard(ctx context.Context) {
	if err := os.RemoveAll(s.dir); err != nil {
		s.log.Warn(ctx, "failed to remove spool dir", logger.String("dir", s.dir), logger.Error(err))
	}
}

// buildForm fills a match form from a parsed multipart request. Oversized
// files are rejected from their declared size before anything is written.
func buildForm(ctx context.Context, r *http.Request, sp *spool, log logger.Logger) (*form.Form, error) {
	f := form.New(form.WithLogger(log))
	f.SetOpponentName(r.FormValue(form.FieldOpponentName))
	f.SetMatchType(r.FormValue(form.FieldMatchType))
	f.SetScores(r.FormValue(form.FieldHomeScore), r.FormValue(form.FieldAwayScore))
	f.SetMatchDateText(r.FormValue(form.FieldMatchDate))

	for _, field := range fileFields {
		fh := firstFile(r.MultipartForm, field)
		if fh == nil {
			continue
		}
		declared := model.Attachment{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Size: fh.Size}
		if _, err := upload.Validate(declared, f.Slot(field).Policy()); err != nil {
			_ = f.Attach(ctx, field, declared)
			continue
		}
		a, err := sp.write(field, fh)
		if err != nil {
			return nil, err
		}
		if err := f.Attach(ctx, field, a); err != nil && !errors.Is(err, upload.ErrFileTooLarge) {
			return nil, err
		}
	}
	return f, nil
}

func firstFile(mf *multipart.Form, field string) *multipart.FileHeader {
	if mf == nil || len(mf.File[field]) == 0 {
		return nil
	}
	return mf.File[field][0]
}
