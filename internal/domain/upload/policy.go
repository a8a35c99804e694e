// Package upload validates files before they enter a form slot.
package upload

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/okian/spinta/internal/domain/model"
)

// DefaultMaxSizeMB applies when a policy does not set a limit.
const DefaultMaxSizeMB = 10

// Policy is the accept list and size limit for one slot.
type Policy struct {
	// Accept lists MIME types ("video/mp4"), wildcards ("image/*") or
	// extensions (".pdf"). Matching is advisory.
	Accept    []string
	MaxSizeMB float64
}

// Built-in policies for the match form slots.
var (
	LogoPolicy   = Policy{Accept: []string{"image/png", "image/jpeg"}, MaxSizeMB: 2}
	LineupPolicy = Policy{Accept: []string{".pdf", ".doc", ".docx"}, MaxSizeMB: 5}
	VideoPolicy  = Policy{Accept: []string{"video/mp4", "video/quicktime", "video/x-msvideo"}, MaxSizeMB: 500}
)

// ParseAccept splits an HTML-style accept attribute ("image/png,.pdf").
func ParseAccept(pattern string) []string {
	var out []string
	for _, p := range strings.Split(pattern, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LimitBytes returns the maximum accepted size in bytes.
func (p Policy) LimitBytes() int64 {
	mb := p.MaxSizeMB
	if mb <= 0 {
		mb = DefaultMaxSizeMB
	}
	return int64(mb * model.MiB)
}

func (p Policy) limitMB() float64 {
	if p.MaxSizeMB <= 0 {
		return DefaultMaxSizeMB
	}
	return p.MaxSizeMB
}

// Matches reports whether the file fits the accept list. An empty list
// matches everything.
func (p Policy) Matches(a model.Attachment) bool {
	if len(p.Accept) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(a.Name))
	ct := strings.ToLower(a.ContentType)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	major, _, _ := strings.Cut(ct, "/")
	for _, want := range p.Accept {
		want = strings.ToLower(want)
		switch {
		case strings.HasPrefix(want, "."):
			if ext == want {
				return true
			}
		case strings.HasSuffix(want, "/*"):
			if ct != "" && major == strings.TrimSuffix(want, "/*") {
				return true
			}
		case ct == want:
			return true
		}
	}
	return false
}

// Validate accepts the file unchanged unless it exceeds the size limit.
// A type outside the accept list is not a rejection.
func Validate(a model.Attachment, p Policy) (model.Attachment, error) {
	if a.IsZero() {
		return model.Attachment{}, ErrNoFile
	}
	if a.Size > p.LimitBytes() {
		return model.Attachment{}, &SizeError{Name: a.Name, Size: a.Size, LimitMB: p.limitMB()}
	}
	return a, nil
}

// SizeError describes a rejected oversized file.
type SizeError struct {
	Name    string
	Size    int64
	LimitMB float64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("File size must be less than %gMB", e.LimitMB)
}

// Unwrap lets errors.Is match ErrFileTooLarge.
func (e *SizeError) Unwrap() error { return ErrFileTooLarge }
