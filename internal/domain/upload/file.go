package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/okian/spinta/internal/domain/model"
)

// FromFile builds an attachment for a file on disk, sniffing its content
// type. name overrides the display name; empty uses the base name.
func FromFile(path, name string) (model.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return model.Attachment{}, fmt.Errorf("%s is a directory", path)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("detect type of %s: %w", path, err)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	ct, _, _ := strings.Cut(mt.String(), ";")
	return model.Attachment{
		Name:        name,
		ContentType: strings.TrimSpace(ct),
		Size:        info.Size(),
		Path:        path,
	}, nil
}
