package library

import (
	"path/filepath"
	"strings"

	"github.com/archon-dev/archon/internal/models"
)

var kindByExt = map[string]string{
	".pdf": models.KindPDF,

	".png": models.KindImage, ".jpg": models.KindImage, ".jpeg": models.KindImage,
	".gif": models.KindImage, ".bmp": models.KindImage, ".tif": models.KindImage,
	".tiff": models.KindImage, ".webp": models.KindImage, ".heic": models.KindImage,

	".txt": models.KindText, ".md": models.KindText, ".csv": models.KindText,
	".json": models.KindText, ".xml": models.KindText, ".html": models.KindText,
	".htm": models.KindText, ".rtf": models.KindText, ".doc": models.KindText,
	".docx": models.KindText, ".odt": models.KindText,

	".mp4": models.KindVideo, ".mov": models.KindVideo, ".avi": models.KindVideo,
	".mkv": models.KindVideo, ".webm": models.KindVideo, ".m4v": models.KindVideo,

	".eml": models.KindEmail, ".msg": models.KindEmail, ".mbox": models.KindEmail,
}

// Classify returns the document kind for a file name, or false if the
// scanner does not index it.
func Classify(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	kind, ok := kindByExt[strings.ToLower(filepath.Ext(base))]
	return kind, ok
}
