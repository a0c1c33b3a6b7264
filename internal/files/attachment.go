// Package files loads local images and videos for sending as chat messages.
package files

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/BioHazard786/vanish/internal/transfer"
	"github.com/BioHazard786/vanish/internal/utils"
)

var (
	// ErrWrongType means the file's extension does not match the requested kind.
	ErrWrongType = errors.New("unsupported file type")

	// ErrTooLarge means the file exceeds the size limit for its kind.
	ErrTooLarge = errors.New("file too large")
)

// Types the system MIME table may not know.
var fallbackTypes = map[string]string{
	".bmp":  "image/bmp",
	".heic": "image/heic",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".ogv":  "video/ogg",
}

var preferredExt = map[string]string{
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"image/bmp":        ".bmp",
	"image/heic":       ".heic",
	"video/mp4":        ".mp4",
	"video/quicktime":  ".mov",
	"video/webm":       ".webm",
	"video/x-matroska": ".mkv",
	"video/ogg":        ".ogv",
}

// TypeOf returns the MIME type for a file name, without parameters.
func TypeOf(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	t := mime.TypeByExtension(ext)
	if t == "" {
		t = fallbackTypes[ext]
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return t
}

// Attachment describes a file ready to be sent.
type Attachment struct {
	Path string
	Name string
	Size int64
	Type string // MIME type, e.g. "image/png"
	Kind string // "image" or "video"
}

// Limit returns the maximum file size for kind, or 0 for unknown kinds.
func Limit(kind string) int64 {
	switch kind {
	case "image":
		return transfer.MaxImageSize
	case "video":
		return transfer.MaxVideoSize
	}
	return 0
}

// Inspect checks that path is a readable, non-empty file of the given kind
// within its size limit.
func Inspect(path, kind string) (Attachment, error) {
	limit := Limit(kind)
	if limit == 0 {
		return Attachment{}, fmt.Errorf("%s: %w: %q", path, ErrWrongType, kind)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Attachment{}, fmt.Errorf("%s: file does not exist", path)
		}
		return Attachment{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}
	if stat.IsDir() {
		return Attachment{}, fmt.Errorf("%s: is a directory", path)
	}
	if stat.Size() == 0 {
		return Attachment{}, fmt.Errorf("%s: file is empty", path)
	}

	mimeType := TypeOf(absPath)
	if !strings.HasPrefix(mimeType, kind+"/") {
		return Attachment{}, fmt.Errorf("%s: %w: not an %s", path, ErrWrongType, kind)
	}

	if stat.Size() > limit {
		return Attachment{}, fmt.Errorf("%s: %w: %s exceeds %s", path, ErrTooLarge,
			utils.FormatSize(stat.Size()), utils.FormatSize(limit))
	}

	return Attachment{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: mimeType,
		Kind: kind,
	}, nil
}

// DataURL reads the file and encodes it as a base64 data URL.
func (a Attachment) DataURL() (string, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return "", fmt.Errorf("%s: cannot read file (check permissions): %w", a.Name, err)
	}
	if int64(len(data)) > Limit(a.Kind) {
		return "", fmt.Errorf("%s: %w", a.Name, ErrTooLarge)
	}
	return "data:" + a.Type + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Load inspects path and returns its data URL.
func Load(path, kind string) (Attachment, string, error) {
	a, err := Inspect(path, kind)
	if err != nil {
		return Attachment{}, "", err
	}
	url, err := a.DataURL()
	if err != nil {
		return Attachment{}, "", err
	}
	return a, url, nil
}

// ParseDataURL splits a data URL into its MIME type and decoded bytes.
func ParseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, transfer.WrapError("parse data url", transfer.ErrMalformedPayload, "missing data: prefix")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, transfer.WrapError("parse data url", transfer.ErrMalformedPayload, "missing comma")
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, transfer.WrapError("parse data url", transfer.ErrMalformedPayload, "not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, transfer.WrapError("parse data url", transfer.ErrMalformedPayload, err.Error())
	}
	return mimeType, data, nil
}

// Save writes the payload of a data URL to dir as name plus an extension
// matching its MIME type, and returns the path written.
func Save(dir, name, dataURL string) (string, error) {
	mimeType, data, err := ParseDataURL(dataURL)
	if err != nil {
		return "", err
	}
	ext, ok := preferredExt[mimeType]
	if !ok {
		ext = ".bin"
		if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
			ext = exts[0]
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, filepath.Base(name)+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
