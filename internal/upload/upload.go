package upload

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	ReasonNotImage = "请上传图片文件"

	ActionSingle = "开始检测"
)

// File is a user-selected file before validation.
type File struct {
	Name         string
	DeclaredType string
	Size         int64
	Data         []byte
}

func (f *File) size() int64 {
	if f.Size > 0 {
		return f.Size
	}
	return int64(len(f.Data))
}

// Image is an accepted image ready for detection.
type Image struct {
	Name    string `json:"name"`
	MIME    string `json:"mime"`
	Size    int64  `json:"size"`
	Preview string `json:"preview,omitempty"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`

	IsFixture  bool   `json:"isFixture"`
	ServerPath string `json:"serverPath,omitempty"`

	Data []byte `json:"-"`
}

type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Reason)
}

type Validator struct {
	maxSize int64
}

func NewValidator(maxSize int64) *Validator {
	return &Validator{maxSize: maxSize}
}

func (v *Validator) tooLargeReason() string {
	return fmt.Sprintf("文件大小不能超过%dMB", v.maxSize/(1024*1024))
}

// DetectType returns the declared MIME type, or the sniffed one when the
// declaration is missing or generic.
func DetectType(f *File) string {
	declared := strings.TrimSpace(f.DeclaredType)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if len(f.Data) == 0 {
		return declared
	}
	return mimetype.Detect(f.Data).String()
}

// Validate checks the MIME type first, then the size.
func (v *Validator) Validate(f File) (*Image, error) {
	mime := DetectType(&f)
	if !strings.HasPrefix(mime, "image/") {
		return nil, &ValidationError{Name: f.Name, Reason: ReasonNotImage}
	}
	size := f.size()
	if size > v.maxSize {
		return nil, &ValidationError{Name: f.Name, Reason: v.tooLargeReason()}
	}

	img := &Image{
		Name:    f.Name,
		MIME:    mime,
		Size:    size,
		Data:    f.Data,
		Preview: DataURL(mime, f.Data),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data)); err == nil {
		img.Width, img.Height = cfg.Width, cfg.Height
	}
	return img, nil
}

func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// FixtureImage is a demo image known to the detection server by path.
func FixtureImage(name, serverPath string) *Image {
	if serverPath == "" {
		serverPath = "test_images/" + name
	}
	return &Image{
		Name:       name,
		MIME:       "image/jpeg",
		IsFixture:  true,
		ServerPath: serverPath,
	}
}

type Mode string

const (
	ModeNone   Mode = ""
	ModeSingle Mode = "single"
	ModeBatch  Mode = "batch"
)

type Selection struct {
	Mode        Mode     `json:"mode"`
	Images      []*Image `json:"images"`
	ActionLabel string   `json:"actionLabel"`
}

func BatchLabel(n int) string {
	return fmt.Sprintf("批量检测 (%d个文件)", n)
}

func Single(img *Image) *Selection {
	return &Selection{Mode: ModeSingle, Images: []*Image{img}, ActionLabel: ActionSingle}
}

// Select validates files. One file selects single mode, several select batch
// mode over the valid ones. The selection is nil when nothing is valid.
func (v *Validator) Select(files []File) (*Selection, []error) {
	var errs []error
	switch len(files) {
	case 0:
		return nil, nil
	case 1:
		img, err := v.Validate(files[0])
		if err != nil {
			return nil, []error{err}
		}
		return Single(img), nil
	}

	images := make([]*Image, 0, len(files))
	for _, f := range files {
		img, err := v.Validate(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return nil, errs
	}
	return &Selection{Mode: ModeBatch, Images: images, ActionLabel: BatchLabel(len(images))}, errs
}
