// Package extract turns uploaded files into text a chat backend can read.
package extract

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
)

// Supported content types.
const (
	TypePlainText = "text/plain"
	TypePDF       = "application/pdf"
	TypeJPEG      = "image/jpeg"
	TypeJPG       = "image/jpg"
	TypePNG       = "image/png"
	TypeGIF       = "image/gif"
)

// Image describes an uploaded picture. It is shown to the user and never sent to a backend.
type Image struct {
	ContentType string            `json:"contentType"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Size        int               `json:"size"`
	Text        map[string]string `json:"text,omitempty"`
}

// Result is the outcome of one extraction.
// Applicable is true only when Text should be forwarded as conversation context.
type Result struct {
	Text       string `json:"text"`
	Applicable bool   `json:"applicable"`
	Image      *Image `json:"image,omitempty"`
}

// Extract returns the textual content of file. It never fails: unsupported or
// broken inputs yield an empty, non-applicable result.
func Extract(file chat.FileInput) Result {
	contentType := MediaType(file.ContentType, file.Data)

	switch contentType {
	case TypePlainText:
		return Result{Text: decodeText(file.Data), Applicable: true}
	case TypePDF:
		// Lossy placeholder: raw bytes decoded as UTF-8.
		return Result{Text: decodeLossy(file.Data), Applicable: true}
	case TypeJPEG, TypeJPG, TypePNG, TypeGIF:
		return Result{Image: describeImage(contentType, file.Data)}
	default:
		return Result{}
	}
}

// MediaType normalizes a declared content type, sniffing data when the hint is empty.
func MediaType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared == "" || declared == "application/octet-stream" {
		declared = http.DetectContentType(data)
	}

	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		if i := strings.IndexByte(declared, ';'); i >= 0 {
			declared = declared[:i]
		}
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return strings.ToLower(mediaType)
}

// decodeText honours a leading BOM and replaces invalid sequences with U+FFFD.
func decodeText(data []byte) string {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return decodeLossy(data)
	}
	return string(out)
}

func decodeLossy(data []byte) string {
	return string(bytes.ToValidUTF8(data, []byte("�")))
}

func describeImage(contentType string, data []byte) *Image {
	img := &Image{ContentType: contentType, Size: len(data)}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		img.Width = cfg.Width
		img.Height = cfg.Height
	}

	if contentType == TypePNG {
		img.Text = pngText(data)
	}
	return img
}
