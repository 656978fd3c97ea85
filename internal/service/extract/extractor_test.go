package extract

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
)

func TestExtractPlainText(t *testing.T) {
	assert := require.New(t)

	res := Extract(chat.FileInput{Name: "notes.txt", ContentType: "text/plain", Data: []byte("hello\nworld")})
	assert.True(res.Applicable)
	assert.Equal("hello\nworld", res.Text)
	assert.Nil(res.Image)
}

func TestExtractReplacesInvalidBytes(t *testing.T) {
	assert := require.New(t)

	res := Extract(chat.FileInput{Name: "bad.txt", ContentType: "text/plain; charset=utf-8", Data: []byte{'a', 0xff, 'b'}})
	assert.True(res.Applicable)
	assert.Equal("a�b", res.Text)
}

func TestExtractStripsUTF8BOM(t *testing.T) {
	assert := require.New(t)

	res := Extract(chat.FileInput{ContentType: "text/plain", Data: []byte("\xef\xbb\xbfhi")})
	assert.Equal("hi", res.Text)
}

func TestExtractTranscodesUTF16(t *testing.T) {
	assert := require.New(t)

	// UTF-16LE BOM followed by "ok".
	res := Extract(chat.FileInput{ContentType: "text/plain", Data: []byte{0xff, 0xfe, 'o', 0, 'k', 0}})
	assert.Equal("ok", res.Text)
}

func TestExtractPDFIsLossy(t *testing.T) {
	assert := require.New(t)

	res := Extract(chat.FileInput{Name: "doc.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4\xfe text")})
	assert.True(res.Applicable)
	assert.True(strings.HasPrefix(res.Text, "%PDF-1.4"))
	assert.Contains(res.Text, "�")
}

func TestExtractImageNotApplicable(t *testing.T) {
	assert := require.New(t)

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.White)
	assert.NoError(png.Encode(&buf, img))

	res := Extract(chat.FileInput{Name: "pic.png", ContentType: "image/png", Data: buf.Bytes()})
	assert.False(res.Applicable)
	assert.Empty(res.Text)
	assert.NotNil(res.Image)
	assert.Equal(3, res.Image.Width)
	assert.Equal(2, res.Image.Height)
	assert.Equal(buf.Len(), res.Image.Size)
}

func TestExtractBrokenImageKeepsMetadata(t *testing.T) {
	assert := require.New(t)

	res := Extract(chat.FileInput{Name: "pic.jpg", ContentType: "image/jpg", Data: []byte("not an image")})
	assert.False(res.Applicable)
	assert.NotNil(res.Image)
	assert.Zero(res.Image.Width)
	assert.Equal("image/jpg", res.Image.ContentType)
}

func TestExtractUnsupportedType(t *testing.T) {
	assert := require.New(t)

	res := Extract(chat.FileInput{Name: "a.zip", ContentType: "application/zip", Data: []byte("PK")})
	assert.False(res.Applicable)
	assert.Empty(res.Text)
	assert.Nil(res.Image)
}

func TestMediaTypeSniffsEmptyHint(t *testing.T) {
	assert := require.New(t)

	assert.Equal(TypePlainText, MediaType("", []byte("plain words")))
	assert.Equal(TypePDF, MediaType("", []byte("%PDF-1.7 rest")))
	assert.Equal(TypePNG, MediaType("IMAGE/PNG", nil))
}

func TestSplitTextChunk(t *testing.T) {
	assert := require.New(t)

	key, value, ok := splitTextChunk([]byte("Title\x00caf\xe9"))
	assert.True(ok)
	assert.Equal("Title", key)
	assert.Equal("café", value)

	_, _, ok = splitTextChunk([]byte("\x00empty key"))
	assert.False(ok)
}
