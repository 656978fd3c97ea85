package extract

import (
	"bytes"

	pngstruct "github.com/dsoprea/go-png-image-structure"
)

// pngText collects tEXt chunks (keyword, NUL, Latin-1 text) from a PNG.
func pngText(data []byte) (text map[string]string) {
	defer func() {
		if recover() != nil {
			text = nil
		}
	}()

	mc, err := pngstruct.NewPngMediaParser().ParseBytes(data)
	if err != nil {
		return nil
	}

	cs, ok := mc.(*pngstruct.ChunkSlice)
	if !ok {
		return nil
	}

	chunks, found := cs.Index()["tEXt"]
	if !found {
		return nil
	}

	text = make(map[string]string, len(chunks))
	for _, chunk := range chunks {
		key, value, ok := splitTextChunk(chunk.Data)
		if !ok {
			continue
		}
		text[key] = value
	}
	if len(text) == 0 {
		return nil
	}
	return text
}

func splitTextChunk(data []byte) (string, string, bool) {
	i := bytes.IndexByte(data, 0)
	if i <= 0 {
		return "", "", false
	}
	value := data[i+1:]
	if bytes.IndexByte(value, 0) >= 0 {
		return "", "", false
	}
	return latin1(data[:i]), latin1(value), true
}

func latin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
