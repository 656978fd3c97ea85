package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrNotWAV         = errors.New("missing RIFF/WAVE header")
	ErrUnsupportedWAV = errors.New("only PCM wav is supported")
)

// WAVInfo 描述 fmt 块中的音频参数
type WAVInfo struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataSize      int
}

const wavFormatPCM = 1

// ParseWAV 校验 RIFF 头并读取 fmt/data 块。
func ParseWAV(data []byte) (WAVInfo, error) {
	var info WAVInfo
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return info, ErrNotWAV
	}

	var sawFormat bool
	chunks := data[12:]
	for len(chunks) >= 8 {
		id := string(chunks[0:4])
		size := int(binary.LittleEndian.Uint32(chunks[4:8]))
		body := chunks[8:]
		if size > len(body) {
			size = len(body)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return info, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			if format := binary.LittleEndian.Uint16(body[0:2]); format != wavFormatPCM {
				return info, fmt.Errorf("%w: format tag %d", ErrUnsupportedWAV, format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			sawFormat = true
		case "data":
			info.DataSize = size
		}

		// 块按偶数字节对齐
		advance := 8 + size + size%2
		if advance > len(chunks) {
			break
		}
		chunks = chunks[advance:]
	}

	if !sawFormat {
		return info, fmt.Errorf("%w: no fmt chunk", ErrNotWAV)
	}
	return info, nil
}
