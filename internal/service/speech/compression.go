package speech

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"sync"
)

// maxDecompressedSize 单个服务端响应解压后的上限
const maxDecompressedSize = 8 << 20

var (
	ErrUnsupportedCompression = errors.New("unsupported compression method")
	ErrPayloadTooLarge        = errors.New("decompressed payload too large")
)

var gzipWriters = sync.Pool{
	New: func() any { return gzip.NewWriter(io.Discard) },
}

// CompressPayload 按帧头声明的方式压缩 payload
func CompressPayload(data []byte, method CompressionMethod) ([]byte, error) {
	switch method {
	case NoCompression:
		return data, nil
	case GzipCompression:
		var buf bytes.Buffer
		zw := gzipWriters.Get().(*gzip.Writer)
		defer gzipWriters.Put(zw)
		zw.Reset(&buf)

		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("gzip payload: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip payload: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, method)
	}
}

// DecompressPayload 解压 payload，空 payload 直接返回
func DecompressPayload(data []byte, method CompressionMethod) ([]byte, error) {
	switch method {
	case NoCompression:
		return data, nil
	case GzipCompression:
		if len(data) == 0 {
			return nil, nil
		}
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gunzip payload: %w", err)
		}
		defer zr.Close()

		out, err := io.ReadAll(io.LimitReader(zr, maxDecompressedSize+1))
		if err != nil {
			return nil, fmt.Errorf("gunzip payload: %w", err)
		}
		if len(out) > maxDecompressedSize {
			return nil, ErrPayloadTooLarge
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, method)
	}
}
