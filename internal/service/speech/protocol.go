package speech

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ProtocolVersion 二进制协议版本
const ProtocolVersion = 0b0001

// MessageType 帧类型
type MessageType uint8

const (
	FullClientRequest  MessageType = 0b0001
	AudioOnlyRequest   MessageType = 0b0010
	FullServerResponse MessageType = 0b1001
	ServerAck          MessageType = 0b1011
	ErrorMessage       MessageType = 0b1111
)

// MessageFlags 描述 header 之后是否带有序号
type MessageFlags uint8

const (
	NoSequenceNumber       MessageFlags = 0b0000
	PositiveSequenceNumber MessageFlags = 0b0001
	LastPacketNoSequence   MessageFlags = 0b0010
	NegativeSequenceNumber MessageFlags = 0b0011
)

// SerializationMethod 负载序列化方式
type SerializationMethod uint8

const (
	NoSerialization   SerializationMethod = 0b0000
	JSONSerialization SerializationMethod = 0b0001
)

// CompressionMethod 负载压缩方式
type CompressionMethod uint8

const (
	NoCompression   CompressionMethod = 0b0000
	GzipCompression CompressionMethod = 0b0001
)

const headerSize = 4

var errShortFrame = errors.New("frame truncated")

// Frame 表示一帧完整的 ASR 消息：4 字节 header，可选序号，(错误码)，长度前缀负载。
type Frame struct {
	Type          MessageType
	Flags         MessageFlags
	Serialization SerializationMethod
	Compression   CompressionMethod
	Sequence      int32
	ErrorCode     uint32
	Payload       []byte
}

func (f *Frame) hasSequence() bool {
	switch f.Flags & 0b0011 {
	case PositiveSequenceNumber, NegativeSequenceNumber:
		return true
	}
	return false
}

// Final 判断是否为最后一帧
func (f *Frame) Final() bool {
	switch f.Flags & 0b0011 {
	case LastPacketNoSequence, NegativeSequenceNumber:
		return true
	}
	return false
}

// MarshalBinary 将帧编码为网络字节序
func (f *Frame) MarshalBinary() ([]byte, error) {
	size := headerSize + 4 + len(f.Payload)
	if f.hasSequence() {
		size += 4
	}
	if f.Type == ErrorMessage {
		size += 4
	}

	buf := make([]byte, 0, size)
	buf = append(buf,
		ProtocolVersion<<4|headerSize/4,
		uint8(f.Type)<<4|uint8(f.Flags),
		uint8(f.Serialization)<<4|uint8(f.Compression),
		0x00,
	)
	if f.hasSequence() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Sequence))
	}
	if f.Type == ErrorMessage {
		buf = binary.BigEndian.AppendUint32(buf, f.ErrorCode)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Payload)))
	buf = append(buf, f.Payload...)
	return buf, nil
}

// ParseFrame 解析服务端返回的一帧
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("read header: %w", errShortFrame)
	}
	if version := data[0] >> 4; version != ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}

	f := &Frame{
		Type:          MessageType(data[1] >> 4),
		Flags:         MessageFlags(data[1] & 0x0F),
		Serialization: SerializationMethod(data[2] >> 4),
		Compression:   CompressionMethod(data[2] & 0x0F),
	}

	// header size 以 4 字节为单位，扩展部分直接跳过
	offset := int(data[0]&0x0F) * 4
	if offset < headerSize || len(data) < offset {
		return nil, fmt.Errorf("read extended header: %w", errShortFrame)
	}
	rest := data[offset:]

	next := func(field string) (uint32, error) {
		if len(rest) < 4 {
			return 0, fmt.Errorf("read %s: %w", field, errShortFrame)
		}
		v := binary.BigEndian.Uint32(rest)
		rest = rest[4:]
		return v, nil
	}

	if f.hasSequence() {
		seq, err := next("sequence")
		if err != nil {
			return nil, err
		}
		f.Sequence = int32(seq)
	}
	if f.Type == ErrorMessage {
		code, err := next("error code")
		if err != nil {
			return nil, err
		}
		f.ErrorCode = code
	}

	size, err := next("payload size")
	if err != nil {
		return nil, err
	}
	if uint32(len(rest)) < size {
		return nil, fmt.Errorf("read payload (expected %d bytes, got %d): %w", size, len(rest), errShortFrame)
	}
	if size > 0 {
		f.Payload = rest[:size]
	}
	return f, nil
}

// Body 返回解压后的负载
func (f *Frame) Body() ([]byte, error) {
	return DecompressPayload(f.Payload, f.Compression)
}

// newClientRequestFrame 构造携带请求参数的首帧
func newClientRequestFrame(payload []byte) (*Frame, error) {
	compressed, err := CompressPayload(payload, GzipCompression)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Type:          FullClientRequest,
		Flags:         NoSequenceNumber,
		Serialization: JSONSerialization,
		Compression:   GzipCompression,
		Payload:       compressed,
	}, nil
}

// newAudioFrame 构造音频帧；最后一包使用负序号
func newAudioFrame(chunk []byte, sequence int32, last bool) (*Frame, error) {
	compressed, err := CompressPayload(chunk, GzipCompression)
	if err != nil {
		return nil, err
	}

	f := &Frame{
		Type:          AudioOnlyRequest,
		Flags:         PositiveSequenceNumber,
		Serialization: NoSerialization,
		Compression:   GzipCompression,
		Sequence:      sequence,
		Payload:       compressed,
	}
	switch {
	case last && sequence != 0:
		f.Flags = NegativeSequenceNumber
		f.Sequence = -sequence
	case last:
		f.Flags = LastPacketNoSequence
	case sequence <= 0:
		f.Flags = NoSequenceNumber
	}
	return f, nil
}
