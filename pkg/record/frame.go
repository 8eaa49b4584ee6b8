package record

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/pkg/exception"
)

const (
	frameVersion       uint16 = 1
	frameHeaderSize           = 32
	frameChecksumSize         = 4
	maxFrameKeyLen            = int(^uint16(0))
	maxFramePayloadLen        = uint64(^uint32(0))
)

var (
	frameMagic = [4]byte{'L', 'V', 'D', '1'}
	crcTable   = crc32.MakeTable(crc32.Castagnoli)
)

// Tick flags
const (
	// FlagSnapshotComplete marks the last tick of the initial full snapshot.
	FlagSnapshotComplete uint16 = 1 << iota
)

// Tick is a keyed raw update carried by the frame format.
type Tick struct {
	Key     string
	Flags   uint16
	Seq     uint64
	TsEvent int64
	Payload []byte
}

// SnapshotComplete reports whether the tick ends the initial snapshot.
func (t Tick) SnapshotComplete() bool {
	return t.Flags&FlagSnapshotComplete != 0
}

// DefaultMaxPayloadSize bounds frame payloads when FrameOptions leaves
// MaxPayloadSize unset.
const DefaultMaxPayloadSize = 1 << 20

// FrameOptions controls frame decoding.
type FrameOptions struct {
	DisableChecksum bool
	// MaxPayloadSize rejects larger frames before reading their body.
	// Zero or less means DefaultMaxPayloadSize.
	MaxPayloadSize int
}

// FrameStream decodes length prefixed, checksummed tick frames.
//
//	magic[4] version[2] headerSize[2] flags[2] keyLen[2] payloadLen[4] seq[8] tsEvent[8]
//	key payload crc32c[4]
type FrameStream struct {
	r         *bufio.Reader
	opts      FrameOptions
	headerBuf []byte
}

// NewFrameStream wraps r with frame decoding.
func NewFrameStream(r io.Reader, opts FrameOptions) *FrameStream {
	if opts.MaxPayloadSize <= 0 {
		opts.MaxPayloadSize = DefaultMaxPayloadSize
	}
	return &FrameStream{
		r:         bufio.NewReader(r),
		opts:      opts,
		headerBuf: make([]byte, frameHeaderSize),
	}
}

// FrameFactory returns a StreamFactory producing ticks.
func FrameFactory(opts FrameOptions) StreamFactory[Tick] {
	return func(r io.Reader) Stream[Tick] {
		return NewFrameStream(r, opts)
	}
}

// Next returns the next tick. A clean EOF before a header yields io.EOF,
// a truncated frame yields io.ErrUnexpectedEOF.
func (s *FrameStream) Next() (Tick, error) {
	var tick Tick

	n, err := io.ReadFull(s.r, s.headerBuf)
	if err != nil {
		if err == io.EOF && n == 0 {
			return tick, io.EOF
		}
		return tick, err
	}

	tick, keyLen, payloadLen, err := decodeFrameHeader(s.headerBuf)
	if err != nil {
		return tick, err
	}
	if uint64(payloadLen) > uint64(s.opts.MaxPayloadSize) {
		return tick, errors.Wrapf(exception.ErrRecordPayloadTooLarge, "payload: %d, max: %d", payloadLen, s.opts.MaxPayloadSize)
	}

	body := make([]byte, int(keyLen)+int(payloadLen))
	if _, err := io.ReadFull(s.r, body); err != nil {
		return tick, noEOF(err)
	}

	var checksumBuf [frameChecksumSize]byte
	if _, err := io.ReadFull(s.r, checksumBuf[:]); err != nil {
		return tick, noEOF(err)
	}
	if !s.opts.DisableChecksum {
		expected := binary.LittleEndian.Uint32(checksumBuf[:])
		if sum := checksum(s.headerBuf, body); sum != expected {
			return tick, exception.ErrRecordChecksumMismatch
		}
	}

	tick.Key = string(body[:keyLen])
	tick.Payload = body[keyLen:]
	return tick, nil
}

// FrameWriter encodes ticks in the frame format.
type FrameWriter struct {
	w         *bufio.Writer
	headerBuf []byte
}

// NewFrameWriter creates a buffered frame writer. Call Flush to push data out.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{
		w:         bufio.NewWriter(w),
		headerBuf: make([]byte, frameHeaderSize),
	}
}

// Write appends one tick.
func (fw *FrameWriter) Write(tick Tick) error {
	if len(tick.Key) > maxFrameKeyLen {
		return exception.ErrRecordKeyTooLarge
	}
	if uint64(len(tick.Payload)) > maxFramePayloadLen {
		return exception.ErrRecordPayloadTooLarge
	}

	encodeFrameHeader(fw.headerBuf, tick)
	crc := crc32.Update(0, crcTable, fw.headerBuf)
	crc = crc32.Update(crc, crcTable, []byte(tick.Key))
	crc = crc32.Update(crc, crcTable, tick.Payload)

	var checksumBuf [frameChecksumSize]byte
	binary.LittleEndian.PutUint32(checksumBuf[:], crc)

	if _, err := fw.w.Write(fw.headerBuf); err != nil {
		return err
	}
	if _, err := fw.w.WriteString(tick.Key); err != nil {
		return err
	}
	if _, err := fw.w.Write(tick.Payload); err != nil {
		return err
	}
	_, err := fw.w.Write(checksumBuf[:])
	return err
}

// Flush writes any buffered frames to the underlying writer.
func (fw *FrameWriter) Flush() error {
	return fw.w.Flush()
}

func encodeFrameHeader(dst []byte, tick Tick) {
	_ = dst[frameHeaderSize-1]
	copy(dst[0:4], frameMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], frameVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(frameHeaderSize))
	binary.LittleEndian.PutUint16(dst[8:10], tick.Flags)
	binary.LittleEndian.PutUint16(dst[10:12], uint16(len(tick.Key)))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(len(tick.Payload)))
	binary.LittleEndian.PutUint64(dst[16:24], tick.Seq)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(tick.TsEvent))
}

func decodeFrameHeader(src []byte) (Tick, uint16, uint32, error) {
	if !bytes.Equal(src[0:4], frameMagic[:]) {
		return Tick{}, 0, 0, exception.ErrRecordInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != frameVersion {
		return Tick{}, 0, 0, errors.Wrapf(exception.ErrRecordUnsupportedVer, "version: %d", ver)
	}
	if size := binary.LittleEndian.Uint16(src[6:8]); size != frameHeaderSize {
		return Tick{}, 0, 0, errors.Wrapf(exception.ErrRecordUnsupportedVer, "header size: %d", size)
	}
	tick := Tick{
		Flags:   binary.LittleEndian.Uint16(src[8:10]),
		Seq:     binary.LittleEndian.Uint64(src[16:24]),
		TsEvent: int64(binary.LittleEndian.Uint64(src[24:32])),
	}
	return tick, binary.LittleEndian.Uint16(src[10:12]), binary.LittleEndian.Uint32(src[12:16]), nil
}

func checksum(header []byte, body []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, body)
}

// noEOF turns a bare EOF inside a frame into io.ErrUnexpectedEOF.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
