package exception

import "github.com/yanun0323/errors"

// Record stream errors
var (
	ErrRecordInvalidMagic     = errors.New("record: invalid magic")
	ErrRecordUnsupportedVer   = errors.New("record: unsupported version")
	ErrRecordChecksumMismatch = errors.New("record: checksum mismatch")
	ErrRecordPayloadTooLarge  = errors.New("record: payload too large")
	ErrRecordKeyTooLarge      = errors.New("record: key too large")
	ErrRecordInvalidChunkSize = errors.New("record: invalid chunk size")
	ErrRecordInvalidQuote     = errors.New("record: invalid quote")
)
