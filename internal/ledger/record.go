package ledger

import (
	"github.com/Whouaaass/rversions/internal/rversions"
	"github.com/Whouaaass/rversions/internal/wire"
)

// Record-size math: the required 512-byte alignment, carved up as filename
// field + hash field + comment field with no extra length prefixes (every
// field is NUL-terminated/padded, mirroring the greeting and LIST filter
// buffers).
const (
	hashFieldSize     = rversions.HashFieldSize     // 256
	commentFieldSize  = rversions.CommentMaxLen + 1 // 80
	RecordSize        = 512
	filenameFieldSize = RecordSize - hashFieldSize - commentFieldSize // 176

	// MaxFilenameLen is the longest filename the fixed 512-byte record can
	// hold (filenameFieldSize minus the mandatory NUL terminator). The
	// fixed record layout's own arithmetic — a 256-byte hash field and an
	// 80-byte comment field inside a 512-byte record — leaves far less room
	// than the aspirational PATH_MAX bound the wire protocol's filename
	// field allows in the abstract; both the server and the client cap
	// filenames at this value rather than accepting a longer name on the
	// wire and failing only at ledger-append time (see DESIGN.md).
	MaxFilenameLen = filenameFieldSize - 1
)

// FileVersion is one decoded ledger record.
type FileVersion struct {
	Filename string
	Hash     string
	Comment  string
}

func encodeRecord(fv FileVersion) ([]byte, error) {
	if len(fv.Filename) >= filenameFieldSize {
		return nil, ErrFilenameTooLong
	}
	if len(fv.Hash) > hashFieldSize {
		return nil, ErrHashTooLong
	}
	if len(fv.Comment) > rversions.CommentMaxLen {
		return nil, ErrCommentTooLong
	}
	buf := make([]byte, RecordSize)
	wire.PutFixedString(buf[:filenameFieldSize], fv.Filename)
	wire.PutFixedString(buf[filenameFieldSize:filenameFieldSize+hashFieldSize], fv.Hash)
	wire.PutFixedString(buf[filenameFieldSize+hashFieldSize:], fv.Comment)
	return buf, nil
}

func decodeRecord(buf []byte) FileVersion {
	return FileVersion{
		Filename: wire.FixedString(buf[:filenameFieldSize]),
		Hash:     wire.FixedString(buf[filenameFieldSize : filenameFieldSize+hashFieldSize]),
		Comment:  wire.FixedString(buf[filenameFieldSize+hashFieldSize:]),
	}
}
