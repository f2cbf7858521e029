package messages

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// A frame on a byte stream is a 4-byte big-endian body length, one protocol byte and the body.
const (
	FrameHeaderSize  = 5
	DefaultSizeLimit = 1048576
)

var ErrFrameTooLarge = errors.New("frame exceeds size limit")

type Frame struct {
	Protocol uint8
	Body     []byte
}

func EncodeFrame(frame Frame) []byte {
	buf := make([]byte, FrameHeaderSize+len(frame.Body))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(frame.Body)))
	buf[4] = frame.Protocol
	copy(buf[FrameHeaderSize:], frame.Body)
	return buf
}

// FrameReader reads frames from a stream. A read error in the middle of a frame (typically a
// deadline) keeps the bytes read so far, the next call to Next resumes the same frame.
// The body of a frame over the size limit is discarded, so the stream stays aligned on frames.
type FrameReader struct {
	r          io.Reader
	sizeLimit  int
	header     [FrameHeaderSize]byte
	headerRead int
	body       []byte
	bodyRead   int
	skipping   bool
	skip       int64
}

func NewFrameReader(r io.Reader, sizeLimit int) *FrameReader {
	if sizeLimit <= 0 {
		sizeLimit = DefaultSizeLimit
	}
	return &FrameReader{r: r, sizeLimit: sizeLimit}
}

func (fr *FrameReader) Next() (Frame, error) {
	for fr.headerRead < FrameHeaderSize {
		n, err := fr.r.Read(fr.header[fr.headerRead:])
		fr.headerRead += n
		if err != nil && fr.headerRead < FrameHeaderSize {
			return Frame{}, fr.midFrameError(err)
		}
	}
	size := binary.BigEndian.Uint32(fr.header[:4])
	if fr.body == nil && !fr.skipping && uint64(size) > uint64(fr.sizeLimit) {
		fr.skipping, fr.skip = true, int64(size)
	}
	if fr.skipping {
		return Frame{}, fr.discard(size)
	}
	if fr.body == nil {
		fr.body = make([]byte, size)
	}
	for fr.bodyRead < len(fr.body) {
		n, err := fr.r.Read(fr.body[fr.bodyRead:])
		fr.bodyRead += n
		if err != nil && fr.bodyRead < len(fr.body) {
			return Frame{}, fr.midFrameError(err)
		}
	}
	frame := Frame{Protocol: fr.header[4], Body: fr.body}
	fr.headerRead, fr.body, fr.bodyRead = 0, nil, 0
	return frame, nil
}

// discard drops the body of an oversize frame. ErrFrameTooLarge is only returned once the whole
// body is gone.
func (fr *FrameReader) discard(size uint32) error {
	for fr.skip > 0 {
		n, err := io.CopyN(io.Discard, fr.r, fr.skip)
		fr.skip -= n
		if err != nil && fr.skip > 0 {
			return fr.midFrameError(err)
		}
	}
	fr.headerRead, fr.skipping = 0, false
	return errors.Wrapf(ErrFrameTooLarge, "frame of %d bytes, limit %d", size, fr.sizeLimit)
}

// Pending reports whether part of a frame has been consumed.
func (fr *FrameReader) Pending() bool {
	return fr.headerRead > 0
}

func (fr *FrameReader) midFrameError(err error) error {
	if err == io.EOF && fr.headerRead > 0 {
		return io.ErrUnexpectedEOF
	}
	return err
}
