package sources

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/zerr"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// Decompressing transparently decodes gzip, zstd and xz objects served by
// the wrapped backend. Anything else passes through unchanged.
type Decompressing struct {
	inner ports.SourceBackend
}

// NewDecompressing decorates inner.
func NewDecompressing(inner ports.SourceBackend) *Decompressing {
	return &Decompressing{inner: inner}
}

// ID implements ports.SourceBackend.
func (d *Decompressing) ID() string { return d.inner.ID() }

// Exists implements ports.SourceBackend.
func (d *Decompressing) Exists(ctx context.Context, objPath string) (bool, error) {
	return d.inner.Exists(ctx, objPath)
}

// Close closes the wrapped backend when it holds resources.
func (d *Decompressing) Close() error {
	return closeBackend(d.inner)
}

// Fetch implements ports.SourceBackend.
func (d *Decompressing) Fetch(ctx context.Context, objPath string) (io.ReadCloser, error) {
	rc, err := d.inner.Fetch(ctx, objPath)
	if err != nil {
		return nil, err
	}
	out, err := Decompress(rc)
	if err != nil {
		_ = rc.Close()
		return nil, annotate(err, d.inner.ID(), objPath)
	}
	return out, nil
}

// Decompress sniffs the first bytes of rc and returns a reader over the
// decoded payload. Closing the result closes rc. Decoder failures are
// domain.KindMalformed; errors of rc itself are passed through.
func Decompress(rc io.ReadCloser) (io.ReadCloser, error) {
	src := &trackingReader{r: rc}
	br := bufio.NewReader(src)
	head, err := br.Peek(len(xzMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	var dec io.Reader
	var closeDec func()
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, decodeError(src, err)
		}
		dec, closeDec = zr, func() { _ = zr.Close() }
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, decodeError(src, err)
		}
		dec, closeDec = zr, zr.Close
	case bytes.HasPrefix(head, xzMagic):
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, decodeError(src, err)
		}
		dec = xr
	default:
		return &decodedReader{src: src, dec: br, closer: rc, passthrough: true}, nil
	}
	return &decodedReader{src: src, dec: dec, closer: rc, closeDec: closeDec}, nil
}

func decodeError(src *trackingReader, err error) error {
	if src.err != nil {
		return src.err
	}
	return domain.Malformed(zerr.Wrap(err, domain.ErrDecompressFailed.Error()))
}

// trackingReader remembers the first non-EOF error of the raw stream so
// transport failures are not reported as corrupt payloads.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && t.err == nil {
		t.err = err
	}
	return n, err
}

type decodedReader struct {
	src         *trackingReader
	dec         io.Reader
	closer      io.Closer
	closeDec    func()
	passthrough bool
}

func (d *decodedReader) Read(p []byte) (int, error) {
	n, err := d.dec.Read(p)
	if err == nil || errors.Is(err, io.EOF) || d.passthrough {
		return n, err
	}
	return n, decodeError(d.src, err)
}

func (d *decodedReader) Close() error {
	if d.closeDec != nil {
		d.closeDec()
	}
	return d.closer.Close()
}
