package jwa

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/flate"
)

// the decompressed payload is bounded to prevent zip bombs
const defaultUncompressLimit = 64 << 20

// deflate implements DEF compression, raw DEFLATE of RFC 1951
type deflate struct {
	limit int64
}

func (c *deflate) Name() string { return Deflate }

func (c *deflate) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err = w.Write(data); err != nil {
		return nil, errors.WithMessage(err, "unable to compress")
	}
	if err = w.Close(); err != nil {
		return nil, errors.WithMessage(err, "unable to compress")
	}
	return buf.Bytes(), nil
}

func (c *deflate) Uncompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, c.limit+1))
	if err != nil {
		return nil, errors.WithMessage(err, "unable to uncompress")
	}
	if int64(len(out)) > c.limit {
		return nil, errors.Errorf("uncompressed data exceeds %d bytes", c.limit)
	}
	return out, nil
}
