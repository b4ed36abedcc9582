package drivers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Codec names
const (
	CodecZstd   = "zstd"
	CodecSnappy = "snappy"
)

// ErrNotSmaller is returned by CompressObject when the encoded form would
// not save any space
var ErrNotSmaller = errors.New("encoded object is not smaller than the original")

// Codec re-encodes artifact bytes for the COMPRESS action. Encoding and
// decoding are streamed so object size does not bound memory.
type Codec interface {
	Name() string
	Extension() string
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// NewCodec returns the codec registered under name
func NewCodec(name string, level int) (Codec, error) {
	switch name {
	case CodecZstd, "":
		return NewZstdCodec(level)
	case CodecSnappy:
		return SnappyCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression codec: %s", name)
	}
}

// ZstdCodec compresses with zstd
type ZstdCodec struct {
	level int
}

// NewZstdCodec creates a zstd codec; level 0 selects the default of 3
func NewZstdCodec(level int) (*ZstdCodec, error) {
	if level == 0 {
		level = 3
	}
	if level < 1 || level > 19 {
		return nil, fmt.Errorf("zstd level must be 1-19, got %d", level)
	}
	return &ZstdCodec{level: level}, nil
}

func (c *ZstdCodec) Name() string      { return CodecZstd }
func (c *ZstdCodec) Extension() string { return ".zst" }

func (c *ZstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	encoder, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream encoder: %w", err)
	}
	return encoder, nil
}

func (c *ZstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(256*1024*1024),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream decoder: %w", err)
	}
	return decoder.IOReadCloser(), nil
}

// SnappyCodec compresses with the snappy framing format
type SnappyCodec struct{}

func (SnappyCodec) Name() string      { return CodecSnappy }
func (SnappyCodec) Extension() string { return ".sz" }

func (SnappyCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

func (SnappyCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

// countingWriter counts bytes passed through to w
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// encodeStream copies src through codec into w and returns the number of
// bytes read from src
func encodeStream(codec Codec, w io.Writer, src io.Reader) (int64, error) {
	encoder, err := codec.NewWriter(w)
	if err != nil {
		return 0, err
	}
	read, err := io.Copy(encoder, src)
	if err != nil {
		_ = encoder.Close()
		return read, err
	}
	if err := encoder.Close(); err != nil {
		return read, fmt.Errorf("failed to close encoder: %w", err)
	}
	return read, nil
}

// CompressObject replaces the object at path with its encoded form at
// path+codec.Extension(), streaming Get through the encoder into Put. The
// original is removed only after the encoded copy is written. When the
// encoding saves nothing the encoded copy is removed, the original is left
// untouched and ErrNotSmaller is returned. It returns the bytes saved.
func CompressObject(ctx context.Context, store ObjectStore, codec Codec, path string) (int64, error) {
	src, err := store.Get(ctx, path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = src.Close() }()

	type encoded struct {
		read int64
		err  error
	}
	pr, pw := io.Pipe()
	written := &countingWriter{w: pw}
	done := make(chan encoded, 1)
	go func() {
		read, err := encodeStream(codec, written, src)
		_ = pw.CloseWithError(err)
		done <- encoded{read: read, err: err}
	}()

	target := path + codec.Extension()
	putErr := store.Put(ctx, target, pr)
	// unblocks the encoder if Put stopped reading early
	_ = pr.CloseWithError(io.ErrClosedPipe)
	enc := <-done

	if putErr != nil {
		return 0, putErr
	}
	if enc.err != nil {
		_ = store.Delete(ctx, target)
		return 0, fmt.Errorf("compress %s: %w", path, enc.err)
	}

	if written.n >= enc.read {
		_ = store.Delete(ctx, target)
		return 0, fmt.Errorf("compress %s: %w (%d encoded bytes from %d)", path, ErrNotSmaller, written.n, enc.read)
	}

	if err := store.Delete(ctx, path); err != nil {
		// roll back the encoded copy
		_ = store.Delete(ctx, target)
		return 0, err
	}

	return enc.read - written.n, nil
}

// DecompressObject reverses CompressObject, restoring the original path
func DecompressObject(ctx context.Context, store ObjectStore, codec Codec, path string) error {
	source := path + codec.Extension()
	r, err := store.Get(ctx, source)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	decoder, err := codec.NewReader(r)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", source, err)
	}
	defer func() { _ = decoder.Close() }()

	if err := store.Put(ctx, path, decoder); err != nil {
		return fmt.Errorf("decompress %s: %w", source, err)
	}
	return store.Delete(ctx, source)
}
