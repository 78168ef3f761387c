package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/byte4ever/secure_backup/fsys"
	"github.com/byte4ever/secure_backup/integrity/digest"
)

// ErrVerify reports a destination whose re-read digest
// differs from the digest of the bytes written.
var ErrVerify = errors.New("copy verification failed")

// CopyResult describes one completed copy.
type CopyResult struct {
	Bytes  int64
	Digest digest.Digest
}

// CopyFile copies the whole content of src on srcFS to
// dst on dstFS, replacing dst atomically and keeping the
// permission bits of src. The content is digested while
// it streams. With verify set, dst is read back after
// commit and compared.
func CopyFile(
	ctx context.Context,
	srcFS fsys.FS,
	src string,
	dstFS fsys.FS,
	dst string,
	chunkSize int,
	verify bool,
) (res CopyResult, retErr error) {
	const errCtx = "copying file"

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("%s: %w", errCtx, err)
	}

	info, err := srcFS.Stat(src)
	if err != nil {
		return res, fmt.Errorf("%s: %w", errCtx, err)
	}

	in, err := srcFS.Open(src)
	if err != nil {
		return res, fmt.Errorf("%s: %w", errCtx, err)
	}

	defer func() {
		if closeErr := in.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf(
				"%s: %w", errCtx,
				fsys.Classify("close", src, closeErr),
			)
		}
	}()

	out, err := dstFS.CreateAtomic(dst, info.Mode().Perm())
	if err != nil {
		return res, fmt.Errorf("%s: %w", errCtx, err)
	}

	defer func() {
		if closeErr := out.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("%s: %w", errCtx, closeErr)
		}
	}()

	if chunkSize <= 0 {
		chunkSize = digest.DefaultChunkSize
	}

	hs := digest.NewHasher()

	n, err := io.CopyBuffer(
		io.MultiWriter(out, hs),
		readerOnly{in},
		make([]byte, chunkSize),
	)
	if err != nil {
		return res, fmt.Errorf(
			"%s: %s -> %s: %w", errCtx, src, dst,
			fsys.Classify("copy", src, err),
		)
	}

	if err := out.Commit(); err != nil {
		return res, fmt.Errorf("%s: %w", errCtx, err)
	}

	res = CopyResult{Bytes: n, Digest: hs.Sum()}

	if !verify {
		return res, nil
	}

	got, err := digest.ComputeFile(dstFS, dst, chunkSize)
	if err != nil {
		return res, fmt.Errorf("%s: verify: %w", errCtx, err)
	}

	if got != res.Digest {
		return res, fmt.Errorf(
			"%s: %s: %w: wrote %s, read back %s",
			errCtx, dst, ErrVerify, res.Digest, got,
		)
	}

	return res, nil
}

// readerOnly hides WriterTo implementations so that
// io.CopyBuffer honors the chunk size.
type readerOnly struct {
	io.Reader
}
