package imagesync

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	cfierrors "github.com/investblog/cloudflare-images-sync/internal/errors"
)

// ComputeSignature fingerprints a file by the MD5 of its contents. When
// the file can be stat'ed but not hashed the fingerprint falls back to
// "size:mtime". A missing file is an error.
func ComputeSignature(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", cfierrors.ErrFileNotFound, path)
	}

	sum, err := hashFile(path)
	if err != nil {
		return fmt.Sprintf("%d:%d", info.Size(), info.ModTime().Unix()), nil
	}

	return sum, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// SignatureChanged reports whether the file no longer matches stored.
// An empty stored signature and a failed computation both count as
// changed.
func SignatureChanged(path, stored string) bool {
	current, err := ComputeSignature(path)
	if err != nil {
		current = ""
	}

	return signatureDiffers(current, stored)
}

// signatureDiffers compares an already computed signature ("" when it
// could not be computed) against a stored one.
func signatureDiffers(current, stored string) bool {
	if stored == "" || current == "" {
		return true
	}

	return current != stored
}
