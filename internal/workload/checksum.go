package workload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/conneroisu/workpipe/internal/pipeline"
)

// ChecksumFile returns a work function that computes the SHA-256 digest of
// the file at the payload path. It is the workload behind watch mode: every
// changed file becomes a checksum task.
func ChecksumFile() pipeline.Func[string, string] {
	return func(ctx context.Context, task pipeline.Task[string]) (string, error) {
		f, err := os.Open(task.Payload)
		if err != nil {
			return "", err
		}
		defer f.Close()

		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return "", err
		}

		return hex.EncodeToString(h.Sum(nil)), nil
	}
}
