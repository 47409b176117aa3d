package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// objectKey resolves the key for in. Caller-supplied keys are cleaned and
// may not climb out of the store root.
func objectKey(in PutInput) (string, error) {
	if in.Key == "" {
		return uuid.NewString() + safeExt(in.Filename), nil
	}
	k := path.Clean("/" + filepath.ToSlash(in.Key))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("storage: invalid key %q", in.Key)
	}
	return k, nil
}

func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json", ".html", ".txt", ".pdf":
		return ext
	default:
		return ""
	}
}
