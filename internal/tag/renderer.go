package tag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Renderer turns payload text into a stored artifact and returns an
// opaque reference to it. The registry stores the reference verbatim and
// never interprets it; image encoding belongs to the rendering shell.
type Renderer interface {
	Render(uid, payload string) (ref string, err error)
}

// Decoder extracts payload text from a captured frame. Implementations
// return ErrNotDetected when no tag is present.
type Decoder interface {
	Decode(frame io.Reader) (string, error)
}

// FileRenderer writes the payload text for each unit under Dir and
// returns the file path as the tag reference.
type FileRenderer struct {
	Dir string
}

func (f FileRenderer) Render(uid, payload string) (string, error) {
	if f.Dir == "" {
		f.Dir = "generated_tags"
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", fmt.Errorf("tag output dir: %w", err)
	}
	path := filepath.Join(f.Dir, fmt.Sprintf("TAG_%s.txt", uid))
	if err := os.WriteFile(path, []byte(payload+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write tag artifact: %w", err)
	}
	return path, nil
}

// NopRenderer skips artifact generation; useful in tests and bulk dry runs.
type NopRenderer struct{}

func (NopRenderer) Render(uid, payload string) (string, error) { return "", nil }

// TextDecoder treats the frame as already-decoded payload text. It stands
// in for the optical decoder collaborator wherever the scan pipeline is
// exercised without a camera.
type TextDecoder struct{}

func (TextDecoder) Decode(frame io.Reader) (string, error) {
	data, err := io.ReadAll(frame)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrNotDetected
	}
	return string(data), nil
}
