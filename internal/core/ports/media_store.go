package ports

import (
	"context"
	"io"
)

// MediaStore persists uploaded files and returns where they ended up.
type MediaStore interface {
	Save(ctx context.Context, name, contentType string, body io.Reader, size int64) (location string, err error)
}
