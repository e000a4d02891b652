package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ledongthuc/pdf"

	"healthconnect/pkg/storage"
)

// Upload is a file received from a client.
type Upload struct {
	Filename string
	Body     io.Reader
}

var (
	imageTypes = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
	}
	attachmentTypes = map[string]string{
		"application/pdf": ".pdf",
		"image/jpeg":      ".jpg",
		"image/png":       ".png",
	}
)

func readUpload(u Upload, limit int64) ([]byte, error) {
	if u.Body == nil {
		return nil, ErrFileRequired
	}
	data, err := io.ReadAll(io.LimitReader(u.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrFileRequired
	}
	if int64(len(data)) > limit {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// sniff returns the detected content type and its canonical extension if the
// type is in allowed.
func sniff(data []byte, allowed map[string]string) (string, string, bool) {
	contentType := http.DetectContentType(data)
	ext, ok := allowed[contentType]
	return contentType, ext, ok
}

// checkPDF requires data to open as a PDF with at least one page.
func checkPDF(data []byte) (pages int, err error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0, ErrNotPDF
	}
	defer func() {
		if recover() != nil {
			pages, err = 0, ErrNotPDF
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, ErrNotPDF
	}
	pages = reader.NumPage()
	if pages < 1 {
		return 0, ErrNotPDF
	}
	return pages, nil
}

func (a *App) putObject(ctx context.Context, bucket storage.ObjectStore, ownerID, ext, contentType string, data []byte) (string, error) {
	key := storage.ObjectKey(ownerID, newID(), ext)
	if err := bucket.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("store object: %w", err)
	}
	return key, nil
}

// deleteObject removes a replaced object. Failures only leave an orphan.
func (a *App) deleteObject(ctx context.Context, bucket storage.ObjectStore, key string) {
	if key == "" {
		return
	}
	if err := bucket.Delete(ctx, key); err != nil {
		a.logger.Warn("object_delete_failed", "key", key, "err", err)
	}
}

func (a *App) presign(ctx context.Context, bucket storage.ObjectStore, key string) string {
	if key == "" {
		return ""
	}
	url, err := bucket.PresignGet(ctx, key, a.presignTTL)
	if err != nil {
		a.logger.Warn("presign_failed", "key", key, "err", err)
		return ""
	}
	return url
}
