package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"gig-copilot/internal/gemini"
)

// ErrTooLarge is returned when a file exceeds the upload limit.
var ErrTooLarge = errors.New("file exceeds upload limit")

// Uploader sends file content to the remote Files API.
type Uploader interface {
	UploadFile(ctx context.Context, u gemini.Upload) (*gemini.File, error)
}

// Importer uploads local files and records them in a Store. Identical
// content is uploaded once for as long as the earlier upload stays live.
type Importer struct {
	Store    *Store
	Uploader Uploader
	// BaseURL builds file URIs when the service only returns a name.
	BaseURL string
	// MaxSize rejects larger files; 0 means no limit.
	MaxSize int64
}

// Import uploads the file at path under name (the file's base name when
// empty). reused is true when a live upload of the same bytes was found.
func (im *Importer) Import(ctx context.Context, path, name string) (e Entry, reused bool, err error) {
	if name == "" {
		name = filepath.Base(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return Entry{}, false, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Entry{}, false, errors.Wrapf(err, "stat %s", path)
	}
	if im.MaxSize > 0 && info.Size() > im.MaxSize {
		return Entry{}, false, errors.Wrapf(ErrTooLarge, "%s is %d bytes", path, info.Size())
	}

	hash, err := hashFile(f)
	if err != nil {
		return Entry{}, false, errors.Wrapf(err, "hash %s", path)
	}

	absPath, _ := filepath.Abs(path)

	if prev, ok, err := im.Store.byHash(ctx, hash); err != nil {
		return Entry{}, false, err
	} else if ok {
		e = Entry{Name: name, Ref: prev.Ref, SHA256: hash, LocalPath: absPath}
		if err := im.Store.Put(ctx, e); err != nil {
			return Entry{}, false, err
		}
		im.Store.log.Info("reusing live upload", "name", name, "file", prev.Ref.ID())
		return e, true, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Entry{}, false, errors.Wrapf(err, "rewind %s", path)
	}

	file, err := im.Uploader.UploadFile(ctx, gemini.Upload{
		DisplayName: filepath.Base(path),
		MimeType:    gemini.MimeType(path),
		Content:     f,
	})
	if err != nil {
		return Entry{}, false, errors.Wrapf(err, "upload %s", path)
	}

	ref, ok := file.Ref(im.BaseURL)
	if !ok {
		return Entry{}, false, errors.Errorf("upload of %s returned no file uri", path)
	}
	if ref.UploadedAt.IsZero() {
		ref.UploadedAt = im.Store.now()
	}
	if ref.SizeBytes == 0 {
		ref.SizeBytes = info.Size()
	}

	e = Entry{Name: name, Ref: ref, SHA256: hash, LocalPath: absPath}
	if err := im.Store.Put(ctx, e); err != nil {
		return Entry{}, false, err
	}
	return e, false, nil
}

func hashFile(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
