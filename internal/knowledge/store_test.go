package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gig-copilot/internal/attachment"
	"gig-copilot/internal/gemini"
	"gig-copilot/internal/logger"
)

const base = "https://generativelanguage.googleapis.com/v1beta"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "knowledge.db"), nil, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ref(id string, uploaded time.Time) attachment.FileRef {
	return attachment.FileRef{
		URI:        base + "/files/" + id,
		MimeType:   "application/pdf",
		UploadedAt: uploaded,
	}
}

type fakeUploader struct {
	calls int
}

func (f *fakeUploader) UploadFile(_ context.Context, u gemini.Upload) (*gemini.File, error) {
	f.calls++
	return &gemini.File{
		Name:        "files/upload0" + string(rune('0'+f.calls)),
		DisplayName: u.DisplayName,
		MimeType:    u.MimeType,
	}, nil
}

func TestStorePutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uploaded := time.UnixMilli(time.Now().UnixMilli())

	require.NoError(t, s.Put(ctx, Entry{Name: "cv", Ref: ref("cv000001", uploaded)}))

	e, err := s.Get(ctx, "cv")
	require.NoError(t, err)
	assert.Equal(t, "cv000001", e.Ref.ID())
	assert.True(t, uploaded.Equal(e.Ref.UploadedAt))
	assert.True(t, e.Ref.ExpiresAt.IsZero())

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStorePutValidates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.Put(ctx, Entry{Ref: ref("cv000001", time.Now())}))
	assert.True(t, errors.Is(s.Put(ctx, Entry{Name: "x"}), attachment.ErrMissingURI))
}

func TestStoreResolveReportsMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Entry{Name: "cv", Ref: ref("cv000001", time.Now())}))
	require.NoError(t, s.Put(ctx, Entry{Name: "portfolio", Ref: ref("pf000001", time.Now())}))

	refs, missing, err := s.Resolve(ctx, []string{"portfolio", "nope", "cv"})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "pf000001", refs[0].ID())
	assert.Equal(t, "cv000001", refs[1].ID())
	assert.Equal(t, []string{"nope"}, missing)
}

func TestStoreLiveSkipsExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Entry{Name: "fresh", Ref: ref("fresh001", time.Now())}))
	require.NoError(t, s.Put(ctx, Entry{Name: "stale", Ref: ref("stale001", time.Now().Add(-72*time.Hour))}))

	live, err := s.Live(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "fresh001", live[0].ID())

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStoreForget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Entry{Name: "cv", Ref: ref("cv000001", time.Now())}))
	require.NoError(t, s.Put(ctx, Entry{Name: "cv-copy", Ref: ref("cv000001", time.Now())}))
	require.NoError(t, s.Put(ctx, Entry{Name: "other", Ref: ref("ot000001", time.Now())}))

	n, err := s.Forget(ctx, "cv000001")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Forget(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStoreForgetMatchesIDExactly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Entry{Name: "cv", Ref: ref("cv_00001", time.Now())}))
	require.NoError(t, s.Put(ctx, Entry{Name: "cover", Ref: ref("cvx00001", time.Now())}))
	require.NoError(t, s.Put(ctx, Entry{Name: "notes", Ref: ref("notes%01", time.Now())}))

	n, err := s.Forget(ctx, "cv_00001")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Forget(ctx, "%01")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, e := range all {
		assert.NotEqual(t, "cv", e.Name)
	}
}

func TestImportReusesLiveUpload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	up := &fakeUploader{}
	im := &Importer{Store: s, Uploader: up, BaseURL: base}

	dir := t.TempDir()
	a := filepath.Join(dir, "cv.pdf")
	b := filepath.Join(dir, "cv-copy.pdf")
	require.NoError(t, os.WriteFile(a, []byte("%PDF same bytes"), 0600))
	require.NoError(t, os.WriteFile(b, []byte("%PDF same bytes"), 0600))

	first, reused, err := im.Import(ctx, a, "")
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, "cv.pdf", first.Name)
	assert.Equal(t, base+"/files/upload01", first.Ref.URI)
	assert.Equal(t, "application/pdf", first.Ref.MimeType)
	assert.Equal(t, int64(len("%PDF same bytes")), first.Ref.SizeBytes)
	assert.False(t, first.Ref.UploadedAt.IsZero())

	second, reused, err := im.Import(ctx, b, "copy")
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, first.Ref.URI, second.Ref.URI)
	assert.Equal(t, 1, up.calls)
}

func TestImportReuploadsExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	up := &fakeUploader{}
	im := &Importer{Store: s, Uploader: up, BaseURL: base}

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("notes"), 0600))

	_, _, err := im.Import(ctx, path, "notes")
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(72 * time.Hour) }
	s.validator.Now = s.now

	_, reused, err := im.Import(ctx, path, "notes")
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, 2, up.calls)
}

func TestImportRejectsLargeFiles(t *testing.T) {
	s := newTestStore(t)
	im := &Importer{Store: s, Uploader: &fakeUploader{}, BaseURL: base, MaxSize: 4}

	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, []byte("too big"), 0600))

	_, _, err := im.Import(context.Background(), path, "")
	assert.True(t, errors.Is(err, ErrTooLarge))
}
