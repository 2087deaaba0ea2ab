package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"parish-media/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestUploadBatchMixedOutcomes(t *testing.T) {
	env := newTestEnv(t)

	files := []Upload{
		upload("altar.png", "image/png", pngBytes(t, 40, 20)),
		upload("setup.exe", "application/x-msdownload", []byte("MZ binary")),
		upload("bulletin.pdf", "application/pdf", pdfBytes()),
	}
	res, err := env.svc.UploadBatch(ctxBase, owner, files, UploadOptions{Caption: "Easter"})
	require.NoError(t, err)

	require.Len(t, res.Assets, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "setup.exe", res.Failed[0].Filename)
	assert.Equal(t, CodeUnsupportedMediaType, res.Failed[0].Code)

	img := res.Assets[0]
	assert.Equal(t, "altar.png", img.OriginalFilename)
	assert.Equal(t, "image", string(img.Category))
	require.NotNil(t, img.Width)
	assert.Equal(t, 40, *img.Width)
	require.NotNil(t, img.ThumbnailURL)
	assert.True(t, strings.HasPrefix(*img.ThumbnailURL, "/uploads/thumbnails/"))
	assert.Equal(t, "Easter", img.Caption)
	assert.Equal(t, VisibilityPublic, img.Visibility)
	require.NotNil(t, img.UploadedBy)
	assert.Equal(t, "user-1", *img.UploadedBy)

	doc := res.Assets[1]
	assert.Nil(t, doc.Width)
	assert.Nil(t, doc.ThumbnailURL)
	assert.Equal(t, doc.OriginalURL, doc.URL)

	assert.Equal(t, 2, env.repo.len())
	for _, rel := range env.storedFiles(t) {
		id := filepath.Base(rel)[:36]
		_, err := env.repo.Get(ctxBase, id)
		assert.NoError(t, err, "file %s has no catalog row", rel)
	}
	assert.Equal(t, []string{EventAssetCreated, EventAssetCreated}, env.events.types())
}

func TestUploadBatchCatalogFailureLeavesNoFiles(t *testing.T) {
	env := newTestEnv(t)
	env.repo.createErr = errors.New("connection reset")

	res, err := env.svc.UploadBatch(ctxBase, owner, []Upload{
		upload("large.png", "image/png", pngBytes(t, 600, 400)),
	}, UploadOptions{})
	require.NoError(t, err)

	assert.Empty(t, res.Assets)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, CodeCatalogWrite, res.Failed[0].Code)
	assert.Empty(t, env.storedFiles(t), "original, optimized copy and thumbnail must be cleaned up")
	assert.Empty(t, env.events.types())
}

func TestUploadBatchCatalogFailureIsolatedToOneFile(t *testing.T) {
	env := newTestEnv(t)
	env.repo.createErrOn = map[string]error{"nave.png": errors.New("deadlock detected")}

	res, err := env.svc.UploadBatch(ctxBase, owner, []Upload{
		upload("altar.png", "image/png", pngBytes(t, 600, 400)),
		upload("nave.png", "image/png", pngBytes(t, 600, 400)),
		upload("bulletin.pdf", "application/pdf", pdfBytes()),
	}, UploadOptions{})
	require.NoError(t, err)

	require.Len(t, res.Assets, 2)
	assert.Equal(t, "altar.png", res.Assets[0].OriginalFilename)
	assert.Equal(t, "bulletin.pdf", res.Assets[1].OriginalFilename)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "nave.png", res.Failed[0].Filename)
	assert.Equal(t, CodeCatalogWrite, res.Failed[0].Code)

	assert.Equal(t, 2, env.repo.len())
	stored := env.storedFiles(t)
	// altar.png keeps original, optimized copy and thumbnail; bulletin.pdf its original.
	assert.Len(t, stored, 4)
	for _, rel := range stored {
		id := filepath.Base(rel)[:36]
		_, err := env.repo.Get(ctxBase, id)
		assert.NoError(t, err, "file %s has no catalog row", rel)
	}
}

func TestUploadBatchRequestLevelRejections(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.UploadBatch(ctxBase, owner, nil, UploadOptions{})
	assert.ErrorIs(t, err, ErrNoFiles)

	var many []Upload
	for i := 0; i < env.cfg.MaxUploadFiles+1; i++ {
		many = append(many, upload("doc.pdf", "application/pdf", pdfBytes()))
	}
	_, err = env.svc.UploadBatch(ctxBase, owner, many, UploadOptions{})
	assert.ErrorIs(t, err, ErrTooManyFiles)

	_, err = env.svc.UploadBatch(ctxBase, owner, many[:1], UploadOptions{Visibility: "secret"})
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = env.svc.UploadBatch(ctxBase, nobody, many[:1], UploadOptions{})
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Empty(t, env.storedFiles(t))
	assert.Equal(t, 0, env.repo.len())
}

func TestUploadBatchAnonymousWhenAllowed(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.AllowAnonymousUpload = true })

	res, err := env.svc.UploadBatch(ctxBase, nobody, []Upload{
		upload("notes.txt", "text/plain", []byte("hello")),
	}, UploadOptions{Visibility: VisibilityPrivate})
	require.NoError(t, err)
	require.Len(t, res.Assets, 1)
	assert.Nil(t, res.Assets[0].UploadedBy)
	assert.Equal(t, VisibilityPublic, res.Assets[0].Visibility)
}

func TestUploadBatchFileTooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.MaxFileSize = 64 })

	declared := upload("big.txt", "text/plain", bytes.Repeat([]byte("a"), 65))

	// A client that under-reports the size is caught while streaming.
	lying := upload("liar.txt", "text/plain", bytes.Repeat([]byte("b"), 200))
	lying.Size = 10

	res, err := env.svc.UploadBatch(ctxBase, owner, []Upload{declared, lying}, UploadOptions{})
	require.NoError(t, err)
	require.Len(t, res.Failed, 2)
	for _, f := range res.Failed {
		assert.Equal(t, CodeFileTooLarge, f.Code, f.Filename)
	}
	assert.Empty(t, env.storedFiles(t))
}

func TestUploadBatchSniffsOctetStream(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.UploadBatch(ctxBase, owner, []Upload{
		upload("photo", "application/octet-stream", pngBytes(t, 10, 10)),
	}, UploadOptions{})
	require.NoError(t, err)
	require.Len(t, res.Assets, 1)
	assert.Equal(t, "image/png", res.Assets[0].MimeType)
	assert.Equal(t, "image", string(res.Assets[0].Category))
}

func TestUploadBatchOpenFailure(t *testing.T) {
	env := newTestEnv(t)

	broken := upload("gone.pdf", "application/pdf", nil)
	broken.Open = func() (io.ReadCloser, error) { return nil, errors.New("temp file vanished") }

	res, err := env.svc.UploadBatch(ctxBase, owner, []Upload{broken}, UploadOptions{})
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, CodeReadFailed, res.Failed[0].Code)
}

func TestUploadBatchCancelledBeforeStart(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(ctxBase)
	cancel()

	res, err := env.svc.UploadBatch(ctx, owner, []Upload{
		upload("a.pdf", "application/pdf", pdfBytes()),
		upload("b.pdf", "application/pdf", pdfBytes()),
	}, UploadOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Assets)
	require.Len(t, res.Failed, 2)
	for _, f := range res.Failed {
		assert.Equal(t, CodeCancelled, f.Code)
	}
	assert.Empty(t, env.storedFiles(t))
}

func TestUploadBatchInFlightSurvivesCancellation(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.UploadWorkers = 1 })

	entered := make(chan struct{})
	release := make(chan struct{})
	env.repo.beforeSave = func(a *MediaAsset) {
		if a.OriginalFilename == "first.pdf" {
			close(entered)
			<-release
		}
	}

	ctx, cancel := context.WithCancel(ctxBase)
	done := make(chan *BatchResult)
	go func() {
		res, err := env.svc.UploadBatch(ctx, owner, []Upload{
			upload("first.pdf", "application/pdf", pdfBytes()),
			upload("second.pdf", "application/pdf", pdfBytes()),
		}, UploadOptions{})
		assert.NoError(t, err)
		done <- res
	}()

	<-entered
	cancel()
	close(release)

	select {
	case res := <-done:
		require.Len(t, res.Assets, 1)
		assert.Equal(t, "first.pdf", res.Assets[0].OriginalFilename)
		require.Len(t, res.Failed, 1)
		assert.Equal(t, "second.pdf", res.Failed[0].Filename)
		assert.Equal(t, CodeCancelled, res.Failed[0].Code)
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish")
	}
	assert.Len(t, env.storedFiles(t), 1)
}

func TestUploadBatchPrivateAssetsAreNotAnnounced(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.UploadBatch(ctxBase, owner, []Upload{
		upload("minutes.pdf", "application/pdf", pdfBytes()),
	}, UploadOptions{Visibility: VisibilityPrivate})
	require.NoError(t, err)
	assert.Empty(t, env.events.types())
}

func TestListVisibilityScopes(t *testing.T) {
	env := newTestEnv(t)
	env.seedAsset(t, strPtr("user-1"), VisibilityPublic, "public-1.pdf")
	env.seedAsset(t, strPtr("user-1"), VisibilityPrivate, "private-1.pdf")
	env.seedAsset(t, strPtr("user-2"), VisibilityPrivate, "private-2.pdf")
	env.seedAsset(t, nil, VisibilityPublic, "public-anon.pdf")

	names := func(actor Actor) []string {
		res, err := env.svc.List(ctxBase, actor, ListQuery{})
		require.NoError(t, err)
		assert.Equal(t, int64(len(res.Data)), res.Total)
		var out []string
		for _, a := range res.Data {
			out = append(out, a.OriginalFilename)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"public-1.pdf", "public-anon.pdf"}, names(nobody))
	assert.ElementsMatch(t, []string{"public-1.pdf", "private-1.pdf", "public-anon.pdf"}, names(owner))
	assert.ElementsMatch(t, []string{"public-1.pdf", "private-1.pdf", "private-2.pdf", "public-anon.pdf"}, names(admin))
}

func TestListFiltersAndPaging(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 25; i++ {
		env.seedAsset(t, strPtr("user-1"), VisibilityPublic, "Weekly Bulletin.pdf")
	}
	env.seedAsset(t, strPtr("user-2"), VisibilityPublic, "choir.pdf")

	res, err := env.svc.List(ctxBase, nobody, ListQuery{Q: "bulletin", Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(25), res.Total)
	assert.Len(t, res.Data, 10)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, 3, res.TotalPages)

	res, err = env.svc.List(ctxBase, nobody, ListQuery{UploadedBy: "user-2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	assert.Equal(t, defaultPageLimit, res.Limit)

	res, err = env.svc.List(ctxBase, nobody, ListQuery{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, maxPageLimit, res.Limit)
	assert.Equal(t, int64(26), res.Total)

	// Newest first.
	res, err = env.svc.List(ctxBase, nobody, ListQuery{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "choir.pdf", res.Data[0].OriginalFilename)
}

func TestListHugePageDoesNotOverflow(t *testing.T) {
	env := newTestEnv(t)
	env.seedAsset(t, strPtr("user-1"), VisibilityPublic, "choir.pdf")

	res, err := env.svc.List(ctxBase, nobody, ListQuery{Page: math.MaxInt, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Data)
	assert.Equal(t, int64(1), res.Total)
	assert.GreaterOrEqual(t, env.repo.lastFilter.Offset, 0)
	assert.Equal(t, math.MaxInt/10, res.Page)
}

func TestListRejectsInvalidFilters(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []ListQuery{
		{Category: "spreadsheet"},
		{Visibility: "hidden"},
		{Featured: "maybe"},
	} {
		_, err := env.svc.List(ctxBase, owner, q)
		assert.ErrorIs(t, err, ErrInvalidField, "%+v", q)
	}
}

func TestGetPrivateAsset(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedAsset(t, strPtr("user-1"), VisibilityPrivate, "private.pdf")

	_, err := env.svc.Get(ctxBase, other, a.ID)
	assert.ErrorIs(t, err, ErrNotFoundOrForbidden)
	_, err = env.svc.Get(ctxBase, nobody, a.ID)
	assert.ErrorIs(t, err, ErrNotFoundOrForbidden)

	got, err := env.svc.Get(ctxBase, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = env.svc.Get(ctxBase, admin, a.ID)
	assert.NoError(t, err)

	_, err = env.svc.Get(ctxBase, admin, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFoundOrForbidden)
}

func TestUpdateMetadata(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedAsset(t, strPtr("user-1"), VisibilityPublic, "photo.pdf")

	got, err := env.svc.UpdateMetadata(ctxBase, owner, a.ID, map[string]any{
		"caption":     "Palm Sunday procession",
		"is_featured": true,
		"visibility":  "private",
	})
	require.NoError(t, err)
	assert.Equal(t, "Palm Sunday procession", got.Caption)
	assert.True(t, got.IsFeatured)
	assert.Equal(t, VisibilityPrivate, got.Visibility)
	assert.True(t, got.UpdatedAt.After(a.CreatedAt))

	stored, err := env.repo.Get(ctxBase, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Palm Sunday procession", stored.Caption)
}

func TestUpdateMetadataRejectsImmutableFields(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedAsset(t, strPtr("user-1"), VisibilityPublic, "photo.pdf")

	for _, key := range []string{"storage_path", "mime_type", "uploaded_by", "width", "category"} {
		_, err := env.svc.UpdateMetadata(ctxBase, admin, a.ID, map[string]any{
			"caption": "ok",
			key:       "tampered",
		})
		assert.ErrorIs(t, err, ErrForbiddenField, key)
	}

	stored, err := env.repo.Get(ctxBase, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.StoragePath, stored.StoragePath)
	assert.Equal(t, "", stored.Caption)
}

func TestUpdateMetadataValidation(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedAsset(t, strPtr("user-1"), VisibilityPublic, "photo.pdf")

	cases := []map[string]any{
		{},
		{"is_featured": "yes"},
		{"caption": 42.0},
		{"visibility": "friends"},
		{"alt_text": strings.Repeat("x", maxAltTextLen+1)},
	}
	for _, raw := range cases {
		_, err := env.svc.UpdateMetadata(ctxBase, owner, a.ID, raw)
		assert.ErrorIs(t, err, ErrInvalidField, "%v", raw)
	}
}

func TestUpdateMetadataAuthorization(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedAsset(t, strPtr("user-1"), VisibilityPublic, "photo.pdf")

	_, err := env.svc.UpdateMetadata(ctxBase, other, a.ID, map[string]any{"caption": "mine now"})
	assert.ErrorIs(t, err, ErrNotFoundOrForbidden)

	_, err = env.svc.UpdateMetadata(ctxBase, nobody, a.ID, map[string]any{"caption": "anon"})
	assert.ErrorIs(t, err, ErrNotFoundOrForbidden)

	_, err = env.svc.UpdateMetadata(ctxBase, admin, a.ID, map[string]any{"caption": "moderated"})
	assert.NoError(t, err)
}

func TestDeleteRemovesFilesAndRow(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.UploadBatch(ctxBase, owner, []Upload{
		upload("nave.png", "image/png", pngBytes(t, 800, 600)),
	}, UploadOptions{})
	require.NoError(t, err)
	require.Len(t, res.Assets, 1)
	id := res.Assets[0].ID
	require.Len(t, env.storedFiles(t), 3, "original, optimized copy and thumbnail")

	assert.ErrorIs(t, env.svc.Delete(ctxBase, other, id), ErrNotFoundOrForbidden)
	require.Len(t, env.storedFiles(t), 3)

	require.NoError(t, env.svc.Delete(ctxBase, owner, id))
	assert.Empty(t, env.storedFiles(t))
	assert.Equal(t, 0, env.repo.len())

	assert.ErrorIs(t, env.svc.Delete(ctxBase, owner, id), ErrNotFoundOrForbidden)
	assert.Equal(t, []string{EventAssetCreated, EventAssetDeleted}, env.events.types())
}

func TestDeleteToleratesMissingFiles(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedAsset(t, strPtr("user-1"), VisibilityPublic, "gone.pdf")

	abs, err := env.layout.Abs(a.StoragePath)
	require.NoError(t, err)
	require.NoError(t, os.Remove(abs))

	require.NoError(t, env.svc.Delete(ctxBase, owner, a.ID))
	assert.Equal(t, 0, env.repo.len())
}

func TestResolveFile(t *testing.T) {
	env := newTestEnv(t)
	pub := env.seedAsset(t, strPtr("user-1"), VisibilityPublic, "public.pdf")
	priv := env.seedAsset(t, strPtr("user-1"), VisibilityPrivate, "private.pdf")

	path, err := env.svc.ResolveFile(ctxBase, nobody, "documents", pub.StoredFilename)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = env.svc.ResolveFile(ctxBase, nobody, "documents", priv.StoredFilename)
	assert.ErrorIs(t, err, ErrNotFoundOrForbidden)

	_, err = env.svc.ResolveFile(ctxBase, owner, "documents", priv.StoredFilename)
	assert.NoError(t, err)

	// Right id, wrong directory.
	_, err = env.svc.ResolveFile(ctxBase, nobody, "images", pub.StoredFilename)
	assert.ErrorIs(t, err, ErrNotFoundOrForbidden)

	_, err = env.svc.ResolveFile(ctxBase, nobody, "documents", "../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFoundOrForbidden)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	env.seedAsset(t, strPtr("user-1"), VisibilityPublic, "a.pdf")
	env.seedAsset(t, strPtr("user-2"), VisibilityPrivate, "b.pdf")

	var buf bytes.Buffer
	assert.ErrorIs(t, env.svc.Export(ctxBase, owner, ListQuery{}, &buf), ErrForbidden)

	require.NoError(t, env.svc.Export(ctxBase, admin, ListQuery{}, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(inventorySheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, inventoryColumns[0], rows[0][0])
}

func TestExportPagesThroughLargeCatalogs(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < exportBatchSize+3; i++ {
		env.seedAsset(t, nil, VisibilityPublic, "item.pdf")
	}

	var buf bytes.Buffer
	require.NoError(t, env.svc.Export(ctxBase, admin, ListQuery{}, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(inventorySheet)
	require.NoError(t, err)
	assert.Len(t, rows, exportBatchSize+4)
}
