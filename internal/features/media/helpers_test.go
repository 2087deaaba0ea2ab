package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"parish-media/internal/config"
	"parish-media/internal/processing"
	"parish-media/internal/storage"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockMediaRepo struct {
	mu     sync.Mutex
	assets map[string]*MediaAsset

	createErr   error
	createErrOn map[string]error // keyed by original filename
	beforeSave  func(*MediaAsset)
	lastFilter  ListFilter
}

func NewMockMediaRepo() *MockMediaRepo {
	return &MockMediaRepo{assets: make(map[string]*MediaAsset)}
}

func (m *MockMediaRepo) EnsureSchema(ctx context.Context) error { return nil }

func (m *MockMediaRepo) Create(ctx context.Context, asset *MediaAsset) error {
	if m.beforeSave != nil {
		m.beforeSave(asset)
	}
	if m.createErr != nil {
		return m.createErr
	}
	if err := m.createErrOn[asset.OriginalFilename]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *asset
	m.assets[asset.ID] = &cp
	return nil
}

func (m *MockMediaRepo) Get(ctx context.Context, id string) (*MediaAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, ErrAssetNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockMediaRepo) FindByIDs(ctx context.Context, ids []string) (map[string]*MediaAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*MediaAsset)
	for _, id := range ids {
		if a, ok := m.assets[id]; ok {
			cp := *a
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *MockMediaRepo) List(ctx context.Context, filter ListFilter) ([]*MediaAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	var out []*MediaAsset
	for _, a := range m.assets {
		if matchesFilter(filter, a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 {
		start := min(filter.Offset, len(out))
		end := min(start+filter.Limit, len(out))
		out = out[start:end]
	}
	return out, nil
}

func (m *MockMediaRepo) Count(ctx context.Context, filter ListFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.assets {
		if matchesFilter(filter, a) {
			n++
		}
	}
	return n, nil
}

func (m *MockMediaRepo) UpdateMetadata(ctx context.Context, id string, patch MetadataPatch, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return ErrAssetNotFound
	}
	applyPatch(a, patch, updatedAt)
	return nil
}

func (m *MockMediaRepo) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.assets[id]
	delete(m.assets, id)
	return ok, nil
}

func (m *MockMediaRepo) put(a *MediaAsset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[a.ID] = a
}

func (m *MockMediaRepo) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.assets)
}

func matchesFilter(f ListFilter, a *MediaAsset) bool {
	owner := ""
	if a.UploadedBy != nil {
		owner = *a.UploadedBy
	}
	if f.Category != "" && a.Category != f.Category {
		return false
	}
	if f.UploadedBy != "" && owner != f.UploadedBy {
		return false
	}
	if f.Visibility != "" && a.Visibility != f.Visibility {
		return false
	}
	if f.Featured != nil && a.IsFeatured != *f.Featured {
		return false
	}
	if q := strings.ToLower(f.Search); q != "" {
		hay := strings.ToLower(a.OriginalFilename + "\n" + a.Caption + "\n" + a.Description)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	if !f.IncludePrivate && a.Visibility != VisibilityPublic {
		if f.ViewerID == "" || owner != f.ViewerID {
			return false
		}
	}
	return true
}

type mockProber struct {
	info *processing.ProbeInfo
	err  error
}

func (p *mockProber) Probe(ctx context.Context, path string) (*processing.ProbeInfo, error) {
	return p.info, p.err
}

func (p *mockProber) CaptureFrame(ctx context.Context, src, dst string, seconds float64, box int) error {
	if p.err != nil {
		return p.err
	}
	return os.WriteFile(dst, []byte("frame"), 0o644)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	svc    *MediaServiceImpl
	repo   *MockMediaRepo
	layout *storage.Layout
	events *recordingPublisher
	cfg    *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		UploadURLPrefix:       "/uploads",
		MaxUploadFiles:        5,
		MaxFileSize:           1 << 20,
		UploadWorkers:         2,
		ProcessTimeout:        time.Second,
		ThumbnailSize:         300,
		OptimizedWidth:        1920,
		OptimizedHeight:       1080,
		ThumbnailQuality:      80,
		OptimizedQuality:      85,
		VideoThumbnailPercent: 10,
		ElevatedRoles:         []string{"admin", "editor"},
		ReconcileGrace:        time.Hour,
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, fn := range mutate {
		fn(cfg)
	}

	layout, err := storage.NewLayout(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, layout.EnsureLayout())

	log := zap.NewNop()
	cleaner := storage.NewCleaner(layout, log)
	prober := &mockProber{info: &processing.ProbeInfo{HasVideo: true, Width: 1280, Height: 720, Duration: 30}}
	proc := processing.NewProcessor(layout, cleaner, prober, processing.OptionsFromConfig(cfg), log)

	repo := NewMockMediaRepo()
	events := &recordingPublisher{}
	svc := NewMediaService(repo, layout, cleaner, proc, events, cfg, log).(*MediaServiceImpl)

	// Strictly increasing timestamps keep listing order deterministic.
	var mu sync.Mutex
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	return &testEnv{svc: svc, repo: repo, layout: layout, events: events, cfg: cfg}
}

func (e *testEnv) storedFiles(t *testing.T) []string {
	t.Helper()
	var out []string
	require.NoError(t, e.layout.Walk(func(se storage.StoredEntry) error {
		out = append(out, se.RelPath)
		return nil
	}))
	sort.Strings(out)
	return out
}

func upload(name, mimeType string, data []byte) Upload {
	return Upload{
		Filename: name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.NRGBA{B: 180, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pdfBytes() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
}

func strPtr(s string) *string { return &s }

var (
	owner   = Actor{UserID: "user-1"}
	other   = Actor{UserID: "user-2"}
	admin   = Actor{UserID: "admin-1", Elevated: true}
	nobody  = Actor{}
	ctxBase = context.Background()
)

// seedAsset stores a catalog row plus its original on disk.
func (e *testEnv) seedAsset(t *testing.T, uploader *string, vis Visibility, name string) *MediaAsset {
	t.Helper()
	sf, err := e.layout.Store("document", name, strings.NewReader("content of "+name))
	require.NoError(t, err)
	now := e.svc.now()
	a := &MediaAsset{
		ID:               sf.ID,
		Category:         "document",
		MimeType:         "application/pdf",
		OriginalFilename: name,
		StoredFilename:   sf.StoredFilename,
		StoragePath:      sf.RelPath,
		FileSizeBytes:    sf.Size,
		UploadedBy:       uploader,
		Visibility:       vis,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	e.repo.put(a)
	return a
}
