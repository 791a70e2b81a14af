package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/jsonvalue"
)

func createTestDocument() Document {
	return Document{
		Metadata: Metadata{LastUpdate: 1000},
		Records: []entity.Record{
			{Type: "course", ID: "1", Fields: jsonvalue.Object{"name": jsonvalue.String("Algebra")}},
		},
	}
}

func writeDocument(t *testing.T, path string, doc any) {
	t.Helper()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal test document: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
}

func TestNewJSONRepository_Success(t *testing.T) {
	repo, err := NewJSONRepository("/tmp/test-snapshot.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo == nil {
		t.Error("expected repository to be created")
	}
}

func TestNewJSONRepository_EmptyPath(t *testing.T) {
	_, err := NewJSONRepository("")
	if err == nil {
		t.Error("expected error for empty path")
	}
}

func TestJSONRepository_LoadAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	writeDocument(t, path, createTestDocument())

	repo, err := NewJSONRepository(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if len(loaded.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(loaded.Records))
	}
	if name, _ := loaded.Records[0].Fields.Get("name"); !jsonvalue.Equal(name, jsonvalue.String("Algebra")) {
		t.Errorf("expected name 'Algebra', got %v", name)
	}
}

func TestJSONRepository_Load_FileNotFoundIsEmpty(t *testing.T) {
	repo, _ := NewJSONRepository(filepath.Join(t.TempDir(), "missing", "snapshot.json"))
	doc, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Records == nil || len(doc.Records) != 0 {
		t.Errorf("expected empty non-nil records, got %#v", doc.Records)
	}
}

func TestJSONRepository_Load_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := os.WriteFile(path, []byte("not valid json"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	repo, _ := NewJSONRepository(path)
	if _, err := repo.Load(context.Background()); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestJSONRepository_Load_ValidationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	writeDocument(t, path, map[string]any{
		"metadata": map[string]any{"lastUpdate": 1000},
		"records": []map[string]any{
			{"type": "course"}, // missing id
		},
	})

	repo, _ := NewJSONRepository(path)
	if _, err := repo.Load(context.Background()); err == nil {
		t.Error("expected validation error")
	}
}

func TestJSONRepository_Load_CanceledContext(t *testing.T) {
	repo, _ := NewJSONRepository(filepath.Join(t.TempDir(), "snapshot.json"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := repo.Load(ctx); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestJSONRepository_Save_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snapshot.json")
	repo, _ := NewJSONRepository(path)

	doc := createTestDocument()
	if err := repo.Save(context.Background(), &doc); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved file: %v", err)
	}
	var saved Document
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("failed to parse saved file: %v", err)
	}
	if len(saved.Records) != 1 {
		t.Errorf("expected 1 record in saved file, got %d", len(saved.Records))
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp-*"))
	if len(leftovers) != 0 {
		t.Errorf("expected no temp files left, got %v", leftovers)
	}
}

func TestJSONRepository_Save_GoldenLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	repo, _ := NewJSONRepository(path)

	doc := Document{
		Metadata: Metadata{LastUpdate: 1700000000000},
		Records: []entity.Record{
			{Type: "course", ID: "2", Fields: jsonvalue.Object{
				"name":             jsonvalue.String("Biology"),
				"enrollment_state": jsonvalue.String("active"),
			}},
			{Type: "assignment", ID: "a1", Revision: 7, Fields: jsonvalue.Object{
				"points": jsonvalue.Int(10),
				"due_at": jsonvalue.Null{},
				"tags":   jsonvalue.Array{jsonvalue.String("x")},
			}},
		},
	}
	if err := repo.Save(context.Background(), &doc); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if doc.Records[0].Type != "course" {
		t.Error("save must not reorder the caller's records")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved file: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "snapshot_document", data)
}

func TestJSONRepository_Save_NilDocument(t *testing.T) {
	repo, _ := NewJSONRepository(filepath.Join(t.TempDir(), "snapshot.json"))
	if err := repo.Save(context.Background(), nil); err == nil {
		t.Error("expected error for nil document")
	}
}

func TestJSONRepository_Save_ValidationError(t *testing.T) {
	repo, _ := NewJSONRepository(filepath.Join(t.TempDir(), "snapshot.json"))

	doc := Document{Records: []entity.Record{{Type: "course"}}}
	if err := repo.Save(context.Background(), &doc); err == nil {
		t.Error("expected validation error")
	}
}

// mockLocalStore implements Reloadable for testing
type mockLocalStore struct {
	lastUpdate int64
	dirty      bool
	doc        Document
	replaced   bool
}

func (m *mockLocalStore) GetLastUpdate() int64 {
	return m.lastUpdate
}

func (m *mockLocalStore) IsDirty() bool {
	return m.dirty
}

func (m *mockLocalStore) Snapshot() (Document, error) {
	return m.doc, nil
}

func (m *mockLocalStore) Replace(doc Document) error {
	m.doc = doc
	m.lastUpdate = doc.Metadata.LastUpdate
	m.replaced = true
	return nil
}

func newWatchedRepo(t *testing.T, diskUpdate int64) *JSONRepository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	doc := createTestDocument()
	doc.Metadata.LastUpdate = diskUpdate
	writeDocument(t, path, doc)

	repo, _ := NewJSONRepository(path)
	return repo.(*JSONRepository)
}

func TestJSONRepository_ReloadFunc_ReloadsWhenDiskNewer(t *testing.T) {
	repo := newWatchedRepo(t, 2000)
	local := &mockLocalStore{lastUpdate: 1000}

	repo.ReloadFunc(local)()

	if !local.replaced {
		t.Error("expected store to be replaced when disk is newer")
	}
	if local.lastUpdate != 2000 {
		t.Errorf("expected lastUpdate 2000, got %d", local.lastUpdate)
	}
}

func TestJSONRepository_ReloadFunc_SkipsWhenDiskOlder(t *testing.T) {
	repo := newWatchedRepo(t, 500)
	local := &mockLocalStore{lastUpdate: 1000}

	repo.ReloadFunc(local)()

	if local.replaced {
		t.Error("expected store NOT to be replaced when disk is older")
	}
}

func TestJSONRepository_ReloadFunc_SkipsWhenDirty(t *testing.T) {
	repo := newWatchedRepo(t, 2000)
	local := &mockLocalStore{lastUpdate: 1000, dirty: true}

	repo.ReloadFunc(local)()

	if local.replaced {
		t.Error("expected store NOT to be replaced when dirty")
	}
}

func TestJSONRepository_ReloadFunc_SkipsWhenSameContent(t *testing.T) {
	repo := newWatchedRepo(t, 1000)
	local := &mockLocalStore{lastUpdate: 1000, doc: createTestDocument()}

	repo.ReloadFunc(local)()

	if local.replaced {
		t.Error("expected store NOT to be replaced when content is same")
	}
}

func TestJSONRepository_ReloadFunc_ReloadsWhenSameVersionDifferentContent(t *testing.T) {
	repo := newWatchedRepo(t, 1000)
	local := &mockLocalStore{lastUpdate: 1000, doc: Document{}}

	repo.ReloadFunc(local)()

	if !local.replaced {
		t.Error("expected store to be replaced when content differs at same version")
	}
}

func TestJSONRepository_StartWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	repo, _ := NewJSONRepository(path)

	local := &syncedLocalStore{replaced: make(chan Document, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := repo.StartWatcher(ctx, local); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	doc := createTestDocument()
	doc.Metadata.LastUpdate = 5000
	writeDocument(t, path, doc)

	select {
	case got := <-local.replaced:
		if got.Metadata.LastUpdate != 5000 {
			t.Errorf("expected reloaded lastUpdate 5000, got %d", got.Metadata.LastUpdate)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload the store")
	}
}

func TestJSONRepository_StartWatcher_NilStore(t *testing.T) {
	repo, _ := NewJSONRepository(filepath.Join(t.TempDir(), "snapshot.json"))
	if err := repo.StartWatcher(context.Background(), nil); err == nil {
		t.Error("expected error for nil store")
	}
}

// syncedLocalStore reports replacements on a channel; the watcher calls it from a timer goroutine.
type syncedLocalStore struct {
	replaced chan Document
}

func (s *syncedLocalStore) GetLastUpdate() int64        { return 0 }
func (s *syncedLocalStore) IsDirty() bool               { return false }
func (s *syncedLocalStore) Snapshot() (Document, error) { return Document{}, nil }
func (s *syncedLocalStore) Replace(doc Document) error {
	select {
	case s.replaced <- doc:
	default:
	}
	return nil
}
