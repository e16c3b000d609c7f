// manager_test.go - Tests for storage layer
package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kinereplay/backend/internal/models"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		if _, err := NewLocalStore(uploadDir, 0); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves file from reader", func(t *testing.T) {
		store := createTestStore(t)
		content := `<scene><ball radius="1"/></scene>`

		info, err := store.Save("pendulum.xml", models.FileRoleScene, strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}
		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Role != models.FileRoleScene {
			t.Errorf("Expected role scene, got %v", info.Role)
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), info.Size)
		}

		data, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if string(data) != content {
			t.Errorf("Expected content %q, got %q", content, string(data))
		}
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		store := createTestStore(t)
		if _, err := store.Save("x", "binary", strings.NewReader("")); err == nil {
			t.Error("Expected error for unknown role")
		}
	})

	t.Run("enforces size limit", func(t *testing.T) {
		store, err := NewLocalStore(t.TempDir(), 4)
		if err != nil {
			t.Fatal(err)
		}
		_, err = store.Save("big.dat", models.FileRoleData, strings.NewReader("0 1 2 3\n"))
		var limitErr *models.ResourceLimitError
		if !errors.As(err, &limitErr) {
			t.Fatalf("Expected ResourceLimitError, got %v", err)
		}
		entries, _ := os.ReadDir(store.uploadDir)
		if len(entries) != 0 {
			t.Errorf("Expected oversized upload to be removed, found %d files", len(entries))
		}

		if _, err := store.Save("ok.dat", models.FileRoleData, strings.NewReader("0 1")); err != nil {
			t.Errorf("Expected upload at the limit to succeed: %v", err)
		}
	})
}

func TestLocalStore_GetAndPath(t *testing.T) {
	store := createTestStore(t)
	info, _ := store.Save("run.dat", models.FileRoleData, strings.NewReader("0 1\n"))

	got, err := store.Get(info.ID)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}
	if got.Name != "run.dat" {
		t.Errorf("Expected name run.dat, got %s", got.Name)
	}

	path, err := store.GetFilePath(info.ID)
	if err != nil {
		t.Fatalf("Failed to get path: %v", err)
	}
	if path != filepath.Join(store.uploadDir, info.ID) {
		t.Errorf("Unexpected path %s", path)
	}

	if _, err := store.Get("missing"); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := store.GetFilePath("missing"); err == nil {
		t.Error("Expected error for missing file path")
	}
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)
	store.Save("a.xml", models.FileRoleScene, strings.NewReader("a"))
	time.Sleep(2 * time.Millisecond)
	store.Save("b.dat", models.FileRoleData, strings.NewReader("b"))
	time.Sleep(2 * time.Millisecond)
	store.Save("c.dat", models.FileRoleData, strings.NewReader("c"))

	all, _ := store.List("", 0)
	if len(all) != 3 {
		t.Fatalf("Expected 3 files, got %d", len(all))
	}
	if all[0].Name != "c.dat" {
		t.Errorf("Expected newest first, got %s", all[0].Name)
	}

	data, _ := store.List(models.FileRoleData, 0)
	if len(data) != 2 {
		t.Errorf("Expected 2 data files, got %d", len(data))
	}

	limited, _ := store.List("", 1)
	if len(limited) != 1 {
		t.Errorf("Expected 1 file with limit, got %d", len(limited))
	}
}

func TestLocalStore_DeleteAndRename(t *testing.T) {
	store := createTestStore(t)
	info, _ := store.Save("old.xml", models.FileRoleScene, strings.NewReader("x"))

	renamed, err := store.Rename(info.ID, "new.xml")
	if err != nil {
		t.Fatalf("Failed to rename: %v", err)
	}
	if renamed.Name != "new.xml" {
		t.Errorf("Expected new.xml, got %s", renamed.Name)
	}
	if _, err := store.Rename("missing", "x"); err == nil {
		t.Error("Expected error renaming missing file")
	}

	if err := store.Delete(info.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.uploadDir, info.ID)); !os.IsNotExist(err) {
		t.Error("Expected physical file to be removed")
	}
	if err := store.Delete(info.ID); err == nil {
		t.Error("Expected error deleting twice")
	}
}

func TestLocalStore_ConcurrentAccess(t *testing.T) {
	store := createTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, err := store.Save("f.dat", models.FileRoleData, strings.NewReader("0 1"))
			if err != nil {
				t.Errorf("Save failed: %v", err)
				return
			}
			store.Get(info.ID)
			store.List("", 5)
		}()
	}
	wg.Wait()

	all, _ := store.List("", 0)
	if len(all) != 20 {
		t.Errorf("Expected 20 files, got %d", len(all))
	}
}
