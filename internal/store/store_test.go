package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadCode(t *testing.T) {
	s := setupTestStore(t)

	if err := s.SaveCode("Stanley/Linear 310MHz", 582); err != nil {
		t.Fatalf("SaveCode failed: %v", err)
	}
	code, err := s.LoadCode("Stanley/Linear 310MHz")
	if err != nil {
		t.Fatalf("LoadCode failed: %v", err)
	}
	if code != 582 {
		t.Errorf("loaded code = %d, want 582", code)
	}
}

func TestLoadCodeMissing(t *testing.T) {
	s := setupTestStore(t)

	if _, err := s.LoadCode("unknown target"); !errors.Is(err, ErrNoSavedCode) {
		t.Errorf("expected ErrNoSavedCode, got %v", err)
	}
}

func TestSaveCodeOverwrites(t *testing.T) {
	s := setupTestStore(t)

	if err := s.SaveCode("target", 100); err != nil {
		t.Fatalf("SaveCode failed: %v", err)
	}
	if err := s.SaveCode("target", 200); err != nil {
		t.Fatalf("second SaveCode failed: %v", err)
	}
	code, err := s.LoadCode("target")
	if err != nil {
		t.Fatalf("LoadCode failed: %v", err)
	}
	if code != 200 {
		t.Errorf("loaded code = %d, want 200", code)
	}

	codes, err := s.ListCodes()
	if err != nil {
		t.Fatalf("ListCodes failed: %v", err)
	}
	if len(codes) != 1 {
		t.Errorf("have %d saved codes, want 1 after overwrite", len(codes))
	}
}

func TestSaveCodeZeroValue(t *testing.T) {
	// Code 0 is a valid working code and must be distinguishable from absent.
	s := setupTestStore(t)

	if err := s.SaveCode("target", 0); err != nil {
		t.Fatalf("SaveCode failed: %v", err)
	}
	code, err := s.LoadCode("target")
	if err != nil {
		t.Fatalf("LoadCode failed: %v", err)
	}
	if code != 0 {
		t.Errorf("loaded code = %d, want 0", code)
	}
}

func TestListCodes(t *testing.T) {
	s := setupTestStore(t)

	for _, name := range []string{"a", "b", "c"} {
		if err := s.SaveCode(name, 1); err != nil {
			t.Fatalf("SaveCode(%s) failed: %v", name, err)
		}
	}
	codes, err := s.ListCodes()
	if err != nil {
		t.Fatalf("ListCodes failed: %v", err)
	}
	if len(codes) != 3 {
		t.Errorf("have %d saved codes, want 3", len(codes))
	}
}

func TestDeleteCode(t *testing.T) {
	s := setupTestStore(t)

	if err := s.SaveCode("target", 42); err != nil {
		t.Fatalf("SaveCode failed: %v", err)
	}
	if err := s.DeleteCode("target"); err != nil {
		t.Fatalf("DeleteCode failed: %v", err)
	}
	if _, err := s.LoadCode("target"); !errors.Is(err, ErrNoSavedCode) {
		t.Errorf("expected ErrNoSavedCode after delete, got %v", err)
	}
	// Deleting an absent code is not an error.
	if err := s.DeleteCode("target"); err != nil {
		t.Errorf("repeat DeleteCode failed: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := setupTestStore(t)

	id, err := s.CreateRun("run-1", "Stanley/Linear 310MHz", "debruijn", 1024)
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	runs, err := s.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("have %d runs, want 1", len(runs))
	}
	if runs[0].Status != "running" {
		t.Errorf("fresh run status = %q, want running", runs[0].Status)
	}
	if runs[0].MaxCode != 1024 {
		t.Errorf("max code = %d, want 1024", runs[0].MaxCode)
	}

	if err := s.FinishRun(id, "completed", 1024, 1024, ""); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	runs, err = s.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if runs[0].Status != "completed" {
		t.Errorf("finished run status = %q, want completed", runs[0].Status)
	}
	if runs[0].CodesTransmitted != 1024 {
		t.Errorf("codes transmitted = %d, want 1024", runs[0].CodesTransmitted)
	}
}

func TestRecentRunsLimitAndOrder(t *testing.T) {
	s := setupTestStore(t)

	for i := 0; i < 5; i++ {
		if _, err := s.CreateRun("run", "target", "stream", uint32(i)); err != nil {
			t.Fatalf("CreateRun %d failed: %v", i, err)
		}
	}
	runs, err := s.RecentRuns(3)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("have %d runs, want 3", len(runs))
	}
	// Newest first: the last inserted run has the highest max_code.
	if runs[0].MaxCode != 4 {
		t.Errorf("newest run max code = %d, want 4", runs[0].MaxCode)
	}
}

func TestFinishRunRecordsError(t *testing.T) {
	s := setupTestStore(t)

	id, err := s.CreateRun("run-err", "target", "compatibility", 16)
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := s.FinishRun(id, "error", 3, 16, "radio failed to start"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	runs, err := s.RecentRuns(1)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if runs[0].ErrorMessage != "radio failed to start" {
		t.Errorf("error message = %q", runs[0].ErrorMessage)
	}
}

func TestSize(t *testing.T) {
	s := setupTestStore(t)
	size, err := s.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size <= 0 {
		t.Errorf("database size = %d, want > 0", size)
	}
}
