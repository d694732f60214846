package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadFileReturnsRawContent(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	content := "line 1\nline 2\nline 3\n"
	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	tool := NewReadFileTool(tmpDir)
	input, _ := json.Marshal(ReadFileInput{Path: "test.txt"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	// Full reads must return the body verbatim, no line numbers or headers.
	if result.Output != content {
		t.Errorf("expected raw content %q, got %q", content, result.Output)
	}
}

func TestReadFileMissing(t *testing.T) {
	tool := NewReadFileTool(t.TempDir())
	input, _ := json.Marshal(ReadFileInput{Path: "nope.txt"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Error("expected failure for missing file")
	}
	if !strings.Contains(result.Error, "File not found") {
		t.Errorf("unexpected error text: %s", result.Error)
	}
}

func TestReadFileSlice(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "lines.txt")
	if err := os.WriteFile(testFile, []byte("a\nb\nc\nd\ne\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := NewReadFileTool(tmpDir)
	input, _ := json.Marshal(ReadFileInput{Path: "lines.txt", Offset: 2, Limit: 2})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if !strings.HasPrefix(result.Output, "b\nc\n") {
		t.Errorf("expected lines 2-3, got %q", result.Output)
	}
	if !strings.Contains(result.Output, "file continues") {
		t.Errorf("expected continuation marker, got %q", result.Output)
	}
}

func TestWriteFileCreatesAndRefusesOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	tool := NewWriteFileTool(tmpDir)

	input, _ := json.Marshal(WriteFileInput{Path: "sub/dir/out.txt", Content: "hello world"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("unexpected error: %s", result.Error)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "sub", "dir", "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("expected 'hello world', got %q", string(data))
	}

	// Second write without overwrite must fail and leave the file alone.
	input, _ = json.Marshal(WriteFileInput{Path: "sub/dir/out.txt", Content: "replaced"})
	result, err = tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected refusal without overwrite")
	}
	if !strings.Contains(result.Error, "overwrite") {
		t.Errorf("error should mention overwrite: %s", result.Error)
	}

	data, _ = os.ReadFile(filepath.Join(tmpDir, "sub", "dir", "out.txt"))
	if string(data) != "hello world" {
		t.Errorf("file changed despite refusal: %q", string(data))
	}

	// With overwrite=true it goes through.
	input, _ = json.Marshal(WriteFileInput{Path: "sub/dir/out.txt", Content: "replaced", Overwrite: true})
	result, err = tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	data, _ = os.ReadFile(filepath.Join(tmpDir, "sub", "dir", "out.txt"))
	if string(data) != "replaced" {
		t.Errorf("expected 'replaced', got %q", string(data))
	}
}

func TestEditFileSingle(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "edit.txt")
	if err := os.WriteFile(testFile, []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := NewEditFileTool(tmpDir)
	input, _ := json.Marshal(EditFileInput{Path: "edit.txt", OldString: "world", NewString: "universe"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("unexpected error: %s", result.Error)
	}

	data, _ := os.ReadFile(testFile)
	if string(data) != "hello universe" {
		t.Errorf("expected 'hello universe', got %q", string(data))
	}
}

func TestEditFileNotFoundString(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "edit.txt")
	if err := os.WriteFile(testFile, []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := NewEditFileTool(tmpDir)
	input, _ := json.Marshal(EditFileInput{Path: "edit.txt", OldString: "mars", NewString: "venus"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected failure for missing old_string")
	}
	if !strings.Contains(result.Error, "not found") || !strings.Contains(result.Error, "exactly") {
		t.Errorf("error should explain the exact-match requirement: %s", result.Error)
	}
}

func TestEditFileAmbiguousWithoutReplaceAll(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "edit.txt")
	if err := os.WriteFile(testFile, []byte("aa bb aa"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := NewEditFileTool(tmpDir)
	input, _ := json.Marshal(EditFileInput{Path: "edit.txt", OldString: "aa", NewString: "cc"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected failure for ambiguous old_string")
	}
	if !strings.Contains(result.Error, "2 times") {
		t.Errorf("error should report the occurrence count: %s", result.Error)
	}

	input, _ = json.Marshal(EditFileInput{Path: "edit.txt", OldString: "aa", NewString: "cc", ReplaceAll: true})
	result, err = tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	data, _ := os.ReadFile(testFile)
	if string(data) != "cc bb cc" {
		t.Errorf("expected 'cc bb cc', got %q", string(data))
	}
}

func TestEditFileBatch(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "batch.txt")
	if err := os.WriteFile(testFile, []byte("one two three"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := NewEditFileTool(tmpDir)
	input, _ := json.Marshal(EditFileInput{
		Path: "batch.txt",
		Edits: []EditOp{
			{OldString: "one", NewString: "1"},
			{OldString: "three", NewString: "3"},
		},
	})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if !strings.Contains(result.Output, "2 replacements") {
		t.Errorf("expected replacement count in %q", result.Output)
	}

	data, _ := os.ReadFile(testFile)
	if string(data) != "1 two 3" {
		t.Errorf("expected '1 two 3', got %q", string(data))
	}
}

func TestEditFileBatchIsAtomic(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "atomic.txt")
	if err := os.WriteFile(testFile, []byte("one two three"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := NewEditFileTool(tmpDir)
	input, _ := json.Marshal(EditFileInput{
		Path: "atomic.txt",
		Edits: []EditOp{
			{OldString: "one", NewString: "1"},
			{OldString: "missing", NewString: "x"},
		},
	})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected batch failure")
	}
	if !strings.Contains(result.Error, "edit 2 of 2") {
		t.Errorf("error should name the failing edit: %s", result.Error)
	}

	// First edit must not have been written.
	data, _ := os.ReadFile(testFile)
	if string(data) != "one two three" {
		t.Errorf("file changed despite failed batch: %q", string(data))
	}
}

func TestListDir(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "a.txt"), []byte("aa"), 0644)
	os.WriteFile(filepath.Join(tmpDir, ".hidden"), []byte(""), 0644)
	os.Mkdir(filepath.Join(tmpDir, "sub"), 0755)

	tool := NewListDirTool(tmpDir)
	input, _ := json.Marshal(ListDirInput{Path: "."})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if !strings.Contains(result.Output, "sub/") {
		t.Errorf("expected directory marker, got %q", result.Output)
	}
	if !strings.Contains(result.Output, "a.txt") {
		t.Errorf("expected file entry, got %q", result.Output)
	}
	if strings.Contains(result.Output, ".hidden") {
		t.Errorf("hidden entry should be skipped: %q", result.Output)
	}

	input, _ = json.Marshal(ListDirInput{Path: ".", All: true})
	result, _ = tool.Execute(context.Background(), input)
	if !strings.Contains(result.Output, ".hidden") {
		t.Errorf("all=true should include hidden entries: %q", result.Output)
	}
}
