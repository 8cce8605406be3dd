package assets

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/promptctx/internal/testutil"
)

func TestRead(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "docs/a.md", "World\nsecond line")
	testutil.WriteFile(t, dir, "empty.txt", "")
	testutil.WriteFile(t, dir, "big.txt", strings.Repeat("x", 64))
	testutil.WriteFile(t, dir, "broken.pdf", "not a pdf")

	r := NewReader(dir, 32, testutil.Logger(t))

	tests := []struct {
		name        string
		path        string
		wantSuccess bool
		wantContent string
		wantLines   int
		wantErr     string
	}{
		{name: "relative path", path: "docs/a.md", wantSuccess: true, wantContent: "World\nsecond line", wantLines: 2},
		{name: "absolute path", path: filepath.Join(dir, "docs", "a.md"), wantSuccess: true, wantContent: "World\nsecond line", wantLines: 2},
		{name: "empty file", path: "empty.txt", wantSuccess: true},
		{name: "missing", path: "docs/missing.md", wantErr: "no such file"},
		{name: "directory", path: "docs", wantErr: "is a directory"},
		{name: "over limit", path: "big.txt", wantErr: "limit is 32"},
		{name: "invalid pdf", path: "broken.pdf", wantErr: "page count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Read(context.Background(), tt.path)
			if got.Path != tt.path {
				t.Errorf("Path = %q, want %q", got.Path, tt.path)
			}
			if got.Success != tt.wantSuccess {
				t.Fatalf("Success = %v, want %v (error %q)", got.Success, tt.wantSuccess, got.Error)
			}
			if !tt.wantSuccess {
				if !strings.Contains(got.Error, tt.wantErr) {
					t.Errorf("Error = %q, want it to contain %q", got.Error, tt.wantErr)
				}
				return
			}
			if got.Content != tt.wantContent {
				t.Errorf("Content = %q, want %q", got.Content, tt.wantContent)
			}
			if got.Stats.Lines != tt.wantLines {
				t.Errorf("Lines = %d, want %d", got.Stats.Lines, tt.wantLines)
			}
			if got.Stats.Bytes != int64(len(tt.wantContent)) {
				t.Errorf("Bytes = %d, want %d", got.Stats.Bytes, len(tt.wantContent))
			}
			if got.Stats.ModifiedAt.IsZero() {
				t.Error("ModifiedAt should be set")
			}
		})
	}
}

func TestRead_Cancelled(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.md", "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := NewReader(dir, 0, nil).Read(ctx, "a.md")
	if got.Success || !strings.Contains(got.Error, "canceled") {
		t.Errorf("expected cancelled read to fail, got %+v", got)
	}
}
