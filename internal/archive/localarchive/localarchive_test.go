package localarchive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPutGetRoundtrip(t *testing.T) {
	t.Parallel()

	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	content := []byte("# Incident Postmortem 01JY2QK7\n\n## Summary\nok\n")
	locator, err := a.Put(context.Background(), "01JY2QK7R8", "postmortem", content)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if locator != "local://postmortem/01JY2QK7R8.md" {
		t.Errorf("locator = %q", locator)
	}

	got, err := a.Get(context.Background(), locator)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("Get = %q, want %q", got, content)
	}
}

func TestPut_Overwrite(t *testing.T) {
	t.Parallel()

	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if _, err := a.Put(ctx, "inc-1", "postmortem", []byte("v1")); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	locator, err := a.Put(ctx, "inc-1", "postmortem", []byte("v2"))
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}

	got, err := a.Get(ctx, locator)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("Get = %q, want v2", got)
	}
}

func TestGet_WrongScheme(t *testing.T) {
	t.Parallel()

	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := a.Get(context.Background(), "s3://bucket/key"); err == nil {
		t.Fatal("Get = nil, want scheme error")
	}
}

func TestGet_EscapeRejected(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	outside := filepath.Join(filepath.Dir(base), "outside.md")
	if err := os.WriteFile(outside, []byte("secret"), 0o600); err != nil {
		t.Fatalf("write outside file: %v", err)
	}

	a, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = a.Get(context.Background(), "local://../outside.md")
	if err == nil {
		t.Fatal("Get = nil, want escape error")
	}
	if !strings.Contains(err.Error(), "escapes") {
		t.Errorf("err = %v", err)
	}
}

func TestGet_Missing(t *testing.T) {
	t.Parallel()

	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := a.Get(context.Background(), "local://postmortem/nope.md"); err == nil {
		t.Fatal("Get = nil, want read error")
	}
}

func TestNew_EmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New = nil, want error")
	}
}

func TestNew_CreatesBaseDir(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "artifacts", "nested")
	if _, err := New(base); err != nil {
		t.Fatalf("New: %v", err)
	}
	info, err := os.Stat(base)
	if err != nil || !info.IsDir() {
		t.Fatalf("base dir not created: %v", err)
	}
}
