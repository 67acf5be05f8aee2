package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestSplitExt(t *testing.T) {
	tests := []struct {
		name                   string
		stem, format, compress string
	}{
		{"disk.csv", "disk", "csv", ""},
		{"disk_tps.csv.gz", "disk_tps", "csv", ".gz"},
		{"out/per_cpu__user.parquet.zst", "per_cpu__user", "parquet", ".zst"},
		{"memory.msgpack", "memory", "msgpack", ""},
		{"noext", "noext", "", ""},
	}
	for _, tt := range tests {
		stem, format, compress := SplitExt(tt.name)
		if stem != tt.stem || format != tt.format || compress != tt.compress {
			t.Errorf("SplitExt(%q) = (%q, %q, %q), want (%q, %q, %q)",
				tt.name, stem, format, compress, tt.stem, tt.format, tt.compress)
		}
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"disk.csv":         "text/csv",
		"disk.json":        "application/json",
		"disk.xml":         "application/xml",
		"disk.parquet":     "application/vnd.apache.parquet",
		"disk.msgpack":     "application/msgpack",
		"disk.csv.gz":      "application/gzip",
		"disk.parquet.zst": "application/zstd",
		"disk.bin":         "application/octet-stream",
	}
	for name, want := range tests {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestObjectKey(t *testing.T) {
	if got := objectKey("", "csv/disk.csv"); got != "csv/disk.csv" {
		t.Errorf("got %q", got)
	}
	if got := objectKey("/sar/host1/", "/csv/disk.csv"); got != "sar/host1/csv/disk.csv" {
		t.Errorf("got %q", got)
	}
}

func TestLocalBackend(t *testing.T) {
	base := filepath.Join(t.TempDir(), "csv")
	backend, err := NewLocalBackend(base, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLocalBackend failed: %v", err)
	}
	defer backend.Close()

	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		t.Fatalf("output directory not created: %v", err)
	}

	ctx := context.Background()

	t.Run("Write and Read", func(t *testing.T) {
		if err := backend.Write(ctx, "disk.csv", []byte("# timestamp;tps\nT1;1\n")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		data, err := backend.Read(ctx, "disk.csv")
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if string(data) != "# timestamp;tps\nT1;1\n" {
			t.Errorf("Read = %q", data)
		}

		info, err := os.Stat(filepath.Join(base, "disk.csv"))
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if info.Mode().Perm() != 0644 {
			t.Errorf("mode = %v, want 0644", info.Mode().Perm())
		}
	})

	t.Run("Overwrite leaves no temp files", func(t *testing.T) {
		for _, content := range []string{"first\n", "second\n"} {
			if err := backend.Write(ctx, "tty.csv", []byte(content)); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
		}
		data, _ := backend.Read(ctx, "tty.csv")
		if string(data) != "second\n" {
			t.Errorf("Read = %q, want second", data)
		}

		matches, _ := filepath.Glob(filepath.Join(base, ".sarpivot-*.tmp"))
		if len(matches) != 0 {
			t.Errorf("temp files left behind: %v", matches)
		}
	})

	t.Run("Nested path", func(t *testing.T) {
		if err := backend.Write(ctx, "host1/memory.csv", []byte("x\n")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		ok, err := backend.Exists(ctx, "host1/memory.csv")
		if err != nil || !ok {
			t.Errorf("Exists = %v, %v", ok, err)
		}
	})

	t.Run("Missing file", func(t *testing.T) {
		ok, err := backend.Exists(ctx, "nope.csv")
		if err != nil || ok {
			t.Errorf("Exists = %v, %v", ok, err)
		}
		if _, err := backend.Read(ctx, "nope.csv"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Read error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Path escaping the output directory", func(t *testing.T) {
		for _, p := range []string{"../escape.csv", "a/../../escape.csv", ""} {
			if err := backend.Write(ctx, p, []byte("x")); err == nil {
				t.Errorf("Write(%q) succeeded, want error", p)
			}
		}
		if _, err := os.Stat(filepath.Join(filepath.Dir(base), "escape.csv")); err == nil {
			t.Error("file written outside the output directory")
		}
	})

	t.Run("Cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := backend.Write(cctx, "late.csv", []byte("x")); !errors.Is(err, context.Canceled) {
			t.Errorf("Write error = %v, want context.Canceled", err)
		}
	})

	if backend.Type() != "local" {
		t.Errorf("Type = %q", backend.Type())
	}
}

func TestNewLocalBackend_Unwritable(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLocalBackend(filepath.Join(file, "out"), zerolog.Nop()); err == nil {
		t.Error("expected error when the output directory cannot be created")
	}
}
