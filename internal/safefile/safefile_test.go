package safefile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRejectSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "wallet.key")
	link := filepath.Join(dir, "link.key")

	if err := os.WriteFile(target, []byte("secret"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := RejectSymlink(target); err != nil {
		t.Errorf("regular file should pass: %v", err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	err := RejectSymlink(link)
	if err == nil || !strings.Contains(err.Error(), "symbolic link") {
		t.Errorf("expected symlink rejection, got %v", err)
	}
	if err := RejectSymlink(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestReadFileMax(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "small.pub")
	if err := os.WriteFile(f, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadFileMax(f, 10)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "0123456789" {
		t.Errorf("got %q", got)
	}

	if _, err := ReadFileMax(f, 9); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size rejection, got %v", err)
	}

	link := filepath.Join(dir, "link.pub")
	if err := os.Symlink(f, link); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFileMax(link, 100); err == nil {
		t.Error("expected symlink rejection")
	}

	if _, err := ReadFileMax(dir, 1<<20); err == nil || !strings.Contains(err.Error(), "regular") {
		t.Errorf("expected directory rejection, got %v", err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	in := map[string]any{"domain": "tonkeeper.com", "timestamp": float64(1717000000)}

	if err := WriteJSON(path, in, 0o644); err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := ReadJSON(path, &out); err != nil {
		t.Fatal(err)
	}
	if out["domain"] != "tonkeeper.com" || out["timestamp"] != float64(1717000000) {
		t.Errorf("round trip mismatch: %v", out)
	}
}

func TestReadJSON_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	var v map[string]any
	err := ReadJSON(path, &v)
	if err == nil || !strings.Contains(err.Error(), "decoding") {
		t.Errorf("expected decode error, got %v", err)
	}
}
