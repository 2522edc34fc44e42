package blobstore

import (
	"bytes"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "blobs.db"), "http://localhost:8080/objects/")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	data := []byte("%PDF-1.4 fake pdf bytes")
	objectName, err := s.Upload(data, "doc-1", "manual.pdf", "application/pdf")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if objectName != "doc-1/manual.pdf" {
		t.Errorf("unexpected object name %q", objectName)
	}

	got, err := s.Download(objectName)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("downloaded bytes differ from uploaded bytes")
	}
	if ct := s.ContentType(objectName); ct != "application/pdf" {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestDownload_Missing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Download("nope/missing.bin"); err == nil {
		t.Error("expected error for missing object")
	}
}

func TestPublicURL(t *testing.T) {
	s := openTestStore(t)
	if got := s.PublicURL("doc-1/img/fig.png"); got != "http://localhost:8080/objects/doc-1/img/fig.png" {
		t.Errorf("unexpected public URL %q", got)
	}
}

func TestUploadDir(t *testing.T) {
	s := openTestStore(t)

	files := map[string][]byte{
		"fig1.png": []byte("png-1"),
		"fig2.jpg": []byte("jpg-2"),
	}
	urls, err := s.UploadDir(files, "doc-1/images")
	if err != nil {
		t.Fatalf("UploadDir failed: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %d", len(urls))
	}

	data, err := s.Download("doc-1/images/fig1.png")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if string(data) != "png-1" {
		t.Errorf("unexpected content %q", data)
	}
}
