package fetcher

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/segin2005/efgrabber/internal/model"
)

func testOptions() Options {
	return Options{
		UserAgent:      "efgrabber-test/1.0",
		ConnectTimeout: 5 * time.Second,
		KeepAlive:      120 * time.Second,
		MaxRedirects:   10,
	}
}

func TestFetchToFileSuccess(t *testing.T) {
	body := make([]byte, 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1024")
		w.Write(body)
	}))
	defer srv.Close()

	f := New(testOptions())
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.pdf")

	result, err := f.FetchToFile(t.Context(), srv.URL, dest, "", 5*time.Second, nil)
	if err != nil {
		t.Fatalf("FetchToFile: %v", err)
	}
	if result.HTTPCode != 200 {
		t.Errorf("HTTPCode = %d, want 200", result.HTTPCode)
	}
	if result.BytesTransferred != 1024 {
		t.Errorf("BytesTransferred = %d, want 1024", result.BytesTransferred)
	}
	stat, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("stat output file: %v", err)
	}
	if stat.Size() != 1024 {
		t.Errorf("file size = %d, want 1024", stat.Size())
	}
}

func TestFetchToFileSizeMismatchDeletesPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2048")
		w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	f := New(testOptions())
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.pdf")

	_, err := f.FetchToFile(t.Context(), srv.URL, dest, "", 5*time.Second, nil)
	var mismatch *model.SizeMismatchError
	if err == nil {
		t.Fatal("expected size mismatch error")
	}
	if !asSizeMismatch(err, &mismatch) {
		t.Fatalf("error %v is not a SizeMismatchError", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("expected partial file to be deleted on size mismatch")
	}
}

func TestFetch404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(testOptions())
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.pdf")

	result, err := f.FetchToFile(t.Context(), srv.URL, dest, "", 5*time.Second, nil)
	if err != nil {
		t.Fatalf("FetchToFile: %v", err)
	}
	if result.HTTPCode != 404 {
		t.Errorf("HTTPCode = %d, want 404", result.HTTPCode)
	}
}

func TestFetchToMemoryCapturesSetCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "justiceGovAgeVerified=true; Path=/")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f := New(testOptions())
	body, result, err := f.FetchToMemory(t.Context(), srv.URL, "", 5*time.Second)
	if err != nil {
		t.Fatalf("FetchToMemory: %v", err)
	}
	if string(body) != "<html></html>" {
		t.Errorf("body = %q", body)
	}
	if len(result.SetCookieHeaders) != 1 {
		t.Fatalf("SetCookieHeaders = %v, want 1 entry", result.SetCookieHeaders)
	}
}

func TestFetchSendsCookieHeader(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
	}))
	defer srv.Close()

	f := New(testOptions())
	if _, _, err := f.FetchToMemory(t.Context(), srv.URL, "justiceGovAgeVerified=true", 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if gotCookie != "justiceGovAgeVerified=true" {
		t.Errorf("Cookie header = %q, want justiceGovAgeVerified=true", gotCookie)
	}
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
	}))
	defer srv.Close()

	f := New(testOptions())
	result, err := f.Probe(t.Context(), srv.URL, "", 5*time.Second)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.HTTPCode != 200 {
		t.Errorf("HTTPCode = %d, want 200", result.HTTPCode)
	}
}

func asSizeMismatch(err error, target **model.SizeMismatchError) bool {
	if m, ok := err.(*model.SizeMismatchError); ok {
		*target = m
		return true
	}
	return false
}
