package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/reelhouse/backend/internal/api"
	"github.com/reelhouse/backend/internal/httpserver"
)

func TestFileNamerKeepsNamesUnique(t *testing.T) {
	now := time.UnixMilli(1000)
	namer := NewFileNamer(func() time.Time { return now })

	first := namer.Next("video", "Clip.MP4")
	second := namer.Next("video", "other.mp4")
	now = time.UnixMilli(500)
	third := namer.Next("video", "x.mp4")

	if first != "video-1000.mp4" || second != "video-1001.mp4" || third != "video-1002.mp4" {
		t.Fatalf("unexpected names %q %q %q", first, second, third)
	}
}

func TestSafeExt(t *testing.T) {
	cases := map[string]string{
		"movie.mp4":          ".mp4",
		"LOGO.PNG":           ".png",
		"noext":              "",
		"evil.php%00.png":    ".png",
		"../../etc/passwd":   "",
		"weird.m p4":         "",
		"long.extensionname": "",
	}
	for in, want := range cases {
		if got := safeExt(in); got != want {
			t.Fatalf("safeExt(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	env := newTestEnv(t)
	token := adminToken(t, env)

	rec := env.do(multipartRequest(t, http.MethodPost, "/upload-movie",
		map[string]string{"title": "Huge"},
		formFile{field: "episodeLogo", filename: "logo.png", content: "logo"},
		formFile{field: "video", filename: "huge.mp4", content: strings.Repeat("x", 2<<20)},
	), token)

	expectFailure(t, rec, http.StatusBadRequest, api.KindBadRequest)
	if got := env.reaper.names(); len(got) != 1 || !strings.HasPrefix(got[0], "episodeLogo-") {
		t.Fatalf("expected the logo saved before the limit tripped to be reaped, got %v", got)
	}
}

func TestUploadIgnoresUnexpectedFileFields(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(multipartRequest(t, http.MethodPost, "/register",
		map[string]string{"name": "ada", "password": "pw", "dob": "1990-01-01"},
		formFile{field: "video", filename: "sneaky.mp4", content: "video"},
	), "")

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected registration to succeed, got %d", rec.Code)
	}
	stored, _ := env.users.FindByName(t.Context(), "ada")
	if stored.ProfilePicture != "default-user-pic.png" {
		t.Fatalf("unexpected picture %q", stored.ProfilePicture)
	}
}

func TestUploadOutlivesServerWriteTimeout(t *testing.T) {
	env := newTestEnv(t)
	token := adminToken(t, env)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := httpserver.New(0, env.router, 300*time.Millisecond)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	body, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		_ = writer.WriteField("title", "Slow Upload")
		logo, _ := writer.CreateFormFile("episodeLogo", "logo.png")
		_, _ = io.WriteString(logo, "logo")
		video, _ := writer.CreateFormFile("video", "slow.mp4")
		_, _ = io.WriteString(video, "first half, ")
		time.Sleep(700 * time.Millisecond)
		_, _ = io.WriteString(video, "second half")
		_ = pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequest(http.MethodPost, "http://"+ln.Addr().String()+"/upload-movie", body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload slower than the write timeout lost its response: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.StatusCode)
	}
	env.catalog.mu.Lock()
	defer env.catalog.mu.Unlock()
	if len(env.catalog.titles) != 1 {
		t.Fatalf("expected one title, got %d", len(env.catalog.titles))
	}
}
