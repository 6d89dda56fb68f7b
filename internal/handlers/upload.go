package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/reelhouse/backend/internal/api"
	"github.com/reelhouse/backend/internal/cleanup"
	"github.com/reelhouse/backend/internal/logging"
	"github.com/reelhouse/backend/internal/storage"
)

const (
	maxFieldBytes  = 64 << 10
	maxExtLength   = 10
	enqueueTimeout = 5 * time.Second
	// responseWindow is the write deadline granted once the body is consumed.
	responseWindow = 30 * time.Second
)

var (
	errMalformedForm  = errors.New("malformed form")
	errUploadTooLarge = errors.New("upload too large")
)

// FileNamer generates "<field>-<unixMillis><ext>" names. Timestamps are kept
// strictly increasing so two uploads never share a name within a process.
type FileNamer struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewFileNamer returns a namer reading the clock from now, or time.Now when nil.
func NewFileNamer(now func() time.Time) *FileNamer {
	if now == nil {
		now = time.Now
	}
	return &FileNamer{now: now}
}

// Next returns a fresh name for a file uploaded under field with the given
// client-side file name. Only a short alphanumeric extension is kept.
func (n *FileNamer) Next(field, original string) string {
	n.mu.Lock()
	ms := n.now().UnixMilli()
	if ms <= n.last {
		ms = n.last + 1
	}
	n.last = ms
	n.mu.Unlock()

	return fmt.Sprintf("%s-%d%s", field, ms, safeExt(original))
}

func safeExt(original string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	if len(ext) < 2 || len(ext) > maxExtLength {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// Uploader reads form submissions, streaming file parts straight into their
// media stores.
type Uploader struct {
	MaxBytes int64
	Names    *FileNamer
	Reaper   FileReaper
}

type savedFile struct {
	Name  string
	Size  int64
	store storage.Store
}

type uploadForm struct {
	values url.Values
	files  map[string]savedFile
}

func (f *uploadForm) value(key string) string {
	return strings.TrimSpace(f.values.Get(key))
}

func (f *uploadForm) file(field string) (savedFile, bool) {
	saved, ok := f.files[field]
	return saved, ok
}

// Parse reads a multipart or urlencoded body. File parts whose field appears
// in stores are saved under generated names; other file parts are skipped.
// On error every file already saved is handed to the reaper.
//
// The server write timeout runs from the moment the request headers arrive, so
// a slow body would use it up before the handler can answer. Parse lifts the
// write deadline while reading and grants a fresh responseWindow afterwards.
func (u *Uploader) Parse(w http.ResponseWriter, r *http.Request, stores map[string]storage.Store) (*uploadForm, error) {
	controller := http.NewResponseController(w)
	_ = controller.SetWriteDeadline(time.Time{})
	defer func() {
		_ = controller.SetWriteDeadline(time.Now().Add(responseWindow))
	}()

	if u.MaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, u.MaxBytes)
	}

	form := &uploadForm{values: url.Values{}, files: make(map[string]savedFile)}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil && r.Header.Get("Content-Type") != "" {
		return nil, fmt.Errorf("%w: %v", errMalformedForm, err)
	}

	switch mediaType {
	case "multipart/form-data":
		if err := u.readMultipart(r, form, stores); err != nil {
			u.Discard(r.Context(), form, "upload aborted")
			return nil, err
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, classifyBodyError(err)
		}
		form.values = r.PostForm
	case "":
	default:
		return nil, fmt.Errorf("%w: unsupported content type %q", errMalformedForm, mediaType)
	}

	return form, nil
}

func (u *Uploader) readMultipart(r *http.Request, form *uploadForm, stores map[string]storage.Store) error {
	reader, err := r.MultipartReader()
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformedForm, err)
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return classifyBodyError(err)
		}

		if err := u.readPart(r.Context(), part.FormName(), part.FileName(), part, form, stores); err != nil {
			part.Close()
			return err
		}
		part.Close()
	}
}

func (u *Uploader) readPart(ctx context.Context, field, fileName string, body io.Reader, form *uploadForm, stores map[string]storage.Store) error {
	if field == "" {
		return nil
	}

	if fileName == "" {
		value, err := io.ReadAll(io.LimitReader(body, maxFieldBytes+1))
		if err != nil {
			return classifyBodyError(err)
		}
		if len(value) > maxFieldBytes {
			return fmt.Errorf("%w: field %q too large", errMalformedForm, field)
		}
		form.values.Add(field, string(value))
		return nil
	}

	store, ok := stores[field]
	if _, seen := form.files[field]; !ok || seen {
		if _, err := io.Copy(io.Discard, body); err != nil {
			return classifyBodyError(err)
		}
		return nil
	}

	name := u.Names.Next(field, fileName)
	ctx, span := logging.StartSpan(ctx, "upload", "field", field, "name", name)
	size, err := store.Save(ctx, name, body)
	span.Annotate("bytes", size)
	span.End(err)
	if err != nil {
		return classifyBodyError(fmt.Errorf("save %s: %w", name, err))
	}

	saved := savedFile{Name: name, Size: size, store: store}
	if size == 0 {
		u.reap(ctx, "empty upload", saved)
		return nil
	}
	form.files[field] = saved
	return nil
}

// Discard hands every file saved by form to the reaper.
func (u *Uploader) Discard(ctx context.Context, form *uploadForm, reason string) {
	if form == nil {
		return
	}
	files := make([]savedFile, 0, len(form.files))
	for _, saved := range form.files {
		files = append(files, saved)
	}
	u.reap(ctx, reason, files...)
}

func (u *Uploader) reap(ctx context.Context, reason string, files ...savedFile) {
	removals := make([]cleanup.Removal, 0, len(files))
	for _, saved := range files {
		removals = append(removals, cleanup.Removal{Store: saved.store, Name: saved.Name, Reason: reason})
	}
	reapFiles(ctx, u.Reaper, removals...)
}

// reapFiles schedules removals even when the request context is already done.
func reapFiles(ctx context.Context, reaper FileReaper, removals ...cleanup.Removal) {
	if reaper == nil || len(removals) == 0 {
		return
	}

	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	pending := make([]cleanup.Removal, 0, len(removals))
	names := make([]string, 0, len(removals))
	for _, removal := range removals {
		if removal.Store == nil || removal.Name == "" {
			continue
		}
		pending = append(pending, removal)
		names = append(names, removal.Name)
	}
	if len(pending) == 0 {
		return
	}

	if err := reaper.EnqueueAll(enqueueCtx, pending...); err != nil {
		logging.FromContext(ctx).Error("schedule file removal", "names", names, "reason", pending[0].Reason, "error", err)
	}
}

func classifyBodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: limit is %d bytes", errUploadTooLarge, tooLarge.Limit)
	}
	if errors.Is(err, errMalformedForm) {
		return err
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", errMalformedForm, err)
	}
	return err
}

// failUpload maps a Parse error onto a response.
func failUpload(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errUploadTooLarge):
		logging.FromContext(ctx).Warn("upload rejected", "error", err)
		api.Fail(ctx, w, api.KindBadRequest, "upload exceeds the size limit")
	case errors.Is(err, errMalformedForm):
		logging.FromContext(ctx).Warn("malformed form", "error", err)
		api.Fail(ctx, w, api.KindBadRequest, "invalid form data")
	default:
		logging.FromContext(ctx).Error("upload failed", "error", err)
		api.Fail(ctx, w, api.KindInternal, "failed to store upload")
	}
}
