package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reelhouse/backend/internal/api"
	"github.com/reelhouse/backend/internal/cleanup"
	"github.com/reelhouse/backend/internal/logging"
	"github.com/reelhouse/backend/internal/models"
	"github.com/reelhouse/backend/internal/repositories"
	"github.com/reelhouse/backend/internal/storage"
)

// CatalogHandler lists the catalog and lets administrators add and remove titles.
type CatalogHandler struct {
	Catalog   CatalogStore
	Media     storage.Buckets
	Uploads   *Uploader
	Sanitizer TextCleaner
	NowFunc   func() time.Time
}

type titleResponse struct {
	ID                  string `json:"_id"`
	Title               string `json:"title"`
	Genre               string `json:"genre"`
	AgeRating           string `json:"ageRating"`
	IsSeries            bool   `json:"isSeries"`
	SeriesTitle         string `json:"seriesTitle,omitempty"`
	EpisodeNumber       *int   `json:"episodeNumber,omitempty"`
	VideoFileName       string `json:"videoFileName,omitempty"`
	SeriesLogoFileName  string `json:"seriesLogoFileName,omitempty"`
	EpisodeLogoFileName string `json:"episodeLogoFileName,omitempty"`
}

func newTitleResponse(t models.Title) titleResponse {
	return titleResponse{
		ID:                  t.ID,
		Title:               t.Title,
		Genre:               t.Genre,
		AgeRating:           t.AgeRating,
		IsSeries:            t.IsSeries,
		SeriesTitle:         t.SeriesTitle,
		EpisodeNumber:       t.EpisodeNumber,
		VideoFileName:       t.VideoFileName,
		SeriesLogoFileName:  t.SeriesLogoFileName,
		EpisodeLogoFileName: t.EpisodeLogoFileName,
	}
}

// List handles GET /movies. The optional search parameter filters by title,
// genre or series title.
func (h CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	titles, err := h.Catalog.List(ctx, r.URL.Query().Get("search"))
	if err != nil {
		logging.FromContext(ctx).Error("list catalog failed", "error", err)
		api.Fail(ctx, w, api.KindInternal, "failed to load catalog")
		return
	}

	resp := make([]titleResponse, 0, len(titles))
	for _, t := range titles {
		resp = append(resp, newTitleResponse(t))
	}
	api.WriteJSON(ctx, w, http.StatusOK, resp)
}

// SeriesList handles GET /series-list.
func (h CatalogHandler) SeriesList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	names, err := h.Catalog.SeriesTitles(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list series failed", "error", err)
		api.Fail(ctx, w, api.KindInternal, "failed to load series")
		return
	}
	if names == nil {
		names = []string{}
	}
	api.WriteJSON(ctx, w, http.StatusOK, names)
}

// UploadSeries handles POST /upload-series.
func (h CatalogHandler) UploadSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	form, err := h.Uploads.Parse(w, r, map[string]storage.Store{"seriesLogo": h.Media.Logos})
	if err != nil {
		failUpload(ctx, w, err)
		return
	}

	seriesTitle := h.clean(form.value("seriesTitle"))
	logo, hasLogo := form.file("seriesLogo")
	switch {
	case seriesTitle == "":
		h.Uploads.Discard(ctx, form, "series upload rejected")
		api.Fail(ctx, w, api.KindBadRequest, "series title is required")
		return
	case !hasLogo:
		h.Uploads.Discard(ctx, form, "series upload rejected")
		api.Fail(ctx, w, api.KindBadRequest, "series logo is required")
		return
	}

	if _, err := h.Catalog.FindSeries(ctx, seriesTitle); err == nil {
		h.Uploads.Discard(ctx, form, "series upload rejected")
		api.Fail(ctx, w, api.KindConflict, "series already exists")
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		h.Uploads.Discard(ctx, form, "series upload failed")
		logger.Error("series lookup failed", "error", err)
		api.Fail(ctx, w, api.KindInternal, "failed to create series")
		return
	}

	title := models.Title{
		ID:                 uuid.NewString(),
		Title:              seriesTitle,
		Genre:              h.clean(form.value("genre")),
		AgeRating:          h.clean(form.value("ageRating")),
		IsSeries:           true,
		SeriesTitle:        seriesTitle,
		SeriesLogoFileName: logo.Name,
		CreatedAt:          h.now(),
	}
	h.create(w, r, form, title, "series created")
}

// UploadEpisode handles POST /upload-episode. Genre, age rating and series
// logo are copied from the series header.
func (h CatalogHandler) UploadEpisode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	form, err := h.Uploads.Parse(w, r, map[string]storage.Store{
		"video":       h.Media.Videos,
		"episodeLogo": h.Media.Logos,
	})
	if err != nil {
		failUpload(ctx, w, err)
		return
	}

	video, hasVideo := form.file("video")
	logo, hasLogo := form.file("episodeLogo")
	if !hasVideo || !hasLogo {
		h.Uploads.Discard(ctx, form, "episode upload rejected")
		api.Fail(ctx, w, api.KindBadRequest, "video and episode logo are required")
		return
	}

	seriesTitle := h.clean(form.value("seriesTitle"))
	episodeNumber, err := strconv.Atoi(form.value("episodeNumber"))
	if seriesTitle == "" || err != nil || episodeNumber < 1 {
		h.Uploads.Discard(ctx, form, "episode upload rejected")
		api.Fail(ctx, w, api.KindBadRequest, "series title and a positive episode number are required")
		return
	}

	series, err := h.Catalog.FindSeries(ctx, seriesTitle)
	if err != nil {
		h.Uploads.Discard(ctx, form, "episode upload rejected")
		if errors.Is(err, repositories.ErrNotFound) {
			api.Fail(ctx, w, api.KindNotFound, "series not found")
			return
		}
		logger.Error("series lookup failed", "error", err)
		api.Fail(ctx, w, api.KindInternal, "failed to add episode")
		return
	}

	title := models.Title{
		ID:                  uuid.NewString(),
		Title:               h.clean(form.value("title")),
		Genre:               series.Genre,
		AgeRating:           series.AgeRating,
		IsSeries:            true,
		SeriesTitle:         series.SeriesTitle,
		EpisodeNumber:       &episodeNumber,
		VideoFileName:       video.Name,
		SeriesLogoFileName:  series.SeriesLogoFileName,
		EpisodeLogoFileName: logo.Name,
		CreatedAt:           h.now(),
	}
	h.create(w, r, form, title, "episode added")
}

// UploadMovie handles POST /upload-movie.
func (h CatalogHandler) UploadMovie(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	form, err := h.Uploads.Parse(w, r, map[string]storage.Store{
		"video":       h.Media.Videos,
		"episodeLogo": h.Media.Logos,
	})
	if err != nil {
		failUpload(ctx, w, err)
		return
	}

	video, hasVideo := form.file("video")
	logo, hasLogo := form.file("episodeLogo")
	if !hasVideo || !hasLogo {
		h.Uploads.Discard(ctx, form, "movie upload rejected")
		api.Fail(ctx, w, api.KindBadRequest, "video and movie logo are required")
		return
	}

	name := h.clean(form.value("title"))
	if name == "" {
		h.Uploads.Discard(ctx, form, "movie upload rejected")
		api.Fail(ctx, w, api.KindBadRequest, "title is required")
		return
	}

	title := models.Title{
		ID:                  uuid.NewString(),
		Title:               name,
		Genre:               h.clean(form.value("genre")),
		AgeRating:           h.clean(form.value("ageRating")),
		VideoFileName:       video.Name,
		EpisodeLogoFileName: logo.Name,
		CreatedAt:           h.now(),
	}
	h.create(w, r, form, title, "movie added")
}

func (h CatalogHandler) create(w http.ResponseWriter, r *http.Request, form *uploadForm, title models.Title, message string) {
	ctx := r.Context()

	if err := h.Catalog.Create(ctx, title); err != nil {
		h.Uploads.Discard(ctx, form, "catalog insert failed")
		if errors.Is(err, repositories.ErrConflict) {
			api.Fail(ctx, w, api.KindConflict, "series already exists")
			return
		}
		logging.FromContext(ctx).Error("create title failed", "error", err)
		api.Fail(ctx, w, api.KindInternal, "failed to save title")
		return
	}

	logging.FromContext(ctx).Info("title created", "title_id", title.ID, "series", title.SeriesTitle)
	api.WriteJSON(ctx, w, http.StatusCreated, api.OK(message))
}

// DeleteTitle handles DELETE /delete/{id}. The record is removed first; its
// files are reaped only once that succeeded.
func (h CatalogHandler) DeleteTitle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deleted, err := h.Catalog.Delete(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			api.Fail(ctx, w, api.KindNotFound, "title not found")
			return
		}
		logging.FromContext(ctx).Error("delete title failed", "error", err)
		api.Fail(ctx, w, api.KindInternal, "failed to delete title")
		return
	}

	reapFiles(ctx, h.Uploads.Reaper, h.titleFiles(deleted, "title deleted")...)

	logging.FromContext(ctx).Info("title deleted", "title_id", deleted.ID)
	api.WriteJSON(ctx, w, http.StatusOK, api.OK("title deleted"))
}

// DeleteSeries handles DELETE /delete-series/{seriesTitle}, removing the
// header and every episode.
func (h CatalogHandler) DeleteSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	seriesTitle := strings.TrimSpace(pathParam(r, "seriesTitle"))

	deleted, err := h.Catalog.DeleteSeries(ctx, seriesTitle)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			api.Fail(ctx, w, api.KindNotFound, "series not found")
			return
		}
		logging.FromContext(ctx).Error("delete series failed", "error", err)
		api.Fail(ctx, w, api.KindInternal, "failed to delete series")
		return
	}

	var removals []cleanup.Removal
	seriesLogos := make(map[string]bool)
	for _, t := range deleted {
		removals = append(removals, h.titleFiles(t, "series deleted")...)
		if t.SeriesLogoFileName != "" && !seriesLogos[t.SeriesLogoFileName] {
			seriesLogos[t.SeriesLogoFileName] = true
			removals = append(removals, cleanup.Removal{Store: h.Media.Logos, Name: t.SeriesLogoFileName, Reason: "series deleted"})
		}
	}
	reapFiles(ctx, h.Uploads.Reaper, removals...)

	logging.FromContext(ctx).Info("series deleted", "series", seriesTitle, "titles", len(deleted))
	api.WriteJSON(ctx, w, http.StatusOK, api.OK(fmt.Sprintf("%d titles deleted", len(deleted))))
}

// titleFiles lists the files owned by a single title. The series logo is
// shared by every episode and is only removed with the whole series.
func (h CatalogHandler) titleFiles(t models.Title, reason string) []cleanup.Removal {
	var removals []cleanup.Removal
	if t.VideoFileName != "" {
		removals = append(removals, cleanup.Removal{Store: h.Media.Videos, Name: t.VideoFileName, Reason: reason})
	}
	if t.EpisodeLogoFileName != "" {
		removals = append(removals, cleanup.Removal{Store: h.Media.Logos, Name: t.EpisodeLogoFileName, Reason: reason})
	}
	return removals
}

func (h CatalogHandler) clean(text string) string {
	if h.Sanitizer == nil {
		return strings.TrimSpace(text)
	}
	return h.Sanitizer.Clean(text)
}

func (h CatalogHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc().UTC()
	}
	return time.Now().UTC()
}
