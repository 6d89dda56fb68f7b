package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/reelhouse/backend/internal/media"
)

// MediaHandler serves uploaded videos, logos and profile pictures.
type MediaHandler struct {
	Videos          *media.Server
	Logos           *media.Server
	ProfilePictures *media.Server
}

// Video handles GET and HEAD /videos/{filename}.
func (h MediaHandler) Video(w http.ResponseWriter, r *http.Request) {
	h.Videos.ServeFile(w, r, fileParam(r))
}

// Logo handles GET and HEAD /logos/{filename}.
func (h MediaHandler) Logo(w http.ResponseWriter, r *http.Request) {
	h.Logos.ServeFile(w, r, fileParam(r))
}

// ProfilePicture handles GET and HEAD /profile-pics/{filename}.
func (h MediaHandler) ProfilePicture(w http.ResponseWriter, r *http.Request) {
	h.ProfilePictures.ServeFile(w, r, fileParam(r))
}

func fileParam(r *http.Request) string {
	return pathParam(r, "filename")
}

// pathParam returns a decoded route parameter. chi matches against RawPath
// when the request carries one, so its parameters are still escaped and
// encoded separators such as %2F are decoded here before validation.
// Otherwise the parameter came from the already decoded Path.
func pathParam(r *http.Request, key string) string {
	value := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return value
	}
	if unescaped, err := url.PathUnescape(value); err == nil {
		return unescaped
	}
	return value
}
