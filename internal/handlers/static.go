package handlers

import (
	"io/fs"
	"net/http"
	"path"
)

// staticFS serves the web client without directory listings.
type staticFS struct {
	fs http.FileSystem
}

func (s staticFS) Open(name string) (http.File, error) {
	f, err := s.fs.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		index, err := s.fs.Open(path.Join(name, "index.html"))
		if err != nil {
			f.Close()
			return nil, fs.ErrNotExist
		}
		index.Close()
	}
	return f, nil
}

// StaticHandler serves files below root.
func StaticHandler(root string) http.Handler {
	return http.FileServer(staticFS{fs: http.Dir(root)})
}
