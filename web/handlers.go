// Package web serves a read-only preview of the output collection: the
// composited sprites themselves, a JSON progress summary and an HTML
// index with inline thumbnails.
package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"image/png"
	"net/http"
	"os"
	"sync"

	"github.com/golang/glog"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/vincent-petithory/dataurl"

	"badc0de.net/pkg/go-bullseye/catalog"
	"badc0de.net/pkg/go-bullseye/imgcache"
	"badc0de.net/pkg/go-bullseye/pipeline"
)

// indexThumbs caps how many thumbnails the index inlines; data URLs get
// heavy fast.
const indexThumbs = 64

type Handler struct {
	dir   string
	cache *imgcache.Cache

	summaryLock sync.Mutex
	summary     *pipeline.Summary
}

// NewHandler constructs a web handler serving the output collection at
// dir. The cache is shared with the pipeline so previews reuse decodes.
func NewHandler(dir string, cache *imgcache.Cache) *Handler {
	if cache == nil {
		cache = imgcache.New(0)
	}
	return &Handler{dir: dir, cache: cache}
}

// SetSummary publishes the latest pipeline summary to /progress.
func (h *Handler) SetSummary(s pipeline.Summary) {
	h.summaryLock.Lock()
	defer h.summaryLock.Unlock()
	h.summary = &s
}

func (h *Handler) spriteHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	// Only canonical collection names are served; anything else is not a
	// sprite reference, it is a path traversal attempt or a typo.
	key, ext, canonical, err := catalog.ParseName(name)
	if err != nil || name != canonical {
		http.Error(w, "not a canonical sprite name", http.StatusBadRequest)
		return
	}

	path := h.dir + "/" + canonical
	s, err := h.cache.Get(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	mime := "image/gif"
	if ext == ".png" {
		mime = "image/png"
	}
	etag := fmt.Sprintf(`W/"sprite:%v:%s:%s"`, key, catalog.Signature(s), mime)
	if r.Header.Get("If-None-Match") == etag {
		w.Header().Set("Cache-Control", "public; max-age=3600")
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	body, err := os.ReadFile(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public; max-age=3600")
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *Handler) progressHandler(w http.ResponseWriter, r *http.Request) {
	h.summaryLock.Lock()
	s := h.summary
	h.summaryLock.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if s == nil {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "{}")
		return
	}
	if err := json.NewEncoder(w).Encode(s); err != nil {
		glog.Errorf("could not encode progress summary: %v", err)
	}
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html><head><title>bullseye output</title></head>
<body>
<h1>Output collection</h1>
<p>{{.Count}} sprites</p>
{{range .Entries}}<figure style="display:inline-block;margin:4px">
<a href="/sprite/{{.Name}}"><img src="{{.Thumb}}" alt="{{.Name}}"></a>
<figcaption>{{.Name}}</figcaption>
</figure>
{{end}}
</body></html>
`))

type indexEntry struct {
	Name  string
	Thumb template.URL
}

func (h *Handler) indexHandler(w http.ResponseWriter, r *http.Request) {
	set, err := catalog.Scan(h.dir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var entries []indexEntry
	for _, key := range set.Keys() {
		if len(entries) >= indexThumbs {
			break
		}
		entry := set.Entries[key]
		s, err := h.cache.Get(entry.Path)
		if err != nil {
			glog.Warningf("index skipping %s: %v", entry.Name, err)
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, s.Frames[0].Image); err != nil {
			glog.Warningf("index skipping %s: %v", entry.Name, err)
			continue
		}
		entries = append(entries, indexEntry{
			Name:  entry.Name,
			Thumb: template.URL(dataurl.New(buf.Bytes(), "image/png").String()),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, struct {
		Count   int
		Entries []indexEntry
	}{len(set.Entries), entries}); err != nil {
		glog.Errorf("could not render index: %v", err)
	}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/sprite/{name}", h.spriteHandler)
	r.HandleFunc("/progress", h.progressHandler)
	r.HandleFunc("/", h.indexHandler)
}

// ListenAndServe serves the handler on addr with combined-format request
// logging. Blocks.
func ListenAndServe(addr string, h *Handler) error {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	glog.Infof("preview server listening on %s", addr)
	return http.ListenAndServe(addr, handlers.CombinedLoggingHandler(os.Stdout, r))
}
