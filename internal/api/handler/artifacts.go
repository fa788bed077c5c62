package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/otahub/otahub/internal/api/response"
	"github.com/otahub/otahub/internal/artifact"
)

// ArtifactReader is the interface the artifact handlers depend on.
type ArtifactReader interface {
	List() ([]string, error)
	Open(name string) (io.ReadCloser, error)
}

// NewListArtifactsHandler returns an http.HandlerFunc for GET /ota/artifacts.
func NewListArtifactsHandler(artifacts ArtifactReader) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		names, err := artifacts.List()
		if err != nil {
			slog.Error("listing artifacts failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list artifacts")
			return
		}
		response.JSON(w, names)
	}
}

// NewGetArtifactHandler returns an http.HandlerFunc for GET /ota/artifacts/{name}.
// The artifact is streamed to the client rather than buffered; firmware
// images can be large.
func NewGetArtifactHandler(artifacts ArtifactReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// chi leaves percent-encoding in place; decode before validating so
		// an encoded traversal cannot slip past the name check.
		name := chi.URLParam(r, "name")
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}

		rc, err := artifacts.Open(name)
		if err != nil {
			switch {
			case errors.Is(err, artifact.ErrInvalidName):
				response.Error(w, http.StatusBadRequest, "INVALID_ARTIFACT", "Artifact name is not valid")
			case errors.Is(err, artifact.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Artifact not found")
			default:
				slog.Error("opening artifact failed", "name", name, "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to open artifact")
			}
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", "application/octet-stream")
		if _, err := io.Copy(w, rc); err != nil {
			// Headers are already out; all we can do is log.
			slog.Warn("artifact transfer aborted", "name", name, "error", err)
		}
	}
}
