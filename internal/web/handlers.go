package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mitrecx/my-bill-2/internal/core"
	"github.com/mitrecx/my-bill-2/internal/ingest"
	"github.com/mitrecx/my-bill-2/internal/logging"
	"github.com/mitrecx/my-bill-2/internal/store"
)

// errBadRequest marks malformed requests.
var errBadRequest = errors.New("bad request")

// multipartOverhead is allowed on top of the file size for form fields
// and boundaries.
const multipartOverhead = 1 << 20

// SourceInfo describes one registered provider.
type SourceInfo struct {
	Source       core.Provider `json:"source_type"`
	Label        string        `json:"label"`
	Extensions   []string      `json:"extensions"`
	HeaderTokens []string      `json:"header_tokens"`
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	defs := core.All()
	out := make([]SourceInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, SourceInfo{
			Source:       def.Provider,
			Label:        def.Label,
			Extensions:   def.Extensions,
			HeaderTokens: def.HeaderTokens,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStatus reports the import limiter state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.limiter.Status())
}

// upload is a parsed multipart import request.
type upload struct {
	FamilyID int64
	Source   core.Provider
	FileName string
	Data     []byte
}

// readUpload parses the multipart form: file, family_id and source_type.
// family_id is only required when needFamily is set.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, needFamily bool) (upload, error) {
	maxSize := s.ingest.MaxFileSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return upload{}, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize)
		}
		return upload{}, fmt.Errorf("%w: invalid form: %v", errBadRequest, err)
	}

	var u upload
	if v := strings.TrimSpace(r.FormValue("source_type")); v != "" {
		p, err := core.ParseProvider(v)
		if err != nil {
			return upload{}, err
		}
		u.Source = p
	}

	if needFamily {
		v := strings.TrimSpace(r.FormValue("family_id"))
		if v == "" {
			return upload{}, fmt.Errorf("family_id: %w", core.ErrEmptyValue)
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return upload{}, fmt.Errorf("%w: family_id: invalid number %q", errBadRequest, v)
		}
		u.FamilyID = id
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return upload{}, fmt.Errorf("%w: no file provided", errBadRequest)
	}
	defer file.Close()

	data, err := readAll(file, maxSize)
	if err != nil {
		return upload{}, err
	}
	u.FileName = header.Filename
	u.Data = data
	return u, nil
}

// readAll reads at most maxSize+1 bytes so an oversized part is reported
// by the size check rather than buffered whole.
func readAll(file multipart.File, maxSize int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	u, err := s.readUpload(w, r, true)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	ctx, cancel := s.importContext(r.Context())
	defer cancel()

	release, err := s.limiter.Acquire(ctx, u.FamilyID)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	defer release()

	logging.WithFields(ctx, "family_id", u.FamilyID, "file", u.FileName).
		Info("import started", "bytes", len(u.Data))

	res, err := s.ingest.Import(ctx, ingest.Request{
		FamilyID: u.FamilyID,
		FileName: u.FileName,
		Data:     u.Data,
		Source:   u.Source,
	})
	if err != nil && res.ImportID == "" {
		s.respondError(w, r, err, 0)
		return
	}
	if err != nil {
		// The import was rolled back; the result still says what was parsed.
		logging.FromContext(ctx).Error("import failed",
			"import_id", res.ImportID,
			"file", u.FileName,
			"error", err,
		)
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}

	status := http.StatusOK
	if res.Status == store.StatusFailed {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	u, err := s.readUpload(w, r, false)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	p, err := s.ingest.Preview(ingest.Request{FileName: u.FileName, Data: u.Data, Source: u.Source})
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "importID")
	rec, err := s.ingest.GetImport(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
