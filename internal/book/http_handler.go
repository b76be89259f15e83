package book

import (
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"collecthive/internal/httpx"

	"github.com/rs/zerolog/log"
)

type HTTPHandler struct {
	service        *Service
	maxUploadBytes int64
}

func NewHTTPHandler(service *Service, maxUploadBytes int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// Register mounts the book routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /books", h.List)
	mux.HandleFunc("POST /books", h.Create)
	mux.HandleFunc("GET /books/lookup/{isbn}", h.Lookup)
	mux.HandleFunc("GET /books/{isbn}", h.GetByISBN)
	mux.HandleFunc("PUT /books/{isbn}", h.Update)
	mux.HandleFunc("POST /books/{isbn}", h.Update)
	mux.HandleFunc("DELETE /books/{isbn}", h.Delete)
}

// List handles GET /books
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	result, err := h.service.List(r.Context(), page)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}

	httpx.JSONSuccess(w, r, result.Items, map[string]interface{}{
		"current_page": result.CurrentPage,
		"total_pages":  result.TotalPages,
		"pages":        result.Pages,
		"page_size":    result.PageSize,
		"total":        result.Total,
	})
}

// GetByISBN handles GET /books/{isbn}
func (h *HTTPHandler) GetByISBN(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Get(r.Context(), r.PathValue("isbn"))
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	httpx.JSONSuccess(w, r, b, nil)
}

// Lookup handles GET /books/lookup/{isbn}: an unsaved book prefilled from the
// metadata service.
func (h *HTTPHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Prefill(r.Context(), r.PathValue("isbn"))
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	httpx.JSONSuccess(w, r, b, nil)
}

// Create handles POST /books
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	values, upload, cleanup, err := h.readForm(r)
	if err != nil {
		h.writeFormError(w, r, err)
		return
	}
	defer cleanup()

	b, err := h.service.Create(r.Context(), values, upload)
	if err != nil {
		h.writeError(w, r, err, &b)
		return
	}
	httpx.JSONSuccessCreated(w, r, b, map[string]interface{}{"message": "Book created"})
}

// Update handles PUT and POST /books/{isbn}
func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	values, upload, cleanup, err := h.readForm(r)
	if err != nil {
		h.writeFormError(w, r, err)
		return
	}
	defer cleanup()

	b, err := h.service.Update(r.Context(), r.PathValue("isbn"), values, upload)
	if err != nil {
		h.writeError(w, r, err, &b)
		return
	}
	httpx.JSONSuccess(w, r, b, map[string]interface{}{"message": "Book updated"})
}

// Delete handles DELETE /books/{isbn}
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("isbn")); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	httpx.JSONSuccess(w, r, nil, map[string]interface{}{"message": "Book deleted"})
}

func (h *HTTPHandler) readForm(r *http.Request) (url.Values, *CoverUpload, func(), error) {
	noop := func() {}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return nil, nil, noop, err
		}
		return r.PostForm, nil, noop, nil
	}

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return nil, nil, noop, err
	}
	cleanup := func() { _ = r.MultipartForm.RemoveAll() }

	file, header, err := r.FormFile(coverField)
	if errors.Is(err, http.ErrMissingFile) {
		return r.PostForm, nil, cleanup, nil
	}
	if err != nil {
		cleanup()
		return nil, nil, noop, err
	}

	upload := &CoverUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
	}
	return r.PostForm, upload, func() {
		_ = file.Close()
		cleanup()
	}, nil
}

func (h *HTTPHandler) writeFormError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
		httpx.JSONError(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large", nil)
		return
	}
	httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Malformed form data", nil)
}

// writeError maps service errors onto the JSON envelope. draft, when given, is
// echoed back so the client can re-render the submitted values.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error, draft *Book) {
	var (
		validationErrs ValidationErrors
		lookupErr      *LookupError
	)
	var data interface{}
	if draft != nil {
		data = draft
	}

	switch {
	case errors.As(err, &validationErrs):
		httpx.JSONErrorWithData(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid book data", fieldDetails(validationErrs), data)
	case errors.Is(err, ErrDuplicateISBN):
		details := []httpx.ErrorDetail{{Field: "isbn", Message: ErrDuplicateISBN.Error()}}
		httpx.JSONErrorWithData(w, r, http.StatusConflict, "DUPLICATE_ISBN", ErrDuplicateISBN.Error(), details, data)
	case errors.Is(err, ErrNotFound):
		httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", "ISBN not found", nil)
	case errors.As(err, &lookupErr):
		details := []httpx.ErrorDetail{{Field: "isbn", Message: lookupErr.Error()}}
		httpx.JSONError(w, r, http.StatusBadGateway, "LOOKUP_FAILED", "Metadata lookup failed", details)
	default:
		log.Error().Err(err).
			Str("request_id", httpx.RequestIDFrom(r)).
			Str("path", r.URL.Path).
			Msg("book request failed")
		httpx.JSONError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
	}
}

func fieldDetails(errs ValidationErrors) []httpx.ErrorDetail {
	details := make([]httpx.ErrorDetail, 0, len(errs))
	for field, message := range errs {
		details = append(details, httpx.ErrorDetail{Field: field, Message: message})
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Field < details[j].Field })
	return details
}
