package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/libraryops/circulation-go/circulation"
)

// maxUploadBytes bounds attachment uploads (covers, PDFs).
const maxUploadBytes = 32 << 20

const uploadFormField = "file"

// bookPayload is the wire shape of book create/update requests. The publish
// date arrives as a plain string so both date-only and RFC 3339 values are
// accepted.
type bookPayload struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	PublishDate string `json:"publish_date"`
	Quantity    *int   `json:"quantity"`
}

func (p bookPayload) toFields() (circulation.BookFields, error) {
	fields := circulation.BookFields{
		Title:    p.Title,
		Author:   p.Author,
		Quantity: p.Quantity,
	}

	if p.PublishDate == "" {
		return fields, nil
	}

	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if parsed, parseErr := time.Parse(layout, p.PublishDate); parseErr == nil {
			fields.PublishDate = &parsed
			return fields, nil
		}
	}

	return circulation.BookFields{}, fmt.Errorf("%w: invalid publish_date", circulation.ErrValidation)
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.circulation.ListBooks(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, books)
}

func (h *Handler) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var payload bookPayload
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	fields, fieldsErr := payload.toFields()
	if fieldsErr != nil {
		h.writeError(w, r, fieldsErr)
		return
	}

	book, createErr := h.circulation.CreateBook(r.Context(), fields)
	if createErr != nil {
		h.writeError(w, r, createErr)
		return
	}

	h.writeJSON(w, http.StatusCreated, book)
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, idErr := pathID(r)
	if idErr != nil {
		h.writeError(w, r, idErr)
		return
	}

	var payload bookPayload
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	fields, fieldsErr := payload.toFields()
	if fieldsErr != nil {
		h.writeError(w, r, fieldsErr)
		return
	}

	book, updateErr := h.circulation.UpdateBook(r.Context(), id, fields)
	if updateErr != nil {
		h.writeError(w, r, updateErr)
		return
	}

	h.writeJSON(w, http.StatusOK, book)
}

func (h *Handler) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, idErr := pathID(r)
	if idErr != nil {
		h.writeError(w, r, idErr)
		return
	}

	if deleteErr := h.circulation.DeleteBook(r.Context(), id); deleteErr != nil {
		h.writeError(w, r, deleteErr)
		return
	}

	h.writeJSON(w, http.StatusOK, successEnvelope{Success: true})
}

func (h *Handler) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	id, idErr := pathID(r)
	if idErr != nil {
		h.writeError(w, r, idErr)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, formErr := r.FormFile(uploadFormField)
	if formErr != nil {
		h.writeError(w, r, circulation.ErrEmptyUpload)
		return
	}
	defer func() { _ = file.Close() }()

	data, readErr := io.ReadAll(file)
	if readErr != nil {
		h.writeError(w, r, fmt.Errorf("%w: unreadable upload", circulation.ErrValidation))
		return
	}

	info, uploadErr := h.circulation.UploadAttachment(
		r.Context(), id, data, header.Filename, header.Header.Get("Content-Type"))
	if uploadErr != nil {
		h.writeError(w, r, uploadErr)
		return
	}

	h.writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) handleDownloadAttachment(w http.ResponseWriter, r *http.Request) {
	id, idErr := pathID(r)
	if idErr != nil {
		h.writeError(w, r, idErr)
		return
	}

	data, contentType, downloadErr := h.circulation.DownloadAttachment(r.Context(), id)
	if downloadErr != nil {
		h.writeError(w, r, downloadErr)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if _, writeErr := w.Write(data); writeErr != nil {
		h.logError(logMsgWriteResponseFailed, logAttrError, writeErr.Error())
	}
}
