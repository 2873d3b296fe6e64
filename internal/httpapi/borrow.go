package httpapi

import (
	"fmt"
	"net/http"

	"github.com/libraryops/circulation-go/circulation"
)

type borrowPayload struct {
	BookID int64 `json:"book_id"`
	UserID int64 `json:"user_id"`
}

func (h *Handler) handleListBorrowRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.circulation.ListBorrowRecords(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var payload borrowPayload
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	if payload.BookID <= 0 || payload.UserID <= 0 {
		h.writeError(w, r, fmt.Errorf("%w: book_id and user_id are required", circulation.ErrValidation))
		return
	}

	record, borrowErr := h.circulation.Borrow(r.Context(), payload.BookID, payload.UserID)
	if borrowErr != nil {
		h.writeError(w, r, borrowErr)
		return
	}

	h.writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, idErr := pathID(r)
	if idErr != nil {
		h.writeError(w, r, idErr)
		return
	}

	record, returnErr := h.circulation.Return(r.Context(), id)
	if returnErr != nil {
		h.writeError(w, r, returnErr)
		return
	}

	h.writeJSON(w, http.StatusOK, record)
}
