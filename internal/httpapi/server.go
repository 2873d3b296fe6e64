// Package httpapi is the thin transport layer of the circulation backend.
// It parses requests, delegates to the circulation core and the user
// directory, and translates the core's error taxonomy into HTTP status
// codes. No business rule lives here.
package httpapi

import (
	"context"
	"net/http"

	"github.com/libraryops/circulation-go/circulation"
	"github.com/libraryops/circulation-go/circulation/postgresengine"
)

// Logger interface for request logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CirculationService is the slice of the Coordinator the transport layer
// invokes.
type CirculationService interface {
	ListBooks(ctx context.Context, query string) ([]circulation.Book, error)
	CreateBook(ctx context.Context, fields circulation.BookFields) (circulation.Book, error)
	UpdateBook(ctx context.Context, id int64, fields circulation.BookFields) (circulation.Book, error)
	DeleteBook(ctx context.Context, bookID int64) error
	Borrow(ctx context.Context, bookID int64, userID int64) (circulation.BorrowRecord, error)
	Return(ctx context.Context, borrowID int64) (circulation.BorrowRecord, error)
	ListBorrowRecords(ctx context.Context) ([]circulation.BorrowRecord, error)
	ListUserBorrowed(ctx context.Context, userID int64) ([]circulation.UserLoan, error)
	UploadAttachment(ctx context.Context, bookID int64, data []byte, originalName string, contentType string) (circulation.AttachmentInfo, error)
	DownloadAttachment(ctx context.Context, bookID int64) ([]byte, string, error)
}

// UserService is the user directory surface consumed by the transport
// layer: registration, login, and administrative user management.
type UserService interface {
	Register(ctx context.Context, username string, password string) (circulation.User, error)
	Authenticate(ctx context.Context, username string, password string) (circulation.User, error)
	CreateUser(ctx context.Context, username string, role circulation.Role) (circulation.User, error)
	FindUsers(ctx context.Context, query string, role string) ([]circulation.User, error)
	UpdateUser(ctx context.Context, id int64, username string, role circulation.Role) (circulation.User, error)
	SetPassword(ctx context.Context, id int64, password string) error
	DeleteUser(ctx context.Context, id int64) error
}

// StatsService provides the dashboard aggregate.
type StatsService interface {
	Stats(ctx context.Context) (postgresengine.Stats, error)
}

// Handler wires the HTTP routes to the services.
type Handler struct {
	circulation CirculationService
	users       UserService
	stats       StatsService
	logger      Logger
	cors        []string
}

// Option defines a functional option for configuring a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(logger Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithCORSOrigins sets the CORS allowlist. An empty list reflects any
// origin, which is acceptable in development only.
func WithCORSOrigins(origins []string) Option {
	return func(h *Handler) {
		h.cors = origins
	}
}

// NewHandler creates a Handler with the given services and optional
// configuration.
func NewHandler(
	circulationService CirculationService,
	userService UserService,
	statsService StatsService,
	options ...Option,
) *Handler {

	handler := &Handler{
		circulation: circulationService,
		users:       userService,
		stats:       statsService,
	}

	for _, option := range options {
		option(handler)
	}

	return handler
}

// Router builds the route table and wraps it with the CORS and request
// logging middleware.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /register", h.handleRegister)
	mux.HandleFunc("POST /login", h.handleLogin)

	mux.HandleFunc("GET /books", h.handleListBooks)
	mux.HandleFunc("POST /books", h.handleCreateBook)
	mux.HandleFunc("PUT /books/{id}", h.handleUpdateBook)
	mux.HandleFunc("DELETE /books/{id}", h.handleDeleteBook)
	mux.HandleFunc("POST /books/{id}/file", h.handleUploadAttachment)
	mux.HandleFunc("GET /books/{id}/file", h.handleDownloadAttachment)

	mux.HandleFunc("GET /borrow", h.handleListBorrowRecords)
	mux.HandleFunc("POST /borrow", h.handleBorrow)
	mux.HandleFunc("PUT /borrow/{id}/return", h.handleReturn)

	mux.HandleFunc("GET /users", h.handleListUsers)
	mux.HandleFunc("POST /users", h.handleCreateUser)
	mux.HandleFunc("PUT /users/{id}", h.handleUpdateUser)
	mux.HandleFunc("DELETE /users/{id}", h.handleDeleteUser)
	mux.HandleFunc("PUT /users/{id}/password", h.handleSetPassword)
	mux.HandleFunc("GET /users/{id}/borrowed", h.handleUserBorrowed)

	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /health", h.handleHealth)

	return h.withRequestLog(h.withCORS(mux))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}
