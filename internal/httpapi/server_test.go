package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libraryops/circulation-go/circulation"
	"github.com/libraryops/circulation-go/circulation/postgresengine"
	"github.com/libraryops/circulation-go/internal/httpapi"
)

// stubCirculation cans one response per concern. A non-nil err wins over the
// canned values for every method.
type stubCirculation struct {
	err         error
	books       []circulation.Book
	book        circulation.Book
	record      circulation.BorrowRecord
	records     []circulation.BorrowRecord
	loans       []circulation.UserLoan
	info        circulation.AttachmentInfo
	blob        []byte
	contentType string

	uploadedName        string
	uploadedContentType string
}

func (s *stubCirculation) ListBooks(_ context.Context, _ string) ([]circulation.Book, error) {
	return s.books, s.err
}

func (s *stubCirculation) CreateBook(_ context.Context, _ circulation.BookFields) (circulation.Book, error) {
	return s.book, s.err
}

func (s *stubCirculation) UpdateBook(_ context.Context, _ int64, _ circulation.BookFields) (circulation.Book, error) {
	return s.book, s.err
}

func (s *stubCirculation) DeleteBook(_ context.Context, _ int64) error {
	return s.err
}

func (s *stubCirculation) Borrow(_ context.Context, _ int64, _ int64) (circulation.BorrowRecord, error) {
	return s.record, s.err
}

func (s *stubCirculation) Return(_ context.Context, _ int64) (circulation.BorrowRecord, error) {
	return s.record, s.err
}

func (s *stubCirculation) ListBorrowRecords(_ context.Context) ([]circulation.BorrowRecord, error) {
	return s.records, s.err
}

func (s *stubCirculation) ListUserBorrowed(_ context.Context, _ int64) ([]circulation.UserLoan, error) {
	return s.loans, s.err
}

func (s *stubCirculation) UploadAttachment(
	_ context.Context, _ int64, _ []byte, originalName string, contentType string,
) (circulation.AttachmentInfo, error) {

	s.uploadedName = originalName
	s.uploadedContentType = contentType

	return s.info, s.err
}

func (s *stubCirculation) DownloadAttachment(_ context.Context, _ int64) ([]byte, string, error) {
	return s.blob, s.contentType, s.err
}

type stubUsers struct {
	err   error
	user  circulation.User
	users []circulation.User
}

func (s *stubUsers) Register(_ context.Context, _ string, _ string) (circulation.User, error) {
	return s.user, s.err
}

func (s *stubUsers) Authenticate(_ context.Context, _ string, _ string) (circulation.User, error) {
	return s.user, s.err
}

func (s *stubUsers) CreateUser(_ context.Context, _ string, _ circulation.Role) (circulation.User, error) {
	return s.user, s.err
}

func (s *stubUsers) FindUsers(_ context.Context, _ string, _ string) ([]circulation.User, error) {
	return s.users, s.err
}

func (s *stubUsers) UpdateUser(_ context.Context, _ int64, _ string, _ circulation.Role) (circulation.User, error) {
	return s.user, s.err
}

func (s *stubUsers) SetPassword(_ context.Context, _ int64, _ string) error {
	return s.err
}

func (s *stubUsers) DeleteUser(_ context.Context, _ int64) error {
	return s.err
}

type stubStats struct {
	err   error
	stats postgresengine.Stats
}

func (s *stubStats) Stats(_ context.Context) (postgresengine.Stats, error) {
	return s.stats, s.err
}

func newTestRouter(circ *stubCirculation, users *stubUsers, stats *stubStats, options ...httpapi.Option) http.Handler {
	if circ == nil {
		circ = &stubCirculation{}
	}
	if users == nil {
		users = &stubUsers{}
	}
	if stats == nil {
		stats = &stubStats{}
	}

	return httpapi.NewHandler(circ, users, stats, options...).Router()
}

func Test_Handler_Health(t *testing.T) {
	router := newTestRouter(nil, nil, nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"ok": true}`, recorder.Body.String())
}

func Test_Handler_ListBooks(t *testing.T) {
	circ := &stubCirculation{books: []circulation.Book{
		{ID: 1, Title: "Dune", Author: "Frank Herbert", Quantity: 1, Status: circulation.StatusAvailable},
	}}
	router := newTestRouter(circ, nil, nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/books?q=dune", nil))

	require.Equal(t, http.StatusOK, recorder.Code)

	var books []circulation.Book
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &books))
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)
}

func Test_Handler_CreateBook(t *testing.T) {
	circ := &stubCirculation{book: circulation.Book{ID: 1, Title: "Dune"}}
	router := newTestRouter(circ, nil, nil)
	recorder := httptest.NewRecorder()

	body := strings.NewReader(`{"title": "Dune", "author": "Frank Herbert", "quantity": 1, "publish_date": "1965-08-01"}`)
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/books", body))

	assert.Equal(t, http.StatusCreated, recorder.Code)
}

func Test_Handler_CreateBook_BadPublishDate(t *testing.T) {
	router := newTestRouter(nil, nil, nil)
	recorder := httptest.NewRecorder()

	body := strings.NewReader(`{"title": "Dune", "publish_date": "not-a-date"}`)
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/books", body))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func Test_Handler_CreateBook_MalformedJSON(t *testing.T) {
	router := newTestRouter(nil, nil, nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/books", strings.NewReader("{")))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func Test_Handler_UpdateBook_InvalidQuantity(t *testing.T) {
	circ := &stubCirculation{err: circulation.ErrInvalidQuantity}
	router := newTestRouter(circ, nil, nil)
	recorder := httptest.NewRecorder()

	body := strings.NewReader(`{"title": "Dune", "author": "Frank Herbert"}`)
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPut, "/books/1", body))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func Test_Handler_UpdateBook_BadID(t *testing.T) {
	router := newTestRouter(nil, nil, nil)
	recorder := httptest.NewRecorder()

	body := strings.NewReader(`{"title": "Dune", "quantity": 1}`)
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPut, "/books/abc", body))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func Test_Handler_DeleteBook_ActiveBorrowConflict(t *testing.T) {
	circ := &stubCirculation{err: circulation.ErrActiveBorrowExists}
	router := newTestRouter(circ, nil, nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodDelete, "/books/1", nil))

	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func Test_Handler_Borrow_StatusMapping(t *testing.T) {
	tests := []struct {
		name           string
		serviceErr     error
		expectedStatus int
	}{
		{
			name:           "success_maps_to_201",
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "already_borrowed_maps_to_409",
			serviceErr:     circulation.ErrBookAlreadyBorrowed,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "unknown_book_maps_to_404",
			serviceErr:     circulation.ErrBookNotFound,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "unknown_user_maps_to_404",
			serviceErr:     circulation.ErrUserNotFound,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "store_failure_maps_to_500",
			serviceErr:     errors.Join(circulation.ErrStore, errors.New("connection refused")),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			circ := &stubCirculation{err: tc.serviceErr}
			router := newTestRouter(circ, nil, nil)
			recorder := httptest.NewRecorder()

			body := strings.NewReader(`{"book_id": 1, "user_id": 7}`)
			router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/borrow", body))

			assert.Equal(t, tc.expectedStatus, recorder.Code)
		})
	}
}

func Test_Handler_Borrow_MissingIDs(t *testing.T) {
	router := newTestRouter(nil, nil, nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/borrow", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func Test_Handler_StoreFailure_HidesDetails(t *testing.T) {
	circ := &stubCirculation{err: errors.Join(circulation.ErrStore, errors.New("password=hunter2 dial failed"))}
	router := newTestRouter(circ, nil, nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/books", nil))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.JSONEq(t, `{"error": "internal server error"}`, recorder.Body.String())
}

func Test_Handler_Return_AlreadyReturnedConflict(t *testing.T) {
	circ := &stubCirculation{err: circulation.ErrBorrowAlreadyReturned}
	router := newTestRouter(circ, nil, nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPut, "/borrow/1/return", nil))

	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func Test_Handler_Login_InvalidCredentials(t *testing.T) {
	users := &stubUsers{err: circulation.ErrInvalidCredentials}
	router := newTestRouter(nil, users, nil)
	recorder := httptest.NewRecorder()

	body := strings.NewReader(`{"username": "alice", "password": "wrong"}`)
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/login", body))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func Test_Handler_Register_ShortPassword(t *testing.T) {
	users := &stubUsers{err: circulation.ErrPasswordTooShort}
	router := newTestRouter(nil, users, nil)
	recorder := httptest.NewRecorder()

	body := strings.NewReader(`{"username": "alice", "password": "123"}`)
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/register", body))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func Test_Handler_Register_UsernameTaken(t *testing.T) {
	users := &stubUsers{err: circulation.ErrUsernameTaken}
	router := newTestRouter(nil, users, nil)
	recorder := httptest.NewRecorder()

	body := strings.NewReader(`{"username": "alice", "password": "123456"}`)
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/register", body))

	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func Test_Handler_UploadAttachment_Multipart(t *testing.T) {
	circ := &stubCirculation{info: circulation.AttachmentInfo{Key: "books/1/123-cover.pdf", ETag: "etag-1"}}
	router := newTestRouter(circ, nil, nil)
	recorder := httptest.NewRecorder()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, partErr := writer.CreateFormFile("file", "cover.pdf")
	require.NoError(t, partErr)
	_, writeErr := part.Write([]byte("pdf bytes"))
	require.NoError(t, writeErr)
	require.NoError(t, writer.Close())

	request := httptest.NewRequest(http.MethodPost, "/books/1/file", &body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusCreated, recorder.Code)
	assert.Equal(t, "cover.pdf", circ.uploadedName)
}

func Test_Handler_UploadAttachment_MissingFilePart(t *testing.T) {
	router := newTestRouter(nil, nil, nil)
	recorder := httptest.NewRecorder()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("note", "no file here"))
	require.NoError(t, writer.Close())

	request := httptest.NewRequest(http.MethodPost, "/books/1/file", &body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func Test_Handler_DownloadAttachment(t *testing.T) {
	circ := &stubCirculation{blob: []byte("pdf bytes"), contentType: "application/pdf"}
	router := newTestRouter(circ, nil, nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/books/1/file", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "application/pdf", recorder.Header().Get("Content-Type"))
	assert.Equal(t, "pdf bytes", recorder.Body.String())
}

func Test_Handler_DownloadAttachment_Missing(t *testing.T) {
	circ := &stubCirculation{err: circulation.ErrAttachmentNotFound}
	router := newTestRouter(circ, nil, nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/books/1/file", nil))

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func Test_Handler_Stats(t *testing.T) {
	stats := &stubStats{stats: postgresengine.Stats{Books: 10, Users: 3, Borrowed: 2, InLibrary: 8}}
	router := newTestRouter(nil, nil, stats)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"books": 10, "users": 3, "borrowed": 2, "inLibrary": 8}`, recorder.Body.String())
}

func Test_Handler_CORS_PreflightAllowedOrigin(t *testing.T) {
	router := newTestRouter(nil, nil, nil, httpapi.WithCORSOrigins([]string{"https://app.example.com"}))
	recorder := httptest.NewRecorder()

	request := httptest.NewRequest(http.MethodOptions, "/books", nil)
	request.Header.Set("Origin", "https://app.example.com")
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "https://app.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, recorder.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
}

func Test_Handler_CORS_DisallowedOrigin(t *testing.T) {
	router := newTestRouter(nil, nil, nil, httpapi.WithCORSOrigins([]string{"https://app.example.com"}))
	recorder := httptest.NewRecorder()

	request := httptest.NewRequest(http.MethodGet, "/health", nil)
	request.Header.Set("Origin", "https://evil.example.com")
	router.ServeHTTP(recorder, request)

	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
}

// loggerSpy records every structured log call for inspection.
type loggerSpy struct {
	entries []logEntryRecord
}

type logEntryRecord struct {
	level string
	msg   string
	args  []any
}

func (l *loggerSpy) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *loggerSpy) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *loggerSpy) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *loggerSpy) Error(msg string, args ...any) { l.record("error", msg, args) }

func (l *loggerSpy) record(level string, msg string, args []any) {
	l.entries = append(l.entries, logEntryRecord{level: level, msg: msg, args: args})
}

func (l *loggerSpy) find(level string, msg string) (logEntryRecord, bool) {
	for _, entry := range l.entries {
		if entry.level == level && entry.msg == msg {
			return entry, true
		}
	}

	return logEntryRecord{}, false
}

func attrValue(args []any, key string) any {
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == key {
			return args[i+1]
		}
	}

	return nil
}

func Test_Handler_RequestLog_CarriesRequestID(t *testing.T) {
	spy := &loggerSpy{}
	router := newTestRouter(nil, nil, nil, httpapi.WithLogger(spy))
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	entry, found := spy.find("info", "http request handled")
	require.True(t, found)

	requestID, _ := attrValue(entry.args, "request_id").(string)
	assert.NotEmpty(t, requestID)
}

func Test_Handler_StoreFailure_ErrorLogSharesRequestID(t *testing.T) {
	spy := &loggerSpy{}
	circ := &stubCirculation{err: errors.Join(circulation.ErrStore, errors.New("dial failed"))}
	router := newTestRouter(circ, nil, nil, httpapi.WithLogger(spy))
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/books", nil))

	require.Equal(t, http.StatusInternalServerError, recorder.Code)

	errorEntry, found := spy.find("error", "request failed with store error")
	require.True(t, found)

	requestEntry, found := spy.find("info", "http request handled")
	require.True(t, found)

	errorID, _ := attrValue(errorEntry.args, "request_id").(string)
	requestID, _ := attrValue(requestEntry.args, "request_id").(string)
	assert.NotEmpty(t, errorID)
	assert.Equal(t, requestID, errorID)
}

func Test_Handler_UserBorrowed(t *testing.T) {
	circ := &stubCirculation{loans: []circulation.UserLoan{
		{BorrowID: 1, BookID: 2, Title: "Dune", Author: "Frank Herbert", Status: circulation.BorrowOpen},
	}}
	router := newTestRouter(circ, nil, nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/users/7/borrowed", nil))

	require.Equal(t, http.StatusOK, recorder.Code)

	var loans []circulation.UserLoan
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &loans))
	require.Len(t, loans, 1)
	assert.Equal(t, "Dune", loans[0].Title)
}
