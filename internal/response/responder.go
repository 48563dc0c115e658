package response

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"runtime"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"bookscape/internal/apperr"
)

type Responder struct {
	DebugMode bool
}

// StatusFor maps an error kind onto the HTTP status it is answered with.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAPI:
		return http.StatusBadGateway
	case apperr.KindConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError answers with the status matching err's kind. Client errors are logged at
// info level and always show their message; server errors hide it unless in debug mode.
func (rr *Responder) RespondError(w http.ResponseWriter, ctx context.Context, err error) {
	status := StatusFor(err)
	errId := uuid.NewString()

	lvl := slog.LevelError
	if status < http.StatusInternalServerError {
		lvl = slog.LevelInfo
	}
	log(ctx, lvl, err.Error(), slog.String("err_id", errId), slog.Int("status", status))

	rr.renderError(w, ctx, status, apperr.KindOf(err).String(), err.Error(), errId)
}

// RespondAndLogError will respond with generic error code (500) and log with slog.LevelError level
func (rr *Responder) RespondAndLogError(w http.ResponseWriter, ctx context.Context, err error) {
	errId := uuid.NewString()
	log(ctx, slog.LevelError, err.Error(), slog.String("err_id", errId))
	rr.renderError(w, ctx, http.StatusInternalServerError, apperr.KindUnknown.String(), err.Error(), errId)
}

func (rr *Responder) SendJson(w http.ResponseWriter, ctx context.Context, data any) {
	bs, err := json.Marshal(data)
	if err != nil {
		rr.RespondAndLogError(w, ctx, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = io.Copy(w, bytes.NewReader(bs))
}

// SendCSV renders the whole body before writing anything, so a failing write still gets a
// proper error response.
func (rr *Responder) SendCSV(w http.ResponseWriter, ctx context.Context, fileName string, write func(io.Writer) error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		rr.RespondAndLogError(w, ctx, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	_, _ = io.Copy(w, &buf)
}

func (rr *Responder) renderError(w http.ResponseWriter, ctx context.Context, status int, kind, message, errId string) {
	data := map[string]any{
		"kind":   kind,
		"err_id": errId,
	}

	if rr.DebugMode || status < http.StatusInternalServerError {
		r, s := utf8.DecodeRuneInString(message)
		data["error"] = string(unicode.ToUpper(r)) + message[s:]
	} else {
		data["error"] = "Unknown error occurred while processing your request. Error ID: " + errId
	}

	bs, err := json.Marshal(data)
	if err == nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	} else {
		log(ctx, slog.LevelError, "cannot marshall error response body: "+err.Error())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		bs = []byte("unknown error")
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.Copy(w, bytes.NewReader(bs))
}

// Needed because it skips one more frame item than the slog.Log
func log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	l := slog.Default()

	if !l.Enabled(ctx, level) {
		return
	}

	var pc uintptr
	var pcs [1]uintptr
	// skip [runtime.Callers, this function, this function's caller]
	runtime.Callers(3, pcs[:])
	pc = pcs[0]

	r := slog.NewRecord(time.Now(), level, msg, pc)
	r.AddAttrs(attrs...)
	_ = l.Handler().Handle(ctx, r)
}

// RespondValidation answers 400 with one message per failed field. Errors other than
// validator.ValidationErrors are reported under the "error" key.
func (rr *Responder) RespondValidation(w http.ResponseWriter, ctx context.Context, err error) {
	fields := map[string]string{}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.StructNamespace()] = fe.Error()
		}
	} else {
		fields["error"] = err.Error()
	}

	log(ctx, slog.LevelInfo, "Request validation failed: "+err.Error())

	bs, mErr := json.Marshal(map[string]any{
		"kind":   apperr.KindInvalidInput.String(),
		"error":  "validation_failed",
		"fields": fields,
	})
	if mErr != nil {
		rr.RespondAndLogError(w, ctx, mErr)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = io.Copy(w, bytes.NewReader(bs))
}
