package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Messages surfaced to callers.
const (
	MsgUnauthorized      = "Autorizzazione negata"
	MsgInternal          = "Errore interno"
	MsgMethodNotAllowed  = "Metodo non autorizzato"
	MsgMissingServerID   = "ID Server mancante"
	MsgMissingChannelID  = "ID Canale mancante"
	MsgMissingConvID     = "ID Conversazione mancante"
	MsgMissingMemberID   = "ID Membro mancante"
	MsgMissingName       = "Nome mancante"
	MsgMissingContent    = "Contenuto mancante"
	MsgReservedName      = "Il nome non puó essere 'generale'"
	MsgInvalidChannel    = "Tipo di canale non valido"
	MsgInvalidBody       = "Corpo della richiesta non valido"
	MsgServerNotFound    = "Server non trovato"
	MsgChannelNotFound   = "Canale non trovato"
	MsgMemberNotFound    = "Partecipante non trovato"
	MsgConvNotFound      = "Conversazione non trovata"
	MsgMessageNotFound   = "Messaggio non trovato"
	MsgInviteNotFound    = "Invito non valido"
	MsgInvalidRole       = "Ruolo non valido"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func Unauthenticated() error {
	return New(CodeUnauthenticated, MsgUnauthorized)
}

func Unauthorized() error {
	return New(CodePermissionDenied, MsgUnauthorized)
}

func MethodNotAllowed() error {
	return New(CodeMethodNotAllowed, MsgMethodNotAllowed)
}

func Internal(cause error) error {
	return Wrap(CodeInternal, MsgInternal, cause)
}

// As extracts an AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus maps any error to a response status. Errors outside the
// taxonomy are internal.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if appErr, ok := As(err); ok {
		return appErr.Code.Status()
	}
	return http.StatusInternalServerError
}

// PublicMessage is the text safe to return to a caller. Internal errors
// never leak their cause.
func PublicMessage(err error) string {
	appErr, ok := As(err)
	if !ok || appErr.Code == CodeInternal || appErr.Code == CodeUnknown {
		return MsgInternal
	}
	return appErr.Message
}
