package service

import apierrors "github.com/bigkaa/goclipstore/internal/api/errors"

// Error — ошибка уровня сервисов с привязкой к HTTP-статусу и виду
// ошибки протокола. Обработчики транслируют её в JSON-ответ без
// собственной логики классификации.
type Error struct {
	StatusCode int
	Kind       string
	Handle     string
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Kind + ": " + e.Message
	}
	return e.Kind
}

func invalidHandleErr(handle string) *Error {
	return &Error{StatusCode: 400, Kind: apierrors.KindInvalidHandle, Handle: handle}
}

func alreadyInProgressErr(handle string) *Error {
	return &Error{StatusCode: 400, Kind: apierrors.KindAlreadyInProgress, Handle: handle}
}

func fileTooLargeErr(message string) *Error {
	return &Error{StatusCode: 413, Kind: apierrors.KindFileTooLarge, Message: message}
}

func uploadCancelledErr(handle, message string) *Error {
	return &Error{StatusCode: 400, Kind: apierrors.KindUploadCancelled, Handle: handle, Message: message}
}

func serverIssueErr(handle, message string) *Error {
	return &Error{StatusCode: 500, Kind: apierrors.KindServerIssue, Handle: handle, Message: message}
}

func notFoundErr(handle string) *Error {
	return &Error{StatusCode: 404, Kind: apierrors.KindNotFound, Handle: handle}
}
