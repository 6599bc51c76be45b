package services

import "net/http"

// ErrorKind classifies a failure for the caller: what went wrong decides
// whether the customer should retry, restart checkout or contact support.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
	KindExpiredSession ErrorKind = "expired_or_invalid_session"
	KindGateway        ErrorKind = "gateway"
	KindPersistence    ErrorKind = "order_persistence"
	KindConfiguration  ErrorKind = "configuration"
)

// Customer-facing messages.
const (
	MsgSessionExpired = "Checkout session expired or invalid."
	MsgCaptureFailed  = "PayPal capture failed. Please contact support."
	MsgCardFailed     = "Your card could not be charged."
	MsgOrderFailed    = "We could not save your order. Please try again."
	MsgUnavailable    = "Checkout is temporarily unavailable. Please try again later."
)

// ServiceError represents a typed error with an HTTP status code.
type ServiceError struct {
	StatusCode int
	Message    string
	Kind       ErrorKind
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func badRequest(msg string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusBadRequest, Message: msg, Kind: KindValidation}
}

func notFound(msg string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusNotFound, Message: msg, Kind: KindNotFound}
}

func conflict(msg string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusConflict, Message: msg, Kind: KindConflict}
}

func expiredSession(err error) *ServiceError {
	return &ServiceError{StatusCode: http.StatusNotFound, Message: MsgSessionExpired, Kind: KindExpiredSession, Err: err}
}

func gatewayFailure(msg string, err error) *ServiceError {
	return &ServiceError{StatusCode: http.StatusBadGateway, Message: msg, Kind: KindGateway, Err: err}
}

func persistenceFailure(msg string, err error) *ServiceError {
	return &ServiceError{StatusCode: http.StatusInternalServerError, Message: msg, Kind: KindPersistence, Err: err}
}

func configurationFailure(err error) *ServiceError {
	return &ServiceError{StatusCode: http.StatusInternalServerError, Message: MsgUnavailable, Kind: KindConfiguration, Err: err}
}
