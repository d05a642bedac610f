// Package apperr define a taxonomia de erros usada pela camada de governança.
//
// Só NETWORK e SERVER são consideradas transitórias (retryable); as demais
// categorias falham imediatamente no harness de retry.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Type é a categoria de um erro.
type Type string

const (
	Network        Type = "NETWORK"
	Authentication Type = "AUTHENTICATION"
	Authorization  Type = "AUTHORIZATION"
	Validation     Type = "VALIDATION"
	NotFound       Type = "NOT_FOUND"
	Server         Type = "SERVER"
	Client         Type = "CLIENT"
	Unknown        Type = "UNKNOWN"
)

// Error é um erro categorizado com metadados de contexto.
type Error struct {
	Type     Type
	Op       string
	Message  string
	Err      error
	Metadata map[string]any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Op, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New cria um erro categorizado sem causa.
func New(t Type, op, message string) *Error {
	return &Error{Type: t, Op: op, Message: message}
}

// Wrap categoriza err. Se err for nil retorna nil.
func Wrap(err error, t Type, op, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Type: t, Op: op, Message: message, Err: err}
}

// StatusError representa uma resposta HTTP não-2xx de uma chamada de saída.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Classify devolve a categoria de err.
func Classify(err error) Type {
	if err == nil {
		return Unknown
	}

	var ae *Error
	if errors.As(err, &ae) && ae.Type != "" {
		return ae.Type
	}

	var se *StatusError
	if errors.As(err, &se) {
		return FromStatus(se.StatusCode)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Network
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return Network
	}
	return Unknown
}

// FromStatus mapeia um status HTTP para a categoria correspondente.
func FromStatus(code int) Type {
	switch {
	case code == http.StatusUnauthorized:
		return Authentication
	case code == http.StatusForbidden:
		return Authorization
	case code == http.StatusNotFound:
		return NotFound
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return Validation
	case code == http.StatusRequestTimeout:
		return Network
	case code >= 500:
		return Server
	case code >= 400:
		return Client
	}
	return Unknown
}

// IsRetryable informa se vale a pena tentar de novo.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case Network, Server:
		return true
	}
	return false
}

// HTTPStatus é o status que a camada HTTP deve devolver para a categoria.
func HTTPStatus(t Type) int {
	switch t {
	case Validation:
		return http.StatusBadRequest
	case Authentication:
		return http.StatusUnauthorized
	case Authorization:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Network:
		return http.StatusBadGateway
	case Client:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
