// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/auth"
	"github.com/holomush/accountd/pkg/errutil"
)

// Request error codes.
const (
	CodeRequestInvalid = "REQUEST_INVALID"
	CodeRequestTimeout = "REQUEST_TIMEOUT"
	CodeInternal       = "INTERNAL"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// statusFor maps an error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case auth.CodeUnauthenticated, "AUTH_INVALID_CREDENTIALS":
		return http.StatusUnauthorized
	case CodeRequestInvalid,
		auth.CodePurposeMismatch,
		auth.CodePayloadMismatch,
		auth.CodeSameEmail,
		"CALLBACK_URL_INVALID",
		"USER_INVALID_EMAIL",
		"USER_INVALID_NAME",
		"PASSWORD_TOO_SHORT",
		"PASSWORD_TOO_LONG",
		"AUTH_EMPTY_PASSWORD",
		"SESSION_TOKEN_EMPTY",
		"TOKEN_PURPOSE_INVALID":
		return http.StatusBadRequest
	case auth.CodeTokenNotFound, "USER_NOT_FOUND":
		return http.StatusNotFound
	case auth.CodeEmailAlreadyInUse, auth.CodeTokenAlreadyUsed:
		return http.StatusConflict
	case auth.CodeTokenExpired:
		return http.StatusGone
	case auth.CodeAccountLocked, auth.CodeDeliveryThrottled:
		return http.StatusTooManyRequests
	case auth.CodeDeliveryFailed:
		return http.StatusBadGateway
	case CodeRequestTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

var messages = map[string]string{
	auth.CodeUnauthenticated:   "authentication required",
	"AUTH_INVALID_CREDENTIALS": "invalid email or password",
	auth.CodePurposeMismatch:   "token cannot be used for this operation",
	auth.CodePayloadMismatch:   "token does not match the request",
	auth.CodeSameEmail:         "new email matches the current email",
	"CALLBACK_URL_INVALID":     "callback URL is invalid",
	"USER_INVALID_EMAIL":       "email is invalid",
	"PASSWORD_TOO_SHORT":       "password is too short",
	"PASSWORD_TOO_LONG":        "password is too long",
	auth.CodeTokenNotFound:     "token not found",
	"USER_NOT_FOUND":           "user not found",
	auth.CodeEmailAlreadyInUse: "email is already in use",
	auth.CodeTokenAlreadyUsed:  "token has already been used",
	auth.CodeTokenExpired:      "token has expired",
	auth.CodeDeliveryFailed:    "message could not be delivered",
	auth.CodeDeliveryThrottled: "too many messages, try again later",
	auth.CodeAccountLocked:     "too many failed sign-in attempts, try again later",
	CodeRequestTimeout:         "request timed out",
}

// writeError writes err as a {code,message} body. Server errors are logged
// and their details withheld.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errutil.Code(err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		code = CodeRequestTimeout
	}
	status := statusFor(code)

	body := errorBody{Code: code, Message: messages[code]}
	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), a.logger, "request failed", err)
		body = errorBody{Code: CodeInternal, Message: "internal error"}
	}
	if body.Message == "" {
		if oopsErr, ok := oops.AsOops(err); ok && status == http.StatusBadRequest {
			body.Message = oopsErr.Error()
		} else {
			body.Message = http.StatusText(status)
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return oops.Code(CodeRequestInvalid).Errorf("request body is required")
		}
		return oops.Code(CodeRequestInvalid).Errorf("malformed request body")
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return oops.Code(CodeRequestInvalid).
				With("field", fe.Field()).
				With("rule", fe.Tag()).
				Errorf("%s is invalid", fe.Field())
		}
		return oops.Code(CodeRequestInvalid).Wrap(err)
	}
	return nil
}
