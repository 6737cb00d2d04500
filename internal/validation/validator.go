// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package validation validates API and MQTT payloads with go-playground/validator v10.
//
// Field names in messages use the struct's json tag, so a failure reads the
// same way the client spelled the field:
//
//	type LocationRequest struct {
//	    Lat     float64  `json:"lat" validate:"latitude"`
//	    Heading *float64 `json:"heading_deg" validate:"omitempty,heading"`
//	}
//
// Two Waymark tags are registered on top of the built-ins: "ownerid" and
// "heading" (degrees in [0, 360)).
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// maxOwnerIDLength bounds owner identifiers taken from tokens, headers and topics.
const maxOwnerIDLength = 128

// FieldError is one failed field.
type FieldError struct {
	Field   string // json name
	Tag     string
	Param   string
	Message string
}

// RequestValidationError collects every failed field of one payload, in
// struct order.
type RequestValidationError struct {
	Fields []FieldError
}

func (ve *RequestValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.Fields))
	for i, f := range ve.Fields {
		messages[i] = f.Message
	}
	return strings.Join(messages, "; ")
}

// APIError mirrors models.APIError; models depends on this package's tags.
type APIError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// ToAPIError renders a VALIDATION_ERROR body. Details["fields"] lists every
// failure; Details["field"] names the first for clients that show one.
func (ve *RequestValidationError) ToAPIError() *APIError {
	apiErr := &APIError{Code: "VALIDATION_ERROR", Message: ve.Error()}
	if len(ve.Fields) == 0 {
		return apiErr
	}
	fields := make([]map[string]interface{}, len(ve.Fields))
	for i, f := range ve.Fields {
		fields[i] = map[string]interface{}{"field": f.Field, "tag": f.Tag, "message": f.Message}
	}
	apiErr.Details = map[string]interface{}{
		"field":  ve.Fields[0].Field,
		"fields": fields,
	}
	return apiErr
}

var validatorInstance = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	custom := map[string]validator.Func{
		"ownerid": func(fl validator.FieldLevel) bool { return ValidOwnerID(fl.Field().String()) },
		"heading": func(fl validator.FieldLevel) bool {
			h := fl.Field().Float()
			return h >= 0 && h < 360
		},
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("validation: register %s: %v", tag, err))
		}
	}
	return v
})

// GetValidator returns the shared validator.
func GetValidator() *validator.Validate {
	return validatorInstance()
}

// ValidOwnerID reports whether s is usable as an owner identifier: non-empty,
// at most 128 bytes, no control characters.
func ValidOwnerID(s string) bool {
	if s == "" || len(s) > maxOwnerIDLength {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool { return r < 0x20 || r == 0x7f }) < 0
}

// ValidateStruct validates s. It returns nil when s is valid.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{Fields: []FieldError{{Field: "body", Tag: "invalid", Message: err.Error()}}}
	}

	out := &RequestValidationError{Fields: make([]FieldError, len(fieldErrs))}
	for i, fe := range fieldErrs {
		out.Fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: message(fe),
		}
	}
	return out
}

var messages = map[string]string{
	"required":      "%s is required",
	"required_with": "%s is required when %s is set",
	"latitude":      "%s must be a latitude between -90 and 90",
	"longitude":     "%s must be a longitude between -180 and 180",
	"heading":       "%s must be a heading in degrees from 0 up to 360",
	"ownerid":       "%s must be 1 to 128 printable characters",
	"uuid":          "%s must be a UUID",
	"oneof":         "%s must be one of: %s",
	"gte":           "%s must be at least %s",
	"lte":           "%s must be at most %s",
	"gt":            "%s must be greater than %s",
	"lt":            "%s must be less than %s",
	"min":           "%s must be at least %s",
	"max":           "%s must be at most %s",
}

func message(fe validator.FieldError) string {
	tmpl, ok := messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
	if strings.Count(tmpl, "%s") == 2 {
		return fmt.Sprintf(tmpl, fe.Field(), fe.Param())
	}
	return fmt.Sprintf(tmpl, fe.Field())
}
