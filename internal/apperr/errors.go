// Package apperr はコマンド/クエリ/投影で共通に使うエラー分類。
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind はエラーの種類。dispatch のリトライ方針もこれで引く。
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// フィールドエラーのコード
const (
	CodeRequired   = "required"
	CodeInvalid    = "invalid"
	CodeOutOfRange = "out_of_range"
	CodeTooMany    = "too_many"
	CodeTooLong    = "too_long"
	CodeDuplicate  = "duplicate"
	// ストア上の既存データと衝突（SKU重複など）
	CodeConflict = "conflict"
)

// FieldError は1フィールド分の入力エラー。
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		msg = msg + " (" + strings.Join(parts, "; ") + ")"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Validation(message string, fields ...FieldError) error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func Conflict(message string, fields ...FieldError) error {
	return &Error{Kind: KindConflict, Message: message, Fields: fields}
}

func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Transient(message string, cause error) error {
	return &Error{Kind: KindTransient, Message: message, Cause: cause}
}

func Unknown(message string, cause error) error {
	return &Error{Kind: KindUnknown, Message: message, Cause: cause}
}

// FromFields はフィールドエラー一覧を1つのエラーにまとめる。
// 空なら nil、conflict コードが1つでもあれば Conflict。
func FromFields(fields []FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	for _, f := range fields {
		if f.Code == CodeConflict {
			return Conflict("conflict", fields...)
		}
	}
	return Validation("validation error", fields...)
}

func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// KindOf は任意のエラーを分類する。
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindUnknown
}

// FieldsOf はエラーに含まれるフィールドエラーを返す。
func FieldsOf(err error) []FieldError {
	if e, ok := As(err); ok {
		return e.Fields
	}
	return nil
}
