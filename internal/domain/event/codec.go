package event

import (
	"encoding/json"
	"fmt"

	"catalog/internal/apperr"
)

// Encode は outbox に保存するペイロードを作る。
func Encode(ev Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Type(), err)
	}
	return b, nil
}

// Decode は outbox/デッドレターのペイロードを型付きイベントに戻す。
// 壊れたペイロードはリトライしても直らないので Validation 扱い。
func Decode(t Type, payload []byte) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch t {
	case TypeProductCreated:
		var e ProductCreated
		err = json.Unmarshal(payload, &e)
		ev = e
	case TypeProductUpdated:
		var e ProductUpdated
		err = json.Unmarshal(payload, &e)
		ev = e
	case TypeProductDeleted:
		var e ProductDeleted
		err = json.Unmarshal(payload, &e)
		ev = e
	case TypeProductsBulkImported:
		var e ProductsBulkImported
		err = json.Unmarshal(payload, &e)
		ev = e
	default:
		return nil, apperr.Validation("unknown event type " + string(t))
	}
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Message: "decode " + string(t), Cause: err}
	}
	return ev, nil
}
