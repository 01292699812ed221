package api

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrNotAcknowledged means the upstream answered 2xx but did not apply the write.
var ErrNotAcknowledged = errors.New("write not acknowledged")

type writeKind int

const (
	writeCreate writeKind = iota
	writeUpdate
	writeDelete
)

// Ack is what a write returned: a driver-style result or the written entity.
type Ack struct {
	InsertedID string `json:"insertedId,omitempty"`
	Matched    int64  `json:"matchedCount"`
	Modified   int64  `json:"modifiedCount"`
	Deleted    int64  `json:"deletedCount"`
	Raw        string `json:"-"`
}

func parseAck(body []byte, kind writeKind) (Ack, error) {
	r := gjson.ParseBytes(body)
	ack := Ack{
		InsertedID: firstString(r, "insertedId", "insertedId.$oid", "_id", "_id.$oid", "id"),
		Matched:    r.Get("matchedCount").Int(),
		Modified:   r.Get("modifiedCount").Int(),
		Deleted:    r.Get("deletedCount").Int(),
		Raw:        r.Raw,
	}

	if v := r.Get("acknowledged"); v.Exists() && !v.Bool() {
		return ack, ErrNotAcknowledged
	}
	switch kind {
	case writeCreate:
		if ack.InsertedID == "" && !r.Get("acknowledged").Bool() {
			return ack, fmt.Errorf("%w: no inserted id", ErrNotAcknowledged)
		}
	case writeUpdate:
		if v := r.Get("matchedCount"); v.Exists() && v.Int() == 0 {
			return ack, fmt.Errorf("%w: no document matched", ErrNotAcknowledged)
		}
	case writeDelete:
		if v := r.Get("deletedCount"); v.Exists() && v.Int() == 0 {
			return ack, fmt.Errorf("%w: nothing deleted", ErrNotAcknowledged)
		}
	}
	return ack, nil
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
