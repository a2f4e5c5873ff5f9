package feed

import (
	"encoding/base64"
	"strings"

	"github.com/archivekc/oliphant/entity"
)

const (
	FieldSep  = "###"
	b64Prefix = "b64:"
)

// ParseRecord decodes one "<table>#<key>###<version>" record. Failures are
// reported as *MalformedError.
func ParseRecord(raw string) (Notification, error) {
	n, m := parseRecord(raw)
	if m != nil {
		return Notification{}, m
	}
	return n, nil
}

func parseRecord(raw string) (Notification, *MalformedError) {
	rec := strings.TrimRight(raw, "\r\n")
	if rec == "" {
		return Notification{}, &MalformedError{Record: raw, Reason: "empty record"}
	}
	i := strings.LastIndex(rec, FieldSep)
	if i < 0 {
		return Notification{}, &MalformedError{Record: raw, Reason: "missing field separator"}
	}
	uidPart, verPart := rec[:i], rec[i+len(FieldSep):]
	if verPart == "" {
		return Notification{}, &MalformedError{Record: raw, Reason: "empty version"}
	}
	uid, err := entity.ParseUID(uidPart)
	if err != nil {
		return Notification{}, &MalformedError{Record: raw, Reason: "invalid uid", Err: err}
	}
	if strings.HasPrefix(uid.Key, b64Prefix) {
		k, err := base64.RawURLEncoding.DecodeString(uid.Key[len(b64Prefix):])
		if err != nil {
			return Notification{}, &MalformedError{Record: raw, Reason: "invalid base64 key", Err: err}
		}
		uid.Key = string(k)
	}
	if uid.Key == "" {
		return Notification{}, &MalformedError{Record: raw, Reason: "empty primary key"}
	}
	return Notification{UID: uid, Version: entity.ParseVersion(verPart)}, nil
}

// FormatRecord is the producer side of ParseRecord.
func FormatRecord(n Notification) string {
	return n.UID.Table + "#" + encodeKey(n.UID.Key) + FieldSep + n.Version.String()
}

func encodeKey(k string) string {
	if strings.ContainsAny(k, "#\r\n") || strings.HasPrefix(k, b64Prefix) {
		return b64Prefix + base64.RawURLEncoding.EncodeToString([]byte(k))
	}
	return k
}
