package reconcile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// Callback is a normalized generic delivery callback.
type Callback struct {
	// OrganizationID, when known, scopes the message lookup.
	OrganizationID string
	MessageID      string
	Status    string
	Error     string
	Raw       map[string]any
}

// ParseCallback reads the provider id from message_id or id and lowercases
// the status.
func ParseCallback(payload map[string]any) Callback {
	cb := Callback{Raw: payload}
	cb.MessageID = stringField(payload, "message_id")
	if cb.MessageID == "" {
		cb.MessageID = stringField(payload, "id")
	}
	cb.Status = strings.ToLower(stringField(payload, "status"))
	cb.Error = stringField(payload, "error")
	return cb
}

// StripMessageID drops everything from the first dot. Email providers
// append routing suffixes to the id they returned at send time.
func StripMessageID(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.IndexByte(id, '.'); i >= 0 {
		id = id[:i]
	}
	return id
}

// ParseEmailEvents accepts a JSON array of events, a single event object
// or newline-delimited objects. Entries that are not objects are dropped.
func ParseEmailEvents(body []byte) ([]domain.EmailEvent, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	var raws []map[string]any
	if body[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode event array: %w", err)
		}
		for _, item := range items {
			var m map[string]any
			if json.Unmarshal(item, &m) == nil && m != nil {
				raws = append(raws, m)
			}
		}
	} else {
		var err error
		raws, err = decodeStream(body)
		if err != nil {
			raws = decodeLines(body)
		}
	}

	events := make([]domain.EmailEvent, 0, len(raws))
	for _, m := range raws {
		events = append(events, toEmailEvent(m))
	}
	return events, nil
}

// decodeStream reads concatenated JSON objects, which covers both a single
// object and NDJSON.
func decodeStream(body []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	var out []map[string]any
	for {
		var m map[string]any
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if m != nil {
			out = append(out, m)
		}
	}
}

// decodeLines is the lenient NDJSON path: malformed lines are skipped.
func decodeLines(body []byte) []map[string]any {
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if json.Unmarshal(line, &m) == nil && m != nil {
			out = append(out, m)
		}
	}
	return out
}

func toEmailEvent(m map[string]any) domain.EmailEvent {
	ev := domain.EmailEvent{
		Event:     domain.EmailEventType(strings.ToLower(stringField(m, "event"))),
		MessageID: StripMessageID(stringField(m, "sg_message_id")),
		Email:     stringField(m, "email"),
		Reason:    stringField(m, "reason"),
		Raw:       m,
	}
	if ev.MessageID == "" {
		ev.MessageID = StripMessageID(stringField(m, "message_id"))
	}
	if ev.Reason == "" {
		ev.Reason = stringField(m, "response")
	}
	switch ts := m["timestamp"].(type) {
	case float64:
		ev.Timestamp = int64(ts)
	case string:
		ev.Timestamp, _ = strconv.ParseInt(ts, 10, 64)
	}
	return ev
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}
