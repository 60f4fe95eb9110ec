package session

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Collection names used by the session store and by spool files.
const (
	CollectionOperatorSession = "operator-session"
	CollectionMachineSession  = "machine-session"
	CollectionItemSession     = "item-session"
	CollectionState           = "state"
)

// ParseTime parses a stored timestamp. RFC3339Nano is the
// canonical form; second-precision RFC3339 appears in older
// documents.
func ParseTime(ts string) (time.Time, bool) {
	if ts == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05Z", ts)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t.UTC(), true
}

// FormatTime renders a timestamp in the canonical stored form.
// Fixed-width millisecond precision keeps lexicographic order
// identical to chronological order for indexed range scans.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// firstInt resolves the first present field among paths, for
// documents that drifted between field names over time
// (machine.serial vs machine.id, status.code vs status.id).
// Resolution happens here once; nothing downstream branches on
// document shape.
func firstInt(doc gjson.Result, paths ...string) (int, bool) {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() {
			return int(v.Int()), true
		}
	}
	return 0, false
}

func firstStr(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() {
			return v.Str
		}
	}
	return ""
}

// decodeMachineRef reads a machine reference at the given path.
func decodeMachineRef(doc gjson.Result, path string) MachineRef {
	m := doc.Get(path)
	serial, _ := firstInt(m, "serial", "id")
	return MachineRef{Serial: serial, Name: m.Get("name").Str}
}

// decodeOperatorRef reads an operator reference. Bare numbers are
// accepted for states that store operator ids without names.
func decodeOperatorRef(v gjson.Result) OperatorRef {
	if v.Type == gjson.Number {
		return OperatorRef{ID: int(v.Int())}
	}
	id, ok := firstInt(v, "id", "code")
	if !ok {
		id = NoOperatorID
	}
	return OperatorRef{ID: id, Name: v.Get("name").Str}
}

// decodeCount reads a single count record. Returns false when the
// timestamp is missing or malformed; such records are skipped,
// never fatal.
func decodeCount(v gjson.Result) (CountRecord, bool) {
	ts, ok := ParseTime(firstStr(v, "timestamp", "timestamps.start"))
	if !ok {
		return CountRecord{}, false
	}
	itemID, _ := firstInt(v, "item.id", "itemId")
	opID, _ := firstInt(v, "operator.id", "operatorId")
	serial, _ := firstInt(v, "machine.serial", "machine.id")
	return CountRecord{
		Timestamp: ts,
		ItemID:    itemID,
		Operator:  opID,
		Machine:   serial,
		Misfeed:   v.Get("misfeed").Bool(),
	}, true
}

// decodeCounts normalizes the counts field to the canonical
// {valid, misfeed} split. Two raw shapes exist: a flat list where
// each record carries a misfeed flag, and an already-split
// {valid: [...], misfeed: [...]} object.
func decodeCounts(v gjson.Result) Counts {
	var c Counts
	appendTo := func(arr gjson.Result, forceMisfeed bool) {
		arr.ForEach(func(_, el gjson.Result) bool {
			rec, ok := decodeCount(el)
			if !ok {
				return true
			}
			if forceMisfeed || rec.Misfeed {
				rec.Misfeed = true
				c.Misfeed = append(c.Misfeed, rec)
			} else {
				c.Valid = append(c.Valid, rec)
			}
			return true
		})
	}
	if v.IsArray() {
		appendTo(v, false)
		return c
	}
	appendTo(v.Get("valid"), false)
	appendTo(v.Get("misfeed"), true)
	return c
}

// decodeItems reads the items list, falling back to a single item
// field on item sessions.
func decodeItems(doc gjson.Result) []Item {
	var items []Item
	add := func(v gjson.Result) {
		id, ok := firstInt(v, "id", "itemId")
		if !ok {
			return
		}
		items = append(items, Item{
			ID:       id,
			Name:     v.Get("name").Str,
			Standard: v.Get("standard").Float(),
		})
	}
	if arr := doc.Get("items"); arr.IsArray() {
		arr.ForEach(func(_, v gjson.Result) bool {
			add(v)
			return true
		})
	}
	if len(items) == 0 {
		if it := doc.Get("item"); it.Exists() {
			add(it)
		}
	}
	return items
}

// sessionType maps a collection name to the entity type of its
// sessions.
func sessionType(collection string) (EntityType, bool) {
	switch collection {
	case CollectionOperatorSession:
		return EntityOperator, true
	case CollectionMachineSession:
		return EntityMachine, true
	case CollectionItemSession:
		return EntityItem, true
	}
	return "", false
}

// DecodeSession normalizes a raw session document of the given
// collection into the canonical Session value. Count lists of
// either raw shape are split into {valid, misfeed} here; derived
// counters are recomputed from the normalized lists rather than
// read from the document.
func DecodeSession(collection, doc string) (Session, error) {
	typ, ok := sessionType(collection)
	if !ok {
		return Session{}, fmt.Errorf("unknown session collection %q", collection)
	}
	if !gjson.Valid(doc) {
		return Session{}, fmt.Errorf("invalid session document")
	}
	root := gjson.Parse(doc)

	start, ok := ParseTime(firstStr(root, "timestamps.start", "start"))
	if !ok {
		return Session{}, fmt.Errorf("session missing start timestamp")
	}

	s := Session{
		ID:      firstStr(root, "id", "_id"),
		Type:    typ,
		Start:   start,
		Machine: decodeMachineRef(root, "machine"),
		Items:   decodeItems(root),
		Counts:  decodeCounts(root.Get("counts")),
	}

	if end, ok := ParseTime(firstStr(root, "timestamps.end", "end")); ok {
		if end.Before(start) {
			return Session{}, fmt.Errorf(
				"session %s ends %s before it starts %s",
				s.ID, FormatTime(end), FormatTime(start),
			)
		}
		s.End = &end
	}

	if op := root.Get("operator"); op.Exists() {
		s.Operator = decodeOperatorRef(op)
	}
	if ops := root.Get("operators"); ops.IsArray() {
		ops.ForEach(func(_, v gjson.Result) bool {
			s.Operators = append(s.Operators, decodeOperatorRef(v))
			return true
		})
	}

	s.TotalCount = len(s.Counts.Valid)
	s.MisfeedCount = len(s.Counts.Misfeed)
	if s.End != nil {
		s.Runtime = s.End.Sub(s.Start).Seconds()
	}
	return s, nil
}

// DecodeState normalizes a raw state document.
func DecodeState(doc string) (State, error) {
	if !gjson.Valid(doc) {
		return State{}, fmt.Errorf("invalid state document")
	}
	root := gjson.Parse(doc)

	ts, ok := ParseTime(root.Get("timestamp").Str)
	if !ok {
		return State{}, fmt.Errorf("state missing timestamp")
	}

	st := State{
		Timestamp: ts,
		Machine:   decodeMachineRef(root, "machine"),
		Program:   firstStr(root, "program.mode", "program"),
	}

	code, ok := firstInt(root, "status.code", "status.id")
	if !ok {
		return State{}, fmt.Errorf("state missing status code")
	}
	st.Status = Status{Code: code, Name: root.Get("status.name").Str}

	if ops := root.Get("operators"); ops.IsArray() {
		ops.ForEach(func(_, v gjson.Result) bool {
			st.Operators = append(st.Operators, decodeOperatorRef(v))
			return true
		})
	}
	return st, nil
}
