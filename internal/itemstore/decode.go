package itemstore

import (
	"bytes"
	"encoding/json"
	"errors"

	"refinery/internal/services"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// recordShape is the top-level variant of a batch file.
type recordShape int

const (
	shapeInvalid recordShape = iota
	shapeSingle
	shapeSequence
)

func detectShape(data []byte) (recordShape, []byte) {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return shapeInvalid, data
	}
	switch data[0] {
	case '{':
		return shapeSingle, data
	case '[':
		return shapeSequence, data
	default:
		return shapeInvalid, data
	}
}

// decodeBatch parses either one record or a sequence of records.
func decodeBatch(path string, data []byte) ([]WorkItem, error) {
	shape, body := detectShape(data)
	switch shape {
	case shapeSingle:
		item, err := decodeRecord(path, 0, body)
		if err != nil {
			return nil, err
		}
		return []WorkItem{item}, nil
	case shapeSequence:
		var raws []json.RawMessage
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, services.ParseFailure(path, -1, "malformed record sequence", err)
		}
		items := make([]WorkItem, 0, len(raws))
		for i, raw := range raws {
			item, err := decodeRecord(path, i, raw)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	default:
		return nil, services.ParseFailure(path, -1, "expected a record or a sequence of records", nil)
	}
}

func decodeRecord(path string, index int, raw []byte) (WorkItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return WorkItem{}, services.ParseFailure(path, index, "record is not an object", nil)
	}
	var item WorkItem
	if err := json.Unmarshal(raw, &item); err != nil {
		msg := "malformed record"
		if errors.Is(err, errMissingText) {
			msg = "missing text"
		}
		return WorkItem{}, services.ParseFailure(path, index, msg, err)
	}
	return item, nil
}

// countRecords counts the records LoadBatch would return, failing on the
// same inputs it rejects.
func countRecords(path string, data []byte) (int, error) {
	items, err := decodeBatch(path, data)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
