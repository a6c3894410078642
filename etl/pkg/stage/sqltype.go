package stage

import (
	"strconv"
	"strings"
	"time"
)

// SQL types inferred for staged columns. DuckDB understands all of these;
// the loader maps them onto PostgreSQL spellings.
const (
	TypeBigint    = "BIGINT"
	TypeDouble    = "DOUBLE"
	TypeBoolean   = "BOOLEAN"
	TypeTimestamp = "TIMESTAMP"
	TypeText      = "TEXT"
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// InferSQLType infers the SQL type for a column from its raw CSV values.
// Empty strings are treated as nulls and carry no type evidence; a column
// with no evidence defaults to TEXT. Integers promote to DOUBLE when mixed
// with floats; any non-conforming value demotes the column to TEXT.
func InferSQLType(samples []string) string {
	isBigint := true
	isDouble := true
	isBool := true
	isTimestamp := true
	evidence := false

	for _, s := range samples {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		evidence = true

		if isBigint {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isBigint = false
			}
		}
		if isDouble {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				isDouble = false
			}
		}
		if isBool {
			switch strings.ToLower(s) {
			case "true", "false":
			default:
				isBool = false
			}
		}
		if isTimestamp {
			if _, ok := parseTimestamp(s); !ok {
				isTimestamp = false
			}
		}
		if !isBigint && !isDouble && !isBool && !isTimestamp {
			return TypeText
		}
	}

	if !evidence {
		return TypeText
	}
	switch {
	case isBool:
		return TypeBoolean
	case isBigint:
		return TypeBigint
	case isDouble:
		return TypeDouble
	case isTimestamp:
		return TypeTimestamp
	}
	return TypeText
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// convertValue parses a raw CSV value to the Go value matching the column's
// inferred SQL type. Empty strings become nil (SQL NULL).
func convertValue(s, sqlType string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	switch sqlType {
	case TypeBigint:
		return strconv.ParseInt(s, 10, 64)
	case TypeDouble:
		return strconv.ParseFloat(s, 64)
	case TypeBoolean:
		return strconv.ParseBool(strings.ToLower(s))
	case TypeTimestamp:
		t, ok := parseTimestamp(s)
		if !ok {
			return nil, &time.ParseError{Layout: timestampLayouts[0], Value: s}
		}
		return t, nil
	default:
		return s, nil
	}
}
