package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const logTimestampLayout = "2006-01-02 15:04:05"

var labelCaser = cases.Title(language.English)

type infoField struct {
	label string
	value string
}

// subjectKeys are rendered in the header line rather than as bullets.
var subjectKeys = map[string]struct{}{
	FieldComponent:     {},
	FieldJobID:         {},
	FieldStage:         {},
	FieldWorker:        {},
	FieldEventType:     {},
	FieldCorrelationID: {},
}

// selectInfoFields picks the attributes worth showing under an INFO line.
// Errors and hints sort first so they survive the limit.
func selectInfoFields(attrs []kv, limit int) ([]infoField, int) {
	var priority, rest []infoField
	for _, attr := range attrs {
		if _, skip := subjectKeys[attr.key]; skip {
			continue
		}
		field := infoField{label: displayLabel(attr.key), value: formatValue(attr.value)}
		switch attr.key {
		case "error", FieldErrorHint, FieldImpact, FieldAlert:
			priority = append(priority, field)
		default:
			rest = append(rest, field)
		}
	}
	fields := append(priority, rest...)
	if limit <= 0 || len(fields) <= limit {
		return fields, 0
	}
	return fields[:limit], len(fields) - limit
}

func displayLabel(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	words := strings.NewReplacer("_", " ", ".", " ").Replace(key)
	return labelCaser.String(words)
}

func attrString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return formatValue(v)
	}
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return formatTimestamp(v.Time())
	case slog.KindString, slog.KindAny:
		return quoteIfNeeded(attrString(v))
	default:
		return quoteIfNeeded(v.String())
	}
}

func quoteIfNeeded(s string) string {
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r < ' ' || r == '"' {
			return true
		}
	}
	return false
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(time.Local).Format(logTimestampLayout)
}
