package fields

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/acme/ganttsync/internal/entity"
)

// DateLayout is the canonical storage form of date fields.
const DateLayout = "2006-01-02 15:04:05"

// maxEpochMillis bounds numeric dates to the range a browser Date can hold.
const maxEpochMillis = 8.64e15

// Layouts accepted for string dates, tried in order. Inputs without a zone
// are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	DateLayout,
	"2006-01-02",
}

// Sanitizer maps entities to persisted columns. It is safe for concurrent use;
// SetRules swaps the table atomically.
type Sanitizer struct {
	rules  atomic.Pointer[compiled]
	logger zerolog.Logger
}

// NewSanitizer creates a sanitizer for the given rules. A nil logger disables
// logging.
func NewSanitizer(r Rules, logger *zerolog.Logger) *Sanitizer {
	s := &Sanitizer{logger: zerolog.Nop()}
	if logger != nil {
		s.logger = logger.With().Str("component", "fields").Logger()
	}
	s.rules.Store(compile(r))
	return s
}

// SetRules replaces the active rule table.
func (s *Sanitizer) SetRules(r Rules) {
	s.rules.Store(compile(r))
}

// Rules returns the active rule table.
func (s *Sanitizer) Rules() Rules {
	return s.rules.Load().rules
}

// Columns returns the persisted column names and values of e, in field order.
// Excluded fields are dropped and truthy date fields normalized. It never
// fails: a date it cannot parse is kept as sent.
func (s *Sanitizer) Columns(e *entity.Entity) ([]string, []any) {
	c := s.rules.Load()
	fields := e.Fields()
	names := make([]string, 0, len(fields))
	values := make([]any, 0, len(fields))

	for _, f := range fields {
		if _, skip := c.excluded[f.Name]; skip {
			continue
		}
		v := f.Value
		if _, isDate := c.dates[f.Name]; isDate && truthy(v) {
			if norm, ok := NormalizeDate(v); ok {
				v = norm
			} else {
				s.logger.Debug().Str("field", f.Name).Interface("value", v).Msg("unparseable date stored verbatim")
			}
		}
		names = append(names, f.Name)
		values = append(values, v)
	}
	return names, values
}

// NormalizeDate converts a date value to DateLayout in UTC. The second result
// reports whether v was understood; when false the input is returned as is.
func NormalizeDate(v any) (any, bool) {
	var t time.Time
	switch x := v.(type) {
	case string:
		parsed, ok := parseDate(x)
		if !ok {
			return v, false
		}
		t = parsed
	case int64:
		if math.Abs(float64(x)) > maxEpochMillis {
			return v, false
		}
		t = time.UnixMilli(x)
	case float64:
		if math.IsNaN(x) || math.Abs(x) > maxEpochMillis {
			return v, false
		}
		t = time.UnixMilli(int64(x))
	default:
		return v, false
	}

	t = t.UTC()
	if t.Year() < 0 || t.Year() > 9999 {
		return v, false
	}
	return t.Format(DateLayout), true
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// truthy reports whether v would be considered set by the grid: not null,
// not empty, not zero, not false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0 && !math.IsNaN(x)
	default:
		return true
	}
}
