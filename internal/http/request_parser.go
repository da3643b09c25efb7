package http

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"fintrack/internal/core"
)

// parsePeriodQuery reads ?period=MM/YYYY or ?month=&year=. When neither is
// present, ok is false and err is nil.
func parsePeriodQuery(c *gin.Context) (p core.Period, ok bool, err error) {
	if raw := c.Query("period"); raw != "" {
		p, err = core.ParsePeriod(raw)
		return p, err == nil, err
	}
	monthStr, yearStr := c.Query("month"), c.Query("year")
	if monthStr == "" && yearStr == "" {
		return core.Period{}, false, nil
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return core.Period{}, false, core.NewValidationError("month", core.ErrInvalidMonth, "must be a number")
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return core.Period{}, false, core.NewValidationError("year", core.ErrInvalidYear, "must be a number")
	}
	p = core.NewPeriod(month, year)
	if err := p.Validate(); err != nil {
		return core.Period{}, false, err
	}
	return p, true, nil
}

// parseEntryFilter reads from, to and the comma-separated kind, category and
// scope sets.
func parseEntryFilter(c *gin.Context) (core.EntryFilter, error) {
	var f core.EntryFilter
	if raw := c.Query("from"); raw != "" {
		d, err := core.ParseDate(raw)
		if err != nil {
			return f, core.NewValidationError("from", err, "")
		}
		f.From = d
	}
	if raw := c.Query("to"); raw != "" {
		d, err := core.ParseDate(raw)
		if err != nil {
			return f, core.NewValidationError("to", err, "")
		}
		f.To = d
	}
	for _, k := range splitList(c.Query("kind")) {
		f.Kinds = append(f.Kinds, core.Kind(k))
	}
	f.CategoryIDs = splitList(c.Query("category"))
	for _, s := range splitList(c.Query("scope")) {
		f.Scopes = append(f.Scopes, core.Scope(s))
	}
	return f, f.Validate()
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = sanitizeInput(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
