package validate

import (
	"math"
	"net/mail"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/store"
)

func itoa(n int) string { return strconv.Itoa(n) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func validateText(ctx *Context, f *model.Field, value any) []string {
	s := model.CoerceString(value)
	if f.Type == model.FieldTypeTextEditor {
		s = strings.TrimSpace(PlainText(s))
	}
	length := utf8.RuneCountInString(s)

	var errs []string
	if min := f.Props.MinLength; min != nil && length < *min {
		errs = append(errs, ctx.Message(f, RuleMinLength, Tokens{"min_length": itoa(*min), "min": itoa(*min), "length": itoa(length)}))
	}
	if max := f.Props.MaxLength; max != nil && length > *max {
		errs = append(errs, ctx.Message(f, RuleMaxLength, Tokens{"max_length": itoa(*max), "max": itoa(*max), "length": itoa(length)}))
	}
	if p := strings.TrimSpace(f.Props.Pattern); p != "" && f.Type != model.FieldTypeTextEditor {
		re, err := ctx.registry().pattern(p)
		if err != nil {
			ctx.logger().Warn("invalid field pattern", zap.String("field", f.Key), zap.String("pattern", p), zap.Error(err))
		} else if !re.MatchString(s) {
			errs = append(errs, ctx.Message(f, RulePattern, Tokens{"pattern": p}))
		}
	}

	switch f.Type {
	case model.FieldTypeEmail:
		trimmed := strings.TrimSpace(s)
		if addr, err := mail.ParseAddress(trimmed); err != nil || addr.Address != trimmed {
			errs = append(errs, ctx.Message(f, RuleInvalid, Tokens{"value": trimmed}))
		}
	case model.FieldTypeURL:
		trimmed := strings.TrimSpace(s)
		if u, err := url.Parse(trimmed); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ctx.Message(f, RuleInvalid, Tokens{"value": trimmed}))
		}
	}
	return errs
}

func validateNumber(ctx *Context, f *model.Field, value any) []string {
	n, ok := model.CoerceNumber(value)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return []string{ctx.Message(f, RuleInvalid, Tokens{"value": model.CoerceString(value)})}
	}
	if p := f.Props.Precision; p != nil && *p >= 0 {
		scale := math.Pow(10, float64(*p))
		n = math.Round(n*scale) / scale
	}

	var errs []string
	if min := f.Props.Min; min != nil && n < *min {
		errs = append(errs, ctx.Message(f, RuleMin, Tokens{"min": ftoa(*min), "value": ftoa(n)}))
	}
	if max := f.Props.Max; max != nil && n > *max {
		errs = append(errs, ctx.Message(f, RuleMax, Tokens{"max": ftoa(*max), "value": ftoa(n)}))
	}
	return errs
}

func validateFiles(ctx *Context, f *model.Field, value any) []string {
	refs, _ := value.([]model.FileRef)

	var errs []string
	if max := f.Props.MaxCount; max > 0 && len(refs) > max {
		errs = append(errs, ctx.Message(f, RuleMaxCount, Tokens{"max": itoa(max), "count": itoa(len(refs))}))
	}
	for _, ref := range refs {
		name, typ, size := describe(ctx, ref)
		if len(f.Props.AllowedTypes) > 0 && (typ != "" || name != "") && !allowedType(f.Props.AllowedTypes, typ, name) {
			errs = append(errs, ctx.Message(f, RuleFileType, Tokens{
				"filename": name,
				"types":    strings.Join(f.Props.AllowedTypes, ", "),
			}))
		}
		if max := f.Props.MaxSize; max > 0 && size > max {
			errs = append(errs, ctx.Message(f, RuleFileSize, Tokens{
				"filename": name,
				"max":      humanize.Bytes(uint64(max)),
				"size":     humanize.Bytes(uint64(size)),
			}))
		}
	}
	return errs
}

// describe prefers metadata on the reference and falls back to the session
// cache for new uploads.
func describe(ctx *Context, ref model.FileRef) (name, typ string, size int64) {
	name, typ, size = ref.Name, ref.Type, ref.Size
	if ref.Source == model.FileSourceNewUpload && ctx.Files != nil {
		if entry, ok := ctx.Files.Get(ref.SessionID); ok {
			if name == "" {
				name = entry.Name
			}
			if typ == "" {
				typ = entry.Type
			}
			if size == 0 {
				size = entry.Size
			}
		}
	}
	return name, typ, size
}

// allowedType accepts exact MIME types, "type/*" wildcards and ".ext"
// extensions.
func allowedType(allowed []string, mime, name string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	ext := strings.ToLower(path.Ext(name))
	for _, rule := range allowed {
		rule = strings.ToLower(strings.TrimSpace(rule))
		switch {
		case rule == "":
			continue
		case strings.HasPrefix(rule, "."):
			if ext == rule {
				return true
			}
		case strings.HasSuffix(rule, "/*"):
			if mime != "" && strings.HasPrefix(mime, strings.TrimSuffix(rule, "*")) {
				return true
			}
		default:
			if mime == rule {
				return true
			}
		}
	}
	return false
}

func validateLocation(ctx *Context, f *model.Field, value any) []string {
	loc, ok := value.(model.Location)
	if !ok {
		return []string{ctx.Message(f, RuleInvalid, nil)}
	}
	if loc.Lat == nil || loc.Lng == nil {
		return []string{ctx.Message(f, RuleIncomplete, nil)}
	}
	if *loc.Lat < -90 || *loc.Lat > 90 || *loc.Lng < -180 || *loc.Lng > 180 {
		return []string{ctx.Message(f, RuleRange, Tokens{"lat": ftoa(*loc.Lat), "lng": ftoa(*loc.Lng)})}
	}
	return nil
}

func validateDate(ctx *Context, f *model.Field, value any) []string {
	d, ok := value.(model.DateValue)
	if !ok {
		return []string{ctx.Message(f, RuleInvalid, nil)}
	}
	if _, err := time.Parse("2006-01-02", strings.TrimSpace(d.Date)); err != nil {
		return []string{ctx.Message(f, RuleInvalid, Tokens{"value": d.Date})}
	}
	if f.Props.EnableTime && strings.TrimSpace(d.Time) != "" {
		if _, err := time.Parse("15:04", strings.TrimSpace(d.Time)); err != nil {
			return []string{ctx.Message(f, RuleInvalid, Tokens{"value": d.Time})}
		}
	}
	return nil
}

func validateWorkHours(ctx *Context, f *model.Field, value any) []string {
	hours, _ := value.(model.WorkHours)

	var errs []string
	for _, day := range hours.Days() {
		entry := hours[day]
		if entry.Status != model.DayOpen {
			continue
		}
		if len(entry.Slots) == 0 {
			errs = append(errs, ctx.Message(f, RuleIncomplete, Tokens{"day": day}))
			continue
		}
		for _, slot := range entry.Slots {
			start, errStart := time.Parse("15:04", strings.TrimSpace(slot.Start))
			end, errEnd := time.Parse("15:04", strings.TrimSpace(slot.End))
			if errStart != nil || errEnd != nil {
				errs = append(errs, ctx.Message(f, RuleIncomplete, Tokens{"day": day}))
				break
			}
			if !end.After(start) {
				errs = append(errs, ctx.Message(f, RuleRange, Tokens{"day": day, "start": slot.Start, "end": slot.End}))
				break
			}
		}
	}
	return errs
}

func validateSelect(ctx *Context, f *model.Field, value any) []string {
	s := model.CoerceString(value)
	if !f.Props.HasChoice(s) {
		return []string{ctx.Message(f, RuleInvalid, Tokens{"value": s})}
	}
	return nil
}

func validateMultiSelect(ctx *Context, f *model.Field, value any) []string {
	selected, _ := value.([]string)

	var errs []string
	for _, s := range selected {
		if !f.Props.HasChoice(s) {
			errs = append(errs, ctx.Message(f, RuleInvalid, Tokens{"value": s}))
		}
	}
	errs = append(errs, countBounds(ctx, f, len(selected))...)
	return errs
}

func validateTaxonomy(ctx *Context, f *model.Field, value any) []string {
	ids, _ := value.([]int)
	return countBounds(ctx, f, f.Props.Tree.LeafCount(ids))
}

func countBounds(ctx *Context, f *model.Field, count int) []string {
	var errs []string
	if min, ok := model.Bound(f.Props.Min); ok && count < min {
		errs = append(errs, ctx.Message(f, RuleMin, Tokens{"min": itoa(min), "count": itoa(count)}))
	}
	if max, ok := model.Bound(f.Props.Max); ok && max > 0 && count > max {
		errs = append(errs, ctx.Message(f, RuleMax, Tokens{"max": itoa(max), "count": itoa(count)}))
	}
	return errs
}

// validateRepeater checks the row count, then validates every visible
// sub-field of every row, recursing into nested repeaters.
func validateRepeater(ctx *Context, f *model.Field, value any) []string {
	rows, _ := value.([]*store.Row)
	errs := countBounds(ctx, f, len(rows))

	invalid := false
	for _, row := range rows {
		scoped := ctx.forRow(row)
		if _, ok := All(scoped, row.Store); !ok {
			invalid = true
		}
	}
	if invalid {
		errs = append(errs, ctx.Message(f, RuleRows, Tokens{"count": itoa(len(rows))}))
	}
	return errs
}
