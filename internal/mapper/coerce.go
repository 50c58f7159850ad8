package mapper

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/ppiankov/resubmit/internal/model"
)

// errNull signals an empty value that maps to null rather than a failure
var errNull = errors.New("null value")

type coercer func(v any, m model.FieldMapping) (any, error)

// coercers by configured name
var coercers = map[string]coercer{
	"string":          coerceString,
	"code":            coerceCode,
	"denial_code":     coerceDenialCode,
	"lower":           coerceLower,
	"status":          coerceLower,
	"text":            coerceText,
	"html_text":       coerceHTMLText,
	"money":           coerceMoney,
	"date":            coerceDate,
	"date_range":      coerceDateRange,
	"procedure_codes": coerceProcedureCodes,
	"code_set":        coerceCodeSet,
}

// valueKind is the Go type a field carries once coerced
type valueKind int

const (
	kindString valueKind = iota
	kindMoney
	kindDate
	kindDateRange
	kindProcedures
	kindCodeSet
)

var fieldKinds = map[model.Field]valueKind{
	model.FieldClaimNumber:      kindString,
	model.FieldPatientRef:       kindString,
	model.FieldEncounterRef:     kindString,
	model.FieldPayerID:          kindString,
	model.FieldClaimStatus:      kindString,
	model.FieldProcedureCodes:   kindProcedures,
	model.FieldDiagnosisCodes:   kindCodeSet,
	model.FieldDenialCode:       kindString,
	model.FieldDenialReasonText: kindString,
	model.FieldBilledAmount:     kindMoney,
	model.FieldAllowedAmount:    kindMoney,
	model.FieldServiceDateRange: kindDateRange,
	model.FieldSubmittedAt:      kindDate,
}

var coercerKinds = map[string]valueKind{
	"string":          kindString,
	"code":            kindString,
	"denial_code":     kindString,
	"lower":           kindString,
	"status":          kindString,
	"text":            kindString,
	"html_text":       kindString,
	"money":           kindMoney,
	"date":            kindDate,
	"date_range":      kindDateRange,
	"procedure_codes": kindProcedures,
	"code_set":        kindCodeSet,
}

var defaultCoercions = map[model.Field]string{
	model.FieldClaimNumber:      "string",
	model.FieldPatientRef:       "string",
	model.FieldEncounterRef:     "string",
	model.FieldPayerID:          "code",
	model.FieldClaimStatus:      "status",
	model.FieldProcedureCodes:   "procedure_codes",
	model.FieldDiagnosisCodes:   "code_set",
	model.FieldDenialCode:       "denial_code",
	model.FieldDenialReasonText: "text",
	model.FieldBilledAmount:     "money",
	model.FieldAllowedAmount:    "money",
	model.FieldServiceDateRange: "date_range",
	model.FieldSubmittedAt:      "date",
}

// coercionFor returns the coercion name a mapping uses
func coercionFor(m model.FieldMapping) string {
	if m.Coerce != "" {
		return m.Coerce
	}
	return defaultCoercions[m.Field]
}

// Common date layouts found in EMR and clearinghouse exports
var dateFormats = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006/01/02",
	"20060102",
	"Jan 2, 2006",
	"January 2, 2006",
}

var (
	multiSpace     = regexp.MustCompile(`\s+`)
	codeStrip      = regexp.MustCompile(`[^A-Z0-9.\-]`)
	carcPattern    = regexp.MustCompile(`^([A-Z]{2})\s*[-_ ]?\s*([A-Z]?\d+[A-Z]?)$`)
	procCodeStrip  = regexp.MustCompile(`[^A-Z0-9]`)
	procSplitter   = regexp.MustCompile(`[-:]`)
	moneyCharStrip = strings.NewReplacer("$", "", ",", "", " ", "", "USD", "")
)

// scalarString renders a scalar payload value as a trimmed string
func scalarString(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", errNull
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return "", errNull
		}
		return s, nil
	case json.Number:
		return val.String(), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", fmt.Errorf("expected scalar, got %T", v)
	}
}

func coerceString(v any, _ model.FieldMapping) (any, error) {
	return scalarString(v)
}

func coerceLower(v any, _ model.FieldMapping) (any, error) {
	s, err := scalarString(v)
	if err != nil {
		return nil, err
	}
	return strings.ToLower(s), nil
}

func coerceCode(v any, _ model.FieldMapping) (any, error) {
	s, err := scalarString(v)
	if err != nil {
		return nil, err
	}
	return normalizeCode(s)
}

func normalizeCode(s string) (string, error) {
	code := codeStrip.ReplaceAllString(strings.ToUpper(s), "")
	if code == "" {
		return "", fmt.Errorf("code %q has no alphanumeric content", s)
	}
	return code, nil
}

// coerceDenialCode normalizes CARC codes to GROUP-REASON ("co 50" -> "CO-50").
// Codes without a group prefix are kept as normalized codes.
func coerceDenialCode(v any, _ model.FieldMapping) (any, error) {
	s, err := scalarString(v)
	if err != nil {
		return nil, err
	}
	upper := strings.ToUpper(s)
	if m := carcPattern.FindStringSubmatch(upper); m != nil {
		return m[1] + "-" + m[2], nil
	}
	return normalizeCode(upper)
}

func coerceText(v any, _ model.FieldMapping) (any, error) {
	s, err := scalarString(v)
	if err != nil {
		return nil, err
	}
	return normalizeText(s), nil
}

// normalizeText folds compatibility characters (NBSP, fullwidth forms) and
// collapses whitespace so free text compares equal across exports
func normalizeText(s string) string {
	return strings.TrimSpace(multiSpace.ReplaceAllString(norm.NFKC.String(s), " "))
}

// coerceHTMLText strips markup from remark fields exported as HTML fragments
func coerceHTMLText(v any, m model.FieldMapping) (any, error) {
	s, err := scalarString(v)
	if err != nil {
		return nil, err
	}
	nodes, err := html.ParseFragment(strings.NewReader(s), nil)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}

	text := normalizeText(buf.String())
	if text == "" {
		return nil, errNull
	}
	return text, nil
}

// coerceMoney parses dollars (default) or cents into model.Money
func coerceMoney(v any, m model.FieldMapping) (any, error) {
	s, err := scalarString(v)
	if err != nil {
		return nil, err
	}
	clean := moneyCharStrip.Replace(s)

	if m.Unit == "cents" {
		cents, err := strconv.ParseInt(clean, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("amount %q is not a whole number of cents", s)
		}
		if cents < 0 {
			return nil, fmt.Errorf("amount %q is negative", s)
		}
		return model.Money(cents), nil
	}

	dollars, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(dollars) || math.IsInf(dollars, 0) {
		return nil, fmt.Errorf("amount %q is not numeric", s)
	}
	if dollars < 0 {
		return nil, fmt.Errorf("amount %q is negative", s)
	}
	cents := math.Round(dollars * 100)
	// 2^63 is exactly representable; anything at or above it overflows int64
	if cents >= float64(math.MaxInt64) {
		return nil, fmt.Errorf("amount %q out of range", s)
	}
	return model.Money(cents), nil
}

func parseDate(s string, extra []string) (time.Time, error) {
	for _, layout := range append(append([]string(nil), extra...), dateFormats...) {
		if t, err := time.Parse(layout, s); err == nil {
			return model.DateOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func coerceDate(v any, m model.FieldMapping) (any, error) {
	s, err := scalarString(v)
	if err != nil {
		return nil, err
	}
	return parseDate(s, m.Formats)
}

// coerceDateRange accepts {from,to}/{start,end} objects, "from/to" strings,
// or a single date meaning a one-day range.
func coerceDateRange(v any, m model.FieldMapping) (any, error) {
	var fromRaw, toRaw any
	switch val := v.(type) {
	case map[string]any:
		fromRaw = firstOf(val, "from", "start")
		toRaw = firstOf(val, "to", "end")
		if toRaw == nil {
			toRaw = fromRaw
		}
	default:
		s, err := scalarString(v)
		if err != nil {
			return nil, err
		}
		fromRaw, toRaw = s, s
		// ISO interval "2025-01-02/2025-01-05"; slashed dates carry two slashes
		if parts := strings.SplitN(s, "..", 2); len(parts) == 2 {
			fromRaw, toRaw = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		} else if strings.Count(s, "/") == 1 {
			parts := strings.SplitN(s, "/", 2)
			fromRaw, toRaw = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		}
	}

	fromStr, err := scalarString(fromRaw)
	if err != nil {
		return nil, err
	}
	from, err := parseDate(fromStr, m.Formats)
	if err != nil {
		return nil, err
	}
	toStr, err := scalarString(toRaw)
	if err != nil {
		return nil, err
	}
	to, err := parseDate(toStr, m.Formats)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("date range ends %s before it starts %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}
	return model.DateRange{From: from, To: to}, nil
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// listItems splits a list payload: a JSON array or a delimited string
func listItems(v any, sep string) ([]any, error) {
	switch val := v.(type) {
	case nil:
		return nil, errNull
	case []any:
		return val, nil
	default:
		s, err := scalarString(v)
		if err != nil {
			return nil, err
		}
		if sep == "" {
			sep = ","
		}
		var out []any
		for _, part := range strings.Split(s, sep) {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
}

// coerceProcedureCodes accepts "99213-25" strings or {code, modifiers} objects.
// Order is preserved.
func coerceProcedureCodes(v any, m model.FieldMapping) (any, error) {
	items, err := listItems(v, m.Separator)
	if err != nil {
		return nil, err
	}

	var out []model.ProcedureCode
	for i, item := range items {
		var pc model.ProcedureCode
		switch it := item.(type) {
		case map[string]any:
			code, err := scalarString(firstOf(it, "code", "cpt", "hcpcs"))
			if err != nil {
				return nil, fmt.Errorf("procedure %d: %w", i, err)
			}
			pc.Code = code
			mods, err := listItems(firstOf(it, "modifiers", "modifier"), ",")
			if err != nil && !errors.Is(err, errNull) {
				return nil, fmt.Errorf("procedure %d modifiers: %w", i, err)
			}
			for _, mod := range mods {
				ms, err := scalarString(mod)
				if err != nil {
					continue
				}
				pc.Modifiers = append(pc.Modifiers, ms)
			}
		default:
			s, err := scalarString(it)
			if err != nil {
				return nil, fmt.Errorf("procedure %d: %w", i, err)
			}
			parts := procSplitter.Split(s, -1)
			pc.Code = parts[0]
			pc.Modifiers = append(pc.Modifiers, parts[1:]...)
		}

		pc.Code = procCodeStrip.ReplaceAllString(strings.ToUpper(pc.Code), "")
		if pc.Code == "" {
			return nil, fmt.Errorf("procedure %d: empty code", i)
		}
		mods := pc.Modifiers[:0]
		for _, mod := range pc.Modifiers {
			if clean := procCodeStrip.ReplaceAllString(strings.ToUpper(mod), ""); clean != "" {
				mods = append(mods, clean)
			}
		}
		pc.Modifiers = mods
		if len(pc.Modifiers) == 0 {
			pc.Modifiers = nil
		}
		out = append(out, pc)
	}

	if len(out) == 0 {
		return nil, errNull
	}
	return out, nil
}

// coerceCodeSet normalizes a diagnosis list into a sorted, unique set
func coerceCodeSet(v any, m model.FieldMapping) (any, error) {
	items, err := listItems(v, m.Separator)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	for i, item := range items {
		s, err := scalarString(item)
		if err != nil {
			if errors.Is(err, errNull) {
				continue
			}
			return nil, fmt.Errorf("code %d: %w", i, err)
		}
		code, err := normalizeCode(s)
		if err != nil {
			return nil, err
		}
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	if len(out) == 0 {
		return nil, errNull
	}
	sort.Strings(out)
	return out, nil
}
