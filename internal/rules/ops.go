package rules

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ppiankov/resubmit/internal/model"
)

type argKind int

const (
	argNone argKind = iota
	argValue
	argValues
	argThreshold
	argDays
)

type opSpec struct {
	kinds map[operandKind]bool
	arg   argKind
	eval  func(p *Predicate, op operand, asOf time.Time) (bool, string)
}

func kinds(ks ...operandKind) map[operandKind]bool {
	m := make(map[operandKind]bool, len(ks))
	for _, k := range ks {
		m[k] = true
	}
	return m
}

// ops by name. String comparisons are case-insensitive since EMR exports
// vary casing.
var ops = map[string]opSpec{
	"present":         {kinds(kindString, kindList, kindMoney, kindDate), argNone, nil},
	"eq":              {kinds(kindString), argValue, evalEq},
	"ne":              {kinds(kindString), argValue, evalNe},
	"matches":         {kinds(kindString), argValue, evalMatches},
	"in":              {kinds(kindString, kindList), argValues, evalIn},
	"not_in":          {kinds(kindString, kindList), argValues, evalNotIn},
	"contains_any":    {kinds(kindString, kindList), argValues, evalContainsAny},
	"lt":              {kinds(kindMoney), argThreshold, compareMoney(func(a, b float64) bool { return a < b }, "<")},
	"lte":             {kinds(kindMoney), argThreshold, compareMoney(func(a, b float64) bool { return a <= b }, "<=")},
	"gt":              {kinds(kindMoney), argThreshold, compareMoney(func(a, b float64) bool { return a > b }, ">")},
	"gte":             {kinds(kindMoney), argThreshold, compareMoney(func(a, b float64) bool { return a >= b }, ">=")},
	"count_lte":       {kinds(kindList), argThreshold, evalCountLTE},
	"count_gte":       {kinds(kindList), argThreshold, evalCountGTE},
	"within_days":     {kinds(kindDate), argDays, evalWithinDays},
	"older_than_days": {kinds(kindDate), argDays, evalOlderThanDays},
}

// values returns the operand's strings for set membership
func values(op operand) []string {
	if op.list != nil {
		return op.list
	}
	if op.str != "" {
		return []string{op.str}
	}
	return nil
}

func evalEq(p *Predicate, op operand, _ time.Time) (bool, string) {
	if strings.EqualFold(op.str, p.Value) {
		return true, fmt.Sprintf("%s is %q", op.name, op.str)
	}
	return false, fmt.Sprintf("%s is %q, want %q", op.name, op.str, p.Value)
}

func evalNe(p *Predicate, op operand, _ time.Time) (bool, string) {
	if !strings.EqualFold(op.str, p.Value) {
		return true, fmt.Sprintf("%s is %q", op.name, op.str)
	}
	return false, fmt.Sprintf("%s must not be %q", op.name, p.Value)
}

func evalMatches(p *Predicate, op operand, _ time.Time) (bool, string) {
	if p.re.MatchString(op.str) {
		return true, fmt.Sprintf("%s %q matches %s", op.name, op.str, p.Value)
	}
	return false, fmt.Sprintf("%s %q does not match %s", op.name, op.str, p.Value)
}

func member(v string, set []string) bool {
	for _, s := range set {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func evalIn(p *Predicate, op operand, _ time.Time) (bool, string) {
	for _, v := range values(op) {
		if member(v, p.Values) {
			return true, fmt.Sprintf("%s %q is in %v", op.name, v, p.Values)
		}
	}
	return false, fmt.Sprintf("%s %v is not in %v", op.name, values(op), p.Values)
}

func evalNotIn(p *Predicate, op operand, _ time.Time) (bool, string) {
	for _, v := range values(op) {
		if member(v, p.Values) {
			return false, fmt.Sprintf("%s %q is in excluded set %v", op.name, v, p.Values)
		}
	}
	return true, fmt.Sprintf("%s %v is not excluded", op.name, values(op))
}

func evalContainsAny(p *Predicate, op operand, _ time.Time) (bool, string) {
	for _, v := range values(op) {
		lower := strings.ToLower(v)
		for _, needle := range p.Values {
			if strings.Contains(lower, strings.ToLower(needle)) {
				return true, fmt.Sprintf("%s contains %q", op.name, needle)
			}
		}
	}
	return false, fmt.Sprintf("%s contains none of %v", op.name, p.Values)
}

func compareMoney(cmp func(a, b float64) bool, sym string) func(*Predicate, operand, time.Time) (bool, string) {
	return func(p *Predicate, op operand, _ time.Time) (bool, string) {
		limit := model.Money(math.Round(*p.Threshold * 100))
		if cmp(float64(op.money), float64(limit)) {
			return true, fmt.Sprintf("%s %s %s %s", op.name, op.money, sym, limit)
		}
		return false, fmt.Sprintf("%s %s is not %s %s", op.name, op.money, sym, limit)
	}
}

func evalCountLTE(p *Predicate, op operand, _ time.Time) (bool, string) {
	n := len(op.list)
	if float64(n) <= *p.Threshold {
		return true, fmt.Sprintf("%s has %d entries", op.name, n)
	}
	return false, fmt.Sprintf("%s has %d entries, limit %g", op.name, n, *p.Threshold)
}

func evalCountGTE(p *Predicate, op operand, _ time.Time) (bool, string) {
	n := len(op.list)
	if float64(n) >= *p.Threshold {
		return true, fmt.Sprintf("%s has %d entries", op.name, n)
	}
	return false, fmt.Sprintf("%s has %d entries, need at least %g", op.name, n, *p.Threshold)
}

// daysBetween counts whole calendar days from d to asOf
func daysBetween(d, asOf time.Time) int {
	return int(model.DateOf(asOf).Sub(model.DateOf(d)).Hours() / 24)
}

func evalWithinDays(p *Predicate, op operand, asOf time.Time) (bool, string) {
	days := daysBetween(op.date, asOf)
	if days <= p.Days {
		return true, fmt.Sprintf("%s %s is %d days before %s, within %d-day window",
			op.name, op.date.Format("2006-01-02"), days, asOf.Format("2006-01-02"), p.Days)
	}
	return false, fmt.Sprintf("%s %s is %d days before %s, outside %d-day window",
		op.name, op.date.Format("2006-01-02"), days, asOf.Format("2006-01-02"), p.Days)
}

func evalOlderThanDays(p *Predicate, op operand, asOf time.Time) (bool, string) {
	days := daysBetween(op.date, asOf)
	if days > p.Days {
		return true, fmt.Sprintf("%s %s is %d days old", op.name, op.date.Format("2006-01-02"), days)
	}
	return false, fmt.Sprintf("%s %s is only %d days old, need more than %d",
		op.name, op.date.Format("2006-01-02"), days, p.Days)
}
