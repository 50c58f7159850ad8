package rules

import (
	"sort"
	"time"

	"github.com/ppiankov/resubmit/internal/model"
)

type operandKind int

const (
	kindString operandKind = iota
	kindList
	kindMoney
	kindDate
)

// operandKinds lists every name a predicate may reference: the canonical
// fields plus views derived from them.
var operandKinds = map[string]operandKind{
	string(model.FieldClaimNumber):      kindString,
	string(model.FieldPatientRef):       kindString,
	string(model.FieldEncounterRef):     kindString,
	string(model.FieldPayerID):          kindString,
	string(model.FieldClaimStatus):      kindString,
	string(model.FieldDenialCode):       kindString,
	string(model.FieldDenialReasonText): kindString,
	string(model.FieldProcedureCodes):   kindList,
	string(model.FieldDiagnosisCodes):   kindList,
	string(model.FieldBilledAmount):     kindMoney,
	string(model.FieldAllowedAmount):    kindMoney,
	string(model.FieldSubmittedAt):      kindDate,
	string(model.FieldServiceDateRange): kindDate,
	"service_date_start":                kindDate,
	"service_date_end":                  kindDate,
	"procedure_code_list":               kindList,
	"modifier_list":                     kindList,
}

// sourceField maps derived operands to the canonical field they read
var sourceField = map[string]model.Field{
	"service_date_start":  model.FieldServiceDateRange,
	"service_date_end":    model.FieldServiceDateRange,
	"procedure_code_list": model.FieldProcedureCodes,
	"modifier_list":       model.FieldProcedureCodes,
}

// operand is a claim value as seen by a predicate
type operand struct {
	name  string
	state model.FieldState
	str   string
	list  []string
	money model.Money
	date  time.Time
}

func readOperand(claim *model.CanonicalClaim, name string) operand {
	field, derived := sourceField[name]
	if !derived {
		field = model.Field(name)
	}

	fv := claim.Field(field)
	op := operand{name: name, state: fv.State}
	if fv.State != model.StateKnown {
		return op
	}

	switch v := fv.Value.(type) {
	case string:
		op.str = v
	case model.Money:
		op.money = v
	case time.Time:
		op.date = v
	case model.DateRange:
		op.date = v.To
		if name == "service_date_start" {
			op.date = v.From
		}
	case []string:
		op.list = v
	case []model.ProcedureCode:
		switch name {
		case "procedure_code_list":
			for _, p := range v {
				op.list = append(op.list, p.Code)
			}
		case "modifier_list":
			seen := make(map[string]bool)
			for _, p := range v {
				for _, m := range p.Modifiers {
					if !seen[m] {
						seen[m] = true
						op.list = append(op.list, m)
					}
				}
			}
			sort.Strings(op.list)
		default:
			for _, p := range v {
				op.list = append(op.list, p.String())
			}
		}
	default:
		op.state = model.StateUnknown
	}
	return op
}
