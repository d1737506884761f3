// Package parameterizer turns the variable slots of a detected workflow
// into a typed parameter schema and resolves parameter values back into
// concrete actions at execution time.
package parameterizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/oliveagle/jsonpath"
	"github.com/recurhq/recur/detector"
	"github.com/recurhq/recur/model"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

type Parameterizer struct{}

func New() *Parameterizer {
	return &Parameterizer{}
}

// IdentifyParameters derives one parameter per variable slot. The type is
// the majority class of the observed samples; names encode the class and
// the 1-based step the slot belongs to.
func (p *Parameterizer) IdentifyParameters(wf *model.Workflow) []model.Parameter {
	var params []model.Parameter
	for i, slot := range wf.Actions {
		if !slot.Variable {
			continue
		}
		class := consensusClass(slot.Samples)
		param := model.Parameter{
			Name:        fmt.Sprintf("%s_%d", class, i+1),
			Type:        paramType(class),
			Description: fmt.Sprintf("%s value for step %d", class, i+1),
			Required:    true,
		}
		if len(slot.Samples) > 0 {
			param.Default = slot.Samples[len(slot.Samples)-1]
		}
		switch class {
		case detector.CLASS_EMAIL:
			param.Rules.Pattern = `^[\w.+-]+@[\w-]+\.[\w.-]+$`
		case detector.CLASS_URL:
			param.Rules.Pattern = `^https?://\S+$`
		}
		params = append(params, param)
	}
	return params
}

// CreateSchema recomputes the workflow's schema from its current variable
// slots and rewrites each slot's payload to reference its parameter. An
// existing schema is replaced wholesale, keeping only the version lineage.
func (p *Parameterizer) CreateSchema(wf *model.Workflow) *model.ParameterSchema {
	params := p.IdentifyParameters(wf)
	now := time.Now()
	schema := &model.ParameterSchema{
		WorkflowId: wf.Id,
		Version:    1,
		Parameters: params,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if wf.Schema != nil {
		schema.Version = wf.Schema.Version + 1
		schema.CreatedAt = wf.Schema.CreatedAt
	}

	idx := 0
	for i := range wf.Actions {
		if !wf.Actions[i].Variable {
			continue
		}
		wf.Actions[i].Payload = "${" + params[idx].Name + "}"
		idx++
	}
	wf.Schema = schema
	return schema
}

// Substitute resolves parameter values into the workflow's templates and
// returns the concrete action list. A required parameter must be bound
// explicitly; its default is advisory and never stands in for a value.
// Optional parameters fall back to their default. A leftover placeholder
// after substitution is always an error.
func (p *Parameterizer) Substitute(wf *model.Workflow, values map[string]any) ([]model.Action, error) {
	effective := map[string]any{}
	var errs ValidationErrors
	if wf.Schema != nil {
		for _, param := range wf.Schema.Parameters {
			if v, ok := values[param.Name]; ok {
				effective[param.Name] = v
				continue
			}
			if param.Required {
				errs = append(errs, ValidationError{Field: param.Name, Message: "required parameter missing"})
				continue
			}
			if param.Default != nil {
				effective[param.Name] = param.Default
			}
		}
	}
	for name, v := range values {
		if _, ok := effective[name]; !ok {
			effective[name] = v
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	actions := make([]model.Action, len(wf.Actions))
	for i, t := range wf.Actions {
		a := t.Concrete()
		var err error
		if a.Payload, err = resolve(a.Payload, effective); err != nil {
			return nil, ValidationErrors{{Field: fmt.Sprintf("actions[%d].payload", i), Message: err.Error()}}
		}
		if err = resolveTarget(&a.Target, effective); err != nil {
			return nil, ValidationErrors{{Field: fmt.Sprintf("actions[%d].target", i), Message: err.Error()}}
		}
		actions[i] = a
	}
	return actions, nil
}

// Validate checks values against the schema. All violations are collected
// and returned together as ValidationErrors.
func (p *Parameterizer) Validate(schema *model.ParameterSchema, values map[string]any) error {
	if schema == nil {
		return nil
	}
	var errs ValidationErrors
	for _, param := range schema.Parameters {
		v, ok := values[param.Name]
		if !ok {
			// A default never satisfies a required parameter.
			if param.Required {
				errs = append(errs, ValidationError{Field: param.Name, Message: "required parameter missing"})
			}
			continue
		}
		errs = append(errs, validateValue(param, v)...)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateValue(param model.Parameter, v any) ValidationErrors {
	var errs ValidationErrors
	s := Stringify(v)

	switch param.Type {
	case model.PARAM_NUMBER:
		n, err := toNumber(v)
		if err != nil {
			return ValidationErrors{{Field: param.Name, Message: "not a number"}}
		}
		if param.Rules.Min != nil && n < *param.Rules.Min {
			errs = append(errs, ValidationError{Field: param.Name, Message: fmt.Sprintf("below minimum %v", *param.Rules.Min)})
		}
		if param.Rules.Max != nil && n > *param.Rules.Max {
			errs = append(errs, ValidationError{Field: param.Name, Message: fmt.Sprintf("above maximum %v", *param.Rules.Max)})
		}
	case model.PARAM_DATE:
		if !isDate(s) {
			errs = append(errs, ValidationError{Field: param.Name, Message: "not a date"})
		}
	case model.PARAM_CHOICE:
		if len(param.Rules.Choices) > 0 && !contains(param.Rules.Choices, s) {
			errs = append(errs, ValidationError{Field: param.Name, Message: "not an allowed choice"})
		}
	}

	if param.Rules.Pattern != "" {
		re, err := regexp.Compile(param.Rules.Pattern)
		if err != nil {
			errs = append(errs, ValidationError{Field: param.Name, Message: "invalid pattern rule"})
		} else if !re.MatchString(s) {
			errs = append(errs, ValidationError{Field: param.Name, Message: "does not match pattern"})
		}
	}
	if param.Rules.MinLength > 0 && len(s) < param.Rules.MinLength {
		errs = append(errs, ValidationError{Field: param.Name, Message: fmt.Sprintf("shorter than %d characters", param.Rules.MinLength)})
	}
	if param.Rules.MaxLength > 0 && len(s) > param.Rules.MaxLength {
		errs = append(errs, ValidationError{Field: param.Name, Message: fmt.Sprintf("longer than %d characters", param.Rules.MaxLength)})
	}
	if param.Rules.Expr != "" {
		ok, err := evalExpr(param.Rules.Expr, v)
		if err != nil {
			errs = append(errs, ValidationError{Field: param.Name, Message: fmt.Sprintf("rule evaluation failed: %v", err)})
		} else if !ok {
			errs = append(errs, ValidationError{Field: param.Name, Message: "rule expression rejected value"})
		}
	}
	return errs
}

func evalExpr(expr string, value any) (bool, error) {
	vm := goja.New()
	if err := vm.Set("value", value); err != nil {
		return false, err
	}
	res, err := vm.RunString(expr)
	if err != nil {
		return false, err
	}
	return res.ToBoolean(), nil
}

// Placeholder syntaxes accepted in templates: {{name}}, ${name} and
// <name>, plus {$.values.name} jsonpath tokens for structured values.
var (
	curlyRe    = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)
	dollarRe   = regexp.MustCompile(`\$\{(\w+)\}`)
	angleRe    = regexp.MustCompile(`<(\w+)>`)
	jsonpathRe = regexp.MustCompile(`\{(\$\.[^}]+)\}`)
)

func resolve(s string, values map[string]any) (string, error) {
	if s == "" {
		return s, nil
	}
	replace := func(re *regexp.Regexp, in string) string {
		return re.ReplaceAllStringFunc(in, func(m string) string {
			name := re.FindStringSubmatch(m)[1]
			if v, ok := values[name]; ok {
				return Stringify(v)
			}
			return m
		})
	}
	s = replace(curlyRe, s)
	s = replace(dollarRe, s)
	s = replace(angleRe, s)

	var jpErr error
	s = jsonpathRe.ReplaceAllStringFunc(s, func(m string) string {
		path := jsonpathRe.FindStringSubmatch(m)[1]
		doc := map[string]any{"values": values}
		v, err := jsonpath.JsonPathLookup(doc, path)
		if err != nil {
			jpErr = fmt.Errorf("unresolved token %s", m)
			return m
		}
		return Stringify(v)
	})
	if jpErr != nil {
		return "", jpErr
	}

	if m := curlyRe.FindString(s); m != "" {
		return "", fmt.Errorf("unresolved placeholder %s", m)
	}
	if m := dollarRe.FindString(s); m != "" {
		return "", fmt.Errorf("unresolved placeholder %s", m)
	}
	return s, nil
}

func resolveTarget(t *model.Target, values map[string]any) error {
	fields := []*string{&t.Selector, &t.Url, &t.Sheet, &t.Cell, &t.Path, &t.Dest}
	for _, f := range fields {
		v, err := resolve(*f, values)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}

func Stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func toNumber(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func isDate(s string) bool {
	for _, layout := range []string{"2006-01-02", "1/2/2006", "01/02/2006"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func consensusClass(samples []string) string {
	counts := map[string]int{}
	for _, s := range samples {
		counts[detector.ClassifyPayload(s)]++
	}
	best, bestN := detector.CLASS_TEXT, 0
	for class, n := range counts {
		if n > bestN {
			best, bestN = class, n
		}
	}
	return best
}

func paramType(class string) model.ParameterType {
	switch class {
	case detector.CLASS_NUMBER:
		return model.PARAM_NUMBER
	case detector.CLASS_DATE:
		return model.PARAM_DATE
	case detector.CLASS_PATH:
		return model.PARAM_FILE
	default:
		return model.PARAM_TEXT
	}
}
