package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rahul/wayfarer/internal/plan"
)

// Field is a visible form field as measured in the page. The page tags it
// with data-wayfarer-field=Index.
type Field struct {
	Index       int    `json:"index"`
	Tag         string `json:"tag"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder"`
	AriaLabel   string `json:"ariaLabel"`
}

func (f Field) Selector() string {
	return `[data-wayfarer-field="` + strconv.Itoa(f.Index) + `"]`
}

// Label is the most readable name of the field for logs.
func (f Field) Label() string {
	for _, s := range []string{f.Name, f.ID, f.Placeholder} {
		if s != "" {
			return s
		}
	}
	return "field"
}

func (f Field) isToggle() bool {
	return f.Type == "checkbox" || f.Type == "radio"
}

type valueRule struct {
	keywords []string
	value    string
}

// valueRules are checked in order against the field's type, name, id,
// placeholder and aria-label.
var valueRules = []valueRule{
	{[]string{"email", "correo"}, "usuario.prueba@example.com"},
	{[]string{"nombre", "name"}, "Usuario Prueba"},
	{[]string{"apellido", "last"}, "Apellido Prueba"},
	{[]string{"telefono", "phone", "tel"}, "123456789"},
	{[]string{"mensaje", "message", "comment"}, "Este es un mensaje de prueba generado automáticamente."},
	{[]string{"direccion", "address"}, "Calle de Prueba 123"},
	{[]string{"ciudad", "city"}, "Ciudad de Prueba"},
	{[]string{"pais", "country"}, "España"},
	{[]string{"codigo", "postal", "zip"}, "28001"},
	{[]string{"contraseña", "password"}, "Contraseña123!"},
}

// FieldValue picks the test value typed into a text-like field.
func FieldValue(f Field) string {
	if f.Type == "email" {
		return valueRules[0].value
	}
	hint := strings.ToLower(strings.Join([]string{f.Type, f.Name, f.ID, f.Placeholder, f.AriaLabel}, " "))
	for _, r := range valueRules {
		for _, k := range r.keywords {
			if strings.Contains(hint, k) {
				return r.value
			}
		}
	}
	if f.Type == "text" {
		return "Texto de prueba"
	}
	return "Datos de prueba"
}

type submitTarget struct {
	selector   string
	buttonText string
}

// submitTargets are tried in order after at least one field was filled.
var submitTargets = []submitTarget{
	{selector: `button[type="submit"]`},
	{selector: `input[type="submit"]`},
	{buttonText: "Enviar"},
	{buttonText: "Submit"},
	{buttonText: "Continuar"},
	{buttonText: "Continue"},
	{selector: ".btn-primary"},
	{selector: ".submit-button"},
}

type formHandler struct{ e *Executor }

func (h *formHandler) Name() plan.StepType { return plan.StepForm }

func (h *formHandler) Description() string {
	return "Fill the visible form fields with test data and submit the form."
}

func (h *formHandler) Parameters() map[string]any {
	return map[string]any{}
}

func (h *formHandler) Execute(ctx context.Context, c *Call) (Outcome, error) {
	c.Run.logf("Filling form")

	var fields []Field
	if err := c.Driver.Evaluate(ctx, script(ScriptFormFields, formFieldsJS), &fields); err != nil {
		return Outcome{}, fmt.Errorf("failed to inspect form fields: %w", err)
	}

	filled := 0
	for _, f := range fields {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		if f.isToggle() {
			if h.e.opts.CheckboxPolicy == CheckboxRandom && h.e.chance() > 0.5 {
				if err := c.Driver.Click(ctx, f.Selector(), h.e.opts.ClickTimeout); err != nil {
					c.Run.logf("Could not check %s: %v", f.Label(), err)
					continue
				}
				filled++
				c.Run.logf("Checked: %s", f.Label())
			}
			continue
		}
		if f.Tag == "select" {
			c.Run.logf("Skipping select field %s", f.Label())
			continue
		}

		value := FieldValue(f)
		if err := c.Driver.Fill(ctx, f.Selector(), value); err != nil {
			c.Run.logf("Could not fill field: %v", err)
			continue
		}
		filled++
		c.Run.logf("Field filled: %s = %q", f.Label(), value)
	}

	if filled > 0 {
		if h.submit(ctx, c) {
			c.Run.logf("Form submitted")
			h.e.waitIdle(ctx, c.Driver)
		}
	}
	return Outcome{Message: fmt.Sprintf("Form completed with %d fields", filled)}, nil
}

func (h *formHandler) submit(ctx context.Context, c *Call) bool {
	var buttons []Element
	for _, t := range submitTargets {
		if t.selector != "" {
			var visible bool
			err := c.Driver.Evaluate(ctx, script(ScriptVisible, visibleJS, t.selector), &visible)
			if err != nil || !visible {
				continue
			}
			if err := c.Driver.Click(ctx, t.selector, h.e.opts.ClickTimeout); err == nil {
				return true
			}
			continue
		}

		if buttons == nil {
			els, err := h.e.interactive(ctx, c.Driver)
			if err != nil {
				continue
			}
			buttons = make([]Element, 0, len(els))
			for _, el := range els {
				if el.Tag == "button" {
					buttons = append(buttons, el)
				}
			}
		}
		for _, b := range MatchText(buttons, t.buttonText) {
			if err := h.e.clickElement(ctx, c.Driver, b); err == nil {
				return true
			}
		}
	}
	return false
}
