// Package render performs placeholder substitution for outbound bodies and
// builds the email footer with its unsubscribe link.
//
// Templates are parsed with Liquid so {{ first_name }} and {{first_name}}
// both work. A body Liquid cannot parse falls back to literal replacement
// of the known placeholders.
package render

import (
	"log"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Vars are the recipient fields available to templates.
type Vars struct {
	FirstName       string
	LastName        string
	FullName        string
	CompanyName     string
	UnsubscribeLink string
}

func (v Vars) bindings() map[string]any {
	return map[string]any{
		"first_name":       v.FirstName,
		"last_name":        v.LastName,
		"full_name":        v.FullName,
		"company_name":     v.CompanyName,
		"unsubscribe_link": v.UnsubscribeLink,
	}
}

func (v Vars) replacer() *strings.Replacer {
	pairs := make([]string, 0, 20)
	for k, val := range v.bindings() {
		s := val.(string)
		pairs = append(pairs, "{{"+k+"}}", s, "{{ "+k+" }}", s)
	}
	return strings.NewReplacer(pairs...)
}

// Renderer substitutes placeholders, caching parsed templates by key.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer.
func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Render substitutes vars into tmpl. cacheKey may be empty to skip caching.
func (r *Renderer) Render(cacheKey, tmpl string, vars Vars) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}

	var tpl *liquid.Template
	if cacheKey != "" {
		if cached, ok := r.cache.Load(cacheKey); ok {
			tpl = cached.(*liquid.Template)
		}
	}
	if tpl == nil {
		parsed, err := r.engine.ParseString(tmpl)
		if err != nil {
			log.Printf("[Render] parse error, using literal substitution: %v", err)
			return vars.replacer().Replace(tmpl)
		}
		tpl = parsed
		if cacheKey != "" {
			r.cache.Store(cacheKey, tpl)
		}
	}

	out, err := tpl.RenderString(vars.bindings())
	if err != nil {
		log.Printf("[Render] render error, using literal substitution: %v", err)
		return vars.replacer().Replace(tmpl)
	}
	return out
}
