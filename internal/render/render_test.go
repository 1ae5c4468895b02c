package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testVars() Vars {
	return Vars{
		FirstName:       "Jane",
		LastName:        "van Dyke",
		FullName:        "Jane van Dyke",
		CompanyName:     "Acme",
		UnsubscribeLink: "https://connect.example.com/unsubscribe?token=abc",
	}
}

func TestRenderPlaceholders(t *testing.T) {
	r := NewRenderer()
	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"compact", "Hi {{first_name}} from {{company_name}}", "Hi Jane from Acme"},
		{"spaced", "Dear {{ full_name }}", "Dear Jane van Dyke"},
		{"last", "{{last_name}}", "van Dyke"},
		{"no placeholders", "plain text", "plain text"},
		{"unknown var renders empty", "Hi {{nickname}}!", "Hi !"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Render("", tt.tmpl, testVars()))
		})
	}
}

func TestRenderFallsBackOnParseError(t *testing.T) {
	r := NewRenderer()
	got := r.Render("", "Hi {{first_name}} {% broken", testVars())
	assert.Equal(t, "Hi Jane {% broken", got)
}

func TestRenderCaches(t *testing.T) {
	r := NewRenderer()
	assert.Equal(t, "Hi Jane", r.Render("job-1", "Hi {{first_name}}", testVars()))
	// Cached template wins over a different source for the same key.
	assert.Equal(t, "Hi Jane", r.Render("job-1", "ignored {{last_name}}", testVars()))
}

func TestLinkBuilder(t *testing.T) {
	assert.Equal(t, "https://c.example.com/unsubscribe?token=a.1.ff",
		LinkBuilder{BaseURL: "https://c.example.com/", Mailto: "opt@example.com"}.Link("a.1.ff", "x@y.co"))
	assert.Equal(t, "mailto:opt@example.com?subject=Unsubscribe&body=Please%20unsubscribe%20x@y.co",
		LinkBuilder{Mailto: "opt@example.com"}.Link("tok", "x@y.co"))
	assert.Equal(t, "mailto:x@y.co?subject=Unsubscribe", LinkBuilder{}.Link("tok", "x@y.co"))
	assert.Equal(t, "", LinkBuilder{}.Link("", ""))
}

func TestRenderEmailHTMLFooter(t *testing.T) {
	r := NewRenderer()
	got := r.RenderEmail(Email{Body: "<p>Hello {{first_name}}</p>"}, testVars())

	assert.True(t, strings.HasPrefix(got, "<p>Hello Jane</p><div"))
	assert.Contains(t, got, DefaultFooterText)
	assert.Contains(t, got, "href='https://connect.example.com/unsubscribe?token=abc'")
	assert.Equal(t, 1, strings.Count(got, ">Unsubscribe</a>"))
}

func TestRenderEmailCustomFooter(t *testing.T) {
	r := NewRenderer()

	withPlaceholder := r.RenderEmail(Email{
		Body:       "<p>Hi</p>",
		FooterHTML: "Acme Ltd. {{unsubscribe_link}}",
	}, testVars())
	assert.Contains(t, withPlaceholder, "Acme Ltd. <a href=")
	assert.Equal(t, 1, strings.Count(withPlaceholder, ">Unsubscribe</a>"))

	without := r.RenderEmail(Email{Body: "<p>Hi</p>", FooterHTML: "Acme Ltd."}, testVars())
	assert.Contains(t, without, "Acme Ltd.<br /><a href=")
}

func TestRenderEmailPlainText(t *testing.T) {
	r := NewRenderer()
	got := r.RenderEmail(Email{Body: "Hello {{first_name}}", FooterText: "Bye."}, testVars())
	assert.Equal(t, "Hello Jane\n\nBye.\nhttps://connect.example.com/unsubscribe?token=abc", got)
}

func TestRenderEmailBodyPlaceholderBecomesButton(t *testing.T) {
	r := NewRenderer()
	got := r.RenderEmail(Email{Body: "<div>Leave: {{unsubscribe_link}}</div>"}, testVars())
	assert.Contains(t, got, "<div>Leave: <a href=")
}
