package render

import (
	"fmt"
	"net/url"
	"strings"
)

const unsubscribePlaceholder = "{{unsubscribe_link}}"

// DefaultFooterText is appended to every email job body.
const DefaultFooterText = "If you no longer wish to receive these emails, you can unsubscribe below."

// LinkBuilder chooses the unsubscribe link for a recipient: the hosted page
// when a base URL is configured, else a mailto to the configured inbox, else
// a mailto to the recipient.
type LinkBuilder struct {
	BaseURL string
	Mailto  string
}

// Link returns the unsubscribe link for email carrying token.
func (b LinkBuilder) Link(token, email string) string {
	if base := strings.TrimRight(b.BaseURL, "/"); base != "" && email != "" && token != "" {
		return base + "/unsubscribe?token=" + url.QueryEscape(token)
	}
	if b.Mailto != "" {
		return fmt.Sprintf("mailto:%s?subject=Unsubscribe&body=%s",
			b.Mailto, url.PathEscape("Please unsubscribe "+email))
	}
	if email != "" {
		return "mailto:" + email + "?subject=Unsubscribe"
	}
	return ""
}

// Button renders link as an HTML unsubscribe button.
func Button(link string) string {
	if link == "" {
		return ""
	}
	return fmt.Sprintf("<a href='%s' style='display:inline-block;margin-top:8px;padding:8px 12px;"+
		"background:#e5e7eb;border-radius:6px;color:#111827;text-decoration:none;'>Unsubscribe</a>", link)
}

// LooksLikeHTML reports whether body should receive an HTML footer.
func LooksLikeHTML(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<p") ||
		strings.Contains(lower, "<div") || strings.Contains(lower, "</")
}

// Email describes one email body to render.
type Email struct {
	CacheKey   string
	Body       string
	FooterHTML string
	FooterText string
}

// RenderEmail substitutes vars into the body and appends the footer. In
// HTML bodies the placeholder becomes an unsubscribe button; the plain text
// footer carries the bare link.
func (r *Renderer) RenderEmail(e Email, vars Vars) string {
	link := vars.UnsubscribeLink
	button := Button(link)
	footerText := e.FooterText
	if footerText == "" {
		footerText = DefaultFooterText
	}

	bodyVars := vars
	if button != "" {
		bodyVars.UnsubscribeLink = button
	}
	body := r.Render(e.CacheKey, e.Body, bodyVars)

	if !LooksLikeHTML(body) {
		if link == "" {
			return body + "\n\n" + footerText
		}
		return body + "\n\n" + footerText + "\n" + link
	}

	footer := footerText + "<br />" + button
	if e.FooterHTML != "" {
		footer = strings.ReplaceAll(e.FooterHTML, unsubscribePlaceholder, button)
		footer = strings.ReplaceAll(footer, "{{ unsubscribe_link }}", button)
		if button != "" && !strings.Contains(footer, link) {
			footer += "<br />" + button
		}
	}
	return body + "<div style='margin-top:16px;font-size:12px;color:#6b7280;'>" + footer + "</div>"
}
