package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/osteele/liquid"

	"github.com/jadidihosein68/osaconnect/internal/pkg/httputil"
	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
	"github.com/jadidihosein68/osaconnect/internal/service/unsubscribe"
)

const unsubscribePageSource = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{ title | escape }}</title>
<style>body{font-family:sans-serif;max-width:32rem;margin:4rem auto;padding:0 1rem;color:#222}h1{font-size:1.4rem}</style>
</head>
<body>
<h1>{{ title | escape }}</h1>
<p>{{ message | escape }}</p>
</body>
</html>
`

var unsubscribePage = mustParsePage(unsubscribePageSource)

func mustParsePage(src string) *liquid.Template {
	tpl, err := liquid.NewEngine().ParseString(src)
	if err != nil {
		panic(err)
	}
	return tpl
}

func renderUnsubscribePage(w http.ResponseWriter, status int, title, message string) {
	out, err := unsubscribePage.Render(map[string]any{"title": title, "message": message})
	if err != nil {
		log.Printf("[Unsubscribe] page render failed: %v", err)
		http.Error(w, message, status)
		return
	}
	httputil.HTML(w, status, out)
}

// handleUnsubscribePage processes an unsubscribe link click.
//
//	GET /unsubscribe?token=...
func (s *Server) handleUnsubscribePage(w http.ResponseWriter, r *http.Request) {
	res, status, err := s.unsubscribe(r)
	if err != nil {
		title, msg := "Unsubscribe failed", "Something went wrong. Please try again later."
		if status == http.StatusBadRequest {
			title, msg = "Invalid link", "This unsubscribe link is invalid or has expired."
		} else {
			log.Printf("[Unsubscribe] link processing failed: %v", err)
		}
		renderUnsubscribePage(w, status, title, msg)
		return
	}
	renderUnsubscribePage(w, http.StatusOK, "You have been unsubscribed",
		res.Claims.Email+" will no longer receive these emails.")
}

// handleOneClickUnsubscribe serves List-Unsubscribe-Post requests from
// mailbox providers.
//
//	POST /unsubscribe?token=...
func (s *Server) handleOneClickUnsubscribe(w http.ResponseWriter, r *http.Request) {
	_, status, err := s.unsubscribe(r)
	if err != nil {
		if status == http.StatusBadRequest {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "unsubscribed"})
}

func (s *Server) unsubscribe(r *http.Request) (*unsubscribe.Result, int, error) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" && r.Method == http.MethodPost {
		token = strings.TrimSpace(r.PostFormValue("token"))
	}
	if token == "" {
		return nil, http.StatusBadRequest, unsubscribe.ErrInvalidToken
	}

	res, err := s.svc.Unsubscribe.Unsubscribe(r.Context(), token)
	switch {
	case errors.Is(err, unsubscribe.ErrInvalidToken), errors.Is(err, unsubscribe.ErrExpiredToken):
		return nil, http.StatusBadRequest, err
	case err != nil:
		return nil, http.StatusInternalServerError, err
	}
	logger.Info("unsubscribe applied", "org", res.Claims.OrganizationID,
		"email", logger.RedactEmail(res.Claims.Email), "new_suppression", res.NewSuppression,
		"contacts", res.ContactsUpdated)
	return res, http.StatusOK, nil
}
