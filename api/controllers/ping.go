package controllers

import (
	"net/http"

	"github.com/grundyhq/grundy-backend/api/middleware"
	"github.com/grundyhq/grundy-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// OperatorPing echoes the authenticated operator back.
func OperatorPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "operator", "status": "ok"}
		if subject := middleware.SubjectFromContext(r.Context()); subject != "" {
			payload["subject"] = subject
		}
		responses.WriteSuccess(w, payload)
	}
}
