package controllers

import (
	"net/http"

	"github.com/angelmondragon/experiences-backend/api/middleware"
	"github.com/angelmondragon/experiences-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// ServicePing echoes the authenticated calling service.
func ServicePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "service", "status": "ok"}
		if subject := middleware.SubjectFromContext(r.Context()); subject != "" {
			payload["subject"] = subject
		}
		responses.WriteSuccess(w, payload)
	}
}
