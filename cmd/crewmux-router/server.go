package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/crewmux/crewmux/core/cache"
	"github.com/crewmux/crewmux/core/hub"
	"github.com/crewmux/crewmux/core/infra/config"
	"github.com/crewmux/crewmux/core/tenant"
)

func tenantResolver(layered *cache.Layered, table *config.ChannelTable) *tenant.Resolver {
	return tenant.NewResolver(layered, table)
}

// routeRequest is the JSON body of POST /route.
type routeRequest struct {
	Message        map[string]any `json:"message"`
	ConversationID string         `json:"conversation_id"`
	Channel        string         `json:"channel"`
	AccountID      string         `json:"account_id,omitempty"`
	InboxID        string         `json:"inbox_id,omitempty"`
	HandlerID      string         `json:"handler_id,omitempty"`
	DomainHint     string         `json:"domain_hint,omitempty"`
	AccountHint    string         `json:"account_hint,omitempty"`
}

type invalidateRequest struct {
	Domain    string `json:"domain,omitempty"`
	HandlerID string `json:"handler_id,omitempty"`
}

func newHTTPServer(cfg *config.Config, router *hub.Hub) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /route", func(w http.ResponseWriter, r *http.Request) {
		var req routeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if req.ConversationID == "" {
			writeError(w, http.StatusBadRequest, "conversation_id required")
			return
		}
		result, err := router.Route(r.Context(), hub.Request{
			Message:        req.Message,
			ConversationID: req.ConversationID,
			Channel:        req.Channel,
			AccountID:      req.AccountID,
			InboxID:        req.InboxID,
			HandlerID:      req.HandlerID,
			DomainHint:     req.DomainHint,
			AccountHint:    req.AccountHint,
		})
		if err != nil {
			status := http.StatusInternalServerError
			if hub.ClientCorrectable(err) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("POST /invalidate", func(w http.ResponseWriter, r *http.Request) {
		var req invalidateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if err := router.InvalidateHandlerCache(r.Context(), req.Domain, req.HandlerID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
	})

	return &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HandlerTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
