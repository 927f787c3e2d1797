package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// Notification is one change-notification record pushed by Microsoft Graph.
// It lives only for the duration of the request and the job it spawns.
type Notification struct {
	SubscriptionID string `json:"subscriptionId"`
	ChangeType     string `json:"changeType"`
	ClientState    string `json:"clientState"`
	Resource       string `json:"resource"`
	ResourceData   struct {
		ID string `json:"id"`
	} `json:"resourceData"`
}

type notificationPayload struct {
	Value []Notification `json:"value"`
}

// JobDispatcher hands an authenticated notification to background processing.
type JobDispatcher interface {
	Dispatch(n Notification)
}

// Renewer renews all active subscriptions and reports how many succeeded.
type Renewer interface {
	RenewAll(ctx context.Context) int
}

// UnreadSweeper triages the current unread inbox and reports how many
// messages it picked up.
type UnreadSweeper interface {
	ProcessUnread(ctx context.Context) int
}

// WebhookHandler is the HTTP boundary: the Graph validation handshake,
// notification intake and the scheduler-facing trigger endpoints.
type WebhookHandler struct {
	clientState string
	jobs        JobDispatcher
	renewer     Renewer
	sweeper     UnreadSweeper
}

// NewWebhookHandler creates the gateway handler.
func NewWebhookHandler(clientState string, jobs JobDispatcher, renewer Renewer, sweeper UnreadSweeper) *WebhookHandler {
	return &WebhookHandler{
		clientState: clientState,
		jobs:        jobs,
		renewer:     renewer,
		sweeper:     sweeper,
	}
}

// RegisterRoutes registers the gateway routes.
func (h *WebhookHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/webhook", h.handleWebhook).Methods("POST")
	r.HandleFunc("/renew", h.handleRenew).Methods("POST")
	r.HandleFunc("/process", h.handleProcessUnread).Methods("POST")
	r.HandleFunc("/", h.handleRoot).Methods("GET")
}

// handleWebhook answers the provider's validation handshake and accepts
// notification batches. It must respond within seconds, so authenticated
// records are dispatched to background jobs and the handler returns 202
// without waiting for processing.
func (h *WebhookHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		log.Println("Received validation token handshake.")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(token))
		return
	}

	var payload notificationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("Error decoding webhook payload: %v", err)
		http.Error(w, "Invalid notification payload", http.StatusInternalServerError)
		return
	}

	for _, n := range payload.Value {
		// Records failing the clientState check are dropped silently so an
		// attacker probing the endpoint learns nothing from the response.
		if n.ClientState != h.clientState {
			log.Printf("Received webhook with invalid clientState. Ignoring (subscription %s).", n.SubscriptionID)
			continue
		}
		h.jobs.Dispatch(n)
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleRenew lets an external scheduler renew all active subscriptions,
// authenticated by the shared secret.
func (h *WebhookHandler) handleRenew(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("clientState") != h.clientState {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Unauthorized"))
		return
	}

	count := h.renewer.RenewAll(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "success",
		"renewed": count,
	})
}

// handleProcessUnread triages the current unread inbox on demand, the manual
// fallback for when push delivery is down or notifications were missed.
func (h *WebhookHandler) handleProcessUnread(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("clientState") != h.clientState {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Unauthorized"))
		return
	}

	count := h.sweeper.ProcessUnread(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "success",
		"processed": count,
	})
}

func (h *WebhookHandler) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}
