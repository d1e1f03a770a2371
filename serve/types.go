package serve

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SendRequest is the body of POST /api/chats/{id}/messages.
type SendRequest struct {
	Message string `json:"message"`
	// Model selects the persona: "yui", "heathcliff" or "auto".
	Model string `json:"model,omitempty"`
	// Workspace is optional editor context forwarded to the agent.
	Workspace string `json:"workspace,omitempty"`
}

// SendResponse carries the synchronous reply.
type SendResponse struct {
	Reply string `json:"reply"`
}

// JobResponse is the async submission acknowledgement.
type JobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// CapabilitiesResponse reports which load-gated features are currently
// enabled, so clients degrade before hitting a denial.
type CapabilitiesResponse struct {
	Preview    bool `json:"preview"`
	Watchers   bool `json:"watchers"`
	Planner    bool `json:"planner"`
	HeavyAgent bool `json:"heavy_agent"`
	Energy     int  `json:"energy"`
	EnergyLow  bool `json:"energy_low"`
}

// StatsResponse is the operational snapshot.
type StatsResponse struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	Jobs          any     `json:"jobs,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
