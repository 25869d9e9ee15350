package envelope

import (
	"encoding/json"
	"net/http"
)

// Response is the body shape of every API response.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Write sends a successful envelope.
func Write(w http.ResponseWriter, status int, message string, data any) {
	if data == nil {
		data = map[string]any{}
	}
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

// Error sends a failed envelope. code goes into data.error; details are merged
// alongside it so callers can act on amounts, balances or retry hints.
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	data := make(map[string]any, len(details)+2)
	for k, v := range details {
		data[k] = v
	}
	data["error"] = code

	traceID := w.Header().Get("X-Trace-ID")
	if traceID == "" && r != nil {
		traceID = r.Header.Get("X-Trace-ID")
	}
	if traceID != "" {
		data["traceId"] = traceID
	}

	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, Response{Success: false, Message: message, Data: data})
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
