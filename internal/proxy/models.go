package proxy

import (
	"net/http"
	"time"
)

type modelInfo struct {
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type modelList struct {
	Data    []modelInfo `json:"data"`
	HasMore bool        `json:"has_more"`
	FirstID string      `json:"first_id,omitempty"`
	LastID  string      `json:"last_id,omitempty"`
}

// modelsHandler lists the configured upstream models in the Messages API list shape.
// Clients may address any of them directly since they pass through the model mapper
// unchanged.
func modelsHandler(models Models) http.HandlerFunc {
	list := modelList{Data: []modelInfo{}}
	seen := make(map[string]bool)
	for _, id := range []string{models.Big, models.Middle, models.Small} {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		list.Data = append(list.Data, modelInfo{Type: "model", ID: id, DisplayName: id, CreatedAt: time.Unix(0, 0).UTC()})
	}
	if len(list.Data) > 0 {
		list.FirstID = list.Data[0].ID
		list.LastID = list.Data[len(list.Data)-1].ID
	}

	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, list, http.StatusOK)
	}
}
