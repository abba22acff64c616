package ws

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

func newConnID() string {
	return uuid.NewString()
}

// tokenFromRequest reads the bearer token from the Authorization header, or
// the token query parameter browsers fall back to.
func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// conversationIDFrom accepts either "id" or {"conversationId": "id"}.
func conversationIDFrom(raw json.RawMessage) string {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var body struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		return strings.TrimSpace(body.ConversationID)
	}
	return ""
}
