package ws

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"

	"messaging-service/internal/visibility"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

func others(participants []string, self string) []string {
	self = visibility.NormalizeID(self)
	out := make([]string, 0, len(participants))
	for _, id := range visibility.NormalizeIDs(participants) {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
