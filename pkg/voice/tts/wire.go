package tts

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// controlFrame is a decoded inbound JSON message: either a control frame
// ({isFinal}, error detail) or base64 audio, or both.
type controlFrame struct {
	audio       []byte
	final       bool
	serverError string
}

func parseControlFrame(data []byte) (controlFrame, bool) {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return controlFrame{}, false
	}

	var out controlFrame
	for _, key := range []string{"error", "message", "detail"} {
		if v := decodeString(msg[key]); v != "" {
			out.serverError = v
			break
		}
	}

	if audioB64 := decodeString(msg["audio"]); audioB64 != "" {
		if audio, err := decodeBase64Any(audioB64); err == nil {
			out.audio = audio
		} else {
			out.serverError = "invalid audio base64"
		}
	}

	out.final = decodeBool(msg["isFinal"]) || decodeBool(msg["is_final"])
	return out, true
}

func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func decodeBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var out bool
	if err := json.Unmarshal(raw, &out); err != nil {
		return false
	}
	return out
}

// decodeBase64Any accepts the encodings providers actually emit: standard
// base64 with or without padding, and the URL-safe variants.
func decodeBase64Any(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}
