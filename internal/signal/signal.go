// signal serializes the negotiation artifact that the two humans
// exchange out-of-band. There is no signaling server: the encoded
// string travels by clipboard or QR code, so it has to survive being
// pasted into a text field.
package signal

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformed is returned when a pasted string is not a valid artifact.
	ErrMalformed = errors.New("malformed artifact")
	// ErrIncomplete is returned when an artifact decodes but is missing
	// required fields.
	ErrIncomplete = errors.New("incomplete artifact")
)

// Candidate is one network reachability descriptor discovered during
// ICE gathering. The fields mirror what the browser and pion both
// produce for a candidate, so either side can re-apply them.
type Candidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// Artifact is one side's session description plus every candidate it
// gathered. The host's artifact carries an offer, the joiner's an
// answer; the envelope does not distinguish the two.
type Artifact struct {
	Description string      `json:"offer"`
	Candidates  []Candidate `json:"ice_candidates"`
}

// Encode serializes the artifact into a single clipboard and QR safe
// string. Encoding is deterministic; a failure here means the JSON
// backend itself broke and is not part of normal control flow.
func Encode(a Artifact) (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to marshal artifact: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode parses a pasted string back into an artifact. This is the one
// untrusted input boundary in the subsystem: the string was typed or
// pasted by a human and may be anything. Decode never panics; it
// returns an error wrapping ErrMalformed on bad syntax and
// ErrIncomplete when the description is absent.
func Decode(s string) (Artifact, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Artifact{}, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: invalid base64: %v", ErrMalformed, err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("%w: invalid json: %v", ErrMalformed, err)
	}

	if a.Description == "" {
		return Artifact{}, fmt.Errorf("%w: missing session description", ErrIncomplete)
	}

	return a, nil
}
