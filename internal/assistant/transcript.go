package assistant

import (
	"encoding/json"
	"strings"

	"github.com/locallink/locallink-backend/pkg/enums"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// InlineData carries a base64 attachment (reference images, audio).
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

func (p Part) empty() bool {
	return p.Text == "" && (p.InlineData == nil || p.InlineData.Data == "")
}

// Turn is one transcript entry as the client holds it.
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Sequence coerces a client transcript into strict user/model alternation.
// Any role other than model counts as user, empty parts are dropped, a
// leading model turn is discarded and consecutive same-role turns merge.
func Sequence(history []Turn) []Turn {
	out := make([]Turn, 0, len(history))
	for _, turn := range history {
		role := RoleUser
		if turn.Role == RoleModel {
			role = RoleModel
		}

		parts := make([]Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			if p.Text != "" {
				parts = append(parts, Part{Text: p.Text})
				continue
			}
			if !p.empty() {
				parts = append(parts, Part{InlineData: p.InlineData})
			}
		}
		if len(parts) == 0 {
			continue
		}

		if len(out) == 0 {
			if role == RoleUser {
				out = append(out, Turn{Role: role, Parts: parts})
			}
			continue
		}
		last := &out[len(out)-1]
		if last.Role == role {
			last.Parts = append(last.Parts, parts...)
			continue
		}
		out = append(out, Turn{Role: role, Parts: parts})
	}
	return out
}

// Summary is the finalized request the assistant emits once the customer
// confirms.
type Summary struct {
	Finalized       bool           `json:"finalized"`
	Summary         string         `json:"summary"`
	Category        enums.Category `json:"category"`
	SelectedImageID string         `json:"selectedImageId,omitempty"`
}

// ParseSummary extracts the JSON block spanning the first '{' to the last
// '}' of a reply. The category is coerced onto the known set. ok is false
// when no block parses.
func ParseSummary(text string) (Summary, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Summary{}, false
	}

	var raw struct {
		Finalized       bool   `json:"finalized"`
		Summary         string `json:"summary"`
		Category        string `json:"category"`
		SelectedImageID string `json:"selectedImageId"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return Summary{}, false
	}

	out := Summary{
		Finalized:       raw.Finalized,
		Summary:         strings.TrimSpace(raw.Summary),
		SelectedImageID: raw.SelectedImageID,
	}
	if raw.Category != "" {
		out.Category = enums.NormalizeCategory(raw.Category)
	}
	return out, true
}
