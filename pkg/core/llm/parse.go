package llm

import (
	"encoding/json"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
	"github.com/rotisserie/eris"

	"lineitem_engine/pkg/core/validate"
)

// noMatchWords are answers models give instead of empty strings.
var noMatchWords = map[string]bool{"": true, "none": true, "null": true, "n/a": true}

// ParseMatch decodes a model answer. It tries plain JSON, then a repaired
// version, then Hjson. A nil match means the model declined.
func ParseMatch(raw string) (*validate.Match, error) {
	text := stripFence(raw)
	var m validate.Match
	if err := decode(text, &m); err != nil {
		return nil, err
	}
	m.MatchedLabel = strings.TrimSpace(m.MatchedLabel)
	m.MatchedTag = strings.TrimSpace(m.MatchedTag)
	if noMatchWords[strings.ToLower(m.MatchedLabel)] && noMatchWords[strings.ToLower(m.MatchedTag)] {
		return nil, nil
	}
	return &m, nil
}

func decode(text string, m *validate.Match) error {
	if err := json.Unmarshal([]byte(text), m); err == nil {
		return nil
	}
	if repaired, err := jsonrepair.RepairJSON(text); err == nil {
		if err := json.Unmarshal([]byte(repaired), m); err == nil {
			return nil
		}
	}
	var loose map[string]interface{}
	if err := hjson.Unmarshal([]byte(text), &loose); err == nil {
		if data, err := json.Marshal(loose); err == nil {
			if err := json.Unmarshal(data, m); err == nil {
				return nil
			}
		}
	}
	return eris.New("llm: unparsable match response")
}

// stripFence removes a surrounding ``` or ```json block.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[") {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
