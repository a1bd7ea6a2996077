package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

var fenceMarkers = regexp.MustCompile("```json|```")

// ParseOutput decodes a backend reply into a mapping. Markdown code-fence
// markers are stripped first, and comments or trailing commas are tolerated.
// Anything that is not a JSON object fails with ErrParse.
func ParseOutput(raw string) (map[string]any, error) {
	cleaned := strings.TrimSpace(fenceMarkers.ReplaceAllString(raw, ""))
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrParse)
	}
	var out map[string]any
	if err := json.Unmarshal(jsonc.ToJSON([]byte(cleaned)), &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: reply is not a JSON object", ErrParse)
	}
	return out, nil
}
