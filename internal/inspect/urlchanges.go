package inspect

import (
	"fmt"

	"github.com/wudi/registry/internal/schema"
)

// DetectURLChanges compares subgraph service URLs between two schema sets
// and synthesizes non-breaking change records for every moved service.
func DetectURLChanges(before, after []schema.Input) []Change {
	if len(before) == 0 {
		return nil
	}

	previous := make(map[string]schema.Input, len(before))
	for _, s := range before {
		if s.IsComposite() {
			previous[s.ServiceName] = s
		}
	}
	if len(previous) == 0 {
		return nil
	}

	var changes []Change
	for _, s := range after {
		if !s.IsComposite() {
			continue
		}
		prev, ok := previous[s.ServiceName]
		if !ok || prev.ServiceURL == s.ServiceURL {
			continue
		}

		var message string
		switch {
		case prev.ServiceURL != "" && s.ServiceURL != "":
			message = fmt.Sprintf("[%s] New service url: '%s' (previously: '%s')", s.ServiceName, s.ServiceURL, prev.ServiceURL)
		case s.ServiceURL == "":
			message = fmt.Sprintf("[%s] Service url removed (previously: '%s')", s.ServiceName, prev.ServiceURL)
		default:
			message = fmt.Sprintf("[%s] New service url: '%s' (previously: none)", s.ServiceName, s.ServiceURL)
		}

		changes = append(changes, newChange(ServiceURLChanged, s.ServiceName, message, Dangerous))
	}

	return changes
}
