package models

import (
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/wudi/registry/internal/schema"
)

// serviceNameRejection reports a missing service name, or nil.
func serviceNameRejection(in schema.Input) *Rejection {
	if in.ServiceName != "" {
		return nil
	}
	return &Rejection{
		Code:    ReasonMissingServiceName,
		Message: "Can not publish schema without a service name",
	}
}

// serviceURLRejection reports a missing or unparsable service url, or nil.
func serviceURLRejection(in schema.Input) *Rejection {
	if in.ServiceURL == "" {
		return &Rejection{
			Code:    ReasonMissingServiceURL,
			Message: "Can not publish schema without a service url",
		}
	}
	if !validServiceURL(in.ServiceURL) {
		return &Rejection{
			Code:    ReasonMissingServiceURL,
			Message: "Invalid service URL provided",
		}
	}
	return nil
}

func validServiceURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// urlChange compares the incoming service url against the service's previous
// registration and renders the change notice.
func urlChange(existing *schema.Input, incoming schema.Input) (changed bool, message string) {
	if existing == nil || existing.ServiceURL == incoming.ServiceURL {
		return false, ""
	}
	return true, fmt.Sprintf("[%s] New service url: %s (previously: %s)",
		incoming.ServiceName, orNone(incoming.ServiceURL), orNone(existing.ServiceURL))
}

func orNone(url string) string {
	if url == "" {
		return "none"
	}
	return url
}

// metadataCheck is the outcome of the metadata stage.
type metadataCheck struct {
	Valid    bool
	Modified bool
}

// checkMetadata validates the incoming metadata document and compares its
// canonical hash against the previous registration of the same service.
func checkMetadata(existing *schema.Input, incoming schema.Input) metadataCheck {
	if incoming.MetadataJSON == "" {
		return metadataCheck{Valid: true}
	}
	if !gjson.Valid(incoming.MetadataJSON) {
		return metadataCheck{Valid: false}
	}

	incomingHash := schema.MetadataHash(incoming.MetadataJSON)
	if existing == nil {
		return metadataCheck{Valid: true, Modified: true}
	}
	return metadataCheck{
		Valid:    true,
		Modified: incomingHash != schema.MetadataHash(existing.MetadataJSON),
	}
}

func metadataRejection() Rejection {
	return Rejection{
		Code:    ReasonMetadataParsingFailure,
		Message: "Failed to parse schema metadata JSON",
	}
}
