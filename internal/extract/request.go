package extract

import (
	"net/url"
	"strings"

	"github.com/shehryarbajwa/reelgrab/pkg/models"
)

const platformHost = "instagram.com"

// ParseRequest validates targetURL and decides which capture path applies
func ParseRequest(targetURL string) (models.ExtractionRequest, error) {
	raw := strings.TrimSpace(targetURL)
	if raw == "" {
		return models.ExtractionRequest{}, &InvalidInputError{URL: targetURL, Reason: "empty url"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return models.ExtractionRequest{}, &InvalidInputError{URL: targetURL, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return models.ExtractionRequest{}, &InvalidInputError{URL: targetURL, Reason: "unsupported scheme"}
	}

	host := strings.ToLower(u.Hostname())
	if host != platformHost && !strings.HasSuffix(host, "."+platformHost) {
		return models.ExtractionRequest{}, &InvalidInputError{URL: targetURL, Reason: "not an instagram host"}
	}

	kind := models.KindPost
	if strings.Contains(u.Path, "/reel/") {
		kind = models.KindReel
	}

	return models.ExtractionRequest{TargetURL: raw, Kind: kind}, nil
}
