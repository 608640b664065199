package providers

import (
	"net/http"
	"os"
	"strings"

	"github.com/c360studio/agora/analysis"
)

// OpenRouterProvider implements the OpenRouter API. OpenRouter speaks the
// OpenAI wire format, so the request/response handling is shared with
// OllamaProvider; only the URL and auth differ.
type OpenRouterProvider struct {
	OllamaProvider
}

func init() {
	analysis.RegisterProvider(&OpenRouterProvider{})
}

// Name returns the provider identifier.
func (o *OpenRouterProvider) Name() string {
	return "openrouter"
}

// BuildURL constructs the OpenRouter API endpoint.
func (o *OpenRouterProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}

	return baseURL + "/chat/completions"
}

// SetHeaders adds OpenRouter authentication and attribution headers.
func (o *OpenRouterProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("OPENROUTER_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	// OpenRouter uses these for app attribution and ranking.
	if siteURL := os.Getenv("OPENROUTER_SITE_URL"); siteURL != "" {
		req.Header.Set("HTTP-Referer", siteURL)
	}
	if siteName := os.Getenv("OPENROUTER_SITE_NAME"); siteName != "" {
		req.Header.Set("X-Title", siteName)
	}
}
