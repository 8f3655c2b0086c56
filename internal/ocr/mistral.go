package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spendshield/internal/resilience"
)

const (
	defaultMistralURL   = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"
)

// Mistral reads PDFs through the Mistral OCR API. Throttling and 5xx
// responses are returned as resilience.TransientError.
type Mistral struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewMistral creates a Mistral reader. Empty model or endpoint use the defaults.
func NewMistral(apiKey, model, endpoint string) *Mistral {
	if model == "" {
		model = defaultMistralModel
	}
	if endpoint == "" {
		endpoint = defaultMistralURL
	}
	return &Mistral{
		apiKey:   apiKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

type mistralRequest struct {
	Model    string          `json:"model"`
	Document mistralDocument `json:"document"`
}

type mistralDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type mistralResponse struct {
	Pages []mistralPage `json:"pages"`
}

type mistralPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// Text uploads the PDF as a data URL and joins the returned pages.
func (m *Mistral) Text(ctx context.Context, pdfPath string) (string, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read PDF %s", pdfPath)
	}

	body, err := json.Marshal(mistralRequest{
		Model: m.model,
		Document: mistralDocument{
			Type:        "document_url",
			DocumentURL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "ocr: marshal mistral request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "ocr: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "ocr: mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "ocr: read mistral response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", resilience.ClassifyStatus(
			eris.Errorf("ocr: mistral API returned %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}

	var parsed mistralResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", eris.Wrap(err, "ocr: unmarshal mistral response")
	}

	pages := make([]string, 0, len(parsed.Pages))
	for _, p := range parsed.Pages {
		pages = append(pages, p.Markdown)
	}
	return strings.Join(pages, "\n\n"), nil
}
