package openai

import (
	"fmt"
	"strings"

	"github.com/docuflow/docuflow/internal/application/port"
)

// buildExtractionPrompt builds the vision prompt for a batch of blocks
func buildExtractionPrompt(blocks []port.BlockSpec) string {
	var sb strings.Builder
	sb.WriteString("Examine this document image and read the value of each field listed below.\n\n")
	sb.WriteString("FIELDS TO EXTRACT:\n")
	for _, b := range blocks {
		label := b.Label
		if label == "" {
			label = b.Key
		}
		fmt.Fprintf(&sb, "- %s: %s (near x=%.0f y=%.0f on the page)\n",
			b.Key, label, b.Region.X, b.Region.Y)
	}
	sb.WriteString(`
Return a JSON object with this exact structure:
{
  "fields": [
    {"key": "string", "value": "string", "confidence": number}
  ]
}

IMPORTANT:
- Read EXACTLY what is printed. Do not guess or make up values.
- confidence is between 0 and 1 and reflects how certain you are.
- If a field is not visible or unreadable, use an empty value and confidence 0.`)
	return sb.String()
}
