package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// receiptDateLayouts are the date forms models tend to answer with
var receiptDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
}

// maxTextLen caps free-text fields so a rambling answer cannot bloat the
// draft kept in the session cookie.
const maxTextLen = 120

// parseReceiptJSON extracts ReceiptData from a model answer. Fields the model
// could not read are left at their zero value rather than guessed.
func parseReceiptJSON(text string) (*ReceiptData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	var data ReceiptData
	if err := json.Unmarshal([]byte(text[startIdx:endIdx+1]), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Name = truncate(strings.TrimSpace(data.Name), maxTextLen)
	data.Type = truncate(strings.TrimSpace(data.Type), maxTextLen)
	data.Date = normalizeDate(data.Date)
	if data.Amount < 0 {
		data.Amount = 0
	}
	if data.VAT < 0 || data.VAT > data.Amount {
		data.VAT = 0
	}

	return &data, nil
}

// truncate keeps at most n runes of s
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}

// normalizeDate rewrites s as YYYY-MM-DD, or returns "" when it cannot.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range receiptDateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}
