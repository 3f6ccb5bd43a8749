package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// jsonObject returns the text from the first "{" to the last "}"
func jsonObject(text string) (string, error) {
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}

	return text[startIdx : endIdx+1], nil
}

// parseReceiptInfo parses the JSON object embedded in a model response
func parseReceiptInfo(text string) (ReceiptInfo, error) {
	object, err := jsonObject(text)
	if err != nil {
		return ReceiptInfo{}, err
	}

	var info ReceiptInfo
	if err := json.Unmarshal([]byte(object), &info); err != nil {
		return ReceiptInfo{}, fmt.Errorf("unmarshaling json: %w", err)
	}

	return info, nil
}
