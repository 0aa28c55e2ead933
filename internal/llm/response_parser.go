package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidResponse is returned when a model reply cannot be used.
var ErrInvalidResponse = errors.New("invalid model response")

// EmotionResponse is the JSON object the emotion classification prompt asks for.
type EmotionResponse struct {
	PrimaryEmotion string             `json:"primary_emotion"`
	Confidence     float64            `json:"confidence"`
	Intensity      float64            `json:"intensity"`
	Emotions       map[string]float64 `json:"emotions,omitempty"`
}

// extractJSON extracts the first valid JSON object from a string that may contain extra text.
// This handles cases where LLMs add explanations before/after the JSON despite instructions.
func extractJSON(text string) string {
	// Remove common markdown code block markers
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	// Try to find JSON object boundaries
	start := strings.Index(text, "{")
	if start == -1 {
		return text // No JSON found, return as-is and let parser fail
	}

	// Find the matching closing brace
	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		// Handle string escaping
		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}

		// Track if we're inside a string
		if char == '"' {
			inString = !inString
			continue
		}

		// Only count braces outside of strings
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					// Found complete JSON object, return it
					return text[start : i+1]
				}
			}
		}
	}

	return text // No complete JSON found, return as-is
}

// ParseEmotionResponse parses an emotion classification reply. The reply may
// wrap the JSON object in prose or markdown fences. Scores outside [0,1] are
// clamped; a missing label or non-finite number is an error.
//
// Parameters:
//   - jsonStr: text returned by the model
//
// Returns:
//   - EmotionResponse with a lowercased primary emotion
//   - Error wrapping ErrInvalidResponse if parsing or validation fails
func ParseEmotionResponse(jsonStr string) (*EmotionResponse, error) {
	cleanJSON := extractJSON(jsonStr)

	var response EmotionResponse
	if err := json.Unmarshal([]byte(cleanJSON), &response); err != nil {
		return nil, fmt.Errorf("%w: failed to parse emotion JSON: %v", ErrInvalidResponse, err)
	}

	response.PrimaryEmotion = strings.ToLower(strings.TrimSpace(response.PrimaryEmotion))
	if response.PrimaryEmotion == "" {
		return nil, fmt.Errorf("%w: primary_emotion is empty", ErrInvalidResponse)
	}

	var err error
	if response.Confidence, err = unitScore("confidence", response.Confidence); err != nil {
		return nil, err
	}
	if response.Intensity, err = unitScore("intensity", response.Intensity); err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(response.Emotions))
	for name, v := range response.Emotions {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if scores[name], err = unitScore("emotions."+name, v); err != nil {
			return nil, err
		}
	}
	if _, ok := scores[response.PrimaryEmotion]; !ok {
		scores[response.PrimaryEmotion] = response.Confidence
	}
	response.Emotions = scores

	return &response, nil
}

func unitScore(field string, v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s is not a finite number", ErrInvalidResponse, field)
	}
	return math.Max(0, math.Min(1, v)), nil
}
