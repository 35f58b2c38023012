package analyzer

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/guglxni/quotefusion/internal/model"
)

// rawJudgement is the strict-JSON shape the prompt asks the model for.
// Models are inconsistent about "summary" vs "insight" for the free-text
// field, so both are accepted; summary wins when both are present.
type rawJudgement struct {
	Summary        string   `json:"summary"`
	Insight        string   `json:"insight"`
	Confidence     *float64 `json:"confidence"`
	Recommendation string   `json:"recommendation"`
	ProcessedPrice *float64 `json:"processed_price"`
}

var (
	fieldStringPattern = `"%s"\s*:\s*"([^"]*)"`
	fieldNumberPattern = `"%s"\s*:\s*([0-9]*\.?[0-9]+)`
)

// parseJudgement strips any fenced code block, attempts a strict JSON
// parse, and falls back to per-field regex extraction on failure. The
// result is not yet normalized; the caller applies Judgement.Normalize.
func parseJudgement(text string, raw model.RawRecord) model.Judgement {
	clean := stripFencedCodeBlock(text)

	var parsed rawJudgement
	if err := json.Unmarshal([]byte(clean), &parsed); err == nil {
		insight := parsed.Summary
		if insight == "" {
			insight = parsed.Insight
		}
		confidence := 0.7
		if parsed.Confidence != nil {
			confidence = *parsed.Confidence
		}
		processedPrice := raw.PriceUSD
		if parsed.ProcessedPrice != nil {
			processedPrice = *parsed.ProcessedPrice
		}
		return model.Judgement{
			Insight:        insight,
			Confidence:     confidence,
			Recommendation: model.Recommendation(strings.ToUpper(parsed.Recommendation)),
			ProcessedPrice: processedPrice,
			Raw:            raw,
		}
	}

	insight := extractString(clean, "summary")
	if insight == "" {
		insight = extractString(clean, "insight")
	}
	return model.Judgement{
		Insight:        insight,
		Confidence:     extractNumberOr(clean, "confidence", 0.7),
		Recommendation: model.Recommendation(strings.ToUpper(extractString(clean, "recommendation"))),
		ProcessedPrice: extractNumberOr(clean, "processed_price", raw.PriceUSD),
		Raw:            raw,
	}
}

// stripFencedCodeBlock removes a leading/trailing ```json ... ``` or ``` ...
// ``` wrapper, returning the interior text unchanged if no fence is found.
func stripFencedCodeBlock(text string) string {
	s := strings.TrimSpace(text)
	if !strings.Contains(s, "```") {
		return s
	}
	const jsonFence = "```json"
	start := strings.Index(s, jsonFence)
	if start >= 0 {
		s = s[start+len(jsonFence):]
	} else if start = strings.Index(s, "```"); start >= 0 {
		s = s[start+3:]
	}
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

func extractString(text, key string) string {
	re := regexp.MustCompile(fieldStringPatternFor(key))
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func extractNumberOr(text, key string, fallback float64) float64 {
	re := regexp.MustCompile(fieldNumberPatternFor(key))
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return fallback
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return fallback
	}
	return v
}

func fieldStringPatternFor(key string) string {
	return replaceKey(fieldStringPattern, key)
}

func fieldNumberPatternFor(key string) string {
	return replaceKey(fieldNumberPattern, key)
}

func replaceKey(pattern, key string) string {
	return strings.Replace(pattern, "%s", regexp.QuoteMeta(key), 1)
}
