/*
Package receipt turns OCR output into a claim tuple.

The digitization boundary hands back a list of {text, confidence} lines and a
detected total. This package derives the {amount, receiptNumber, date,
category, description} tuple that feeds claim submission exactly as if a human
had typed it:

  - amount: the largest currency-looking token on lines near a
    total/amount/paid keyword (falling back to the detected total, then to
    the largest currency token anywhere)
  - receipt number: the first alphanumeric token following a receipt/order/
    invoice keyword
  - date: first match of the common date patterns
  - category: keyword guess, defaulting to "other"

Low-confidence lines are ignored entirely.
*/
package receipt

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Line is one OCR output line.
type Line struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Parsed is the claim tuple derived from a receipt.
type Parsed struct {
	Amount        decimal.Decimal
	ReceiptNumber string
	Date          time.Time
	Category      string
	Description   string
}

// minConfidence drops OCR lines too garbled to trust.
const minConfidence = 0.4

var (
	currencyRe = regexp.MustCompile(`\$?\s*(\d{1,6}(?:,\d{3})*(?:\.\d{1,2})?)`)
	tokenRe    = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9-]{2,}`)

	totalKeywords   = []string{"total", "amount", "paid", "balance due"}
	receiptKeywords = []string{"receipt", "order", "invoice", "ref", "transaction"}

	datePatterns = []string{"2006-01-02", "01/02/2006", "1/2/2006", "01/02/06", "Jan 2, 2006", "02 Jan 2006"}
	dateRe       = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4}|[A-Z][a-z]{2} \d{1,2}, \d{4}|\d{2} [A-Z][a-z]{2} \d{4}`)
)

var categoryKeywords = map[string][]string{
	"transport": {"transit", "metro", "bus", "train", "bike"},
	"energy":    {"electric", "energy", "solar", "utility", "kwh"},
	"food":      {"market", "grocery", "cafe", "organic", "farm"},
	"recycling": {"recycl", "compost", "deposit"},
}

// Parse derives the claim tuple from OCR lines. detectedTotal may be zero
// when the OCR process could not find one.
func Parse(lines []Line, detectedTotal float64) Parsed {
	var usable []string
	for _, l := range lines {
		if l.Confidence >= minConfidence && strings.TrimSpace(l.Text) != "" {
			usable = append(usable, strings.TrimSpace(l.Text))
		}
	}

	p := Parsed{
		Amount:   parseAmount(usable, detectedTotal),
		Category: parseCategory(usable),
	}
	p.ReceiptNumber = parseReceiptNumber(usable)
	p.Date = parseDate(usable)
	if len(usable) > 0 {
		p.Description = usable[0]
	}
	return p
}

func parseAmount(lines []string, detectedTotal float64) decimal.Decimal {
	best := decimal.Zero
	keyworded := false

	for _, line := range lines {
		lower := strings.ToLower(line)
		nearKeyword := false
		for _, kw := range totalKeywords {
			if strings.Contains(lower, kw) {
				nearKeyword = true
				break
			}
		}
		if keyworded && !nearKeyword {
			continue // already have keyword evidence, ignore weaker lines
		}
		for _, m := range currencyRe.FindAllStringSubmatch(line, -1) {
			raw := strings.ReplaceAll(m[1], ",", "")
			v, err := decimal.NewFromString(raw)
			if err != nil {
				continue
			}
			if nearKeyword && !keyworded {
				// First keyword hit resets the candidate set.
				best = v
				keyworded = true
				continue
			}
			if v.GreaterThan(best) {
				best = v
			}
		}
	}

	if best.IsZero() && detectedTotal > 0 {
		return decimal.NewFromFloat(detectedTotal)
	}
	return best
}

func parseReceiptNumber(lines []string) string {
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, kw := range receiptKeywords {
			idx := strings.Index(lower, kw)
			if idx < 0 {
				continue
			}
			rest := line[idx+len(kw):]
			for _, tok := range tokenRe.FindAllString(rest, -1) {
				// Skip keyword remnants like "number" and "no".
				t := strings.ToLower(tok)
				if t == "number" || t == "num" {
					continue
				}
				if strings.ContainsAny(tok, "0123456789") {
					return tok
				}
			}
		}
	}
	return ""
}

func parseDate(lines []string) time.Time {
	for _, line := range lines {
		match := dateRe.FindString(line)
		if match == "" {
			continue
		}
		for _, pattern := range datePatterns {
			if t, err := time.Parse(pattern, match); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

func parseCategory(lines []string) string {
	joined := strings.ToLower(strings.Join(lines, " "))
	for category, kws := range categoryKeywords {
		for _, kw := range kws {
			if strings.Contains(joined, kw) {
				return category
			}
		}
	}
	return "other"
}

// Credits converts a detected receipt total into a suggested point preview
// for the UI, at least 1 when a total exists.
func Credits(total float64, rate float64) int {
	if total <= 0 {
		return 0
	}
	credits := int(total * rate)
	if credits < 1 {
		credits = 1
	}
	return credits
}
