package blinddate

import "regexp"

// detector names one family of personally-identifying text the filter
// rejects while a match is still anonymized.
type detector struct {
	kind string
	re   *regexp.Regexp
}

var detectors = []detector{
	{kind: "phone", re: regexp.MustCompile(`\+\d{8,15}\b|\b\d{10}\b|\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`)},
	{kind: "email", re: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{kind: "handle", re: regexp.MustCompile(`(?i)@[a-z0-9_.]{2,30}|\b(ig|insta|snap(?:chat)?|telegram|tg|whatsapp|wa|tiktok|twitter|x)\s*[:@]\s*[a-z0-9_.]{2,30}`)},
	{kind: "url", re: regexp.MustCompile(`(?i)(https?://|www\.)\S+|\b(instagram\.com|snapchat\.com|t\.me|wa\.me|tiktok\.com|twitter\.com|x\.com|facebook\.com|fb\.com)/\S+`)},
}

// PIIResult is the filter's value-typed, side-effect-free verdict.
type PIIResult struct {
	Allowed       bool
	BlockedReason string
	DetectedTypes []string
}

// FilterMessage is a pure function over a message string: deterministic
// regex matching, no I/O. Run on every outbound message while a blind-date
// match's status is active.
func FilterMessage(text string) PIIResult {
	var detected []string
	for _, d := range detectors {
		if d.re.MatchString(text) {
			detected = append(detected, d.kind)
		}
	}
	if len(detected) == 0 {
		return PIIResult{Allowed: true}
	}
	return PIIResult{
		Allowed:       false,
		BlockedReason: "message contains personally-identifying information",
		DetectedTypes: detected,
	}
}
