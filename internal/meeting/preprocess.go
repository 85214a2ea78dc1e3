package meeting

import (
	"regexp"
	"strings"

	"github.com/COG-GTM/fireflies-agent/internal/transcript"
)

// fillerRegex matches low-content conversational filler so it never
// reaches the prompt.
var fillerRegex = regexp.MustCompile(`(?i)^(okay|ok|yeah|yes|no|hi|hello|hey|bye|cool|sure|right|so|um|uh|hmm|ah|oh|thank you|thanks|good|great|awesome|nice|perfect|i see|i think|i mean|you know)\.?$`)

const (
	minSubstantiveLen = 10
	fillerCheckLen    = 15

	// maxDiscussionSentences caps how much transcript goes into the
	// prompt, keeping it bounded for long meetings.
	maxDiscussionSentences = 300
)

var knownTechTerms = []string{
	"AI", "ChatGPT", "Claude", "Cursor", "Copilot", "GitHub", "Azure", "DevOps",
	"AWS", "GCP", "Jira", "Devin", "Windsurf", "SaaS", "API", "GraphQL",
	"Python", "JavaScript", "TypeScript", "React", "Node", "Docker", "Kubernetes",
}

func isFillerSentence(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) < fillerCheckLen {
		return fillerRegex.MatchString(text)
	}
	return false
}

func isSubstantiveSentence(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) < minSubstantiveLen {
		return false
	}
	return !isFillerSentence(text)
}

// SubstantiveSentences returns speaker-attributed sentence texts with
// filler filtered out, preserving transcript order.
func SubstantiveSentences(sentences []transcript.Sentence) []string {
	result := make([]string, 0, len(sentences))
	for _, s := range sentences {
		text := strings.TrimSpace(s.Text)
		if !isSubstantiveSentence(text) {
			continue
		}
		if s.SpeakerName != "" {
			result = append(result, s.SpeakerName+": "+text)
		} else {
			result = append(result, text)
		}
	}
	return result
}

// KeyDiscussion selects up to max substantive sentences for the prompt.
// max <= 0 applies the default cap.
func KeyDiscussion(sentences []transcript.Sentence, max int) []string {
	if max <= 0 {
		max = maxDiscussionSentences
	}
	substantive := SubstantiveSentences(sentences)
	if len(substantive) > max {
		substantive = substantive[:max]
	}
	return substantive
}

// TechnologyTerms spots known technology mentions in the transcript text.
// Crude keyword matching, but the draft prompt only uses it as a hint.
func TechnologyTerms(text string) []string {
	lower := strings.ToLower(text)
	found := make([]string, 0, 4)
	for _, term := range knownTechTerms {
		if strings.Contains(lower, strings.ToLower(term)) {
			found = append(found, term)
		}
	}
	return found
}
