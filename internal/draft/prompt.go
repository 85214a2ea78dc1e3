package draft

import (
	"fmt"
	"strings"

	"github.com/COG-GTM/fireflies-agent/internal/meeting"
)

const systemPrompt = `You are an executive assistant helping to draft a professional follow-up email after a business meeting.

Your task is to create a substantive, professional follow-up email that:

1. PERSONALIZATION:
   - Use a personalized greeting with the primary contact's name if identifiable
   - Reference the specific meeting date/day if mentioned
   - Acknowledge the relationship context (e.g., "Thank you again for your time")

2. SUBSTANTIVE SUMMARY:
   - Extract and summarize the KEY BUSINESS POINTS discussed, not generic pleasantries
   - Include specific details: numbers, percentages, technologies, company names, constraints
   - Organize the summary into clear thematic sections if multiple topics were discussed

3. ACTION ITEMS AND NEXT STEPS:
   - Clearly state any commitments made by either party
   - Include specific next steps with clear asks
   - If licenses, demos, or follow-up meetings were discussed, mention them explicitly

4. TONE AND FORMAT:
   - Warm but professional tone
   - Do NOT use bold formatting or markdown
   - Do NOT use bullet points in the email body - write in flowing paragraphs
   - Keep the email focused and substantive (aim for 200-400 words depending on meeting complexity)

IMPORTANT: Extract REAL content from the meeting context. Do not generate generic placeholder text.`

const simplifiedPrompt = `Draft a short, professional follow-up email for a meeting with %s.

Topics discussed: %s
Action items: %s

Plain paragraphs, no markdown, warm but professional tone.`

// BuildEmailPrompt assembles the single generation prompt: canonical
// meeting fields, the filtered discussion, and reference templates as
// style exemplars (never filled verbatim).
func BuildEmailPrompt(mctx meeting.Context, discussion []string, techTerms []string, templates []string) string {
	var b strings.Builder

	b.WriteString(systemPrompt)
	b.WriteString("\n\nMeeting Details:\n")
	fmt.Fprintf(&b, "- Client/Organizer: %s\n", mctx.ClientOrOrganizer)
	fmt.Fprintf(&b, "- Participants: %s\n", orFallback(strings.Join(mctx.Participants, ", "), "Not specified"))
	fmt.Fprintf(&b, "- Key Topics: %s\n", orFallback(strings.Join(mctx.DiscussionPoints, ", "), "Extract from discussion"))
	fmt.Fprintf(&b, "- Action Items: %s\n", orFallback(strings.Join(mctx.ActionItems, ", "), "Extract from discussion"))

	if len(techTerms) > 0 {
		fmt.Fprintf(&b, "- Technologies/Tools Mentioned: %s\n", strings.Join(techTerms, ", "))
	}

	b.WriteString("\nDiscussion Points (filtered for substantive content):\n")
	if len(discussion) == 0 {
		b.WriteString(orFallback(mctx.RawText, "No discussion content available"))
		b.WriteString("\n")
	} else {
		for _, line := range discussion {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nBased on the above, generate a professional follow-up email. Extract specific details, names, technologies, and commitments. Do not use generic placeholder text.\n")

	if len(templates) > 0 {
		b.WriteString("\nUse the following template(s) as a loose structural guide (adapt based on actual content):\n")
		for _, tmpl := range templates {
			b.WriteString("\n---\n")
			b.WriteString(tmpl)
			b.WriteString("\n")
		}
	}

	return b.String()
}

// BuildSimplifiedPrompt is the fallback after a model refusal: a minimal
// prompt without transcript content or templates.
func BuildSimplifiedPrompt(mctx meeting.Context) string {
	return fmt.Sprintf(simplifiedPrompt,
		mctx.ClientOrOrganizer,
		orFallback(strings.Join(mctx.DiscussionPoints, "; "), "general business discussion"),
		orFallback(strings.Join(mctx.ActionItems, "; "), "none recorded"),
	)
}

func orFallback(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
