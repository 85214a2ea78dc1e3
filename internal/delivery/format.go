package delivery

import (
	"fmt"
	"strings"

	"github.com/COG-GTM/fireflies-agent/internal/meeting"
	"github.com/COG-GTM/fireflies-agent/internal/transcript"
)

// ErrorMarker prefixes every error notice so operators can grep failed
// runs out of channel history.
const ErrorMarker = ":warning: [followup-agent]"

// FormatDraft renders a success message: meeting metadata header, the
// client/organizer highlighted, then the draft body set off from the
// surrounding chrome.
func FormatDraft(t *transcript.Transcript, mctx meeting.Context, body string) string {
	var b strings.Builder

	b.WriteString("📧 *Draft Follow-up Email Generated*\n\n")

	title := t.Title
	if title == "" {
		title = "Meeting"
	}
	fmt.Fprintf(&b, "*Meeting:* %s\n", title)
	fmt.Fprintf(&b, "*Client:* %s\n", mctx.ClientOrOrganizer)

	if t.DateString != "" {
		fmt.Fprintf(&b, "*Date:* %s\n", t.DateString)
	}
	if t.Duration > 0 {
		fmt.Fprintf(&b, "*Duration:* %d minutes\n", int(t.Duration/60))
	}
	if t.TranscriptURL != "" {
		fmt.Fprintf(&b, "*Transcript:* <%s|View in Fireflies>\n", t.TranscriptURL)
	}

	b.WriteString("\n---\n\n*Email Draft:*\n\n")
	b.WriteString(body)
	b.WriteString("\n\n---\n\n_Generated automatically. Edit as needed before sending._")

	return b.String()
}

// FormatErrorNotice renders the visible failure message posted when a
// pipeline run exhausts its retries.
func FormatErrorNotice(eventID, stage string, cause error) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s Follow-up draft failed for event `%s`\n", ErrorMarker, eventID)
	fmt.Fprintf(&b, "*Stage:* %s\n", stage)
	if cause != nil {
		fmt.Fprintf(&b, "*Reason:* %s\n", cause.Error())
	}
	b.WriteString("_No draft was produced. Check service logs for details._")

	return b.String()
}

// SplitMessage breaks content into chunks under Slack's message length
// limit, preferring line boundaries.
func SplitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
