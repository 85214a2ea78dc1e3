package transcript

// Transcript is the full meeting record returned by the transcript
// provider, or a bare RawText wrapper in legacy message mode.
type Transcript struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Date             int64      `json:"date"`
	DateString       string     `json:"dateString"`
	Duration         float64    `json:"duration"`
	OrganizerEmail   string     `json:"organizer_email"`
	HostEmail        string     `json:"host_email"`
	Participants     []string   `json:"participants"`
	MeetingAttendees []Attendee `json:"meeting_attendees"`
	Sentences        []Sentence `json:"sentences"`
	Summary          *Summary   `json:"summary"`
	TranscriptURL    string     `json:"transcript_url"`

	// RawText carries the original message text in legacy channel-message
	// mode, where no remote fetch happens.
	RawText string `json:"-"`
}

type Attendee struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Name        string `json:"name"`
}

type Sentence struct {
	SpeakerName string  `json:"speaker_name"`
	Text        string  `json:"text"`
	StartTime   float64 `json:"start_time"`
}

type Summary struct {
	ActionItems     []string `json:"action_items"`
	Overview        string   `json:"overview"`
	Keywords        []string `json:"keywords"`
	TopicsDiscussed []string `json:"topics_discussed"`
}

// IsStructured reports whether the provider supplied a pre-computed
// summary, which selects the pass-through extraction strategy.
func (t *Transcript) IsStructured() bool {
	return t != nil && t.Summary != nil
}

// AttendeeNames returns display names with per-attendee fallbacks.
func (t *Transcript) AttendeeNames() []string {
	names := make([]string, 0, len(t.MeetingAttendees))
	for _, a := range t.MeetingAttendees {
		switch {
		case a.DisplayName != "":
			names = append(names, a.DisplayName)
		case a.Name != "":
			names = append(names, a.Name)
		case a.Email != "":
			names = append(names, a.Email)
		}
	}
	return names
}
