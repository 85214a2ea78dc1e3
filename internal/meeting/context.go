package meeting

// Placeholder values substituted when a field cannot be derived from the
// record. A Context is never partially undefined.
const (
	UnknownClient = "Unknown Client"
)

// Context is the canonical meeting structure handed to the draft
// generator. It is owned by exactly one pipeline run.
type Context struct {
	ClientOrOrganizer string
	Participants      []string
	DiscussionPoints  []string
	ActionItems       []string
	RawText           string
}

// NewContext returns a fully-populated Context with placeholder values.
func NewContext() Context {
	return Context{
		ClientOrOrganizer: UnknownClient,
		Participants:      []string{},
		DiscussionPoints:  []string{},
		ActionItems:       []string{},
	}
}

// Normalize replaces any missing field with its placeholder so callers
// never observe a nil slice or empty organizer.
func (c Context) Normalize() Context {
	if c.ClientOrOrganizer == "" {
		c.ClientOrOrganizer = UnknownClient
	}
	if c.Participants == nil {
		c.Participants = []string{}
	}
	if c.DiscussionPoints == nil {
		c.DiscussionPoints = []string{}
	}
	if c.ActionItems == nil {
		c.ActionItems = []string{}
	}
	return c
}
