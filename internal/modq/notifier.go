package modq

import "context"

// Notification is the payload for one operator-facing moderation item. It is
// constructed once by the scanner and passed by value through to the
// messaging channel.
type Notification struct {
	// Identity is the normalized key the decision will be filed under.
	Identity string

	// DisplayName is the name as extracted, for operator display.
	DisplayName string

	// ExtraInfo is free text from the card (mutual friends, answers), with
	// button captions filtered out.
	ExtraInfo string

	// CardImageKey references the archived card crop, empty if none.
	CardImageKey string

	// PreviewImageKey references the archived post preview, empty if none.
	PreviewImageKey string

	// Unanswered marks applicants who have not completed the group's
	// membership questions.
	Unanswered bool
}

// Notifier delivers moderation items to the human operator. Inbound decisions
// arrive asynchronously through the decision store, not through this
// interface.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
