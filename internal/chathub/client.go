package chathub

// Client is a connected front-end (WebSocket, Telegram) owned by one
// participant. The hub keeps at most one client per participant.
type Client interface {
	// GetParticipantID returns the participant the client acts for.
	GetParticipantID() string

	// Run starts the client's pumps. It must not block.
	Run()
	// Close tears down the connection and its subscriptions. Safe to call twice.
	Close()
}
