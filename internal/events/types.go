package events

// Event enumerates topics published inside the executor.
type Event string

const (
	// EventAlertUpdate carries the full alert after every ledger write.
	EventAlertUpdate Event = "alert.update"
	// EventSettingsUpdate carries the new TradingConfig after a change.
	EventSettingsUpdate Event = "settings.update"
)

// Message is the envelope written to UI subscribers.
type Message struct {
	Type Event `json:"type"`
	Data any   `json:"data"`
}
