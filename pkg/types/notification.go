package types

// Notification is a fire-and-forget message handed to the notification sink.
// Delivery failures never roll back the operation that produced it.
type Notification struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}
