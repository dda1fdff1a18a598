package phx

// Binding pairs an event name with the callback invoked when it fires.
type Binding struct {
	Event    string
	Callback func(Message)
}
