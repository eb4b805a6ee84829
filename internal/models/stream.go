// ABOUTME: StreamEvent is one element of a streamed answer
// ABOUTME: A stream carries deltas followed by exactly one terminal event
package models

// StreamEvent is either a delta, the finished marker, or an error marker
type StreamEvent struct {
	Delta    string `json:"delta,omitempty"`
	Finished bool   `json:"finished,omitempty"`
	Err      error  `json:"-"`
}

// IsTerminal reports whether the event ends the stream
func (e StreamEvent) IsTerminal() bool {
	return e.Finished || e.Err != nil
}
