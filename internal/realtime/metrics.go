package realtime

// Metrics receives realtime counters. Connection failures are reported once per failed
// transport attempt; authorization failures are not.
type Metrics interface {
	ConnectionFailure(reason string)
	Connect(result string)
	Event(eventType string)
	Publish(contentType string)
}

type nopMetrics struct{}

func (nopMetrics) ConnectionFailure(string) {}
func (nopMetrics) Connect(string)           {}
func (nopMetrics) Event(string)             {}
func (nopMetrics) Publish(string)           {}
