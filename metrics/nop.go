package metrics

// Nop implements Collector without recording anything.
type Nop struct{}

func (Nop) EventSent(string, string)        {}
func (Nop) EventDelivered(string)           {}
func (Nop) EventDropped(string)             {}
func (Nop) EventForwarded(bool)             {}
func (Nop) DecodeFailed()                   {}
func (Nop) ListenerPanicked(string)         {}
func (Nop) FileRotated(string)              {}
func (Nop) FileReopened(string)             {}
func (Nop) BytesWritten(string, int)        {}
func (Nop) CollectorRequest(string, string) {}
