package hecwriter

import (
	"strconv"

	"github.com/abyssdigger/lgrbus"
)

// EventBody is the event object built by EventTransformer.
type EventBody struct {
	Level    string         `json:"level"`
	Rank     int64          `json:"rank"`
	Logger   string         `json:"logger,omitempty"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
	PID      int            `json:"pid"`
	WorkerID int            `json:"workerId,omitempty"`
	Location string         `json:"location,omitempty"`
}

// EventTransformer turns events into payloads whose event object is an
// EventBody; the data arguments are rendered with lgrbus.FormatArgs.
func EventTransformer() lgrbus.Transformer[Payload] {
	return func(ev *lgrbus.Event, _ string, _ any) Payload {
		body := EventBody{
			Level:   ev.Level().Name(),
			Rank:    ev.Level().Rank(),
			Logger:  ev.LoggerName(),
			Message: lgrbus.FormatArgs(ev.Data()...),
			Context: ev.Context(),
			PID:     ev.PID(),
		}
		if len(body.Context) == 0 {
			body.Context = nil
		}
		if c := ev.Cluster(); c != nil {
			body.WorkerID = c.WorkerID
			body.PID = c.PID
		}
		if loc := ev.Location(); loc != nil && loc.FileName != "" {
			body.Location = loc.FileName + ":" + strconv.Itoa(loc.LineNumber)
		}
		return Payload{
			Time:  float64(ev.StartTime().UnixMilli()) / 1000,
			Event: body,
		}
	}
}
