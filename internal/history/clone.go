package history

import "github.com/roach88/ngat/internal/kernel"

func cloneMap(m map[string]any) map[string]any {
	return kernel.CloneState(m)
}

func cloneEvent(e Event) Event {
	e.Data = cloneMap(e.Data)
	e.Before = cloneMap(e.Before)
	e.After = cloneMap(e.After)
	return e
}
