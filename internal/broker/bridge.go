package broker

// Bridge lets the gui goroutine ask the event loop for the current
// datacenter state. The loop services at most one request per tick, so
// all state reads still happen in event-loop context.
type Bridge struct {
	StateRequestStream chan struct{}
	StateStream        chan string
}

func NewBridge() *Bridge {
	return &Bridge{
		StateRequestStream: make(chan struct{}, 1),
		StateStream:        make(chan string, 1),
	}
}

// ServeBridge attaches the bridge; pass nil to detach.
func (dc *Datacenter) ServeBridge(bridge *Bridge) {
	dc.bridge = bridge
}

func (dc *Datacenter) serveBridgeRequest() {
	if dc.bridge == nil {
		return
	}

	select {
	case <-dc.bridge.StateRequestStream:
		dc.bridge.StateStream <- dc.Display()
	default:
	}
}
