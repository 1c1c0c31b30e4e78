package peer

import (
	"fmt"

	"github.com/dkeye/rtcpeer/internal/core"
)

// DataChannel wraps a driver channel handle. Network readiness is tracked by the driver;
// this type only forwards.
type DataChannel struct {
	id     core.ChannelID
	driver core.ChannelDriver
}

func newDataChannel(id core.ChannelID, driver core.ChannelDriver) *DataChannel {
	return &DataChannel{id: id, driver: driver}
}

func (d *DataChannel) ID() core.ChannelID { return d.id }

func (d *DataChannel) Label() string {
	if d.driver == nil {
		return ""
	}
	return d.driver.ChannelLabel(d.id)
}

func (d *DataChannel) ReadyState() core.ChannelState {
	if d.driver == nil {
		return core.ChannelClosed
	}
	return d.driver.ChannelReadyState(d.id)
}

func (d *DataChannel) Send(data []byte) error {
	if d.driver == nil {
		return fmt.Errorf("peer: send on channel %d: %w", d.id, ErrNoChannel)
	}
	return d.driver.ChannelSend(d.id, data)
}

// OnMessage replaces the message handler. fn runs on a driver goroutine.
func (d *DataChannel) OnMessage(fn func([]byte)) {
	if d.driver != nil {
		d.driver.ChannelOnMessage(d.id, fn)
	}
}

func (d *DataChannel) Close() {
	if d.driver != nil {
		d.driver.ChannelClose(d.id)
	}
}
