package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/rtcpeer/internal/core"
)

var _ core.ChannelDriver = (*Driver)(nil)

func (d *Driver) channel(id core.ChannelID) (*webrtc.DataChannel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[id]
	return ch.dc, ok
}

func (d *Driver) ChannelLabel(id core.ChannelID) string {
	if dc, ok := d.channel(id); ok {
		return dc.Label()
	}
	return ""
}

func (d *Driver) ChannelReadyState(id core.ChannelID) core.ChannelState {
	if dc, ok := d.channel(id); ok {
		return channelState(dc.ReadyState())
	}
	return core.ChannelClosed
}

func (d *Driver) ChannelSend(id core.ChannelID, data []byte) error {
	dc, ok := d.channel(id)
	if !ok {
		return fmt.Errorf("rtc: send on channel %d: %w", id, errUnknownChan)
	}
	return dc.Send(data)
}

func (d *Driver) ChannelOnMessage(id core.ChannelID, fn func([]byte)) {
	dc, ok := d.channel(id)
	if !ok {
		return
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (d *Driver) ChannelClose(id core.ChannelID) {
	dc, ok := d.channel(id)
	if !ok {
		return
	}
	if err := dc.Close(); err != nil {
		d.log.Warn().Err(err).Str("label", dc.Label()).Msg("data channel close")
	}
}
