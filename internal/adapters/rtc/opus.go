package rtc

import (
	"fmt"
	"math"

	"layeh.com/gopus"
)

// Opus over WebRTC is 48 kHz stereo; frames are 20 ms.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize  = opusSampleRate * opusFrameSizeMs / 1000 // 960
	opusMaxPacket  = 4000
	opusMaxDecoded = opusFrameSize * 6 // 120 ms, the longest Opus packet
)

type opusEncoder struct {
	enc *gopus.Encoder
}

func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("rtc: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encode encodes one frame of interleaved stereo PCM.
func (e *opusEncoder) encode(pcm []int16) ([]byte, error) {
	out, err := e.enc.Encode(pcm, opusFrameSize, opusMaxPacket)
	if err != nil {
		return nil, fmt.Errorf("rtc: opus encode: %w", err)
	}
	return out, nil
}

type opusDecoder struct {
	dec *gopus.Decoder
}

func newOpusDecoder() (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("rtc: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec}, nil
}

// decode returns interleaved stereo PCM.
func (d *opusDecoder) decode(packet []byte) ([]int16, error) {
	pcm, err := d.dec.Decode(packet, opusMaxDecoded, false)
	if err != nil {
		return nil, fmt.Errorf("rtc: opus decode: %w", err)
	}
	return pcm, nil
}

func floatToPCM(v float32) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(float64(v) * math.MaxInt16))
}

func pcmToFloat(s int16) float32 {
	return float32(s) / math.MaxInt16
}
