package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedAudio is returned for payloads that are neither WAV nor MP3.
var ErrUnsupportedAudio = errors.New("unsupported audio format")

// Decode converts an encoded clip (16-bit PCM WAV or MP3) into 16-bit
// little-endian PCM at the requested rate and channel count.
func Decode(audio []byte, sampleRate, channels int) ([]byte, error) {
	var (
		pcm      []byte
		srcRate  int
		srcChans int
		err      error
	)

	switch {
	case isWAV(audio):
		pcm, srcRate, srcChans, err = decodeWAV(audio)
	case isMP3(audio):
		pcm, srcRate, err = decodeMP3(audio)
		srcChans = 2 // go-mp3 always produces stereo
	default:
		return nil, ErrUnsupportedAudio
	}
	if err != nil {
		return nil, err
	}

	pcm = convertChannels(pcm, srcChans, channels)
	if srcRate != sampleRate {
		pcm = resample(pcm, channels, srcRate, sampleRate)
	}
	return pcm, nil
}

func isWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

func isMP3(b []byte) bool {
	if len(b) >= 3 && string(b[0:3]) == "ID3" {
		return true
	}
	// MPEG frame sync: 11 set bits.
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0
}

// decodeWAV walks the RIFF chunks for "fmt " and "data".
func decodeWAV(wav []byte) (pcm []byte, rate, channels int, err error) {
	bits := 0
	pos := 12
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return nil, 0, 0, errors.New("wav fmt chunk too short")
			}
			if format := binary.LittleEndian.Uint16(wav[body : body+2]); format != 1 {
				return nil, 0, 0, fmt.Errorf("%w: wav encoding %d", ErrUnsupportedAudio, format)
			}
			channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			rate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(wav[body+14 : body+16]))
		case "data":
			if rate == 0 {
				return nil, 0, 0, errors.New("wav data chunk before fmt chunk")
			}
			if bits != BitDepth {
				return nil, 0, 0, fmt.Errorf("%w: %d-bit wav", ErrUnsupportedAudio, bits)
			}
			end := body + size
			if end > len(wav) || size == 0 {
				// Streamed WAVs often carry a placeholder size.
				end = len(wav)
			}
			return wav[body:end], rate, channels, nil
		}

		pos = body + size
		if size%2 != 0 {
			pos++
		}
	}
	return nil, 0, 0, errors.New("data chunk not found in wav")
}

func decodeMP3(data []byte) ([]byte, int, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("opening mp3: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, 0, fmt.Errorf("decoding mp3: %w", err)
	}
	return pcm, d.SampleRate(), nil
}

// convertChannels maps between mono and stereo 16-bit frames.
func convertChannels(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return pcm
	}
	frames := len(pcm) / (2 * from)
	out := make([]byte, frames*2*to)

	for f := 0; f < frames; f++ {
		var sum int
		for c := 0; c < from; c++ {
			sum += int(int16(binary.LittleEndian.Uint16(pcm[(f*from+c)*2:])))
		}
		sample := uint16(int16(sum / from))
		for c := 0; c < to; c++ {
			binary.LittleEndian.PutUint16(out[(f*to+c)*2:], sample)
		}
	}
	return out
}

// resample converts the sample rate with linear interpolation. Good
// enough for speech.
func resample(pcm []byte, channels, from, to int) []byte {
	if from <= 0 || to <= 0 || channels <= 0 {
		return pcm
	}
	inFrames := len(pcm) / (2 * channels)
	if inFrames == 0 {
		return nil
	}
	outFrames := int(int64(inFrames) * int64(to) / int64(from))
	out := make([]byte, outFrames*2*channels)

	sample := func(frame, ch int) float64 {
		if frame >= inFrames {
			frame = inFrames - 1
		}
		return float64(int16(binary.LittleEndian.Uint16(pcm[(frame*channels+ch)*2:])))
	}

	step := float64(from) / float64(to)
	for f := 0; f < outFrames; f++ {
		pos := float64(f) * step
		i := int(pos)
		frac := pos - float64(i)
		for ch := 0; ch < channels; ch++ {
			v := sample(i, ch)*(1-frac) + sample(i+1, ch)*frac
			binary.LittleEndian.PutUint16(out[(f*channels+ch)*2:], uint16(int16(v)))
		}
	}
	return out
}
