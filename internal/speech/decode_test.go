package speech

import (
	"encoding/binary"
	"errors"
	"testing"
)

func wav(rate, channels int, samples ...int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	buf := make([]byte, 44+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(rate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(rate*channels*2))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}

func samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func TestDecodeWAVMonoToStereo(t *testing.T) {
	pcm, err := Decode(wav(44100, 1, 100, -200), 44100, 2)
	if err != nil {
		t.Fatal(err)
	}
	got := samples(pcm)
	want := []int16{100, 100, -200, -200}
	if len(got) != len(want) {
		t.Fatalf("samples = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("samples = %v, want %v", got, want)
		}
	}
}

func TestDecodeWAVStereoToMono(t *testing.T) {
	pcm, err := Decode(wav(16000, 2, 100, 300), 16000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := samples(pcm); len(got) != 1 || got[0] != 200 {
		t.Fatalf("samples = %v", got)
	}
}

func TestDecodeResamples(t *testing.T) {
	in := make([]int16, 240)
	pcm, err := Decode(wav(24000, 1, in...), 48000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(samples(pcm)); n != 480 {
		t.Fatalf("resampled to %d samples, want 480", n)
	}
}

func TestDecodeRejectsUnknown(t *testing.T) {
	if _, err := Decode([]byte("<html>oops</html>"), 44100, 2); !errors.Is(err, ErrUnsupportedAudio) {
		t.Fatalf("err = %v", err)
	}
}

func TestDecodeRejectsNonPCMWAV(t *testing.T) {
	w := wav(8000, 1, 1, 2)
	binary.LittleEndian.PutUint16(w[20:22], 6) // A-law
	if _, err := Decode(w, 8000, 1); !errors.Is(err, ErrUnsupportedAudio) {
		t.Fatalf("err = %v", err)
	}
}

func TestIsMP3(t *testing.T) {
	if !isMP3([]byte("ID3\x04\x00")) || !isMP3([]byte{0xFF, 0xFB, 0x90}) {
		t.Fatal("mp3 headers not detected")
	}
	if isMP3([]byte("RIFF")) {
		t.Fatal("wav detected as mp3")
	}
}
