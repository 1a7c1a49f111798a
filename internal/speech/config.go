// Package speech plays bot replies aloud: it synthesizes text through the
// backend (or Azure), decodes the returned WAV/MP3, and plays it through
// the default output device, one reply at a time.
package speech

// Output format the player opens the device with. Decoded audio is
// converted to this format before playback.
const (
	DefaultSampleRate = 44100
	DefaultChannels   = 2
	BitDepth          = 16
)

// Azure defaults. The Egyptian Arabic voice matches the backend's dialect.
// Full list: https://learn.microsoft.com/en-us/azure/ai-services/speech-service/language-support
const (
	DefaultAzureVoice  = "ar-EG-SalmaNeural"
	DefaultAzureLang   = "ar-EG"
	DefaultAzureFormat = "riff-44khz-16bit-mono-pcm"
)

// Env var names for Azure Speech credentials.
const (
	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"
)
