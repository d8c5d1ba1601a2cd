package aacdecoder

// AAC-LC audio object type.
const objectTypeAACLC = 2

// defaultFrequencyIndex selects 44100 Hz for unlisted rates.
const defaultFrequencyIndex = 4

var samplingFrequencies = []int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000,
}

// FrequencyIndex returns the sampling_frequency_index for a rate, falling
// back to 44100 Hz.
func FrequencyIndex(sampleRate int) int {
	for i, f := range samplingFrequencies {
		if f == sampleRate {
			return i
		}
	}
	return defaultFrequencyIndex
}

// BuildASC builds a two-byte AAC-LC AudioSpecificConfig. Channel counts
// above 7 are clamped to the largest channel configuration.
func BuildASC(sampleRate, channels int) []byte {
	if channels > 7 {
		channels = 7
	}
	if channels < 0 {
		channels = 0
	}
	idx := FrequencyIndex(sampleRate)
	asc := objectTypeAACLC<<11 | idx<<7 | channels<<3
	return []byte{byte(asc >> 8), byte(asc)}
}

// outputChannels maps a channel configuration to a PCM channel count.
func outputChannels(chanConfig byte) int {
	switch {
	case chanConfig == 7:
		return 8
	case chanConfig == 0:
		return 2
	default:
		return int(chanConfig)
	}
}
