package resolver

import "strings"

// preferredAudioCodec is matched as a substring, so "mp4a.40.2" qualifies.
const preferredAudioCodec = "mp4"

// Candidate is one resolved variant offered by the engine for an identifier.
type Candidate struct {
	HasVideoTrack bool
	// AudioCodec is empty when the variant carries no audio codec information.
	AudioCodec string
	// AudioBitrate is in kbit/s; zero when unknown.
	AudioBitrate float64
	URL          string
}

func (c Candidate) eligible() bool {
	return !c.HasVideoTrack &&
		c.AudioCodec != "" &&
		strings.Contains(c.AudioCodec, preferredAudioCodec)
}

// SelectArtifact picks the audio-only mp4 candidate with the highest bitrate.
// The first candidate wins a tie.
func SelectArtifact(candidates []Candidate) (Candidate, error) {
	var (
		best  Candidate
		found bool
	)
	for _, c := range candidates {
		if !c.eligible() {
			continue
		}
		if !found || c.AudioBitrate > best.AudioBitrate {
			best = c
			found = true
		}
	}
	if !found {
		return Candidate{}, ErrNoSuitableFormat
	}
	return best, nil
}
