package recording

import "fmt"

// ChannelType classifies what a channel physically measures.
type ChannelType string

const (
	ChannelSignal    ChannelType = "signal"    // neural data (EEG/MEG)
	ChannelReference ChannelType = "reference" // reference electrode
	ChannelOcular    ChannelType = "ocular"    // EOG
	ChannelCardiac   ChannelType = "cardiac"   // ECG
	ChannelUnknown   ChannelType = "unknown"
)

// ParseChannelType converts a string to a ChannelType.
func ParseChannelType(s string) (ChannelType, error) {
	switch ChannelType(s) {
	case ChannelSignal, ChannelReference, ChannelOcular, ChannelCardiac, ChannelUnknown:
		return ChannelType(s), nil
	}
	return "", fmt.Errorf("unknown channel type %q", s)
}

// Channel describes one sensor in a recording.
type Channel struct {
	Label    string      `json:"label"`
	Type     ChannelType `json:"type"`
	Position *[3]float64 `json:"position,omitempty"` // 3D sensor position, if digitised
}

// ChannelMeta carries optional metadata updates for SetChannelMetadata.
// Zero-valued fields leave the existing value unchanged.
type ChannelMeta struct {
	Label    string
	Type     ChannelType
	Position *[3]float64
}
