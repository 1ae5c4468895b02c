package domain

import (
	"fmt"
	"strings"
)

// Channel identifies an outbound medium.
type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelEmail     Channel = "email"
	ChannelTelegram  Channel = "telegram"
	ChannelInstagram Channel = "instagram"
)

// Channels lists every supported channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelWhatsApp, ChannelEmail, ChannelTelegram, ChannelInstagram}
}

// ParseChannel normalizes s and rejects anything outside the closed set.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unsupported channel: %q", s)
	}
	return c, nil
}

// Valid reports whether c is one of the supported channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelEmail, ChannelTelegram, ChannelInstagram:
		return true
	}
	return false
}

// Provider returns the integration provider key holding the credentials
// used to send on this channel.
func (c Channel) Provider() string {
	switch c {
	case ChannelEmail:
		return ProviderSendGrid
	default:
		return string(c)
	}
}

// Integration provider keys.
const (
	ProviderWhatsApp       = "whatsapp"
	ProviderSendGrid       = "sendgrid"
	ProviderTelegram       = "telegram"
	ProviderInstagram      = "instagram"
	ProviderGoogleCalendar = "google_calendar"
	ProviderElevenLabs     = "elevenlabs"
)
