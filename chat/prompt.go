package chat

import (
	"fmt"
	"time"
)

// Personality modes selectable in settings.
const (
	PersonalityNormal = "normal"
	PersonalityFunny  = "funny"
	PersonalityFormal = "formal"
)

// Creativity levels selectable in settings.
const (
	CreativityHigh = "high"
	CreativityLow  = "low"
)

// personalityPrompts maps each personality mode to its system prompt.
var personalityPrompts = map[string]string{
	PersonalityNormal: "Sen BurakAI Pro'sun. Bilgilendirici ve yardımsever ol.",
	PersonalityFunny:  "Sen çok esprili, zeki ve asla klişe cevaplar vermeyen bir asistansın. Her cevabın özgün olsun.",
	PersonalityFormal: "Resmi ve kurumsal bir dille konuşan bir uzmansın.",
}

// BuildSystemPrompt assembles the system prompt for a completion request from
// the current personality and the current date. Unknown personality modes fall
// back to normal.
func BuildSystemPrompt(s Settings, now time.Time) string {
	prompt, ok := personalityPrompts[s.Personality]
	if !ok {
		prompt = personalityPrompts[PersonalityNormal]
	}
	return fmt.Sprintf("%s Bugün: %s. Kullanıcıyla yeni bir bağ kur, asla önceki şablonlarını kullanma.", prompt, now.Format(time.RFC1123))
}

// TemperatureFor maps the creativity setting to a sampling temperature.
func TemperatureFor(creativity string) float32 {
	if creativity == CreativityHigh {
		return 1.2
	}
	return 0.7
}
