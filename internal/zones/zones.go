// Package zones classifies raw container states into the zones and moods
// shown to observers.
package zones

// Zone is the display name of a classification bucket.
type Zone string

const (
	AlphaHall  Zone = "Alpha Hall"
	EchoPlaza  Zone = "Echo Plaza"
	DockerCore Zone = "Docker Core"
	OmegaGate  Zone = "Omega Gate"
	TheVoid    Zone = "The Void"
)

// Mood is the presentational label derived alongside the zone.
type Mood string

const (
	Dreaming    Mood = "dreaming"
	Serene      Mood = "serene"
	Agitated    Mood = "agitated"
	Asleep      Mood = "asleep"
	Silent      Mood = "silent"
	Inscrutable Mood = "inscrutable"
)

type classification struct {
	zone Zone
	mood Mood
}

// Matching is exact and case-sensitive.
var byStatus = map[string]classification{
	"created":    {AlphaHall, Dreaming},
	"running":    {EchoPlaza, Serene},
	"up":         {EchoPlaza, Serene},
	"restarting": {DockerCore, Agitated},
	"paused":     {DockerCore, Asleep},
	"exited":     {OmegaGate, Silent},
	"dead":       {OmegaGate, Silent},
	"stopped":    {OmegaGate, Silent},
}

// Classify maps a container status to its zone and mood.
// Any status not in the table resolves to The Void / inscrutable.
func Classify(status string) (Zone, Mood) {
	if c, ok := byStatus[status]; ok {
		return c.zone, c.mood
	}
	return TheVoid, Inscrutable
}

// Info describes a zone for presentation.
type Info struct {
	Key         string `json:"key" yaml:"key"`
	Name        Zone   `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Emoji       string `json:"emoji" yaml:"emoji"`
}

var catalogue = []Info{
	{Key: "ALPHA_HALL", Name: AlphaHall, Description: "The birthplace of new Echoes, where potential takes form.", Emoji: "✨"},
	{Key: "ECHO_PLAZA", Name: EchoPlaza, Description: "The bustling hub where active Echoes live and interact.", Emoji: "🏙️"},
	{Key: "DOCKER_CORE", Name: DockerCore, Description: "The inner sanctum where the fundamental forces of the Simverse are at work.", Emoji: "⚙️"},
	{Key: "OMEGA_GATE", Name: OmegaGate, Description: "The final gateway, where Echoes prepare to fade into memory.", Emoji: "🚪"},
	{Key: "THE_VOID", Name: TheVoid, Description: "An uncharted space between defined zones.", Emoji: "🌌"},
}

// Catalogue returns every zone in display order. The slice is a copy.
func Catalogue() []Info {
	out := make([]Info, len(catalogue))
	copy(out, catalogue)
	return out
}

// Lookup returns the catalogue entry for a zone name.
func Lookup(z Zone) (Info, bool) {
	for _, info := range catalogue {
		if info.Name == z {
			return info, true
		}
	}
	return Info{}, false
}
