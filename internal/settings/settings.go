// Package settings models the run settings document the control panel sends
// to the backend before each run. The JSON shape matches what the backend's
// settings writer expects, field for field.
package settings

import (
	"fmt"
	"strings"
)

// Modes and levels the backend's text library is organized by.
var (
	Modes  = []string{"vocab", "scenario"}
	Levels = []string{"A1", "A2", "B1", "B2"}

	// BaseLangs seeds the language list before capability discovery runs.
	BaseLangs = []string{"en", "fr", "de", "es", "it", "pt", "hi", "zh-cn", "ru", "lb"}

	TTSProviders = []string{"gtts", "elevenlabs", "piper"}
	LLMProviders = []string{"openai", "ollama"}

	openAIModels = []string{"gpt-4o-mini", "gpt-4o", "gpt-5"}
)

// Free-edition allowances, mirrored from the backend gate so warnings can
// surface before the run instead of buried in save warnings.
const (
	FreeTTSProvider = "gtts"
	FreeLLMModel    = "gpt-4o-mini"
)

// Settings is the full run configuration. Zero values are not useful;
// start from Default().
type Settings struct {
	Edition string `json:"edition"`
	Mode    string `json:"mode"`
	Level   string `json:"level"`
	// TextFile is the backend-side input file; ignored when UseLLM is set.
	TextFile string `json:"text_file"`

	LangCodes        []string `json:"lang_codes"`
	PrimaryLangIdx   int      `json:"primary_lang_idx"`
	SecondaryLangIdx int      `json:"secondary_lang_idx"`
	EnableBilingual  bool     `json:"enable_bilingual"`

	// Repeat counts and pause lengths (ms), one block per mode.
	VocabPrimary   int `json:"vocab_primary"`
	VocabSecondary int `json:"vocab_secondary"`
	VocabPauseRep  int `json:"vocab_pause_rep"`
	VocabPauseSent int `json:"vocab_pause_sent"`
	ScenPrimary    int `json:"scen_primary"`
	ScenSecondary  int `json:"scen_secondary"`
	ScenPauseRep   int `json:"scen_pause_rep"`
	ScenPauseSent  int `json:"scen_pause_sent"`

	// Per-role speech provider routing.
	TTSPrimary   string `json:"tts_primary"`
	TTSSecondary string `json:"tts_secondary"`

	BGMode    string `json:"bg_mode"`
	BGEnabled bool   `json:"bg_enabled"`
	VideoSize string `json:"video_size"`
	VideoFPS  int    `json:"video_fps"`

	UseLLM      bool   `json:"use_llm"`
	LLMProvider string `json:"llm_provider"`
	LLMModel    string `json:"llm_model"`
	LLMTopic    string `json:"llm_topic"`
	// ItemsOverride selects LLMItemsBasic over EstimatedItems.
	ItemsOverride  bool `json:"items_override"`
	LLMItemsBasic  int  `json:"llm_items_basic"`
	EstimatedItems int  `json:"estimated_items"`
}

// Default returns the settings the original panel form started with.
func Default() Settings {
	return Settings{
		Edition:          "free",
		Mode:             "vocab",
		Level:            "A1",
		TextFile:         "sample.txt",
		LangCodes:        append([]string(nil), BaseLangs...),
		PrimaryLangIdx:   0,
		SecondaryLangIdx: 1,
		EnableBilingual:  true,
		VocabPrimary:     1,
		VocabSecondary:   2,
		VocabPauseRep:    2500,
		VocabPauseSent:   2500,
		ScenPrimary:      1,
		ScenSecondary:    2,
		ScenPauseRep:     2500,
		ScenPauseSent:    3500,
		TTSPrimary:       "gtts",
		TTSSecondary:     "gtts",
		BGMode:           "per_sentence",
		BGEnabled:        true,
		VideoSize:        "1920x1080",
		VideoFPS:         30,
		LLMProvider:      "openai",
		LLMModel:         "gpt-4o-mini",
		ItemsOverride:    false,
		LLMItemsBasic:    20,
		EstimatedItems:   20,
	}
}

// Items returns the item count the run will actually use.
func (s Settings) Items() int {
	if s.ItemsOverride {
		return s.LLMItemsBasic
	}
	return s.EstimatedItems
}

// PrimaryLang returns the primary language code, defaulting to "en" when the
// index is out of range.
func (s Settings) PrimaryLang() string {
	return s.langAt(s.PrimaryLangIdx, "en")
}

// SecondaryLang returns the secondary language code, defaulting to "fr".
func (s Settings) SecondaryLang() string {
	return s.langAt(s.SecondaryLangIdx, "fr")
}

func (s Settings) langAt(idx int, fallback string) string {
	if idx >= 0 && idx < len(s.LangCodes) {
		return strings.ToLower(s.LangCodes[idx])
	}
	return fallback
}

// Validate checks the same ranges the panel form enforced.
func (s Settings) Validate() error {
	if !contains(Modes, s.Mode) {
		return fmt.Errorf("invalid mode %q: must be %s", s.Mode, strings.Join(Modes, " or "))
	}
	if !contains(Levels, s.Level) {
		return fmt.Errorf("invalid level %q: must be one of %s", s.Level, strings.Join(Levels, ", "))
	}
	if s.Edition != "free" && s.Edition != "premium" {
		return fmt.Errorf("invalid edition %q: must be free or premium", s.Edition)
	}
	if len(s.LangCodes) == 0 {
		return fmt.Errorf("at least one language code is required")
	}
	if s.PrimaryLangIdx < 0 || s.PrimaryLangIdx >= len(s.LangCodes) {
		return fmt.Errorf("primary language index %d out of range (%d languages)", s.PrimaryLangIdx, len(s.LangCodes))
	}
	if s.SecondaryLangIdx < 0 || s.SecondaryLangIdx >= len(s.LangCodes) {
		return fmt.Errorf("secondary language index %d out of range (%d languages)", s.SecondaryLangIdx, len(s.LangCodes))
	}
	if s.EnableBilingual && s.PrimaryLangIdx == s.SecondaryLangIdx {
		return fmt.Errorf("bilingual runs need two different languages")
	}
	if !contains(TTSProviders, s.TTSPrimary) {
		return fmt.Errorf("invalid primary TTS provider %q: must be %s", s.TTSPrimary, strings.Join(TTSProviders, ", "))
	}
	if !contains(TTSProviders, s.TTSSecondary) {
		return fmt.Errorf("invalid secondary TTS provider %q: must be %s", s.TTSSecondary, strings.Join(TTSProviders, ", "))
	}
	if s.UseLLM {
		if !contains(LLMProviders, s.LLMProvider) {
			return fmt.Errorf("invalid LLM provider %q: must be %s", s.LLMProvider, strings.Join(LLMProviders, " or "))
		}
		if s.LLMProvider == "openai" && !contains(openAIModels, s.LLMModel) {
			return fmt.Errorf("invalid OpenAI model %q: must be one of %s", s.LLMModel, strings.Join(openAIModels, ", "))
		}
		if s.Items() < 1 {
			return fmt.Errorf("item count must be at least 1 (got %d)", s.Items())
		}
	} else if s.TextFile == "" {
		return fmt.Errorf("a text file is required when generation is off")
	}
	if s.VideoFPS < 1 || s.VideoFPS > 60 {
		return fmt.Errorf("invalid video fps %d: must be between 1 and 60", s.VideoFPS)
	}
	var w, h int
	if n, err := fmt.Sscanf(s.VideoSize, "%dx%d", &w, &h); n != 2 || err != nil || w < 1 || h < 1 {
		return fmt.Errorf("invalid video size %q: expected WIDTHxHEIGHT", s.VideoSize)
	}
	return nil
}

// ApplyEditionGate re-applies the backend's free-edition downgrades locally
// and returns human-readable warnings for each one. The backend performs the
// same gating on save; doing it here surfaces the downgrade before the run.
func (s *Settings) ApplyEditionGate(premiumUnlocked bool) []string {
	var warnings []string

	if s.Edition == "premium" && !premiumUnlocked {
		s.Edition = "free"
		warnings = append(warnings, "Premium requested but not activated; falling back to Free.")
	}
	if s.Edition == "premium" {
		return warnings
	}

	if s.TTSPrimary != FreeTTSProvider || s.TTSSecondary != FreeTTSProvider {
		warnings = append(warnings, "Free edition: only gTTS is available; other TTS providers will be ignored.")
		s.TTSPrimary = FreeTTSProvider
		s.TTSSecondary = FreeTTSProvider
	}
	if s.UseLLM && (s.LLMProvider != "openai" || s.LLMModel != FreeLLMModel) {
		warnings = append(warnings, fmt.Sprintf("Free edition: generation limited to openai/%s.", FreeLLMModel))
		s.LLMProvider = "openai"
		s.LLMModel = FreeLLMModel
	}
	return warnings
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
