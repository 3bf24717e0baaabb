package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/polyglotvid/lingoctl/internal/api"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List the backend's TTS providers, languages, and generation models",
	RunE:  runCapabilities,
}

func runCapabilities(cmd *cobra.Command, args []string) error {
	client := newClient()

	tts, err := client.TTSCapabilities(cmd.Context())
	if err != nil {
		return err
	}
	llm, err := client.LLMCapabilities(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Println("\nSpeech providers:")
	for _, p := range []struct {
		key string
		cap api.TTSProvider
	}{
		{"gtts", tts.GTTS},
		{"elevenlabs", tts.ElevenLabs},
		{"piper", tts.Piper},
	} {
		tier := "free"
		if p.cap.Premium != 0 {
			tier = "premium"
		}
		fmt.Printf("\n  %s (%s, %s)\n", p.cap.Name, p.key, tier)
		fmt.Printf("  %s\n", strings.Repeat("─", 50))
		fmt.Printf("  %s\n", formatLanguages(p.cap.Codes, tts.DisplayNames))
	}

	fmt.Println("\nGeneration models:")
	fmt.Printf("  openai (free):    %s\n", strings.Join(llm.OpenAI.Free, ", "))
	fmt.Printf("  openai (premium): %s\n", strings.Join(llm.OpenAI.Premium, ", "))
	fmt.Printf("  ollama:           %s\n", strings.Join(llm.Ollama.Suggested, ", "))
	fmt.Println()
	return nil
}

// formatLanguages renders codes with display names where known, wrapped to a
// readable width.
func formatLanguages(codes []string, names map[string]string) string {
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)

	var parts []string
	for _, c := range sorted {
		if n, ok := names[c]; ok {
			parts = append(parts, fmt.Sprintf("%s (%s)", c, n))
		} else {
			parts = append(parts, c)
		}
	}

	var b strings.Builder
	line := 0
	for i, p := range parts {
		if i > 0 {
			b.WriteString(", ")
			line += 2
		}
		if line+len(p) > 70 {
			b.WriteString("\n  ")
			line = 0
		}
		b.WriteString(p)
		line += len(p)
	}
	return b.String()
}
