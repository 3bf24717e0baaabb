package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/polyglotvid/lingoctl/internal/progress"
	"github.com/polyglotvid/lingoctl/internal/runner"
	"github.com/polyglotvid/lingoctl/internal/settings"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a video-generation run and follow its progress",
	RunE:  runRun,
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Push run settings to the backend without starting a run",
	RunE:  runSave,
}

var (
	flagMode          string
	flagLevel         string
	flagFile          string
	flagLangs         string
	flagPrimaryLang   string
	flagSecondaryLang string
	flagMonolingual   bool
	flagTTSPrimary    string
	flagTTSSecondary  string
	flagGenerate      bool
	flagLLMProvider   string
	flagLLMModel      string
	flagTopic         string
	flagItems         int
	flagVideoSize     string
	flagFPS           int
	flagBGMode        string
	flagNoBG          bool
	flagPremium       bool
	flagTUI           bool
	flagFetch         bool
)

func init() {
	for _, cmd := range []*cobra.Command{runCmd, saveCmd} {
		f := cmd.Flags()
		f.StringVarP(&flagMode, "mode", "m", "vocab", "Content mode: vocab or scenario")
		f.StringVarP(&flagLevel, "level", "l", "A1", "CEFR level: A1, A2, B1, B2")
		f.StringVarP(&flagFile, "file", "f", "sample.txt", "Backend input text file (ignored with --generate)")
		f.StringVar(&flagLangs, "langs", "", "Comma-separated language codes (default: backend base set)")
		f.StringVarP(&flagPrimaryLang, "primary", "p", "en", "Primary language code")
		f.StringVarP(&flagSecondaryLang, "secondary", "s", "fr", "Secondary language code")
		f.BoolVar(&flagMonolingual, "monolingual", false, "Speak only the primary language")
		f.StringVar(&flagTTSPrimary, "tts-primary", "gtts", "TTS provider for the primary language: gtts, elevenlabs, piper")
		f.StringVar(&flagTTSSecondary, "tts-secondary", "gtts", "TTS provider for the secondary language: gtts, elevenlabs, piper")
		f.BoolVarP(&flagGenerate, "generate", "g", false, "Generate content with an LLM instead of reading a text file")
		f.StringVar(&flagLLMProvider, "llm-provider", "openai", "Generation provider: openai or ollama")
		f.StringVar(&flagLLMModel, "llm-model", "gpt-4o-mini", "Generation model")
		f.StringVarP(&flagTopic, "topic", "t", "", "Topic for generated content")
		f.IntVarP(&flagItems, "items", "n", 0, "Item count for generation (0 = backend estimate)")
		f.StringVar(&flagVideoSize, "video-size", "1920x1080", "Output video size (WIDTHxHEIGHT)")
		f.IntVar(&flagFPS, "fps", 30, "Output video frame rate")
		f.StringVar(&flagBGMode, "bg-mode", "per_sentence", "Background image mode: per_sentence or static")
		f.BoolVar(&flagNoBG, "no-bg", false, "Render on a plain background")
		f.BoolVar(&flagPremium, "premium", false, "Request premium edition features")
	}
	runCmd.Flags().BoolVar(&flagTUI, "tui", false, "Interactive setup wizard for run options")
	runCmd.Flags().BoolVar(&flagFetch, "fetch", false, "Download the produced artifact when the run finishes")
}

// buildSettings assembles the settings document from flags, mirroring the
// form-to-payload mapping of the original web panel.
func buildSettings() (settings.Settings, error) {
	s := settings.Default()
	s.Mode = strings.ToLower(flagMode)
	s.Level = strings.ToUpper(flagLevel)
	s.TextFile = flagFile
	s.EnableBilingual = !flagMonolingual
	s.TTSPrimary = strings.ToLower(flagTTSPrimary)
	s.TTSSecondary = strings.ToLower(flagTTSSecondary)
	s.BGMode = flagBGMode
	s.BGEnabled = !flagNoBG
	s.VideoSize = flagVideoSize
	s.VideoFPS = flagFPS
	s.UseLLM = flagGenerate
	s.LLMProvider = strings.ToLower(flagLLMProvider)
	s.LLMModel = flagLLMModel
	s.LLMTopic = flagTopic
	if flagPremium {
		s.Edition = "premium"
	}
	if flagItems > 0 {
		s.ItemsOverride = true
		s.LLMItemsBasic = flagItems
	}

	if flagLangs != "" {
		s.LangCodes = s.LangCodes[:0]
		for _, c := range strings.Split(flagLangs, ",") {
			if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
				s.LangCodes = append(s.LangCodes, c)
			}
		}
	}
	var err error
	if s.PrimaryLangIdx, err = langIndex(s.LangCodes, flagPrimaryLang); err != nil {
		return s, err
	}
	if s.SecondaryLangIdx, err = langIndex(s.LangCodes, flagSecondaryLang); err != nil {
		return s, err
	}

	return s, s.Validate()
}

func langIndex(codes []string, code string) (int, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	for i, c := range codes {
		if c == code {
			return i, nil
		}
	}
	return 0, fmt.Errorf("language %q is not in the language list (%s)", code, strings.Join(codes, ", "))
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := buildSettings()
	if err != nil && !flagTUI {
		return err
	}
	if flagTUI {
		if err != nil {
			s = settings.Default()
		}
		confirmed, wizErr := runWizard(&s)
		if wizErr != nil {
			return wizErr
		}
		if !confirmed {
			return nil
		}
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := newClient()

	// Surface edition downgrades before the run rather than as save warnings.
	premium, err := client.Edition(ctx)
	if err != nil {
		return fmt.Errorf("reach backend at %s: %w", client.BaseURL(), err)
	}
	printWarnings(s.ApplyEditionGate(premium))

	opts := runner.Options{
		Client:   client,
		Settings: s,
		Logger:   logger,
		LogDir:   cfg.LogDir,
	}

	var renderer *progress.BarRenderer
	if !flagVerbose {
		renderer = progress.NewBarRenderer(os.Stdout)
		opts.OnProgress = renderer.Handle
	}

	res, err := runner.Run(ctx, opts)
	if errors.Is(err, context.Canceled) {
		// User cancel hides the bar with no completion animation; the
		// backend job itself keeps running and is not ours to stop.
		fmt.Fprintln(os.Stderr, "\nCancelled.")
		return nil
	}
	if err != nil {
		if renderer != nil {
			renderer.Handle(progress.Event{Stage: progress.StageError, Error: err})
			renderer.Finish()
		}
		return err
	}

	printWarnings(res.Warnings)
	if renderer != nil {
		renderer.Handle(progress.Event{
			Stage:      progress.StageComplete,
			Message:    "Done",
			Percent:    1,
			OutputFile: res.Output,
			LogFile:    res.LogFile,
		})
		renderer.Finish()
	} else {
		logger.Info("Run finished", "output", res.Output, "log", res.LogFile)
	}

	if flagFetch && res.Output != "" {
		return fetchOutput(ctx, client, res.Output, cfg.OutputDir)
	}
	return nil
}

func runSave(cmd *cobra.Command, args []string) error {
	s, err := buildSettings()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := newClient().SaveSettings(ctx, s)
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("backend rejected settings: %s", res.Error)
	}
	printWarnings(res.Warnings)
	fmt.Println("Settings saved.")
	return nil
}
