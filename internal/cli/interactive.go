package cli

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/polyglotvid/lingoctl/internal/settings"
)

// wizardItem is a single configurable option in the TUI.
type wizardItem struct {
	label    string
	value    string
	options  []string // nil means free-text entry
	numeric  bool
	cursor   int // cursor within options while picking
}

// wizardState tracks which phase the TUI is in.
type wizardState int

const (
	stateMenu wizardState = iota
	statePicking
	stateTyping
)

// wizardModel is the Bubble Tea model for the run setup menu.
type wizardModel struct {
	items     []wizardItem
	cursor    int
	state     wizardState
	buffer    string
	width     int
	confirmed bool
	cancelled bool
}

var (
	wizTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	wizLabelStyle = lipgloss.NewStyle().
			Width(20).
			Align(lipgloss.Right).
			MarginRight(2)

	wizValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	wizValueDimStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#555555")).
				Italic(true)

	wizCursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	wizOptionStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	wizSelectedOptionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#04B575")).
				Bold(true).
				PaddingLeft(2)

	wizButtonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 3)

	wizHelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1)
)

// menu item indices; idxStart is the synthetic "Start run" row.
const (
	idxMode = iota
	idxLevel
	idxGenerate
	idxTextFile
	idxTopic
	idxItems
	idxLLMProvider
	idxLLMModel
	idxPrimaryLang
	idxSecondaryLang
	idxBilingual
	idxTTSPrimary
	idxTTSSecondary
	idxVideoSize
	idxFPS
	idxBGMode
	idxStart
)

func newWizardModel(s settings.Settings) wizardModel {
	onOff := []string{"on", "off"}
	items := make([]wizardItem, idxStart+1)
	items[idxMode] = wizardItem{label: "Mode", value: s.Mode, options: settings.Modes}
	items[idxLevel] = wizardItem{label: "Level", value: s.Level, options: settings.Levels}
	items[idxGenerate] = wizardItem{label: "Generate with LLM", value: boolWord(s.UseLLM), options: onOff}
	items[idxTextFile] = wizardItem{label: "Text file", value: s.TextFile}
	items[idxTopic] = wizardItem{label: "Topic", value: s.LLMTopic}
	items[idxItems] = wizardItem{label: "Items", value: strconv.Itoa(s.Items()), numeric: true}
	items[idxLLMProvider] = wizardItem{label: "LLM provider", value: s.LLMProvider, options: settings.LLMProviders}
	items[idxLLMModel] = wizardItem{label: "LLM model", value: s.LLMModel}
	items[idxPrimaryLang] = wizardItem{label: "Primary language", value: s.PrimaryLang(), options: s.LangCodes}
	items[idxSecondaryLang] = wizardItem{label: "Secondary language", value: s.SecondaryLang(), options: s.LangCodes}
	items[idxBilingual] = wizardItem{label: "Bilingual audio", value: boolWord(s.EnableBilingual), options: onOff}
	items[idxTTSPrimary] = wizardItem{label: "TTS (primary)", value: s.TTSPrimary, options: settings.TTSProviders}
	items[idxTTSSecondary] = wizardItem{label: "TTS (secondary)", value: s.TTSSecondary, options: settings.TTSProviders}
	items[idxVideoSize] = wizardItem{label: "Video size", value: s.VideoSize, options: []string{"1920x1080", "1280x720", "1080x1920"}}
	items[idxFPS] = wizardItem{label: "Frame rate", value: strconv.Itoa(s.VideoFPS), options: []string{"24", "30", "60"}}
	items[idxBGMode] = wizardItem{label: "Background", value: s.BGMode, options: []string{"per_sentence", "static"}}
	items[idxStart] = wizardItem{label: "", value: "Start run"}
	return wizardModel{items: items}
}

func (m wizardModel) Init() tea.Cmd { return nil }

func (m wizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch m.state {
		case stateMenu:
			return m.updateMenu(msg)
		case statePicking:
			return m.updatePicking(msg)
		case stateTyping:
			return m.updateTyping(msg)
		}
	}
	return m, nil
}

func (m wizardModel) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		m.cancelled = true
		return m, tea.Quit
	case "up", "k":
		m.cursor = m.prevVisible(m.cursor)
	case "down", "j":
		m.cursor = m.nextVisible(m.cursor)
	case "enter", " ":
		if m.cursor == idxStart {
			m.confirmed = true
			return m, tea.Quit
		}
		item := &m.items[m.cursor]
		if item.options != nil {
			if item.cursor = indexOf(item.options, item.value); item.cursor < 0 {
				item.cursor = 0
			}
			m.state = statePicking
		} else {
			m.buffer = item.value
			m.state = stateTyping
		}
	}
	return m, nil
}

func (m wizardModel) updatePicking(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	item := &m.items[m.cursor]
	switch msg.String() {
	case "ctrl+c":
		m.cancelled = true
		return m, tea.Quit
	case "esc":
		m.state = stateMenu
	case "up", "k":
		if item.cursor > 0 {
			item.cursor--
		}
	case "down", "j":
		if item.cursor < len(item.options)-1 {
			item.cursor++
		}
	case "enter", " ":
		item.value = item.options[item.cursor]
		m.state = stateMenu
	}
	return m, nil
}

func (m wizardModel) updateTyping(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	item := &m.items[m.cursor]
	switch msg.String() {
	case "ctrl+c":
		m.cancelled = true
		return m, tea.Quit
	case "esc":
		m.state = stateMenu
	case "enter":
		item.value = strings.TrimSpace(m.buffer)
		m.state = stateMenu
	case "backspace":
		if len(m.buffer) > 0 {
			r := []rune(m.buffer)
			m.buffer = string(r[:len(r)-1])
		}
	default:
		if msg.Type == tea.KeyRunes {
			s := string(msg.Runes)
			if item.numeric && strings.Trim(s, "0123456789") != "" {
				break
			}
			m.buffer += s
		}
	}
	return m, nil
}

// hidden reports menu rows that do not apply to the current input mode:
// file selection is meaningless while generating, and the LLM block is
// meaningless while reading a file.
func (m wizardModel) hidden(idx int) bool {
	generating := m.items[idxGenerate].value == "on"
	switch idx {
	case idxTextFile:
		return generating
	case idxTopic, idxItems, idxLLMProvider, idxLLMModel:
		return !generating
	case idxTTSSecondary:
		return m.items[idxBilingual].value == "off"
	}
	return false
}

func (m wizardModel) prevVisible(from int) int {
	for i := from - 1; i >= 0; i-- {
		if !m.hidden(i) {
			return i
		}
	}
	return from
}

func (m wizardModel) nextVisible(from int) int {
	for i := from + 1; i <= idxStart; i++ {
		if !m.hidden(i) {
			return i
		}
	}
	return from
}

func (m wizardModel) View() string {
	var b strings.Builder
	b.WriteString(wizTitleStyle.Render("lingoctl · run setup"))
	b.WriteString("\n")

	for i, item := range m.items {
		if m.hidden(i) {
			continue
		}
		if i == idxStart {
			b.WriteString("\n")
			if m.cursor == idxStart {
				b.WriteString("  " + wizButtonStyle.Render("▶ "+item.value) + "\n")
			} else {
				b.WriteString("    " + item.value + "\n")
			}
			continue
		}

		cursor := "  "
		if m.cursor == i && m.state == stateMenu {
			cursor = wizCursorStyle.Render("❯ ")
		}

		value := item.value
		switch {
		case m.cursor == i && m.state == stateTyping:
			value = wizValueStyle.Render(m.buffer + "▌")
		case value == "":
			value = wizValueDimStyle.Render("(none)")
		default:
			value = wizValueStyle.Render(value)
		}
		b.WriteString(fmt.Sprintf("%s%s%s\n", cursor, wizLabelStyle.Render(item.label), value))

		if m.cursor == i && m.state == statePicking {
			for j, opt := range item.options {
				if j == item.cursor {
					b.WriteString(wizSelectedOptionStyle.Render("› "+opt) + "\n")
				} else {
					b.WriteString(wizOptionStyle.Render(opt) + "\n")
				}
			}
		}
	}

	switch m.state {
	case stateMenu:
		b.WriteString(wizHelpStyle.Render("↑/↓ move · enter edit · q quit"))
	case statePicking:
		b.WriteString(wizHelpStyle.Render("↑/↓ choose · enter select · esc back"))
	case stateTyping:
		b.WriteString(wizHelpStyle.Render("type a value · enter accept · esc back"))
	}
	b.WriteString("\n")
	return b.String()
}

// apply copies the wizard values back into the settings document.
func (m wizardModel) apply(s *settings.Settings) {
	s.Mode = m.items[idxMode].value
	s.Level = m.items[idxLevel].value
	s.UseLLM = m.items[idxGenerate].value == "on"
	s.TextFile = m.items[idxTextFile].value
	s.LLMTopic = m.items[idxTopic].value
	s.LLMProvider = m.items[idxLLMProvider].value
	s.LLMModel = m.items[idxLLMModel].value
	s.EnableBilingual = m.items[idxBilingual].value == "on"
	s.TTSPrimary = m.items[idxTTSPrimary].value
	s.TTSSecondary = m.items[idxTTSSecondary].value
	s.VideoSize = m.items[idxVideoSize].value
	s.BGMode = m.items[idxBGMode].value
	if n, err := strconv.Atoi(m.items[idxFPS].value); err == nil {
		s.VideoFPS = n
	}
	if n, err := strconv.Atoi(m.items[idxItems].value); err == nil && n > 0 {
		s.ItemsOverride = true
		s.LLMItemsBasic = n
	}
	if i := indexOf(s.LangCodes, m.items[idxPrimaryLang].value); i >= 0 {
		s.PrimaryLangIdx = i
	}
	if i := indexOf(s.LangCodes, m.items[idxSecondaryLang].value); i >= 0 {
		s.SecondaryLangIdx = i
	}
}

// runWizard shows the interactive setup menu and writes the chosen values
// into s. It returns false when the user backed out.
func runWizard(s *settings.Settings) (bool, error) {
	p := tea.NewProgram(newWizardModel(*s))
	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("run setup wizard: %w", err)
	}
	m, ok := final.(wizardModel)
	if !ok || m.cancelled || !m.confirmed {
		return false, nil
	}
	m.apply(s)
	if err := s.Validate(); err != nil {
		return false, err
	}
	return true, nil
}

func boolWord(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
