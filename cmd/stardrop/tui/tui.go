package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SpatiumPortae/stardrop/internal/semver"
	"github.com/SpatiumPortae/stardrop/internal/session"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	MARGIN                   = 2
	MAX_WIDTH                = 80
	PRIMARY_COLOR            = "#B8BABA"
	SECONDARY_COLOR          = "#626262"
	DARK_COLOR               = "#1C1C1C"
	ELEMENT_COLOR            = "#EE9F40"
	SECONDARY_ELEMENT_COLOR  = "#EE9F70"
	ERROR_COLOR              = "#CC0000"
	WARNING_COLOR            = "#FF7900"
	SUCCESS_COLOR            = "#34B233"
	TEMP_UI_MESSAGE_DURATION = 2 * time.Second
	SHUTDOWN_PERIOD          = 500 * time.Millisecond
)

var PadText = strings.Repeat(" ", MARGIN)

var (
	BaseStyle   = lipgloss.NewStyle()
	InfoStyle   = BaseStyle.Copy().Foreground(lipgloss.Color(PRIMARY_COLOR)).Render
	HelpStyle   = BaseStyle.Copy().Foreground(lipgloss.Color(SECONDARY_COLOR)).Render
	ItalicText  = BaseStyle.Copy().Italic(true).Render
	BoldText    = BaseStyle.Copy().Bold(true).Render
	ErrorText   = BaseStyle.Copy().Foreground(lipgloss.Color(ERROR_COLOR)).Render
	WarningText = BaseStyle.Copy().Foreground(lipgloss.Color(WARNING_COLOR)).Render
	SuccessText = BaseStyle.Copy().Foreground(lipgloss.Color(SUCCESS_COLOR)).Render
)

// ------------------------------------------------------ Spinners -----------------------------------------------------

var WaitingSpinner = spinner.Spinner{
	Frames: []string{"⠋ ", "⠙ ", "⠹ ", "⠸ ", "⠼ ", "⠴ ", "⠦ ", "⠧ ", "⠇ ", "⠏ "},
	FPS:    time.Second / 12,
}

var HandshakeSpinner = spinner.Spinner{
	Frames: []string{"┉┉┉", "┅┅┅", "┄┄┄", "┉ ┉", "┅ ┅", "┄ ┄", " ┉ ", " ┉ ", " ┅ ", " ┅ ", " ┄ "},
	FPS:    time.Second / 3,
}

var TransferSpinner = spinner.Spinner{
	Frames: []string{"»  ", "»» ", "»»»", "   "},
	FPS:    time.Millisecond * 400,
}

var ReceivingSpinner = spinner.Spinner{
	Frames: []string{"   ", "  «", " ««", "«««"},
	FPS:    time.Second / 2,
}

// NewSpinner returns a spinner in the element color.
func NewSpinner(s spinner.Spinner) spinner.Model {
	m := spinner.New()
	m.Spinner = s
	m.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ELEMENT_COLOR))
	return m
}

// -------------------------------------------------------- Keys -------------------------------------------------------

const (
	CopyKeyHelpText       = "copy command"
	CopyKeyActiveHelpText = "command copied!"
)

type KeyMap struct {
	Quit                   key.Binding
	CopyCode               key.Binding
	OverwritePromptYes     key.Binding
	OverwritePromptNo      key.Binding
	OverwritePromptConfirm key.Binding
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Quit,
		k.CopyCode,
		k.OverwritePromptYes,
		k.OverwritePromptNo,
		k.OverwritePromptConfirm,
	}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var Keys = KeyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("(q)", "quit"),
	),
	CopyCode: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("(c)", CopyKeyHelpText),
		key.WithDisabled(),
	),
	OverwritePromptYes: key.NewBinding(
		key.WithKeys("y", "Y"),
		key.WithHelp("(Y/y)", "overwrite"),
		key.WithDisabled(),
	),
	OverwritePromptNo: key.NewBinding(
		key.WithKeys("n", "N"),
		key.WithHelp("(N/n)", "keep both"),
		key.WithDisabled(),
	),
	OverwritePromptConfirm: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("(enter)", "confirm"),
		key.WithDisabled(),
	),
}

// ------------------------------------------------------ Messages -----------------------------------------------------

type ErrorMsg error

type VersionMsg struct {
	ServerVersion semver.Version
}

// UpdateMsg carries a session controller update into the program.
type UpdateMsg session.Update

// ------------------------------------------------------ Commands -----------------------------------------------------

func ErrorCmd(err error) tea.Cmd {
	return tea.Sequence(
		tea.Println(PadText+ErrorText("✗ "+err.Error())),
		QuitCmd(),
	)
}

// TaskCmd prints a completed task above the program and then runs cmd.
func TaskCmd(task string, cmd tea.Cmd) tea.Cmd {
	if task == "" {
		return cmd
	}
	return tea.Sequence(tea.Println(PadText+SuccessText("✓ ")+InfoStyle(task)), cmd)
}

func QuitCmd() tea.Cmd {
	return tea.Tick(SHUTDOWN_PERIOD, func(time.Time) tea.Msg {
		return tea.Quit()
	})
}

func VersionCmd(ctx context.Context, addr string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		ver, err := semver.GetBrokerVersion(ctx, addr)
		if err != nil {
			return ErrorMsg(err)
		}
		return VersionMsg{ServerVersion: ver}
	}
}

// VersionTask describes how the local version relates to the broker's.
// Incompatible versions yield an error.
func VersionTask(local, remote semver.Version) (string, error) {
	if !local.Compatible(remote) {
		//lint:ignore ST1005 error string displayed in tui
		return "", fmt.Errorf("Stardrop version (%s) incompatible with broker version (%s)", local, remote)
	}
	switch local.Compare(remote) {
	case semver.CompareNewMinor, semver.CompareNewPatch:
		return WarningText(fmt.Sprintf("Stardrop version (%s) newer than broker version (%s)", local, remote)), nil
	case semver.CompareOldMinor, semver.CompareOldPatch:
		return WarningText(fmt.Sprintf("Broker version (%s) newer than Stardrop version (%s)", remote, local)), nil
	default:
		return fmt.Sprintf("Stardrop version (%s) compatible with broker version (%s)", local, remote), nil
	}
}

// ListenCmd waits for the next controller update.
func ListenCmd(ctx context.Context, updates <-chan session.Update) tea.Cmd {
	return func() tea.Msg {
		select {
		case u := <-updates:
			return UpdateMsg(u)
		case <-ctx.Done():
			return nil
		}
	}
}

// BrokerCmd reports the end of the broker connection as an error.
func BrokerCmd(done <-chan error) tea.Cmd {
	return func() tea.Msg {
		return ErrorMsg(<-done)
	}
}

// ------------------------------------------------------- Helpers -----------------------------------------------------

// Observer returns a controller observer feeding updates, and the channel it feeds.
// Delivery stops once ctx is done.
func Observer(ctx context.Context) (session.Observer, <-chan session.Update) {
	updates := make(chan session.Update, 16)
	return func(u session.Update) {
		select {
		case updates <- u:
		case <-ctx.Done():
		}
	}, updates
}

func LogSeparator(width int) string {
	paddedWidth := width - 2*MARGIN
	if paddedWidth > MAX_WIDTH {
		paddedWidth = MAX_WIDTH
	}
	if paddedWidth < 0 {
		paddedWidth = 0
	}
	return HelpStyle(strings.Repeat("─", paddedWidth)) + "\n\n"
}

// ByteCountSI formats a number of bytes using SI units.
func ByteCountSI(b int64) string {
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "kMGTPE"[exp])
}
