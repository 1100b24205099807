package receiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SpatiumPortae/stardrop/cmd/stardrop/tui"
	"github.com/SpatiumPortae/stardrop/cmd/stardrop/tui/filetable"
	"github.com/SpatiumPortae/stardrop/cmd/stardrop/tui/transferprogress"
	"github.com/SpatiumPortae/stardrop/internal/file"
	"github.com/SpatiumPortae/stardrop/internal/receiver"
	"github.com/SpatiumPortae/stardrop/internal/semver"
	"github.com/SpatiumPortae/stardrop/internal/session"
	"github.com/SpatiumPortae/stardrop/internal/stardrop"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/timer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/erikgeiser/promptkit"
	"github.com/erikgeiser/promptkit/confirmation"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// ------------------------------------------------------ tui State -----------------------------------------------------
type tuiState int

// Flows from the top down.
const (
	showConnecting tuiState = iota
	showRequestingCode
	showCode
	showReceivingProgress
	showOverwritePrompt
	showCommitting
	showFinished
)

// ------------------------------------------------------ Messages -----------------------------------------------------
type connectMsg struct {
	endpoint *stardrop.Endpoint
}

type commitMsg struct {
	path string
}

// ------------------------------------------------------- Model -------------------------------------------------------

type Option func(m *model)

func WithVersion(version semver.Version) Option {
	return func(m *model) {
		m.version = &version
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *model) {
		m.logger = logger
	}
}

// WithOverwrite makes the receiver replace existing files without asking.
func WithOverwrite(overwrite bool) Option {
	return func(m *model) {
		m.overwrite = overwrite
	}
}

// WithCopyCommand sets how the command the sender should run is rendered for a code.
func WithCopyCommand(render func(code string) string) Option {
	return func(m *model) {
		m.copyCommand = render
	}
}

type model struct {
	state tuiState
	ctx   context.Context
	err   error

	config      stardrop.Config
	outputDir   string
	overwrite   bool
	version     *semver.Version
	logger      *zap.Logger
	endpoint    *stardrop.Endpoint
	observer    session.Observer
	updates     <-chan session.Update
	copyCommand func(code string) string

	code     string
	info     session.Update
	artifact *receiver.Artifact
	path     string

	width            int
	spinner          spinner.Model
	transferProgress transferprogress.Model
	fileTable        filetable.Model
	overwritePrompt  confirmation.Model
	help             help.Model
	keys             tui.KeyMap
	copyMessageTimer timer.Model
}

// New creates a new receiver program that stores the received file in outputDir.
// The program stops delivering controller updates once ctx is done.
func New(ctx context.Context, config stardrop.Config, outputDir string, opts ...Option) *tea.Program {
	observer, updates := tui.Observer(ctx)
	m := model{
		ctx:              ctx,
		config:           config,
		outputDir:        outputDir,
		logger:           zap.NewNop(),
		observer:         observer,
		updates:          updates,
		copyCommand:      func(code string) string { return fmt.Sprintf("stardrop send %s <file>", code) },
		transferProgress: transferprogress.New(),
		fileTable:        filetable.New(),
		overwritePrompt:  *confirmation.NewModel(confirmation.New("", confirmation.Undecided)),
		help:             help.New(),
		keys:             tui.Keys,
		copyMessageTimer: timer.NewWithInterval(tui.TEMP_UI_MESSAGE_DURATION, 100*time.Millisecond),
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.resetSpinner()
	return tea.NewProgram(m)
}

// Result returns the path the received file was stored at, or the error the
// program ended with.
func Result(m tea.Model) (string, error) {
	mm, ok := m.(model)
	if !ok {
		return "", nil
	}
	if mm.err != nil {
		return "", mm.err
	}
	if mm.state != showFinished {
		return "", stardrop.ErrCancelled
	}
	return mm.path, nil
}

func (m model) Init() tea.Cmd {
	var versionCmd tea.Cmd
	if m.version != nil {
		versionCmd = tui.VersionCmd(m.ctx, m.config.BrokerAddr)
	}
	return tea.Sequence(versionCmd, tea.Batch(m.spinner.Tick, connectCmd(m.ctx, m.config, m.logger, m.observer)))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tui.VersionMsg:
		message, err := tui.VersionTask(*m.version, msg.ServerVersion)
		if err != nil {
			m.err = err
			return m, tui.ErrorCmd(err)
		}
		return m, tui.TaskCmd(message, nil)

	case connectMsg:
		m.endpoint = msg.endpoint
		m.state = showRequestingCode
		m.resetSpinner()
		message := fmt.Sprintf("Connected to Stardrop broker (%s)", m.config.BrokerAddr)
		return m, tui.TaskCmd(message, tea.Batch(
			m.spinner.Tick,
			requestCodeCmd(m.ctx, m.endpoint),
			tui.ListenCmd(m.ctx, m.updates),
			tui.BrokerCmd(m.endpoint.Done()),
		))

	case tui.UpdateMsg:
		return m.handleUpdate(session.Update(msg))

	case commitMsg:
		m.state = showFinished
		m.path = msg.path
		m.fileTable.AddFile(msg.path, m.info.Info)
		m.fileTable = m.fileTable.Finalize().(filetable.Model)
		m.close()
		return m, tui.QuitCmd()

	case timer.TickMsg:
		var cmd tea.Cmd
		m.copyMessageTimer, cmd = m.copyMessageTimer.Update(msg)
		if m.copyMessageTimer.Running() {
			m.keys.CopyCode.SetHelp(m.keys.CopyCode.Help().Key, tui.CopyKeyActiveHelpText)
		}
		return m, cmd

	case timer.TimeoutMsg:
		var cmd tea.Cmd
		m.copyMessageTimer, cmd = m.copyMessageTimer.Update(msg)
		m.keys.CopyCode.SetHelp(m.keys.CopyCode.Help().Key, tui.CopyKeyHelpText)
		return m, cmd

	case tui.ErrorMsg:
		if m.err != nil || m.state == showFinished {
			return m, nil
		}
		m.err = msg
		m.close()
		return m, tui.ErrorCmd(errors.New(msg.Error()))

	case tea.KeyMsg:
		var cmds []tea.Cmd
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.close()
			return m, tea.Quit
		case key.Matches(msg, m.keys.CopyCode):
			if err := clipboard.WriteAll(m.copyCommand(m.code)); err != nil {
				return m, tui.ErrorCmd(pkgerrors.Wrap(err, "failed to copy command to clipboard"))
			}
			m.copyMessageTimer.Timeout = tui.TEMP_UI_MESSAGE_DURATION
			return m, m.copyMessageTimer.Init()
		}

		_, promptCmd := m.overwritePrompt.Update(msg)
		if m.state == showOverwritePrompt {
			switch msg.String() {
			case "left", "right":
				cmds = append(cmds, promptCmd)
			}
			switch {
			case key.Matches(msg, m.keys.OverwritePromptYes, m.keys.OverwritePromptNo, m.keys.OverwritePromptConfirm):
				m.state = showCommitting
				m.setPromptKeys(false)
				shouldOverwrite, _ := m.overwritePrompt.Value()
				cmds = append(cmds, commitCmd(m.outputDir, m.artifact, shouldOverwrite))
			}
		}
		return m, tea.Batch(cmds...)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		transferProgressModel, transferProgressCmd := m.transferProgress.Update(msg)
		m.transferProgress = transferProgressModel.(transferprogress.Model)

		fileTableModel, fileTableCmd := m.fileTable.Update(msg)
		m.fileTable = fileTableModel.(filetable.Model)

		m.overwritePrompt.MaxWidth = msg.Width - 2*tui.MARGIN - 4
		_, promptCmd := m.overwritePrompt.Update(msg)

		return m, tea.Batch(transferProgressCmd, fileTableCmd, promptCmd)

	default:
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		transferProgressModel, progressCmd := m.transferProgress.Update(msg)
		m.transferProgress = transferProgressModel.(transferprogress.Model)
		_, promptCmd := m.overwritePrompt.Update(msg)
		return m, tea.Batch(spinnerCmd, progressCmd, promptCmd)
	}
}

func (m model) handleUpdate(u session.Update) (tea.Model, tea.Cmd) {
	listen := tui.ListenCmd(m.ctx, m.updates)
	if m.state >= showOverwritePrompt {
		// The session may reset while the file is being stored.
		return m, listen
	}
	switch u.State {
	case session.AwaitingCode:
		if u.Code == "" || m.state == showCode {
			return m, listen
		}
		m.code = u.Code
		m.state = showCode
		m.resetSpinner()
		m.keys.CopyCode.SetEnabled(true)
		return m, tui.TaskCmd(fmt.Sprintf("Received pairing code %s", u.Code), tea.Batch(m.spinner.Tick, listen))

	case session.Transferring:
		cmds := []tea.Cmd{listen}
		m.info = u
		m.transferProgress.PayloadSize = u.Info.Size
		if m.state != showReceivingProgress {
			m.state = showReceivingProgress
			m.keys.CopyCode.SetEnabled(false)
			m.resetSpinner()
			m.transferProgress.StartTransfer()
			cmds = append(cmds, m.spinner.Tick, tui.TaskCmd("Established peer connection to sender", nil))
		}
		transferProgressModel, transferProgressCmd := m.transferProgress.Update(transferprogress.ProgressMsg(u.Moved))
		m.transferProgress = transferProgressModel.(transferprogress.Model)
		return m, tea.Batch(append(cmds, transferProgressCmd)...)

	case session.Complete:
		m.info = u
		m.artifact = u.Artifact
		m.transferProgress.Finish()
		message := fmt.Sprintf("Transfer completed in %s with average transfer speed %s/s",
			time.Since(m.transferProgress.TransferStartTime).Round(time.Millisecond).String(),
			tui.ByteCountSI(m.transferProgress.TransferSpeedEstimateBps),
		)
		path, exists, err := file.Target(m.outputDir, m.artifact)
		if err != nil {
			m.err = err
			m.close()
			return m, tui.ErrorCmd(err)
		}
		if exists && !m.overwrite {
			m.state = showOverwritePrompt
			m.resetSpinner()
			m.setPromptKeys(true)
			return m, tui.TaskCmd(message, tea.Batch(m.spinner.Tick, m.newOverwritePrompt(path), listen))
		}
		m.state = showCommitting
		return m, tui.TaskCmd(message, tea.Batch(commitCmd(m.outputDir, m.artifact, m.overwrite), listen))

	case session.Failed:
		m.err = u.Err
		m.close()
		return m, tui.ErrorCmd(u.Err)

	case session.Idle:
		if m.state < showRequestingCode {
			return m, listen
		}
		err := u.Err
		if err == nil {
			err = stardrop.ErrCancelled
		}
		m.err = err
		m.close()
		return m, tui.ErrorCmd(err)

	default:
		return m, listen
	}
}

func (m model) View() string {
	switch m.state {

	case showConnecting, showRequestingCode:
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(fmt.Sprintf("%s Requesting a pairing code", m.spinner.View())) + "\n\n" +
			tui.PadText + m.help.View(m.keys) + "\n\n"

	case showCode:
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(fmt.Sprintf("%s Waiting for sender, pairing code %s", m.spinner.View(), tui.BoldText(m.code))) + "\n\n" +
			tui.PadText + tui.InfoStyle("On the sending end, run:") + "\n" +
			tui.PadText + tui.InfoStyle(m.copyCommand(m.code)) + "\n\n" +
			tui.PadText + m.help.View(m.keys) + "\n\n"

	case showReceivingProgress:
		payloadSize := tui.BoldText(tui.ByteCountSI(m.info.Info.Size))
		receivingText := fmt.Sprintf("%s Receiving %s (%s)", m.spinner.View(), m.info.Info.Name, payloadSize)
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(receivingText) + "\n\n" +
			tui.PadText + m.transferProgress.View() + "\n\n" +
			tui.PadText + m.help.View(m.keys) + "\n\n"

	case showOverwritePrompt:
		waitingText := fmt.Sprintf("%s Waiting for file overwrite confirmation", m.spinner.View())
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(waitingText) + "\n\n" +
			tui.PadText + m.transferProgress.View() + "\n\n" +
			tui.PadText + m.overwritePrompt.View() + "\n\n" +
			tui.PadText + m.help.View(m.keys) + "\n\n"

	case showCommitting:
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle("Writing file to disk") + "\n\n" +
			tui.PadText + m.transferProgress.View() + "\n\n"

	case showFinished:
		finishedText := fmt.Sprintf("Received %s (%s)", m.info.Info.Name, tui.ByteCountSI(m.info.Info.Size))
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(finishedText) + "\n\n" +
			tui.PadText + m.transferProgress.View() + "\n\n" +
			m.fileTable.View()

	default:
		return ""
	}
}

// ------------------------------------------------------ Commands -----------------------------------------------------

func connectCmd(ctx context.Context, config stardrop.Config, logger *zap.Logger, observer session.Observer) tea.Cmd {
	return func() tea.Msg {
		e, err := stardrop.Connect(ctx, &config, logger, observer)
		if err != nil {
			return tui.ErrorMsg(err)
		}
		return connectMsg{endpoint: e}
	}
}

func requestCodeCmd(ctx context.Context, e *stardrop.Endpoint) tea.Cmd {
	return func() tea.Msg {
		if err := e.Controller().RequestCode(ctx); err != nil {
			return tui.ErrorMsg(err)
		}
		return nil
	}
}

func commitCmd(dir string, a *receiver.Artifact, overwrite bool) tea.Cmd {
	return func() tea.Msg {
		path, err := file.Commit(dir, a, overwrite)
		if err != nil {
			return tui.ErrorMsg(pkgerrors.Wrapf(err, "storing %s", a.Name))
		}
		return commitMsg{path: path}
	}
}

// ------------------------------------------------------ Helpers ------------------------------------------------------

func (m *model) close() {
	if m.endpoint != nil {
		m.endpoint.Close()
	}
}

func (m *model) setPromptKeys(enabled bool) {
	m.keys.OverwritePromptYes.SetEnabled(enabled)
	m.keys.OverwritePromptNo.SetEnabled(enabled)
	m.keys.OverwritePromptConfirm.SetEnabled(enabled)
}

func (m *model) newOverwritePrompt(path string) tea.Cmd {
	prompt := confirmation.New(fmt.Sprintf("Overwrite file '%s'?", path), confirmation.Yes)
	m.overwritePrompt = *confirmation.NewModel(prompt)
	m.overwritePrompt.MaxWidth = m.width
	m.overwritePrompt.WrapMode = promptkit.HardWrap
	m.overwritePrompt.Template = confirmation.TemplateYN
	m.overwritePrompt.ResultTemplate = confirmation.ResultTemplateYN
	m.overwritePrompt.KeyMap.Abort = []string{}
	m.overwritePrompt.KeyMap.Toggle = []string{}
	return m.overwritePrompt.Init()
}

func (m *model) resetSpinner() {
	switch m.state {
	case showReceivingProgress:
		m.spinner = tui.NewSpinner(tui.ReceivingSpinner)
	default:
		m.spinner = tui.NewSpinner(tui.WaitingSpinner)
	}
}
