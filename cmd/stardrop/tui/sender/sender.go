package sender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SpatiumPortae/stardrop/cmd/stardrop/tui"
	"github.com/SpatiumPortae/stardrop/cmd/stardrop/tui/filetable"
	"github.com/SpatiumPortae/stardrop/cmd/stardrop/tui/transferprogress"
	"github.com/SpatiumPortae/stardrop/internal/semver"
	"github.com/SpatiumPortae/stardrop/internal/session"
	"github.com/SpatiumPortae/stardrop/internal/stardrop"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// ------------------------------------------------------ tui State -----------------------------------------------------

type tuiState int

// flows from the top down.
const (
	showConnecting tuiState = iota
	showHandshake
	showSendingProgress
	showAwaitingReceiver
	showFinished
)

// ------------------------------------------------------ Messages -----------------------------------------------------

type connectMsg struct {
	endpoint *stardrop.Endpoint
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

type model struct {
	state tuiState
	ctx   context.Context
	err   error

	config   stardrop.Config
	code     string
	source   session.Source
	version  *semver.Version
	logger   *zap.Logger
	endpoint *stardrop.Endpoint
	observer session.Observer
	updates  <-chan session.Update

	width            int
	spinner          spinner.Model
	transferProgress transferprogress.Model
	fileTable        filetable.Model
	help             help.Model
	keys             tui.KeyMap
}

// New creates a new sender program that hands src to the receiver behind code.
// The program stops delivering controller updates once ctx is done.
func New(ctx context.Context, config stardrop.Config, code string, path string, src session.Source, opts ...Option) *tea.Program {
	observer, updates := tui.Observer(ctx)
	m := model{
		ctx:              ctx,
		config:           config,
		code:             code,
		source:           src,
		logger:           zap.NewNop(),
		observer:         observer,
		updates:          updates,
		transferProgress: transferprogress.New(),
		fileTable:        filetable.New(filetable.WithFile(path, src.Info)),
		help:             help.New(),
		keys:             tui.Keys,
	}
	m.transferProgress.PayloadSize = src.Info.Size
	for _, opt := range opts {
		opt(&m)
	}
	m.resetSpinner()
	return tea.NewProgram(m)
}

// Result returns the error the program ended with, if any.
func Result(m tea.Model) error {
	if m, ok := m.(model); ok {
		return m.err
	}
	return nil
}

func (m model) Init() tea.Cmd {
	var versionCmd tea.Cmd
	if m.version != nil {
		versionCmd = tui.VersionCmd(m.ctx, m.config.BrokerAddr)
	}
	return tea.Sequence(versionCmd, tea.Batch(m.spinner.Tick, connectCmd(m.ctx, m.config, m.logger, m.observer)))
}

// ------------------------------------------------------- Update ------------------------------------------------------

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
		m.state = showHandshake
		m.resetSpinner()
		message := fmt.Sprintf("Connected to Stardrop broker (%s)", m.config.BrokerAddr)
		return m, tui.TaskCmd(message, tea.Batch(
			m.spinner.Tick,
			sendCmd(m.ctx, m.endpoint, m.code, m.source),
			tui.ListenCmd(m.ctx, m.updates),
			tui.BrokerCmd(m.endpoint.Done()),
		))

	case tui.UpdateMsg:
		return m.handleUpdate(session.Update(msg))

	case transferprogress.ProgressMsg:
		transferProgressModel, transferProgressCmd := m.transferProgress.Update(msg)
		m.transferProgress = transferProgressModel.(transferprogress.Model)
		return m, transferProgressCmd

	case tui.ErrorMsg:
		if m.err != nil || m.state == showFinished {
			return m, nil
		}
		m.err = msg
		m.close()
		return m, tui.ErrorCmd(errors.New(msg.Error()))

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.close()
			return m, tea.Quit
		}
		fileTableModel, fileTableCmd := m.fileTable.Update(msg)
		m.fileTable = fileTableModel.(filetable.Model)
		return m, fileTableCmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		transferProgressModel, transferProgressCmd := m.transferProgress.Update(msg)
		m.transferProgress = transferProgressModel.(transferprogress.Model)
		fileTableModel, fileTableCmd := m.fileTable.Update(msg)
		m.fileTable = fileTableModel.(filetable.Model)
		return m, tea.Batch(transferProgressCmd, fileTableCmd)

	default:
		var spinnerCmd, progressCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		transferProgressModel, progressCmd := m.transferProgress.Update(msg)
		m.transferProgress = transferProgressModel.(transferprogress.Model)
		return m, tea.Batch(spinnerCmd, progressCmd)
	}
}

func (m model) handleUpdate(u session.Update) (tea.Model, tea.Cmd) {
	listen := tui.ListenCmd(m.ctx, m.updates)
	switch u.State {

	case session.Transferring:
		cmds := []tea.Cmd{listen}
		if m.state != showSendingProgress {
			m.state = showSendingProgress
			m.resetSpinner()
			m.transferProgress.StartTransfer()
			cmds = append(cmds, m.spinner.Tick, tui.TaskCmd("Established peer connection to receiver", nil))
		}
		transferProgressModel, transferProgressCmd := m.transferProgress.Update(transferprogress.ProgressMsg(u.Moved))
		m.transferProgress = transferProgressModel.(transferprogress.Model)
		return m, tea.Batch(append(cmds, transferProgressCmd)...)

	case session.Complete:
		if m.state == showAwaitingReceiver {
			return m, listen
		}
		m.state = showAwaitingReceiver
		m.transferProgress.Finish()
		m.resetSpinner()
		message := fmt.Sprintf("Transfer completed in %s with average transfer speed %s/s",
			time.Since(m.transferProgress.TransferStartTime).Round(time.Millisecond).String(),
			tui.ByteCountSI(m.transferProgress.TransferSpeedEstimateBps),
		)
		return m, tui.TaskCmd(message, tea.Batch(m.spinner.Tick, listen))

	case session.Failed:
		m.err = u.Err
		m.close()
		return m, tui.ErrorCmd(u.Err)

	case session.Idle:
		if m.state == showAwaitingReceiver {
			m.state = showFinished
			m.fileTable = m.fileTable.Finalize().(filetable.Model)
			m.close()
			return m, tui.QuitCmd()
		}
		err := u.Err
		if err == nil {
			err = stardrop.ErrCancelled
		}
		if errors.Is(err, session.ErrInvalidCode) {
			//lint:ignore ST1005 error string displayed in tui
			err = fmt.Errorf("No receiver is waiting behind code %s", m.code)
		}
		m.err = err
		m.close()
		return m, tui.ErrorCmd(err)

	default:
		return m, listen
	}
}

// -------------------------------------------------------- View -------------------------------------------------------

func (m model) View() string {
	size := tui.BoldText(tui.ByteCountSI(m.source.Info.Size))
	var status string
	switch m.state {
	case showConnecting:
		status = fmt.Sprintf("%s Connecting to broker, preparing to send %s", m.spinner.View(), size)
	case showHandshake:
		status = fmt.Sprintf("%s Joining receiver behind code %s", m.spinner.View(), tui.BoldText(m.code))
	case showSendingProgress:
		status = fmt.Sprintf("%s Sending %s", m.spinner.View(), size)
	case showAwaitingReceiver:
		status = fmt.Sprintf("%s Sent %s, waiting for receiver to hang up", m.spinner.View(), size)
	case showFinished:
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(fmt.Sprintf("Sent %s (%s)", m.source.Info.Name, size)) + "\n\n" +
			tui.PadText + m.transferProgress.View() + "\n\n" +
			m.fileTable.View()
	}

	var b strings.Builder
	b.WriteString(tui.PadText + tui.LogSeparator(m.width))
	b.WriteString(tui.PadText + tui.InfoStyle(status) + "\n\n")
	if m.state >= showSendingProgress {
		b.WriteString(tui.PadText + m.transferProgress.View() + "\n\n")
	}
	b.WriteString(m.fileTable.View())
	b.WriteString(tui.PadText + m.help.View(m.keys) + "\n\n")
	return b.String()
}

// ------------------------------------------------------ Commands -----------------------------------------------------

// connectCmd command that connects to the broker.
func connectCmd(ctx context.Context, config stardrop.Config, logger *zap.Logger, observer session.Observer) tea.Cmd {
	return func() tea.Msg {
		e, err := stardrop.Connect(ctx, &config, logger, observer)
		if err != nil {
			return tui.ErrorMsg(err)
		}
		return connectMsg{endpoint: e}
	}
}

// sendCmd command that starts the sending session.
func sendCmd(ctx context.Context, e *stardrop.Endpoint, code string, src session.Source) tea.Cmd {
	return func() tea.Msg {
		if err := e.Controller().Send(ctx, code, src); err != nil {
			return tui.ErrorMsg(err)
		}
		return nil
	}
}

// -------------------------------------------------- Helper Functions -------------------------------------------------

func (m *model) close() {
	if m.endpoint != nil {
		m.endpoint.Close()
	}
}

func (m *model) resetSpinner() {
	switch m.state {
	case showConnecting, showAwaitingReceiver:
		m.spinner = tui.NewSpinner(tui.WaitingSpinner)
	case showHandshake:
		m.spinner = tui.NewSpinner(tui.HandshakeSpinner)
	default:
		m.spinner = tui.NewSpinner(tui.TransferSpinner)
	}
}
