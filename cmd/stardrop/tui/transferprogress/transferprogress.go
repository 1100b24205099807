package transferprogress

import (
	"fmt"
	"math"
	"time"

	"github.com/SpatiumPortae/stardrop/cmd/stardrop/tui"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
)

// ProgressMsg reports the number of bytes moved so far.
type ProgressMsg int64

type Model struct {
	PayloadSize                int64
	bytesTransferred           int64
	progress                   float64
	TransferStartTime          time.Time
	TransferSpeedEstimateBps   int64
	EstimatedRemainingDuration time.Duration

	Width       int
	progressBar progress.Model
}

func New() Model {
	return Model{
		progressBar: progress.New(progress.WithGradient(tui.SECONDARY_ELEMENT_COLOR, tui.ELEMENT_COLOR)),
	}
}

func (m *Model) StartTransfer() {
	m.TransferStartTime = time.Now()
}

// Finish fills the bar, empty payloads never report moved bytes.
func (m *Model) Finish() {
	m.progress = 1
}

func (Model) Init() tea.Cmd {
	return nil
}

func (m Model) View() string {
	return m.progressBar.ViewAs(m.progress) + "  " +
		tui.HelpStyle(fmt.Sprintf("%s/s, %s remaining",
			tui.ByteCountSI(m.TransferSpeedEstimateBps),
			m.EstimatedRemainingDuration.Round(time.Second)))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.Width = msg.Width - 2*tui.MARGIN - 4
		if m.Width > tui.MAX_WIDTH {
			m.Width = tui.MAX_WIDTH
		}
		m.progressBar.Width = m.Width / 2
		return m, nil

	case ProgressMsg:
		if m.TransferStartTime.IsZero() {
			m.StartTransfer()
		}
		m.bytesTransferred = int64(msg)
		if m.bytesTransferred == 0 || m.PayloadSize == 0 {
			return m, nil
		}
		secondsSpent := time.Since(m.TransferStartTime).Seconds()
		bytesRemaining := m.PayloadSize - m.bytesTransferred
		linearRemainingSeconds := float64(bytesRemaining) * secondsSpent / float64(m.bytesTransferred)
		if remainingDuration, err := time.ParseDuration(fmt.Sprintf("%fs", linearRemainingSeconds)); err != nil {
			return m, tui.ErrorCmd(errors.Wrap(err, "failed to parse duration of estimated remaining transfer time"))
		} else {
			m.EstimatedRemainingDuration = remainingDuration
		}
		if secondsSpent > 0 {
			m.TransferSpeedEstimateBps = int64(float64(m.bytesTransferred) / secondsSpent)
		}
		m.progress = math.Min(1.0, float64(m.bytesTransferred)/float64(m.PayloadSize))
		return m, nil

	case progress.FrameMsg:
		progressModel, cmd := m.progressBar.Update(msg)
		m.progressBar = progressModel.(progress.Model)
		return m, cmd

	default:
		return m, nil
	}
}
