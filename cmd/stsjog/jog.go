package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/stsjog/pkg/config"
	"github.com/gwillem/stsjog/pkg/servo"
	"github.com/gwillem/stsjog/pkg/session"
	"github.com/gwillem/stsjog/pkg/telemetry"
)

type JogCommand struct {
	Motor       int    `short:"m" long:"motor" default:"-1" description:"Motor to select first (default: first found)"`
	Step        int    `long:"step" default:"50" description:"Position change per arrow key"`
	MetricsAddr string `long:"metrics-addr" value-name:"ADDR" description:"Serve Prometheus metrics on ADDR, e.g. :9090"`
	LogFile     string `long:"log-file" description:"Write debug log to this file"`
}

const (
	headerHeight = 4 // title, scan line, motors line, blank
	motionHeight = 2 // motion line + blank
	footerHeight = 9 // log box + help line
	maxLogs      = 6 // number of log messages to show
	borderSize   = 2 // chart border
	speedStep    = 100
)

const (
	positionSet = "position"
	targetSet   = "target"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("14")).Padding(0, 1)
	motorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
)

type jogModel struct {
	ctx    context.Context
	ctrl   *session.Controller
	poller *telemetry.Poller
	port   string
	scanR  servo.IDRange

	chart  *streamlinechart.Model
	width  int
	height int
	logs   []string

	scan     *session.ScanTask
	progress session.Progress
	motors   []int
	selected int // index into motors
	prefer   int // motor to select after a scan, -1 for the first
	polling  bool

	sample    telemetry.Sample
	hasTarget bool
	target    int
	speed     int
	accel     int
	step      int
	torque    bool
	quitting  bool
}

// Messages from the controller and poller
type progressMsg session.Progress
type scanDoneMsg struct {
	found []int
	err   error
}
type sampleMsg telemetry.Sample
type logMsg string
type resultMsg struct {
	op  string
	err error
}
type rescanMsg struct{}

func waitForProgress(task *session.ScanTask) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-task.Progress()
		if !ok {
			found, err := task.Wait()
			return scanDoneMsg{found: found, err: err}
		}
		return progressMsg(p)
	}
}

func waitForSample(p *telemetry.Poller) tea.Cmd {
	return func() tea.Msg {
		return sampleMsg(<-p.Samples())
	}
}

func waitForLog(p *telemetry.Poller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-p.Logs())
	}
}

func startPolling(ctx context.Context, p *telemetry.Poller) tea.Cmd {
	return func() tea.Msg {
		err := p.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return logMsg(stamp("Polling failed: " + err.Error()))
		}
		return nil
	}
}

func stamp(msg string) string {
	return fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg)
}

func newJogModel(ctx context.Context, ctrl *session.Controller, cfg *config.Config, c *JogCommand) jogModel {
	chart := streamlinechart.New(60, 12,
		streamlinechart.WithYRange(float64(servo.PositionRange.Min), float64(servo.PositionRange.Max)),
	)
	chart.SetDataSetStyles(positionSet, runes.ThinLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("46")))
	chart.SetDataSetStyles(targetSet, runes.ThinLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("208")))

	step := c.Step
	if step <= 0 {
		step = 50
	}

	return jogModel{
		ctx:  ctx,
		ctrl: ctrl,
		poller: telemetry.NewPoller(ctrl, telemetry.Config{
			MotorID:  c.Motor,
			Interval: cfg.PollInterval(),
		}),
		port:   cfg.Port,
		scanR:  cfg.ScanRange(),
		chart:  &chart,
		prefer: c.Motor,
		speed:  cfg.Motion.Speed,
		accel:  cfg.Motion.Acceleration,
		step:   step,
	}
}

func (m *jogModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m *jogModel) startScan() tea.Cmd {
	m.scan = m.ctrl.StartScan(m.ctx, m.scanR)
	m.progress = session.Progress{}
	m.addLog(stamp(fmt.Sprintf("Scanning IDs %s", m.scanR)))
	return waitForProgress(m.scan)
}

// motor returns the selected motor ID.
func (m *jogModel) motor() (int, bool) {
	if len(m.motors) == 0 {
		return 0, false
	}
	return m.motors[m.selected], true
}

func (m *jogModel) selectIndex(i int) tea.Cmd {
	if len(m.motors) == 0 {
		return nil
	}
	m.selected = (i%len(m.motors) + len(m.motors)) % len(m.motors)
	m.hasTarget = false
	m.sample = telemetry.Sample{}
	m.torque = false

	id := m.motors[m.selected]
	m.poller.SetMotor(id)
	if !m.polling {
		m.polling = true
		return startPolling(m.ctx, m.poller)
	}
	return nil
}

// run executes a controller operation off the UI goroutine.
func (m *jogModel) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return resultMsg{op: op, err: fn(ctx)}
	}
}

func (m *jogModel) moveCmd() tea.Cmd {
	id, ok := m.motor()
	if !ok || !m.hasTarget {
		return nil
	}
	target, speed, accel := m.target, m.speed, m.accel
	return m.run(fmt.Sprintf("move %d to %d", id, target), func(ctx context.Context) error {
		return m.ctrl.MoveTo(ctx, id, target, speed, accel)
	})
}

func (m *jogModel) jog(delta int) tea.Cmd {
	if !m.hasTarget {
		return nil
	}
	m.target = servo.PositionRange.Clamp(m.target + delta)
	return m.moveCmd()
}

func (m *jogModel) torqueCmd(enable bool) tea.Cmd {
	id, ok := m.motor()
	if !ok {
		return nil
	}
	m.torque = enable
	op := fmt.Sprintf("torque %d off", id)
	if enable {
		op = fmt.Sprintf("torque %d on", id)
	}
	return m.run(op, func(ctx context.Context) error {
		return m.ctrl.SetTorque(ctx, id, enable)
	})
}

func (m *jogModel) tableWidth() int {
	return lipgloss.Width(renderStatusTable(session.Status{}))
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *jogModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 60, 12 // default size before we know terminal size
	}
	width = max(m.width-m.tableWidth()-borderSize-2, 30)
	height = max(m.height-headerHeight-motionHeight-footerHeight-borderSize, 9)
	return width, height
}

func (m *jogModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func (m jogModel) Init() tea.Cmd {
	// The first scan starts from Update so the task is kept in the model
	return tea.Batch(
		func() tea.Msg { return rescanMsg{} },
		waitForSample(m.poller),
		waitForLog(m.poller),
	)
}

func (m jogModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case rescanMsg:
		if m.scan != nil {
			return m, nil
		}
		cmd := m.startScan()
		return m, cmd

	case progressMsg:
		m.progress = session.Progress(msg)
		return m, waitForProgress(m.scan)

	case scanDoneMsg:
		return m.handleScanDone(msg)

	case sampleMsg:
		s := telemetry.Sample(msg)
		if id, ok := m.motor(); ok && s.ID == id {
			m.sample = s
			if s.Error == nil {
				if !m.hasTarget {
					m.target = s.Status.Position
					m.hasTarget = true
				}
				m.chart.PushDataSet(positionSet, float64(s.Status.Position))
				m.chart.PushDataSet(targetSet, float64(m.target))
				m.chart.DrawAll()
			}
		}
		return m, waitForSample(m.poller)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.poller)

	case resultMsg:
		if msg.err != nil {
			m.addLog(stamp(fmt.Sprintf("%s: %v", msg.op, msg.err)))
		} else if !strings.HasPrefix(msg.op, "move") {
			m.addLog(stamp(msg.op))
		}
		return m, nil
	}

	return m, nil
}

func (m jogModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.scan != nil {
			m.scan.Cancel()
		}
		return m, tea.Quit

	case "r":
		return m.Update(rescanMsg{})

	case "tab", "n":
		cmd := m.selectIndex(m.selected + 1)
		return m, cmd
	case "shift+tab", "p":
		cmd := m.selectIndex(m.selected - 1)
		return m, cmd

	case "left":
		cmd := m.jog(-m.step)
		return m, cmd
	case "right":
		cmd := m.jog(m.step)
		return m, cmd
	case "pgdown":
		cmd := m.jog(-10 * m.step)
		return m, cmd
	case "pgup":
		cmd := m.jog(10 * m.step)
		return m, cmd
	case "c":
		if !m.hasTarget {
			return m, nil
		}
		m.target = (servo.PositionRange.Min + servo.PositionRange.Max + 1) / 2
		cmd := m.moveCmd()
		return m, cmd
	case "enter":
		cmd := m.moveCmd()
		return m, cmd

	case "up":
		m.speed = servo.SpeedRange.Clamp(m.speed + speedStep)
		return m, nil
	case "down":
		m.speed = servo.SpeedRange.Clamp(m.speed - speedStep)
		return m, nil

	case "t":
		cmd := m.torqueCmd(true)
		return m, cmd
	case " ", "s":
		cmd := m.torqueCmd(false)
		return m, cmd
	}
	return m, nil
}

func (m jogModel) handleScanDone(msg scanDoneMsg) (tea.Model, tea.Cmd) {
	m.scan = nil
	if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
		m.addLog(stamp("Scan failed: " + msg.err.Error()))
		return m, nil
	}

	previous, hadMotor := m.motor()
	m.motors = msg.found
	m.addLog(stamp(fmt.Sprintf("Found %d motor(s): %s", len(msg.found), formatIDs(msg.found))))
	if len(m.motors) == 0 {
		return m, nil
	}

	want := m.prefer
	if hadMotor {
		want = previous
	}
	idx := slices.Index(m.motors, want)
	if idx < 0 {
		idx = 0
	}
	if hadMotor && m.motors[idx] == previous {
		m.selected = idx
		return m, nil
	}
	cmd := m.selectIndex(idx)
	return m, cmd
}

func (m jogModel) View() string {
	if m.quitting {
		return "Jog stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("stsjog"))
	sb.WriteString(fmt.Sprintf(" - %s", m.port))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n")
	sb.WriteString(m.renderScanLine())
	sb.WriteString("\n")
	sb.WriteString(m.renderMotors())
	sb.WriteString("\n\n")

	// Status table and chart
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatus(),
		chartStyle.Render(m.chart.View()),
	))
	sb.WriteString("\n")

	// Motion line
	sb.WriteString(m.renderMotion())
	sb.WriteString("\n\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 40)).
		Height(maxLogs)

	logLines := statusStyle.Render("No messages")
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render("←/→ jog  pgup/pgdn jog x10  c center  enter move  ↑/↓ speed  t torque on  space stop  tab motor  r rescan  q quit"))

	return sb.String()
}

func (m jogModel) renderScanLine() string {
	if m.scan == nil {
		return statusStyle.Render(fmt.Sprintf("Scanned IDs %s", m.scanR))
	}
	width := 30
	filled := m.progress.Percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("Scanning %s %s %3d%%", m.scanR, bar, m.progress.Percent)
}

func (m jogModel) renderMotors() string {
	if len(m.motors) == 0 {
		return statusStyle.Render("No motors")
	}
	items := make([]string, 0, len(m.motors))
	for i, id := range m.motors {
		label := fmt.Sprintf("%d", id)
		if i == m.selected {
			items = append(items, selectedStyle.Render(label))
		} else {
			items = append(items, motorStyle.Render(label))
		}
	}
	return "Motors: " + strings.Join(items, " ")
}

func (m jogModel) renderStatus() string {
	if m.sample.Error != nil {
		return errorStyle.Render(renderStatusTable(session.Status{}))
	}
	return renderStatusTable(m.sample.Status)
}

func (m jogModel) renderMotion() string {
	if !m.hasTarget {
		return statusStyle.Render("Waiting for position...")
	}
	torque := errorStyle.Render("off")
	if m.torque {
		torque = successStyle.Render("on")
	}
	return fmt.Sprintf("Target %s (%.1f%%)  speed %d  accel %d  step %d  torque %s",
		headerStyle.Render(fmt.Sprintf("%d", m.target)),
		servo.PositionRange.Percent(m.target),
		m.speed, m.accel, m.step, torque)
}

func (c *JogCommand) logger() (*slog.Logger, func(), error) {
	if c.LogFile == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return newLogger(f, true), func() { f.Close() }, nil
}

// serveMetrics registers controller metrics on a new registry and serves
// them on addr until the returned closer is called.
func serveMetrics(addr string, log *slog.Logger) (*session.Metrics, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := session.NewMetrics(reg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "error", err)
		}
	}()
	log.Info("serving metrics", "addr", ln.Addr().String())

	return metrics, func() { srv.Close() }, nil
}

func (c *JogCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, closeLog, err := c.logger()
	if err != nil {
		return err
	}
	defer closeLog()

	sessionOpts := []session.Option{session.WithLogger(log)}
	if c.MetricsAddr != "" {
		metrics, stop, err := serveMetrics(c.MetricsAddr, log)
		if err != nil {
			return err
		}
		defer stop()
		sessionOpts = append(sessionOpts, session.WithMetrics(metrics))
	}

	ctrl, err := connect(cfg, sessionOpts...)
	if err != nil {
		return err
	}
	defer ctrl.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run TUI
	p := tea.NewProgram(newJogModel(ctx, ctrl, cfg, c), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run jog screen: %w", err)
	}
	return nil
}
