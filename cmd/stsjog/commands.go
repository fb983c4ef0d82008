package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/stsjog/pkg/config"
	"github.com/gwillem/stsjog/pkg/ports"
	"github.com/gwillem/stsjog/pkg/servo"
	"github.com/gwillem/stsjog/pkg/session"
	"github.com/gwillem/stsjog/pkg/telemetry"
)

type PortsCommand struct{}

func (c *PortsCommand) Execute(args []string) error {
	list, err := ports.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}

	cfg, _ := config.LoadOrDefault(opts.Config)
	for _, p := range list {
		line := p.Name
		if p.Description != "" {
			line += "  " + dimStyle.Render(p.Description)
		}
		if cfg != nil && cfg.Port == p.Name {
			line += "  " + successStyle.Render("(configured)")
		}
		fmt.Println(line)
	}
	return nil
}

type InitCommand struct {
	Force bool `short:"f" long:"force" description:"Overwrite an existing configuration file"`
}

func (c *InitCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("stsjog init"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━"))
	fmt.Println()

	if config.Exists(opts.Config) && !c.Force {
		return fmt.Errorf("%s already exists, use --force to overwrite", opts.Config)
	}

	list, err := ports.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return errors.New("no serial ports found, is the bus adapter plugged in?")
	}

	options := make([]huh.Option[string], 0, len(list))
	for _, p := range list {
		options = append(options, huh.NewOption(p.String(), p.Name))
	}

	cfg := config.Default()
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is the servo bus on?").
				Options(options...).
				Value(&cfg.Port),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println(successStyle.Render("Configuration saved to " + opts.Config))
	fmt.Println()
	fmt.Println("Find your motors with: " + headerStyle.Render("stsjog scan"))
	return nil
}

type ScanCommand struct {
	First int  `long:"first" default:"-1" description:"First ID to probe (default from config)"`
	Last  int  `long:"last" default:"-1" description:"Last ID to probe (default from config)"`
	All   bool `long:"all" description:"Probe every ID from 0 to 253"`
}

func (c *ScanCommand) scanRange(cfg *config.Config) servo.IDRange {
	if c.All {
		return servo.FullScanRange
	}
	r := cfg.ScanRange()
	if c.First >= 0 {
		r.First = c.First
	}
	if c.Last >= 0 {
		r.Last = c.Last
	}
	return r
}

func (c *ScanCommand) Execute(args []string) error {
	cfg, ctrl, err := loadAndConnect()
	if err != nil {
		return err
	}
	defer ctrl.Disconnect()

	r := c.scanRange(cfg)
	if err := r.Validate(); err != nil {
		return err
	}

	ctx, cancel := interruptible()
	defer cancel()

	fmt.Printf("Scanning %s for IDs %s...\n", cfg.Port, r)
	task := ctrl.StartScan(ctx, r)
	for p := range task.Progress() {
		fmt.Printf("\r  %3d%%  id %-3d  found: %s", p.Percent, p.ID, formatIDs(p.Found))
	}
	fmt.Println()

	found, err := task.Wait()
	if errors.Is(err, context.Canceled) {
		fmt.Println(dimStyle.Render("Scan interrupted."))
	} else if err != nil {
		return err
	}

	if len(found) == 0 {
		fmt.Println("No motors found.")
		fmt.Println("Check power, wiring and baud rate.")
		return nil
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Found %d motor(s): %s", len(found), formatIDs(found))))
	return nil
}

type PingCommand struct {
	Args MotorArg `positional-args:"yes" required:"yes"`
}

func (c *PingCommand) Execute(args []string) error {
	cfg, ctrl, err := loadAndConnect()
	if err != nil {
		return err
	}
	defer ctrl.Disconnect()

	ctx, cancel := commandContext(cfg)
	defer cancel()

	p := ctrl.Ping(ctx, c.Args.ID)
	style := successStyle
	if p == session.Absent {
		style = errorStyle
	}
	fmt.Printf("Motor %d: %s\n", c.Args.ID, style.Render(p.String()))
	return nil
}

type MoveCommand struct {
	Speed int `short:"s" long:"speed" default:"-1" description:"Speed in steps/s, 0-3400 (default from config)"`
	Accel int `short:"a" long:"accel" default:"-1" description:"Acceleration, 0-254 (default from config)"`
	Args  struct {
		ID       int `positional-arg-name:"id" description:"Motor ID"`
		Position int `positional-arg-name:"position" description:"Goal position, 0-4095"`
	} `positional-args:"yes" required:"yes"`
}

// motion resolves the flags against the configured defaults and checks
// every parameter against its register range.
func (c *MoveCommand) motion(cfg *config.Config) (speed, accel int, err error) {
	speed, accel = cfg.Motion.Speed, cfg.Motion.Acceleration
	if c.Speed >= 0 {
		speed = c.Speed
	}
	if c.Accel >= 0 {
		accel = c.Accel
	}
	err = errors.Join(
		servo.PositionRange.Check("position", c.Args.Position),
		servo.SpeedRange.Check("speed", speed),
		servo.AccelerationRange.Check("acceleration", accel),
	)
	return speed, accel, err
}

func (c *MoveCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	speed, accel, err := c.motion(cfg)
	if err != nil {
		return err
	}

	ctrl, err := connect(cfg)
	if err != nil {
		return err
	}
	defer ctrl.Disconnect()

	ctx, cancel := commandContext(cfg)
	defer cancel()

	if err := ctrl.MoveTo(ctx, c.Args.ID, c.Args.Position, speed, accel); err != nil {
		return err
	}
	fmt.Printf("Motor %d moving to %d (speed %d, acceleration %d)\n", c.Args.ID, c.Args.Position, speed, accel)
	return nil
}

type StatusCommand struct {
	Watch bool     `short:"w" long:"watch" description:"Keep polling until interrupted"`
	Args  MotorArg `positional-args:"yes" required:"yes"`
}

func (c *StatusCommand) Execute(args []string) error {
	cfg, ctrl, err := loadAndConnect()
	if err != nil {
		return err
	}
	defer ctrl.Disconnect()

	if c.Watch {
		return watchStatus(ctrl, c.Args.ID, cfg)
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()

	st, err := ctrl.ReadStatus(ctx, c.Args.ID)
	if err != nil {
		return err
	}
	fmt.Println(subHeaderStyle.Render(fmt.Sprintf("Motor %d", c.Args.ID)))
	fmt.Println(renderStatusTable(st))
	return nil
}

func watchStatus(ctrl *session.Controller, id int, cfg *config.Config) error {
	ctx, cancel := interruptible()
	defer cancel()

	poller := telemetry.NewPoller(ctrl, telemetry.Config{
		MotorID:  id,
		Interval: cfg.PollInterval(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- poller.Start(ctx)
	}()

	for {
		select {
		case s := <-poller.Samples():
			ts := dimStyle.Render(s.Timestamp.Format("15:04:05.000"))
			if s.Error != nil {
				fmt.Printf("%s %s\n", ts, errorStyle.Render(s.Error.Error()))
				continue
			}
			fmt.Printf("%s %s\n", ts, s.Status)
		case err := <-errCh:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func renderStatusTable(st session.Status) string {
	moving := "no"
	if st.Moving {
		moving = "yes"
	}
	rows := [][]string{
		{"Position", fmt.Sprintf("%d", st.Position), fmt.Sprintf("%.1f%%", servo.PositionRange.Percent(st.Position))},
		{"Speed", fmt.Sprintf("%d", st.Speed), "steps/s"},
		{"Temperature", fmt.Sprintf("%d", st.Temperature), "°C"},
		{"Voltage", fmt.Sprintf("%.1f", st.Voltage), "V"},
		{"Current", fmt.Sprintf("%.0f", st.Current), "mA"},
		{"Load", fmt.Sprintf("%d", st.Load), "%"},
		{"Moving", moving, ""},
	}

	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1).Align(lipgloss.Right)
	unitStyle := dimStyle.Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch col {
			case 0:
				return labelStyle
			case 1:
				return valueStyle
			default:
				return unitStyle
			}
		})
	return t.Render()
}

type StopCommand struct {
	Args MotorArg `positional-args:"yes" required:"yes"`
}

func (c *StopCommand) Execute(args []string) error {
	cfg, ctrl, err := loadAndConnect()
	if err != nil {
		return err
	}
	defer ctrl.Disconnect()

	ctx, cancel := commandContext(cfg)
	defer cancel()

	if err := ctrl.Stop(ctx, c.Args.ID); err != nil {
		return err
	}
	fmt.Printf("Motor %d stopped, torque off\n", c.Args.ID)
	return nil
}

type TorqueCommand struct {
	Args struct {
		ID    int    `positional-arg-name:"id" description:"Motor ID"`
		State string `positional-arg-name:"on|off"`
	} `positional-args:"yes" required:"yes"`
}

func (c *TorqueCommand) Execute(args []string) error {
	enable, err := parseOnOff(strings.ToLower(c.Args.State))
	if err != nil {
		return err
	}

	cfg, ctrl, err := loadAndConnect()
	if err != nil {
		return err
	}
	defer ctrl.Disconnect()

	ctx, cancel := commandContext(cfg)
	defer cancel()

	if err := ctrl.SetTorque(ctx, c.Args.ID, enable); err != nil {
		return err
	}
	state := "off"
	if enable {
		state = "on"
	}
	fmt.Printf("Motor %d torque %s\n", c.Args.ID, state)
	return nil
}

type SetIDCommand struct {
	Yes  bool `short:"y" long:"yes" description:"Do not ask for confirmation"`
	Args struct {
		Current int `positional-arg-name:"current" description:"Current motor ID"`
		New     int `positional-arg-name:"new" description:"New motor ID"`
	} `positional-args:"yes" required:"yes"`
}

func (c *SetIDCommand) Execute(args []string) error {
	if err := errors.Join(servo.ValidateID(c.Args.Current), servo.ValidateID(c.Args.New)); err != nil {
		return err
	}
	if c.Args.Current == c.Args.New {
		fmt.Printf("Motor already has ID %d\n", c.Args.New)
		return nil
	}

	cfg, ctrl, err := loadAndConnect()
	if err != nil {
		return err
	}
	defer ctrl.Disconnect()

	pingCtx, cancelPing := commandContext(cfg)
	current, taken := ctrl.Ping(pingCtx, c.Args.Current), ctrl.Ping(pingCtx, c.Args.New)
	cancelPing()

	if current == session.Absent {
		return fmt.Errorf("no motor answers at ID %d", c.Args.Current)
	}
	if taken == session.Present {
		fmt.Println(errorStyle.Render(fmt.Sprintf("Warning: a motor already answers at ID %d", c.Args.New)))
	}

	if !c.Yes {
		confirmed := false
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Change motor %d to ID %d?", c.Args.Current, c.Args.New)).
					Description("The new ID is written to EEPROM and survives power cycles").
					Value(&confirmed),
			),
		)
		if err := form.Run(); err != nil || !confirmed {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()

	if err := ctrl.ChangeID(ctx, c.Args.Current, c.Args.New); err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Motor %d is now ID %d", c.Args.Current, c.Args.New)))
	return nil
}
