package main

import (
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/gwillem/stsjog/pkg/config"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"stsjog.json" description:"Configuration file"`
	Port    string `short:"p" long:"port" description:"Serial port, overrides the configuration file"`
	Baud    int    `long:"baud" description:"Baud rate, overrides the configuration file"`
	Timeout int    `long:"timeout" value-name:"MS" description:"Response timeout in milliseconds"`
	Sim     string `long:"sim" value-name:"IDS" description:"Use a simulated bus with motors at IDS, e.g. 1-6,12"`
	Verbose bool   `short:"v" long:"verbose" description:"Log debug output to stderr"`

	Ports  PortsCommand  `command:"ports" description:"List serial ports"`
	Init   InitCommand   `command:"init" description:"Pick a serial port and write the configuration file"`
	Scan   ScanCommand   `command:"scan" description:"Find motors on the bus"`
	Ping   PingCommand   `command:"ping" description:"Check whether a motor answers"`
	Move   MoveCommand   `command:"move" description:"Move a motor to a position"`
	Status StatusCommand `command:"status" description:"Read motor telemetry"`
	Stop   StopCommand   `command:"stop" description:"Disable motor torque"`
	Torque TorqueCommand `command:"torque" description:"Enable or disable motor torque"`
	SetID  SetIDCommand  `command:"set-id" description:"Change the bus ID of a motor"`
	Jog    JogCommand    `command:"jog" description:"Interactive jog screen"`
}

var opts = Options{Config: config.DefaultConfigFile}
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "stsjog - jog and inspect Feetech STS3215 serial bus servos"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
