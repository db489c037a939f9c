// Command drumfw runs the drum machine timing and transfer engine as a
// host-simulated process: an internal clock, MIDI I/O, the step sequencer,
// and the sample/firmware transfer core, all driven by the cooperative
// event loop of internal/loop.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/datomusic/drum-firmware/internal/app"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	application, err := app.New(args, nil)
	if errors.Is(err, app.ErrHelpRequested) {
		return nil
	}
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		close(stop)
	}()

	application.Run(stop)
	return nil
}
