// Command test-gps is a manual test for the GPS receiver.
// It prints every line from the source and each decoded fix.
//
// Usage:
//
//	go run ./cmd/test-gps [--device /dev/serial0] [--baud 9600] [--sim] [--legacy]
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/bikenav/internal/gps"
	"github.com/chaz8081/bikenav/internal/output"
)

func main() {
	device := flag.String("device", "/dev/serial0", "receiver serial device")
	baud := flag.Uint("baud", 9600, "receiver baud rate")
	sim := flag.Bool("sim", false, "use the simulated receiver instead of the serial port")
	legacy := flag.Bool("legacy", false, "decode longitude degrees from two characters")
	flag.Parse()

	var source gps.LineSource
	if *sim {
		source = gps.NewSimSource(gps.SimOptions{Latitude: 37.7749, Longitude: -122.4194})
		fmt.Println("Simulating a receiver at 37.774900, -122.419400")
	} else {
		src, err := gps.OpenSerial(gps.SerialOptions{Device: *device, Baud: *baud})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		source = src
		fmt.Printf("Reading %s at %d baud\n", *device, *baud)
	}
	defer source.Close()

	fmt.Println("Waiting for $GPGGA sentences. Ctrl+C to quit.")

	decoder := gps.NewDecoder(gps.DecoderOptions{LegacyLongitude: *legacy})
	console := output.NewConsoleSink(os.Stdout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	lines, fixes := 0, 0
	for {
		select {
		case <-sigCh:
			fmt.Printf("\n%d lines, %d fixes\n", lines, fixes)
			return
		case <-ticker.C:
			n, f := drain(os.Stdout, source, decoder, console)
			lines += n
			fixes += f
		}
	}
}

// drain echoes every pending line to w and publishes each decoded fix.
// Publish errors are printed to w.
func drain(w io.Writer, source gps.LineSource, decoder *gps.Decoder, pub output.FixPublisher) (lines, fixes int) {
	for {
		line, ok := source.Poll()
		if !ok {
			return lines, fixes
		}
		lines++
		fmt.Fprintf(w, "  %s\n", line)
		if fix, ok := decoder.Feed(line); ok {
			fixes++
			if err := pub.PublishFix(fix); err != nil {
				fmt.Fprintf(w, "Error: %v\n", err)
			}
		}
	}
}
