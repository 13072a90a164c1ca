// Package main provides the freqtest CLI.
//
// freqtest drives a TF930 frequency counter over a serial port, classifies
// each reading against a target frequency and tolerance, and keeps running
// drift statistics.
//
// Usage:
//
//	freqtest ports
//	freqtest read --port /dev/ttyACM0 --count 5
//	freqtest timed 30 --port /dev/ttyACM0
//	freqtest serve --config freqtest.yaml
package main

func main() {
	Execute()
}
