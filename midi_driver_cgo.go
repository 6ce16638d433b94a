//go:build cgo

// midi_driver_cgo.go - rtmidi driver registration (requires cgo)

package main

import (
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)
