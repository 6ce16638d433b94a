// main.go - Entry point: wiring, flags, lifecycle

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func boilerPlate() {
	fmt.Println("\n\033[38;2;20;200;255m ▄▄▄· ▪   ▄▄·       ·▄▄▄▄  .▄▄ ·  ▄▄▄·\033[0m")
	fmt.Println("\033[38;2;60;210;255m▐█ ▄█ ██ ▐█ ▌▪▪     ██▪ ██ ▐█ ▀. ▐█ ▄█\033[0m")
	fmt.Println("\033[38;2;100;220;255m ██▀· ▐█·██ ▄▄ ▄█▀▄ ▐█· ▐█▌▄▀▀▀█▄ ██▀·\033[0m")
	fmt.Println("\033[38;2;140;230;255m▐█▪·• ▐█▌▐███▌▐█▌.▐▌██. ██ ▐█▄▪▐█▐█▪·•\033[0m")
	fmt.Println("\033[38;2;180;240;255m.▀    ▀▀▀·▀▀▀  ▀█▄▀▪▀▀▀▀▀•  ▀▀▀▀ .▀\033[0m")
	fmt.Println("\nPicoDSP - a dual-domain virtual analog synthesizer.")
	fmt.Println("(c) 2024 - 2026 Zayn Otley")
	fmt.Println("https://github.com/IntuitionAmiga/PicoDSP")
	fmt.Println("License: GPLv3 or later")
	fmt.Println()
}

func main() {
	boilerPlate()

	var (
		backend       string
		flashPath     string
		bootSlot      int
		midiIn        string
		useMonitor    bool
		renderPath    string
		renderSeconds float64
	)
	flagSet := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagSet.StringVar(&backend, "backend", AUDIO_BACKEND_OTO, "audio backend: oto, portaudio, none")
	flagSet.StringVar(&flashPath, "flash", "picodsp_flash.bin", "flash image file for preset storage")
	flagSet.IntVar(&bootSlot, "boot-slot", 4, "preset slot loaded at boot, -1 for the init patch")
	flagSet.StringVar(&midiIn, "midi-in", "", "MIDI input port name fragment, empty = first available")
	flagSet.BoolVar(&useMonitor, "monitor", true, "interactive status console")
	flagSet.StringVar(&renderPath, "render", "", "render the demo phrase to this WAV file and exit")
	flagSet.Float64Var(&renderSeconds, "render-seconds", 5.0, "length of the offline render")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	store, closeStore, err := OpenFlashImage(flashPath)
	if err != nil {
		fmt.Printf("Failed to open flash image: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	bus := NewEngineBus()
	voice := NewVoice()
	plane := NewControlPlane(bus, store)

	// Boot snapshot loads synchronously before any rendering, so the first
	// block already sounds like the boot preset.
	if bootSlot >= 0 {
		snap, err := store.Load(bootSlot)
		if err != nil {
			fmt.Printf("Failed to load boot slot %d: %v\n", bootSlot, err)
			os.Exit(1)
		}
		voice.SetSnapshot(snap)
		plane.mirror.Set(snap)
		plane.activeSlot.Store(int32(bootSlot))
		fmt.Printf("Boot preset: slot %d %q\n", bootSlot, snap.Name)
	}

	core := NewAudioCore(bus, voice)

	if renderPath != "" {
		if err := renderToWAV(renderPath, renderSeconds, bus, core); err != nil {
			fmt.Printf("Render failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Rendered %.1fs to %s\n", renderSeconds, renderPath)
		return
	}

	feeder := newStreamFeeder(bus)
	output, err := NewAudioOutput(backend, feeder)
	if err != nil {
		fmt.Printf("Failed to initialize audio: %v\n", err)
		os.Exit(1)
	}

	go core.Run()
	if err := output.Start(); err != nil {
		fmt.Printf("Failed to start audio: %v\n", err)
		os.Exit(1)
	}

	var midiCtl *MidiControl
	mc := NewMidiControl(plane)
	if err := mc.Open(midiIn); err != nil {
		fmt.Printf("MIDI unavailable: %v\n", err)
	} else {
		midiCtl = mc
		fmt.Printf("MIDI input: %s\n", mc.PortName())
		defer mc.Close()
	}

	if useMonitor {
		mon := NewMonitor(core, bus, plane, feeder, midiCtl)
		if err := mon.Run(); err != nil {
			fmt.Printf("Monitor: %v\n", err)
		}
	} else {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		fmt.Println()
	}

	output.Stop()
	core.Stop()
	output.Close()
}
