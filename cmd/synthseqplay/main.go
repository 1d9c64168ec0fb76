// Command synthseqplay compiles a sequencer source file and plays it
// through the reference tonegen synthesizer, in the spirit of
// cmd/play_mml's flag-driven CLI but built on the DSL's Transport instead
// of a Player/Score pair.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/synthseq/synthseq"
	"github.com/synthseq/synthseq/internal/audio"
	"github.com/synthseq/synthseq/internal/tonegen"
)

const defaultSource = `bpm 120
seq: C4 1/4, E4 1/4, G4 1/4, C5 1/4
`

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		loop       = flag.Bool("loop", false, "enable looping playback")
		srcPath    = flag.String("file", "", "path to a sequencer source file")
		srcInline  = flag.String("src", "", "inline sequencer source")
	)
	flag.Parse()

	src, err := resolveSourceInput(*srcPath, *srcInline)
	if err != nil {
		log.Fatal(err)
	}

	result, ok := synthseq.CompileAndReport(src, stderrReporter{})
	if !ok {
		os.Exit(1)
	}

	mixer := tonegen.NewMixer(*sampleRate)
	player, err := audio.NewPlayer(*sampleRate, mixer)
	if err != nil {
		log.Fatal(err)
	}

	transport := synthseq.InitScheduler(result, synthseq.SchedulerConfig{
		Clock:   mixer,
		Sink:    mixer,
		Backend: mixer,
	})
	transport.SetLoopEnabled(*loop)

	done := make(chan struct{})
	wasPlaying := false
	transport.OnStateChange(func(s synthseq.TransportState) {
		if s.Playing {
			wasPlaying = true
			return
		}
		if wasPlaying {
			close(done)
		}
	})

	if err := transport.Play(context.Background()); err != nil {
		log.Fatal(err)
	}
	player.Play()
	fmt.Println("playing")

	<-done
	fmt.Println("playback completed")
	if err := player.Stop(); err != nil {
		log.Fatal(err)
	}
}

func resolveSourceInput(path, inline string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return defaultSource, nil
}

type stderrReporter struct{}

func (stderrReporter) Report(line, column int, message string) {
	fmt.Fprintf(os.Stderr, "%d:%d: %s\n", line, column, message)
}
