package audio

import (
	"errors"
	"sync"

	"meetrec/internal/domain"
	"meetrec/internal/ports"
)

// Mixer zips up to two mono sources into one interleaved stream. The
// microphone is always channel 0 and system audio channel 1. A single source
// passes through as mono.
type Mixer struct {
	sources    []ports.AudioSource
	sampleRate int
	block      int

	out       chan domain.AudioFrame
	done      chan struct{}
	closeOnce sync.Once
}

func NewMixer(sampleRate int, blockSamples int, sources []ports.AudioSource) (*Mixer, error) {
	if len(sources) == 0 {
		return nil, errors.New("mixer needs at least one source")
	}
	if len(sources) > 2 {
		return nil, errors.New("mixer supports at most two sources")
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if blockSamples <= 0 {
		blockSamples = sampleRate / 10
	}

	ordered := make([]ports.AudioSource, 0, len(sources))
	for _, kind := range []domain.SourceKind{domain.SourceMicrophone, domain.SourceSystem} {
		for _, src := range sources {
			if src.Kind() == kind {
				ordered = append(ordered, src)
			}
		}
	}
	if len(ordered) != len(sources) {
		return nil, errors.New("mixer sources must be one microphone and at most one system stream")
	}

	m := &Mixer{
		sources:    ordered,
		sampleRate: sampleRate,
		block:      blockSamples,
		out:        make(chan domain.AudioFrame, 8),
		done:       make(chan struct{}),
	}
	if len(ordered) == 1 {
		go m.passthrough(ordered[0])
	} else {
		go m.merge(m.read(ordered[0]), m.read(ordered[1]))
	}
	return m, nil
}

func (m *Mixer) Output() <-chan domain.AudioFrame {
	return m.out
}

func (m *Mixer) Channels() int {
	return len(m.sources)
}

func (m *Mixer) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	return nil
}

func (m *Mixer) passthrough(src ports.AudioSource) {
	defer close(m.out)
	for {
		buf := make([]float32, m.block)
		n, err := readBlock(src, buf)
		if n > 0 {
			frame := domain.AudioFrame{SampleRate: m.sampleRate, Channels: 1, Samples: buf[:n]}
			select {
			case m.out <- frame:
			case <-m.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (m *Mixer) read(src ports.AudioSource) chan []float32 {
	blocks := make(chan []float32, 4)
	go func() {
		defer close(blocks)
		for {
			buf := make([]float32, m.block)
			n, err := readBlock(src, buf)
			if n > 0 {
				select {
				case blocks <- buf[:n]:
				case <-m.done:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return blocks
}

func (m *Mixer) merge(mic chan []float32, system chan []float32) {
	defer close(m.out)
	for mic != nil || system != nil {
		var left, right []float32
		if mic != nil {
			select {
			case blk, ok := <-mic:
				if !ok {
					mic = nil
				}
				left = blk
			case <-m.done:
				return
			}
		}
		if system != nil {
			select {
			case blk, ok := <-system:
				if !ok {
					system = nil
				}
				right = blk
			case <-m.done:
				return
			}
		}
		if len(left) == 0 && len(right) == 0 {
			continue
		}

		frame := domain.AudioFrame{
			SampleRate: m.sampleRate,
			Channels:   2,
			Samples:    interleave(left, right),
		}
		select {
		case m.out <- frame:
		case <-m.done:
			return
		}
	}
}

// interleave pairs left and right, zero-filling the shorter side.
func interleave(left []float32, right []float32) []float32 {
	n := len(left)
	if len(right) > n {
		n = len(right)
	}
	out := make([]float32, n*2)
	for i, s := range left {
		out[i*2] = s
	}
	for i, s := range right {
		out[i*2+1] = s
	}
	return out
}

func readBlock(src ports.AudioSource, buf []float32) (int, error) {
	filled := 0
	for filled < len(buf) {
		n, err := src.ReadSamples(buf[filled:])
		filled += n
		if err != nil {
			return filled, err
		}
	}
	return filled, nil
}
