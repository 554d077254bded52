package signalflows

import "github.com/san-kum/dynrenderer/internal/graph"

// audioSource is a graph entry point with no inputs: its output rows are
// written directly by the driving ProcessBlock call (via Channels) before
// the schedule runs, mirroring graph's own testSource fixture. Process is
// a no-op because the content is external, not computed.
type audioSource struct {
	graph.Base
	out *graph.AudioPort
}

func newAudioSource(name string, width int) *audioSource {
	s := &audioSource{Base: graph.NewBase(name)}
	s.out = s.AddAudioPort(graph.NewAudioPort(s, "out", graph.Output, width))
	return s
}

func (s *audioSource) Output() *graph.AudioPort { return s.out }

// Channels returns the resolved output rows for direct writing. Valid
// only after the owning graph has been flattened.
func (s *audioSource) Channels() [][]float64 {
	rows := make([][]float64, s.out.Width)
	for ch := range rows {
		rows[ch] = s.out.Channel(ch)
	}
	return rows
}

func (s *audioSource) Process(ctx *graph.SignalFlowContext) error { return nil }
