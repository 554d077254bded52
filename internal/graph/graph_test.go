package graph

import (
	"fmt"
	"testing"

	"github.com/san-kum/dynrenderer/internal/diagnostics"
)

// testSource is a minimal atomic component with a single output port
// whose contents are fixed at construction time, used to drive identity
// and ordering tests without depending on the rcl package.
type testSource struct {
	Base
	out     *AudioPort
	pattern []float64
}

func newTestSource(name string, width int, pattern []float64) *testSource {
	s := &testSource{Base: NewBase(name), pattern: pattern}
	s.out = s.AddAudioPort(NewAudioPort(s, "out", Output, width))
	return s
}

func (s *testSource) Process(ctx *SignalFlowContext) error {
	for ch := 0; ch < s.out.Width; ch++ {
		row := s.out.Channel(ch)
		for i := 0; i < ctx.BlockSize; i++ {
			row[i] = s.pattern[i%len(s.pattern)]
		}
	}
	return nil
}

// testIdentity copies its single input to its single output.
type testIdentity struct {
	Base
	in, out *AudioPort
}

func newTestIdentity(name string, width int) *testIdentity {
	a := &testIdentity{Base: NewBase(name)}
	a.in = a.AddAudioPort(NewAudioPort(a, "in", Input, width))
	a.out = a.AddAudioPort(NewAudioPort(a, "out", Output, width))
	return a
}

func (a *testIdentity) Process(ctx *SignalFlowContext) error {
	for ch := 0; ch < a.out.Width; ch++ {
		copy(a.out.Channel(ch), a.in.Channel(ch))
	}
	return nil
}

// testComposite is a minimal CompositeComponent wiring children.
type testComposite struct {
	Base
	children   []Component
	audioConns []AudioConnection
	paramConns []ParameterConnection
}

func newTestComposite(name string) *testComposite {
	return &testComposite{Base: NewBase(name)}
}

func (c *testComposite) Children() []Component                      { return c.children }
func (c *testComposite) AudioConnections() []AudioConnection        { return c.audioConns }
func (c *testComposite) ParameterConnections() []ParameterConnection { return c.paramConns }

func buildIdentityGraph(t *testing.T, width int, pattern []float64) (*Schedule, *CommunicationArea, *testIdentity) {
	t.Helper()
	src := newTestSource("src", width, pattern)
	id := newTestIdentity("identity", width)
	top := newTestComposite("top")
	top.children = []Component{src, id}
	top.audioConns = []AudioConnection{
		{Producer: src.out, Consumer: id.in, Width: width},
	}
	sched, area, err := Flatten(top, 8, 48000, 8)
	if err != nil {
		t.Fatal(err)
	}
	return sched, area, id
}

func TestIdentityThroughEmptyGraph(t *testing.T) {
	pattern := []float64{1, -1, 0.5, 0.25, 0, 2, -2, 3}
	sched, _, id := buildIdentityGraph(t, 1, pattern)
	sched.ProcessBlock()
	got := id.out.Channel(0)
	for i, v := range pattern {
		if got[i] != v {
			t.Fatalf("sample %d: got %v want %v", i, got[i], v)
		}
	}
}

func TestDeterministicAcrossRuns(t *testing.T) {
	pattern := []float64{0.1, 0.2, 0.3, 0.4}
	sched1, _, id1 := buildIdentityGraph(t, 2, pattern)
	sched2, _, id2 := buildIdentityGraph(t, 2, pattern)

	sched1.ProcessBlock()
	sched2.ProcessBlock()
	for ch := 0; ch < 2; ch++ {
		a, b := id1.out.Channel(ch), id2.out.Channel(ch)
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("channel %d sample %d diverged: %v vs %v", ch, i, a[i], b[i])
			}
		}
	}
}

func TestCycleDetectionRejected(t *testing.T) {
	a := newTestIdentity("a", 1)
	b := newTestIdentity("b", 1)
	top := newTestComposite("top")
	top.children = []Component{a, b}
	top.audioConns = []AudioConnection{
		{Producer: a.out, Consumer: b.in, Width: 1},
		{Producer: b.out, Consumer: a.in, Width: 1},
	}
	if _, _, err := Flatten(top, 8, 48000, 8); err == nil {
		t.Fatal("expected error for audio cycle")
	}
}

func TestUnconnectedMandatoryInputRejected(t *testing.T) {
	a := newTestIdentity("a", 1)
	top := newTestComposite("top")
	top.children = []Component{a}
	if _, _, err := Flatten(top, 8, 48000, 8); err == nil {
		t.Fatal("expected error for unconnected mandatory input")
	}
}

func TestDuplicatePortNameRejected(t *testing.T) {
	a := newTestIdentity("a", 1)
	a.AddAudioPort(NewAudioPort(a, "in", Input, 1)) // duplicate name "in"
	top := newTestComposite("top")
	top.children = []Component{a}
	if _, _, err := Flatten(top, 8, 48000, 8); err == nil {
		t.Fatal("expected error for duplicate port name")
	}
}

func TestWidthMismatchRejected(t *testing.T) {
	src := newTestSource("src", 2, []float64{1})
	id := newTestIdentity("identity", 1)
	top := newTestComposite("top")
	top.children = []Component{src, id}
	top.audioConns = []AudioConnection{
		{Producer: src.out, Consumer: id.in, Width: 2},
	}
	if _, _, err := Flatten(top, 8, 48000, 8); err == nil {
		t.Fatal("expected error for channel range exceeding port width")
	}
}

// testFlaky copies input to output until its configured call, then fails
// that block and recovers afterwards.
type testFlaky struct {
	Base
	in, out *AudioPort
	calls   int
	failOn  int
}

func newTestFlaky(name string, width, failOn int) *testFlaky {
	a := &testFlaky{Base: NewBase(name), failOn: failOn}
	a.in = a.AddAudioPort(NewAudioPort(a, "in", Input, width))
	a.out = a.AddAudioPort(NewAudioPort(a, "out", Output, width))
	return a
}

func (a *testFlaky) Process(ctx *SignalFlowContext) error {
	a.calls++
	if a.calls == a.failOn {
		return fmt.Errorf("induced failure on call %d", a.calls)
	}
	for ch := 0; ch < a.out.Width; ch++ {
		copy(a.out.Channel(ch), a.in.Channel(ch))
	}
	return nil
}

func TestAtomFailureIsReportedAndBlockContinues(t *testing.T) {
	pattern := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	src := newTestSource("src", 1, pattern)
	flaky := newTestFlaky("flaky", 1, 2)
	tail := newTestIdentity("tail", 1)
	top := newTestComposite("top")
	top.children = []Component{src, flaky, tail}
	top.audioConns = []AudioConnection{
		{Producer: src.out, Consumer: flaky.in, Width: 1},
		{Producer: flaky.out, Consumer: tail.in, Width: 1},
	}
	sched, _, err := Flatten(top, 8, 48000, 8)
	if err != nil {
		t.Fatal(err)
	}
	var events []diagnostics.Event
	sched.SetSink(diagnostics.SinkFunc(func(e diagnostics.Event) { events = append(events, e) }))

	// Block 1 succeeds and leaves real samples in flaky's output rows.
	sched.ProcessBlock()
	if len(events) != 0 {
		t.Fatalf("unexpected diagnostics on the clean block: %v", events)
	}
	if got := flaky.out.Channel(0)[0]; got != pattern[0] {
		t.Fatalf("clean block did not propagate: got %v", got)
	}

	// Block 2: flaky fails. The block must not abort — the failing
	// atom's stale output is zero-filled, the failure is reported, and
	// downstream atoms still run over the silence.
	sched.ProcessBlock()
	if len(events) != 1 {
		t.Fatalf("expected exactly one diagnostic, got %v", events)
	}
	if events[0].Component != "flaky" || events[0].Severity != diagnostics.Error {
		t.Fatalf("diagnostic does not name the failing atom: %+v", events[0])
	}
	for i, v := range flaky.out.Channel(0) {
		if v != 0 {
			t.Fatalf("failed atom's output not zero-filled at sample %d: %v", i, v)
		}
	}
	for i, v := range tail.out.Channel(0) {
		if v != 0 {
			t.Fatalf("downstream atom did not run over zeroed input at sample %d: %v", i, v)
		}
	}

	// Block 3: the graph recovers.
	sched.ProcessBlock()
	if len(events) != 1 {
		t.Fatalf("expected no further diagnostics, got %v", events)
	}
	if got := tail.out.Channel(0)[0]; got != pattern[0] {
		t.Fatalf("graph did not recover after the failed block: got %v", got)
	}
}
