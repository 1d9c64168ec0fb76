// Package effects holds optional master-bus processing for the reference
// tone generator (internal/tonegen). None of this is reachable from the
// DSL itself — the language has no effect directive — it exists so the
// reference host has somewhere to put a delay or reverb on the way out of
// the mixer, the way the teacher's engines feed a #EFFECT chain before the
// audio backend.
package effects

// Effector processes one stereo frame and returns the processed pair.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain runs a fixed list of effects in series over the master bus.
type Chain struct {
	stages []Effector
}

func NewChain(stages ...Effector) *Chain {
	return &Chain{stages: stages}
}

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, stage := range c.stages {
		l, r = stage.Process(l, r)
	}
	return l, r
}

func (c *Chain) Reset() {
	for _, stage := range c.stages {
		stage.Reset()
	}
}

func (c *Chain) Append(e Effector) {
	c.stages = append(c.stages, e)
}
