// Package moe turns a stream of damage readings into a running Marks of
// Excellence estimate: a lifecycle detector finds battle boundaries in
// the noisy HUD signal, an exponential moving average smooths per-battle
// damage, and a correction pass reconciles the optical value against the
// authoritative stats service once it catches up.
package moe

// DamageReading is one sampled pair of HUD damage counters.
type DamageReading struct {
	Direct   int
	Assisted int
}

// Combined returns the total the lifecycle detector operates on.
func (r DamageReading) Combined() int { return r.Direct + r.Assisted }
