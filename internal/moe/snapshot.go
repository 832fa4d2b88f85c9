package moe

import "math"

// Snapshot is the immutable state published after every sample. Percent
// fields are rounded to two decimals and the EMA to one, matching what
// the overlay renders; persistence reads the unrounded values from the
// tracker accessors instead.
type Snapshot struct {
	TankID              int     `json:"tank_id"`
	TankName            string  `json:"tank_name"`
	MoePercent          float64 `json:"moe_percent"`
	ProjectedMoePercent float64 `json:"projected_moe_percent"`
	Delta               float64 `json:"delta"`
	EMA                 float64 `json:"ema"`
	TargetDamage        float64 `json:"target_damage"`
	DirectDamage        int     `json:"direct_damage"`
	AssistedDamage      int     `json:"assisted_damage"`
	CombinedDamage      int     `json:"combined_damage"`
	BattlesThisSession  int     `json:"battles_this_session"`
	InBattle            bool    `json:"in_battle"`
	Status              string  `json:"status"`
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
