package game

import (
	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

// CombatResult is the outcome of one unit attacking another.
type CombatResult struct {
	Attacker           model.Position
	Defender           model.Position
	DamageDealt        uint32
	DefenderHealth     uint32 // after the attack
	IsDefenderDefeated bool
}

// resolveAttack applies the attacker's descriptor damage to the defender.
// Combat is deterministic so every replica reaches the same result.
func resolveAttack(tables *model.Tables, attacker, defender *model.Unit) CombatResult {
	damage := tables.Unit(attacker.Kind).Damage
	result := CombatResult{
		Attacker:    attacker.Position,
		Defender:    defender.Position,
		DamageDealt: damage,
	}
	if defender.Health <= damage {
		result.DefenderHealth = 0
		result.IsDefenderDefeated = true
	} else {
		result.DefenderHealth = defender.Health - damage
	}
	defender.Health = result.DefenderHealth

	utils.LogDebugf("Combat: unit at %+v hits unit at %+v for %d, defender HP now %d (defeated=%v)",
		result.Attacker, result.Defender, result.DamageDealt, result.DefenderHealth, result.IsDefenderDefeated)
	return result
}
