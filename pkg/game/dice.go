package game

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/harun/fablebot/pkg/protocol"
)

// Roller draws d20 results
type Roller interface {
	Roll(n int) []int
}

// RandomRoller draws uniformly from [1,20]
type RandomRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomRoller returns a roller seeded from the runtime's entropy source
func NewRandomRoller() *RandomRoller {
	return &RandomRoller{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededRoller returns a deterministic roller
func NewSeededRoller(seed uint64) *RandomRoller {
	return &RandomRoller{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Roll returns n independent d20 results
func (r *RandomRoller) Roll(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int, n)
	for i := range out {
		out[i] = protocol.MinRoll + r.rng.IntN(protocol.MaxRoll-protocol.MinRoll+1)
	}
	return out
}

// ContinuePrompt is the user-role message appended after dice results
const ContinuePrompt = "Continue."

// DiceReport is the system message telling the backend what the player rolled
func DiceReport(rolls []int) string {
	if len(rolls) == 1 {
		return fmt.Sprintf("The player rolled a d20: %d.", rolls[0])
	}
	values := make([]string, len(rolls))
	for i, v := range rolls {
		values[i] = strconv.Itoa(v)
	}
	return fmt.Sprintf("The player rolled %d d20 dice: %s.", len(rolls), strings.Join(values, ", "))
}
