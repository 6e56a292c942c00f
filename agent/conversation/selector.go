package conversation

import (
	"fmt"

	"github.com/BaSui01/agentroom/types"
)

// RoundRobinSelector selects participants in list order.
// The cursor lives only as long as one orchestrator run.
type RoundRobinSelector struct {
	current int
}

// Next returns the participant at cursor % len and advances the cursor.
func (s *RoundRobinSelector) Next(participants []types.Participant) (*types.Participant, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("no participants available")
	}
	p := &participants[s.current%len(participants)]
	s.current++
	return p, nil
}

// Cursor returns the number of selections made so far.
func (s *RoundRobinSelector) Cursor() int { return s.current }
