package service

import "documind/internal/domain"

// Transcript is the ordered conversation of one session.
type Transcript []domain.ConversationTurn

// Exchanges returns the number of question and answer pairs.
func (t Transcript) Exchanges() int { return len(t) / 2 }

// Last returns the most recent turn, if any.
func (t Transcript) Last() (domain.ConversationTurn, bool) {
	if len(t) == 0 {
		return domain.ConversationTurn{}, false
	}
	return t[len(t)-1], true
}
