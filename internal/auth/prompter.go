package auth

import (
	"github.com/rs/zerolog"

	"github.com/ndewijer/depotsync/internal/model"
)

// Prompter tells the account holder that a challenge awaits confirmation on their device.
type Prompter interface {
	ChallengeIssued(ch model.Challenge)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ch model.Challenge)

func (f PrompterFunc) ChallengeIssued(ch model.Challenge) { f(ch) }

// LogPrompter announces challenges on the log.
type LogPrompter struct {
	Log zerolog.Logger
}

func (p LogPrompter) ChallengeIssued(ch model.Challenge) {
	p.Log.Warn().
		Str("account", string(ch.AccountRef)).
		Str("challenge", ch.ID).
		Str("type", ch.Type).
		Msg("Confirm the photo-TAN challenge in the comdirect app")
}
