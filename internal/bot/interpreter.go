package bot

import (
	"math/rand/v2"
	"sync"
	"time"

	"chatroom/pkg/types"
)

// Identity the bot replies under.
const (
	SenderID = "bot"
	Nickname = "🤖 ChatBot"
	Avatar   = "🤖"
)

// Interpreter binds the command table to a clock and a random source.
// It is safe for concurrent use.
type Interpreter struct {
	mu  sync.Mutex
	rng Rand
	now func() time.Time
}

// NewInterpreter returns an interpreter using the wall clock and a
// time-seeded PCG source.
func NewInterpreter() *Interpreter {
	seed := uint64(time.Now().UnixNano())
	return NewInterpreterWith(rand.New(rand.NewPCG(seed, seed>>1)), time.Now)
}

// NewInterpreterWith is NewInterpreter with an explicit source and clock.
func NewInterpreterWith(rng Rand, now func() time.Time) *Interpreter {
	return &Interpreter{rng: rng, now: now}
}

// Reply returns the bot message answering text in room, if text is a command.
func (i *Interpreter) Reply(text, room string) (*types.Message, bool) {
	i.mu.Lock()
	now := i.now()
	content, ok := Resolve(text, now, i.rng)
	i.mu.Unlock()

	if !ok {
		return nil, false
	}

	return &types.Message{
		SenderID:       SenderID,
		SenderNickname: Nickname,
		Avatar:         Avatar,
		Content:        content,
		Room:           room,
		Timestamp:      now.UTC(),
		Kind:           types.MessageKindBot,
	}, true
}
