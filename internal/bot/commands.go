// Package bot implements the slash commands answered by the chat bot.
package bot

import (
	"sort"
	"strings"
	"time"
)

// Rand is the randomness a computed reply may draw on.
type Rand interface {
	IntN(n int) int
}

// Reply is either a StaticReply or a ComputedReply.
type Reply interface {
	resolve(now time.Time, rng Rand) string
}

// StaticReply is a fixed answer.
type StaticReply string

func (s StaticReply) resolve(time.Time, Rand) string { return string(s) }

// ComputedReply produces its answer from the clock and a random source.
type ComputedReply func(now time.Time, rng Rand) string

func (c ComputedReply) resolve(now time.Time, rng Rand) string { return c(now, rng) }

const helpText = "Available commands:\n" +
	"/help - Show this help\n" +
	"/time - Current time\n" +
	"/weather - Random weather\n" +
	"/joke - Random joke\n" +
	"/quote - Inspirational quote"

var weather = []string{
	"☀️ Sunny",
	"🌧️ Rainy",
	"⛅ Cloudy",
	"🌨️ Snowy",
	"🌈 Rainbow after rain",
}

var jokes = []string{
	"Why don't scientists trust atoms? Because they make up everything!",
	"Why did the scarecrow win an award? He was outstanding in his field!",
	"Why don't eggs tell jokes? They'd crack each other up!",
	"What do you call a fake noodle? An impasta!",
	"Why did the math book look so sad? Because it was full of problems!",
}

var quotes = []string{
	`"The only way to do great work is to love what you do." - Steve Jobs`,
	`"Innovation distinguishes between a leader and a follower." - Steve Jobs`,
	`"Life is what happens to you while you're busy making other plans." - John Lennon`,
	`"The future belongs to those who believe in the beauty of their dreams." - Eleanor Roosevelt`,
	`"It is during our darkest moments that we must focus to see the light." - Aristotle`,
}

// TimeLayout formats the /time reply.
const TimeLayout = "1/2/2006, 3:04:05 PM"

var commands = map[string]Reply{
	"/help": StaticReply(helpText),
	"/time": ComputedReply(func(now time.Time, _ Rand) string {
		return "Current time: " + now.Format(TimeLayout)
	}),
	"/weather": ComputedReply(func(_ time.Time, rng Rand) string {
		return "Weather: " + pick(weather, rng)
	}),
	"/joke": ComputedReply(func(_ time.Time, rng Rand) string {
		return pick(jokes, rng)
	}),
	"/quote": ComputedReply(func(_ time.Time, rng Rand) string {
		return pick(quotes, rng)
	}),
}

// Resolve answers text if the whole of it, lower-cased, is a known command.
// It has no side effects beyond drawing from rng.
func Resolve(text string, now time.Time, rng Rand) (string, bool) {
	reply, ok := commands[strings.ToLower(text)]
	if !ok {
		return "", false
	}
	return reply.resolve(now, rng), true
}

// IsCommand reports whether text would be answered by the bot.
func IsCommand(text string) bool {
	_, ok := commands[strings.ToLower(text)]
	return ok
}

// Commands lists the known command names, sorted.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func pick(options []string, rng Rand) string {
	return options[rng.IntN(len(options))]
}
