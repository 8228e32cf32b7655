package services

import "time"

// Config carries the engine's tunable durations and limits
type Config struct {
	CategoryPhase      time.Duration // time to pick and confirm categories
	LetterPhase        time.Duration // time for the selector to pick a letter
	LetterReveal       time.Duration // window between acceptance and playing
	RoundDuration      time.Duration // writing time per round
	GraceWindow        time.Duration // late-submission window after a stop/timeout
	NextRoundCountdown time.Duration // round_ended auto-advance countdown
	RematchCountdown   time.Duration // rematch vote countdown

	MinCategories int
	MaxCategories int
	DefaultRounds int
	MaxRounds     int

	MinRoomCapacity int
	MaxRoomCapacity int

	QuickplayMin   int // players needed before the queue forms a room
	QueueLimit     int // hard cap on queued players
	RoomTTL        time.Duration
	SweepInterval  time.Duration

	// ScoreDisconnected controls whether answers a player submitted before
	// disconnecting still count toward the round's scoring.
	ScoreDisconnected bool
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		CategoryPhase:      90 * time.Second,
		LetterPhase:        12 * time.Second,
		LetterReveal:       3 * time.Second,
		RoundDuration:      60 * time.Second,
		GraceWindow:        3000 * time.Millisecond,
		NextRoundCountdown: 7 * time.Second,
		RematchCountdown:   5 * time.Second,
		MinCategories:      6,
		MaxCategories:      8,
		DefaultRounds:      5,
		MaxRounds:          10,
		MinRoomCapacity:    2,
		MaxRoomCapacity:    8,
		QuickplayMin:       2,
		QueueLimit:         1024,
		RoomTTL:            time.Hour,
		SweepInterval:      5 * time.Minute,
		ScoreDisconnected:  true,
	}
}
