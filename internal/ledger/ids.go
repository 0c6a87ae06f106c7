package ledger

import (
	"strconv"
	"time"
)

// PlayerID is the caller identity as supplied, already verified, by the host.
type PlayerID string

// MarketID is assigned from a monotonically increasing counter.
type MarketID uint64

func (id MarketID) String() string { return strconv.FormatUint(uint64(id), 10) }

// GuildID is assigned from a monotonically increasing counter.
type GuildID uint64

func (id GuildID) String() string { return strconv.FormatUint(uint64(id), 10) }

// AchievementID identifies a catalogue entry.
type AchievementID uint32

// OutcomeID identifies one outcome of a multi-outcome market.
type OutcomeID uint32

// Timestamp is microseconds since the Unix epoch. The engine never reads a
// clock; every action carries its own Timestamp.
type Timestamp int64

// FromTime converts a wall-clock time.
func FromTime(t time.Time) Timestamp { return Timestamp(t.UnixMicro()) }

// Time converts back to a UTC time.Time.
func (t Timestamp) Time() time.Time { return time.UnixMicro(int64(t)).UTC() }

// Micros returns the raw microsecond count.
func (t Timestamp) Micros() int64 { return int64(t) }

// Add returns t+d.
func (t Timestamp) Add(d time.Duration) Timestamp {
	return t + Timestamp(d.Microseconds())
}

// Sub returns the elapsed duration t-u.
func (t Timestamp) Sub(u Timestamp) time.Duration {
	return time.Duration(t-u) * time.Microsecond
}

func (t Timestamp) Before(u Timestamp) bool { return t < u }
func (t Timestamp) After(u Timestamp) bool  { return t > u }
