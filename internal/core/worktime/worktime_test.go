package worktime

import (
	"math/rand"
	"testing"
	"time"

	"slaledger/internal/core/calendar"
	perr "slaledger/internal/platform/errors"
	kit "slaledger/internal/platform/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zone = "America/Sao_Paulo"

func hm(h, m int) time.Duration { return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute }

// businessRule is Mon-Fri 09:00-18:00
func businessRule(holidays ...string) calendar.Rule {
	days := map[time.Weekday][]calendar.ShiftWindow{}
	for d := time.Monday; d <= time.Friday; d++ {
		days[d] = []calendar.ShiftWindow{{Start: hm(9, 0), End: hm(18, 0)}}
	}
	hs := map[string]struct{}{}
	for _, h := range holidays {
		hs[h] = struct{}{}
	}
	return calendar.Rule{StatusID: "1", ActiveDays: days, Holidays: hs}
}

// splitRule is Mon-Fri 08:00-12:00 and 13:00-17:00
func splitRule() calendar.Rule {
	days := map[time.Weekday][]calendar.ShiftWindow{}
	for d := time.Monday; d <= time.Friday; d++ {
		days[d] = []calendar.ShiftWindow{{Start: hm(8, 0), End: hm(12, 0)}, {Start: hm(13, 0), End: hm(17, 0)}}
	}
	return calendar.Rule{StatusID: "2", ActiveDays: days}
}

func allDayRule() calendar.Rule {
	days := map[time.Weekday][]calendar.ShiftWindow{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		days[d] = []calendar.ShiftWindow{{Start: 0, End: 24 * time.Hour}}
	}
	return calendar.Rule{StatusID: "3", ActiveDays: days}
}

func assertAt(t *testing.T, loc *time.Location, want string, got time.Time) {
	t.Helper()
	w := kit.At(t, loc, want)
	assert.True(t, w.Equal(got), "want %s, got %s", w, got.In(loc))
}

func TestDeadline_FridayEvening(t *testing.T) {
	loc := kit.MustLoc(t, zone)
	calc := New(loc)
	start := kit.At(t, loc, "2024-03-01 17:30") // friday

	// 30 minutes on friday then the rest from monday 09:00
	got, err := calc.Deadline(start, hm(1, 0), businessRule())
	require.NoError(t, err)
	assertAt(t, loc, "2024-03-04 09:30", got)

	got, err = calc.Deadline(start, hm(2, 0), businessRule())
	require.NoError(t, err)
	assertAt(t, loc, "2024-03-04 10:30", got)
}

func TestDeadline_Table(t *testing.T) {
	loc := kit.MustLoc(t, zone)
	calc := New(loc)

	cases := []struct {
		name   string
		start  string
		target time.Duration
		rule   calendar.Rule
		want   string
	}{
		{"inside window", "2024-03-04 10:00", hm(2, 0), businessRule(), "2024-03-04 12:00"},
		{"before window starts at opening", "2024-03-04 06:00", hm(1, 0), businessRule(), "2024-03-04 10:00"},
		{"after window rolls to next day", "2024-03-04 19:00", hm(1, 0), businessRule(), "2024-03-05 10:00"},
		{"exactly fills window", "2024-03-04 09:00", hm(9, 0), businessRule(), "2024-03-04 18:00"},
		{"weekend start", "2024-03-02 11:00", hm(0, 15), businessRule(), "2024-03-04 09:15"},
		{"holiday skipped", "2024-03-04 17:00", hm(2, 0), businessRule("2024-03-05"), "2024-03-06 10:00"},
		{"lunch gap", "2024-03-04 11:00", hm(2, 0), splitRule(), "2024-03-04 14:00"},
		{"multi day", "2024-03-04 09:00", hm(20, 0), businessRule(), "2024-03-06 11:00"},
		{"all day rule", "2024-03-02 23:00", hm(3, 0), allDayRule(), "2024-03-03 02:00"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := calc.Deadline(kit.At(t, loc, c.start), c.target, c.rule)
			require.NoError(t, err)
			assertAt(t, loc, c.want, got)
		})
	}
}

func TestDeadline_Edges(t *testing.T) {
	loc := kit.MustLoc(t, zone)
	start := kit.At(t, loc, "2024-03-04 10:00")

	got, err := Deadline(start, 0, businessRule(), loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(start), "zero budget is due at start")

	_, err = Deadline(start, hm(1, 0), calendar.Rule{}, loc)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeNoWorkingTime))

	// a budget larger than the horizon can hold
	_, err = Deadline(start, time.Duration(HorizonDays+1)*24*time.Hour, allDayRule(), loc)
	assert.ErrorIs(t, err, ErrNoWorkingTime)

	// instants in another zone are converted before day arithmetic
	utc := start.UTC()
	got, err = Deadline(utc, hm(1, 0), businessRule(), loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(kit.At(t, loc, "2024-03-04 11:00")))
}

func TestElapsedWorking_Table(t *testing.T) {
	loc := kit.MustLoc(t, zone)
	calc := New(loc)

	cases := []struct {
		name       string
		start, end string
		rule       calendar.Rule
		want       time.Duration
	}{
		{"same window", "2024-03-04 10:00", "2024-03-04 12:30", businessRule(), hm(2, 30)},
		{"clamped both ends", "2024-03-04 07:00", "2024-03-04 20:00", businessRule(), hm(9, 0)},
		{"over weekend", "2024-03-01 17:30", "2024-03-04 09:30", businessRule(), hm(1, 0)},
		{"holiday", "2024-03-04 09:00", "2024-03-06 09:00", businessRule("2024-03-05"), hm(9, 0)},
		{"lunch excluded", "2024-03-04 11:00", "2024-03-04 14:00", splitRule(), hm(2, 0)},
		{"outside windows", "2024-03-04 18:30", "2024-03-04 23:00", businessRule(), 0},
		{"reversed", "2024-03-04 12:00", "2024-03-04 10:00", businessRule(), 0},
		{"equal", "2024-03-04 12:00", "2024-03-04 12:00", businessRule(), 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := calc.Elapsed(kit.At(t, loc, c.start), kit.At(t, loc, c.end), c.rule)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestOverage(t *testing.T) {
	loc := kit.MustLoc(t, zone)
	calc := New(loc)
	deadline := kit.At(t, loc, "2024-03-01 17:00")
	end := kit.At(t, loc, "2024-03-04 10:00")

	wall, working := calc.Overage(deadline, end, businessRule())
	assert.Equal(t, end.Sub(deadline), wall)
	assert.Equal(t, hm(2, 0), working)

	wall, working = calc.Overage(end, deadline, businessRule())
	assert.Zero(t, wall)
	assert.Zero(t, working)
}

func TestProperties(t *testing.T) {
	loc := kit.MustLoc(t, zone)
	rnd := rand.New(rand.NewSource(7))
	base := kit.At(t, loc, "2024-01-01 00:00")
	rules := []calendar.Rule{businessRule("2024-01-15"), splitRule(), allDayRule()}

	for i := 0; i < 500; i++ {
		rule := rules[i%len(rules)]
		start := base.Add(time.Duration(rnd.Int63n(int64(60 * 24 * time.Hour))))
		end := start.Add(time.Duration(rnd.Int63n(int64(10*24*time.Hour))) + time.Minute)

		// working time never exceeds wall time
		working := ElapsedWorking(start, end, rule, loc)
		require.LessOrEqual(t, working, end.Sub(start))
		if i%len(rules) == 2 {
			require.Equal(t, end.Sub(start), working, "full-day windows count every instant")
		}

		// deadline is monotone in the budget and consumes exactly the budget
		t1 := time.Duration(rnd.Int63n(int64(30 * time.Hour)))
		t2 := t1 + time.Duration(rnd.Int63n(int64(10*time.Hour)))
		d1, err := Deadline(start, t1, rule, loc)
		require.NoError(t, err)
		d2, err := Deadline(start, t2, rule, loc)
		require.NoError(t, err)
		require.False(t, d2.Before(d1), "deadline(%v)=%v after deadline(%v)=%v", t1, d1, t2, d2)
		require.Equal(t, t1, ElapsedWorking(start, d1, rule, loc))
	}
}
