package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockSetNormalisesToUTC(t *testing.T) {
	clock := Fake(epoch)
	zone := time.FixedZone("EAT", 3*60*60)
	clock.Set(time.Date(2026, 1, 1, 3, 0, 0, 0, zone))
	if got := clock.Now(); got.Location() != time.UTC || !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v in UTC", got, epoch)
	}
}

func TestRealClockIsUTC(t *testing.T) {
	if loc := Real().Now().Location(); loc != time.UTC {
		t.Fatalf("Real().Now() location = %v, want UTC", loc)
	}
}
