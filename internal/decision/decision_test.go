package decision

import (
	"testing"
	"time"

	"github.com/loykin/lazyrestore/internal/registry"
	"github.com/loykin/lazyrestore/internal/tab"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func entry(url string) registry.Entry {
	return registry.Entry{TargetURL: url, CreatedAt: t0, DiscardState: registry.StatePending}
}

func TestScenarios(t *testing.T) {
	cases := []struct {
		name   string
		entry  registry.Entry
		snap   tab.Snapshot
		change tab.ChangeInfo
		now    time.Time
		want   bool
	}{
		{
			name:  "A pending url matches target",
			entry: entry("https://x"),
			snap:  tab.Snapshot{PendingURL: "https://x"},
			now:   t0,
			want:  true,
		},
		{
			name:  "B navigated away",
			entry: entry("https://x"),
			snap:  tab.Snapshot{URL: "https://y"},
			now:   t0,
			want:  true,
		},
		{
			name:  "C blank before backstop",
			entry: entry("https://x"),
			snap:  tab.Snapshot{URL: "", PendingURL: ""},
			now:   t0.Add(1499 * time.Millisecond),
			want:  false,
		},
		{
			name:  "D blank after backstop",
			entry: entry("https://x"),
			snap:  tab.Snapshot{URL: "", PendingURL: ""},
			now:   t0.Add(1501 * time.Millisecond),
			want:  true,
		},
		{
			name:  "exactly at backstop waits",
			entry: entry("https://x"),
			now:   t0.Add(DefaultBackstop),
			want:  false,
		},
		{
			name:   "change url matches",
			entry:  entry("https://x"),
			change: tab.ChangeInfo{URL: "https://x"},
			now:    t0,
			want:   true,
		},
		{
			name:  "committed url matches",
			entry: entry("https://x"),
			snap:  tab.Snapshot{URL: "https://x"},
			now:   t0,
			want:  true,
		},
		{
			name:   "loading with url",
			entry:  entry("https://x"),
			change: tab.ChangeInfo{Status: tab.StatusLoading, URL: "https://z"},
			now:    t0,
			want:   true,
		},
		{
			name:   "loading without url waits",
			entry:  entry("https://x"),
			change: tab.ChangeInfo{Status: tab.StatusLoading},
			now:    t0,
			want:   false,
		},
		{
			name:   "loading to about:blank waits",
			entry:  entry("https://x"),
			change: tab.ChangeInfo{Status: tab.StatusLoading, URL: "about:blank"},
			now:    t0,
			want:   false,
		},
		{
			name:  "about:blank placeholder waits",
			entry: entry("https://x"),
			snap:  tab.Snapshot{URL: "about:blank"},
			now:   t0,
			want:  false,
		},
		{
			name:  "already discarded",
			entry: entry("https://x"),
			snap:  tab.Snapshot{URL: "https://x", Discarded: true},
			now:   t0,
			want:  false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldDiscardNow(tc.entry, tc.snap, tc.change, tc.now); got != tc.want {
				t.Fatalf("ShouldDiscardNow = %v, want %v", got, tc.want)
			}
		})
	}
}

// Every combination of snapshot and change fields must be rejected when the
// entry has no target or the tab is active.
func TestNeverDiscardWithoutTargetOrWhenActive(t *testing.T) {
	urls := []string{"", "about:blank", "https://x", "https://y"}
	statuses := []string{"", tab.StatusLoading, tab.StatusComplete}
	nows := []time.Time{t0, t0.Add(10 * time.Second)}

	for _, u := range urls {
		for _, pu := range urls {
			for _, cu := range urls {
				for _, st := range statuses {
					for _, disc := range []bool{false, true} {
						for _, now := range nows {
							change := tab.ChangeInfo{URL: cu, Status: st}
							noTarget := entry("")
							snap := tab.Snapshot{URL: u, PendingURL: pu, Discarded: disc}
							if ShouldDiscardNow(noTarget, snap, change, now) {
								t.Fatalf("discard without target: snap=%+v change=%+v", snap, change)
							}
							snap.Active = true
							if ShouldDiscardNow(entry("https://x"), snap, change, now) {
								t.Fatalf("discard of active tab: snap=%+v change=%+v", snap, change)
							}
						}
					}
				}
			}
		}
	}
}

func TestCustomBackstop(t *testing.T) {
	p := Policy{Backstop: 5 * time.Second}
	e := entry("https://x")
	if p.ShouldDiscardNow(e, tab.Snapshot{}, tab.ChangeInfo{}, t0.Add(2*time.Second)) {
		t.Fatal("should wait for custom backstop")
	}
	if !p.ShouldDiscardNow(e, tab.Snapshot{}, tab.ChangeInfo{}, t0.Add(6*time.Second)) {
		t.Fatal("should discard after custom backstop")
	}
	zero := Policy{}
	if !zero.ShouldDiscardNow(e, tab.Snapshot{}, tab.ChangeInfo{}, t0.Add(2*time.Second)) {
		t.Fatal("zero policy should fall back to default backstop")
	}
}
