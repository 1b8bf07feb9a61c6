package driver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/bunkmate/internal/dom"
	"github.com/hyperifyio/bunkmate/internal/extract"
	"github.com/hyperifyio/bunkmate/internal/message"
	"github.com/hyperifyio/bunkmate/internal/readiness"
	"github.com/hyperifyio/bunkmate/internal/source"
	"github.com/hyperifyio/bunkmate/internal/store"
)

var filler = strings.Repeat("Semester overview and notices. ", 5)

func page(body string) string {
	return "<html><head><title>Attendance</title></head><body><p>" + filler + "</p>" + body + "</body></html>"
}

var (
	goodPage    = page(`<span id="cum_slots">40</span><span id="cum_present">35</span><table><tr><td>x</td></tr></table>`)
	emptyPage   = page(`<table><tr><td>Loading attendance</td></tr></table>`)
	invalidPage = page(`<span id="cum_slots">900</span><span id="cum_present">10</span>`)
)

func parse(t *testing.T, html string) dom.Document {
	t.Helper()
	d, err := dom.Parse([]byte(html), "https://portal.example/attendance")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

func testDriver(src source.Source) *Driver {
	d := New(src)
	d.Waiter = &readiness.Waiter{Interval: time.Millisecond, MaxAttempts: 1}
	d.RetryDelay = time.Millisecond
	return d
}

func inline(html string) source.Source {
	return source.Bytes{HTML: []byte(html), PageURL: "https://portal.example/attendance"}
}

type passCounter struct {
	mu  sync.Mutex
	got map[string]int
}

func (p *passCounter) OnPass(result string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.got == nil {
		p.got = map[string]int{}
	}
	p.got[result]++
}

func TestRun_FoundPersistsAndNotifies(t *testing.T) {
	st := store.NewMemory()
	bus := message.NewBus()
	sub, cancel := bus.Subscribe(1)
	defer cancel()
	obs := &passCounter{}

	d := testDriver(inline(goodPage))
	d.Store, d.Notifier, d.Observer = st, bus, obs
	p := d.Run(context.Background())

	if p.Skipped || !p.Relevant || !p.Ready || p.Attempts != 1 {
		t.Fatalf("unexpected pass: %+v", p)
	}
	if !p.Record.Found || p.Record.TotalClasses != 40 || p.Record.AttendedClasses != 35 {
		t.Fatalf("unexpected record: %+v", p.Record)
	}
	if p.ID == "" {
		t.Fatalf("pass id missing")
	}
	saved, err := store.LoadRecord(context.Background(), st, time.Now(), store.DefaultMaxAge)
	if err != nil || saved.TotalClasses != 40 {
		t.Fatalf("record not persisted: %+v %v", saved, err)
	}
	select {
	case n := <-sub:
		if n.ID != p.ID || n.Action != message.ActionDataExtracted || n.Record.TotalClasses != 40 {
			t.Fatalf("unexpected notification: %+v", n)
		}
	default:
		t.Fatalf("no notification published")
	}
	if last, ok := d.Last(); !ok || last.TotalClasses != 40 {
		t.Fatalf("Last()=%+v,%v", last, ok)
	}
	if obs.got[PassFound] != 1 {
		t.Fatalf("observer=%v", obs.got)
	}
}

func TestRun_RetriesUntilFound(t *testing.T) {
	var loads int32
	src := source.Func(func(context.Context) (dom.Document, error) {
		switch atomic.AddInt32(&loads, 1) {
		case 1:
			return parse(t, emptyPage), nil
		case 2:
			return nil, errors.New("navigation in progress")
		default:
			return parse(t, goodPage), nil
		}
	})
	d := testDriver(src)
	p := d.Run(context.Background())
	if !p.Record.Found || p.Attempts != 3 {
		t.Fatalf("expected success on third attempt, got attempts=%d record=%+v", p.Attempts, p.Record)
	}
	joined := strings.Join(p.Record.Diagnostics, "\n")
	for _, want := range []string{"attempt 1: no strategy produced a candidate", "attempt 2: load failed", "attempt 3: [direct_id]"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("diagnostics missing %q:\n%s", want, joined)
		}
	}
}

func TestRun_FailureIsNotPersisted(t *testing.T) {
	st := store.NewMemory()
	bus := message.NewBus()
	sub, cancel := bus.Subscribe(1)
	defer cancel()

	d := testDriver(inline(invalidPage))
	d.Store, d.Notifier = st, bus
	p := d.Run(context.Background())

	if p.Record.Found || p.Record.Outcome != extract.OutcomeInvalidRange || p.Attempts != DefaultRetries {
		t.Fatalf("unexpected pass: %+v", p)
	}
	if _, err := store.LoadRecord(context.Background(), st, time.Now(), 0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("failed record must not be stored, got %v", err)
	}
	select {
	case n := <-sub:
		t.Fatalf("failed pass must not notify: %+v", n)
	default:
	}
	if f, ok := d.LastFailure(); !ok || f.Outcome != extract.OutcomeInvalidRange {
		t.Fatalf("LastFailure()=%+v,%v", f, ok)
	}
}

func TestRun_NotAttendancePage(t *testing.T) {
	src := source.Bytes{HTML: []byte(`<html><head><title>Weather</title></head><body><p>Sunny</p></body></html>`), PageURL: "https://weather.example/"}
	obs := &passCounter{}
	d := testDriver(src)
	d.Observer = obs
	p := d.Run(context.Background())
	if p.Relevant || p.Attempts != 0 || p.Record.Found {
		t.Fatalf("unexpected pass: %+v", p)
	}
	if obs.got[PassNotRelevant] != 1 {
		t.Fatalf("observer=%v", obs.got)
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, ...string) (map[string][]byte, error) {
	return nil, errors.New("disk full")
}
func (brokenStore) Set(context.Context, map[string][]byte) error { return errors.New("disk full") }

type brokenNotifier struct{}

func (brokenNotifier) Publish(context.Context, message.Notification) error {
	return errors.New("redis down")
}

func TestRun_CollaboratorFailuresAreAbsorbed(t *testing.T) {
	d := testDriver(inline(goodPage))
	d.Store, d.Notifier = brokenStore{}, brokenNotifier{}
	if p := d.Run(context.Background()); !p.Record.Found {
		t.Fatalf("store/notify errors must not fail the pass: %+v", p.Record)
	}
}

func TestRun_ConcurrentRunIsSkipped(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	src := source.Func(func(context.Context) (dom.Document, error) {
		once.Do(func() { close(entered) })
		<-release
		return parse(t, goodPage), nil
	})
	d := testDriver(src)
	first := make(chan Pass, 1)
	go func() { first <- d.Run(context.Background()) }()
	<-entered

	if p := d.Run(context.Background()); !p.Skipped {
		t.Fatalf("expected skipped pass, got %+v", p)
	}
	close(release)
	if p := <-first; !p.Record.Found {
		t.Fatalf("first pass should succeed: %+v", p.Record)
	}
}

func TestRun_NoSource(t *testing.T) {
	d := testDriver(nil)
	p := d.Run(context.Background())
	if p.Record.Found || len(p.Record.Diagnostics) == 0 {
		t.Fatalf("unexpected pass: %+v", p)
	}
}
