package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/greenmantle/renojira/internal/dedup"
	"github.com/greenmantle/renojira/internal/githost"
	"github.com/greenmantle/renojira/internal/jira"
)

// spyTracker records every mutating call.
type spyTracker struct {
	createFields  map[string]interface{}
	createKey     string
	createErr     error
	updates       map[string]map[string]interface{}
	remoteLinks   map[string]string // key -> url
	transitions   []jira.Transition
	transitioned  map[string]string // key -> transition ID
	transitionErr error
}

func newSpyTracker() *spyTracker {
	return &spyTracker{
		createKey:    "PLAT-50",
		updates:      map[string]map[string]interface{}{},
		remoteLinks:  map[string]string{},
		transitioned: map[string]string{},
	}
}

func (s *spyTracker) CreateIssue(_ context.Context, fields map[string]interface{}) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.createFields = fields
	return s.createKey, nil
}

func (s *spyTracker) UpdateIssueFields(_ context.Context, key string, fields map[string]interface{}) error {
	s.updates[key] = fields
	return nil
}

func (s *spyTracker) AddRemoteLink(_ context.Context, key, url, _ string) error {
	s.remoteLinks[key] = url
	return nil
}

func (s *spyTracker) Transitions(_ context.Context, _ string) ([]jira.Transition, error) {
	return s.transitions, nil
}

func (s *spyTracker) TransitionIssue(_ context.Context, key, id string) error {
	if s.transitionErr != nil {
		return s.transitionErr
	}
	s.transitioned[key] = id
	return nil
}

// spyHost records PR-side writes.
type spyHost struct {
	comments []string
	labels   []string
}

func (s *spyHost) PostComment(_ context.Context, _ githost.PullRequest, text string) error {
	s.comments = append(s.comments, text)
	return nil
}

func (s *spyHost) AddLabels(_ context.Context, _ githost.PullRequest, labels []string) error {
	s.labels = append(s.labels, labels...)
	return nil
}

func applyPR() githost.PullRequest {
	return githost.PullRequest{
		Repo:   "acme/payments",
		Number: 42,
		Title:  "Bump log4j from 1.2.17 to 2.20.0",
		URL:    "https://github.com/acme/payments/pull/42",
	}
}

func TestApplyCreateFullWriteSet(t *testing.T) {
	tracker := newSpyTracker()
	host := &spyHost{}
	m := &Manager{Tracker: tracker, Host: host, Mode: ModeRun, Counters: &RunCounters{}}

	pol := decidePolicy()
	d := m.Decide(securityResult(), dedup.Match{}, pol, decidePR())
	out, err := m.Apply(context.Background(), d, applyPR(), pol)
	if err != nil {
		t.Fatal(err)
	}
	if out.CreatedKey != "PLAT-50" || !out.Changed {
		t.Fatalf("outcome = %+v", out)
	}
	if m.Counters.TicketsCreated != 1 {
		t.Errorf("counter = %d", m.Counters.TicketsCreated)
	}
	if tracker.createFields["summary"] != d.Payload.Summary {
		t.Errorf("summary field = %v", tracker.createFields["summary"])
	}
	if proj, ok := tracker.createFields["project"].(map[string]string); !ok || proj["key"] != "PLAT" {
		t.Errorf("project field = %v", tracker.createFields["project"])
	}
	if tracker.remoteLinks["PLAT-50"] != applyPR().URL {
		t.Errorf("remote link = %q", tracker.remoteLinks["PLAT-50"])
	}
	if len(host.comments) != 1 {
		t.Fatalf("comments = %v", host.comments)
	}
	if want := "Created Jira issue PLAT-50 to track this pull request. Reason: CVE reference in body"; host.comments[0] != want {
		t.Errorf("comment = %q", host.comments[0])
	}
	if len(host.labels) == 0 {
		t.Error("no PR labels applied")
	}
}

func TestApplyCreateHonorsPRWriteToggles(t *testing.T) {
	tracker := newSpyTracker()
	host := &spyHost{}
	m := &Manager{Tracker: tracker, Host: host, Mode: ModeRun, Counters: &RunCounters{}}

	pol := decidePolicy()
	pol.CommentOnPR = false
	pol.AddPRLabels = false

	d := m.Decide(securityResult(), dedup.Match{}, pol, decidePR())
	if _, err := m.Apply(context.Background(), d, applyPR(), pol); err != nil {
		t.Fatal(err)
	}
	if len(host.comments) != 0 || len(host.labels) != 0 {
		t.Errorf("host writes despite toggles: comments=%v labels=%v", host.comments, host.labels)
	}
}

func TestApplyCreateErrorPreservesKey(t *testing.T) {
	tracker := newSpyTracker()
	tracker.createErr = errors.New("boom")
	m := &Manager{Tracker: tracker, Host: &spyHost{}, Mode: ModeRun, Counters: &RunCounters{}}

	pol := decidePolicy()
	d := m.Decide(securityResult(), dedup.Match{}, pol, decidePR())
	out, err := m.Apply(context.Background(), d, applyPR(), pol)
	if err == nil {
		t.Fatal("want error")
	}
	if out.CreatedKey != "" {
		t.Errorf("key before creation: %q", out.CreatedKey)
	}
	if m.Counters.TicketsCreated != 0 {
		t.Errorf("counter incremented on failed create: %d", m.Counters.TicketsCreated)
	}
}

func TestApplySkipsAreNoOps(t *testing.T) {
	tracker := newSpyTracker()
	host := &spyHost{}
	m := &Manager{Tracker: tracker, Host: host, Mode: ModeDryRun, Counters: &RunCounters{}}

	pol := decidePolicy()
	for _, kind := range []Kind{KindSkipDryRun, KindSkipUnclassified, KindSkipCapReached, KindSkipExistingProtected, KindSkipExistingTracked} {
		out, err := m.Apply(context.Background(), Decision{Kind: kind}, applyPR(), pol)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if out.Changed || out.CreatedKey != "" {
			t.Errorf("%s mutated: %+v", kind, out)
		}
	}
	if tracker.createFields != nil || len(tracker.updates) != 0 || len(host.comments) != 0 {
		t.Error("skip decision reached a collaborator")
	}
}

func TestApplyRepair(t *testing.T) {
	tracker := newSpyTracker()
	m := &Manager{Tracker: tracker, Host: &spyHost{}, Mode: ModeRun, Counters: &RunCounters{}}

	pol := decidePolicy()
	d := Decision{Kind: KindRepairExisting, Key: "PLAT-7", Fields: repairFields(pol)}
	out, err := m.Apply(context.Background(), d, applyPR(), pol)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Changed {
		t.Error("repair reported no change")
	}
	if _, ok := tracker.updates["PLAT-7"]; !ok {
		t.Errorf("updates = %v", tracker.updates)
	}

	// Empty field set is a no-op, not an error.
	out, err = m.Apply(context.Background(), Decision{Kind: KindRepairExisting, Key: "PLAT-7"}, applyPR(), pol)
	if err != nil || out.Changed {
		t.Errorf("empty repair: out=%+v err=%v", out, err)
	}
}

func TestApplyTransition(t *testing.T) {
	tracker := newSpyTracker()
	tracker.transitions = []jira.Transition{
		{ID: "11", Name: "Start Progress", To: jira.TransitionTarget{Name: "In Progress"}},
		{ID: "21", Name: "Close", To: jira.TransitionTarget{Name: "Done"}},
	}
	m := &Manager{Tracker: tracker, Host: &spyHost{}, Mode: ModeRun, Counters: &RunCounters{}}

	d := Decision{Kind: KindTransitionExisting, Key: "PLAT-7", NextStatus: "in progress"}
	out, err := m.Apply(context.Background(), d, applyPR(), decidePolicy())
	if err != nil {
		t.Fatal(err)
	}
	if !out.Changed || tracker.transitioned["PLAT-7"] != "11" {
		t.Fatalf("out=%+v transitioned=%v", out, tracker.transitioned)
	}
}

func TestApplyTransitionUnreachable(t *testing.T) {
	tracker := newSpyTracker()
	tracker.transitions = []jira.Transition{
		{ID: "21", Name: "Close", To: jira.TransitionTarget{Name: "Done"}},
	}
	m := &Manager{Tracker: tracker, Host: &spyHost{}, Mode: ModeRun, Counters: &RunCounters{}}

	d := Decision{Kind: KindTransitionExisting, Key: "PLAT-7", NextStatus: "In Progress"}
	_, err := m.Apply(context.Background(), d, applyPR(), decidePolicy())
	var trErr *TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("want TransitionError, got %v", err)
	}
	if trErr.Key != "PLAT-7" || trErr.Target != "In Progress" {
		t.Errorf("err = %+v", trErr)
	}
	if len(tracker.transitioned) != 0 {
		t.Error("transition executed despite no matching target")
	}
}
