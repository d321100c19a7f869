// Package simulate generates and posts realistic GitHub webhook deliveries
// for exercising a running hookfeed server.
package simulate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/go-github/v68/github"
)

// Delivery is one webhook request: the X-GitHub-Event and X-GitHub-Delivery
// headers plus the JSON body.
type Delivery struct {
	EventType string
	ID        string
	Kind      string
	Payload   []byte
}

// Delivery kinds produced by Generator.
const (
	KindPush     = "push"
	KindOpened   = "pull_request_opened"
	KindMerged   = "pull_request_merged"
	KindUnrouted = "issues"
)

// Generator builds deliveries from go-github payload types. A non-zero seed
// makes the sequence reproducible.
type Generator struct {
	faker *gofakeit.Faker
	now   func() time.Time
	repo  string

	openPR *github.PullRequest
}

func NewGenerator(seed int64) *Generator {
	faker := gofakeit.New(seed)
	return &Generator{
		faker: faker,
		now:   time.Now,
		repo:  faker.Username() + "/" + slug(faker.HackerNoun()),
	}
}

// Sequence returns n deliveries cycling push, pull request opened, and the
// merge of that same pull request.
func (g *Generator) Sequence(n int) ([]Delivery, error) {
	out := make([]Delivery, 0, max(n, 0))
	for i := 0; i < n; i++ {
		var (
			d   Delivery
			err error
		)
		switch i % 3 {
		case 0:
			d, err = g.Push()
		case 1:
			d, err = g.PullRequestOpened()
		default:
			d, err = g.PullRequestMerged()
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (g *Generator) Push() (Delivery, error) {
	login := g.faker.Username()
	ts := github.Timestamp{Time: g.now().UTC().Truncate(time.Second)}

	payload := &github.PushEvent{
		Ref:    github.Ptr("refs/heads/" + g.branch()),
		Before: github.Ptr(g.sha()),
		After:  github.Ptr(g.sha()),
		Pusher: &github.CommitAuthor{
			Name:  github.Ptr(login),
			Email: github.Ptr(g.faker.Email()),
		},
		Sender: &github.User{Login: github.Ptr(login)},
		HeadCommit: &github.HeadCommit{
			ID:        github.Ptr(g.sha()),
			Message:   github.Ptr(g.faker.Sentence(6)),
			Timestamp: &ts,
		},
		Repo: &github.PushEventRepository{FullName: github.Ptr(g.repo)},
	}
	return g.delivery("push", KindPush, payload)
}

func (g *Generator) PullRequestOpened() (Delivery, error) {
	created := github.Timestamp{Time: g.now().UTC().Truncate(time.Second)}
	author := g.faker.Username()

	pr := &github.PullRequest{
		ID:        github.Ptr(int64(g.faker.Number(1, 1<<30))),
		Number:    github.Ptr(g.faker.Number(1, 5000)),
		State:     github.Ptr("open"),
		Title:     github.Ptr(g.faker.Sentence(5)),
		User:      &github.User{Login: github.Ptr(author)},
		CreatedAt: &created,
		Head:      &github.PullRequestBranch{Ref: github.Ptr(g.branch()), SHA: github.Ptr(g.sha())},
		Base:      &github.PullRequestBranch{Ref: github.Ptr("main")},
	}
	g.openPR = pr

	return g.delivery("pull_request", KindOpened, &github.PullRequestEvent{
		Action:      github.Ptr("opened"),
		Number:      pr.Number,
		PullRequest: pr,
		Sender:      pr.User,
	})
}

// PullRequestMerged closes the last opened pull request, opening one first
// when none is pending.
func (g *Generator) PullRequestMerged() (Delivery, error) {
	if g.openPR == nil {
		if _, err := g.PullRequestOpened(); err != nil {
			return Delivery{}, err
		}
	}
	pr := g.openPR
	g.openPR = nil

	merged := github.Timestamp{Time: g.now().UTC().Truncate(time.Second)}
	merger := &github.User{Login: github.Ptr(g.faker.Username())}
	pr.State = github.Ptr("closed")
	pr.Merged = github.Ptr(true)
	pr.MergedAt = &merged
	pr.ClosedAt = &merged
	pr.MergedBy = merger

	return g.delivery("pull_request", KindMerged, &github.PullRequestEvent{
		Action:      github.Ptr("closed"),
		Number:      pr.Number,
		PullRequest: pr,
		Sender:      merger,
	})
}

// Unrouted builds an issues delivery, which the server acknowledges without
// storing anything.
func (g *Generator) Unrouted() (Delivery, error) {
	return g.delivery("issues", KindUnrouted, &github.IssuesEvent{
		Action: github.Ptr("opened"),
		Issue: &github.Issue{
			Number: github.Ptr(g.faker.Number(1, 5000)),
			Title:  github.Ptr(g.faker.Sentence(4)),
		},
		Sender: &github.User{Login: github.Ptr(g.faker.Username())},
	})
}

func (g *Generator) delivery(eventType string, kind string, payload any) (Delivery, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Delivery{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Delivery{
		EventType: eventType,
		ID:        g.faker.UUID(),
		Kind:      kind,
		Payload:   body,
	}, nil
}

func (g *Generator) sha() string {
	return g.faker.Regex("[0-9a-f]{40}")
}

func (g *Generator) branch() string {
	prefixes := []string{"feature", "fix", "chore", "release"}
	return g.faker.RandomString(prefixes) + "/" + slug(g.faker.HackerVerb()+" "+g.faker.HackerNoun())
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "-")
}
