package event

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
)

const (
	unknownAuthor   = "Unknown"
	branchRefPrefix = "refs/heads/"

	pullRequestIDPrefix = "pr_"
	mergeIDPrefix       = "merge_"
	pushIDPrefix        = "push_"
)

func isActionablePush(e *github.PushEvent) bool {
	return e.GetPusher() != nil && branchFromRef(e.GetRef()) != ""
}

func buildPush(e *github.PushEvent, now time.Time) CanonicalEvent {
	requestID := e.GetHeadCommit().GetID()
	if requestID == "" {
		requestID = pushIDPrefix + strconv.FormatInt(now.UnixMilli(), 10)
	}

	return CanonicalEvent{
		RequestID: requestID,
		Author:    firstNonEmpty(e.GetPusher().GetName(), e.GetSender().GetLogin(), unknownAuthor),
		Action:    ActionPush,
		ToBranch:  branchFromRef(e.GetRef()),
		Timestamp: timeOrNow(e.GetHeadCommit().GetTimestamp(), now),
	}
}

func isOpenedPullRequest(e *github.PullRequestEvent) bool {
	switch e.GetAction() {
	case "opened", "synchronize":
		return hasBranchPair(e.GetPullRequest())
	default:
		return false
	}
}

func buildPullRequest(e *github.PullRequestEvent, now time.Time) CanonicalEvent {
	pr := e.GetPullRequest()
	return CanonicalEvent{
		RequestID:  pullRequestIDPrefix + strconv.FormatInt(pr.GetID(), 10),
		Author:     firstNonEmpty(pr.GetUser().GetLogin(), unknownAuthor),
		Action:     ActionPullRequest,
		FromBranch: pr.GetHead().GetRef(),
		ToBranch:   pr.GetBase().GetRef(),
		Timestamp:  timeOrNow(pr.GetCreatedAt(), now),
	}
}

func isMergedPullRequest(e *github.PullRequestEvent) bool {
	return e.GetAction() == "closed" && e.GetPullRequest().GetMerged() && hasBranchPair(e.GetPullRequest())
}

func buildMerge(e *github.PullRequestEvent, now time.Time) CanonicalEvent {
	pr := e.GetPullRequest()
	return CanonicalEvent{
		RequestID:  mergeIDPrefix + strconv.FormatInt(pr.GetID(), 10),
		Author:     firstNonEmpty(pr.GetMergedBy().GetLogin(), pr.GetUser().GetLogin(), unknownAuthor),
		Action:     ActionMerge,
		FromBranch: pr.GetHead().GetRef(),
		ToBranch:   pr.GetBase().GetRef(),
		Timestamp:  timeOrNow(pr.GetMergedAt(), now),
	}
}

// hasBranchPair guards the fields a PR-derived record cannot do without.
func hasBranchPair(pr *github.PullRequest) bool {
	return pr != nil && pr.ID != nil && pr.GetHead().GetRef() != "" && pr.GetBase().GetRef() != ""
}

func branchFromRef(ref string) string {
	return strings.TrimPrefix(ref, branchRefPrefix)
}

func timeOrNow(ts github.Timestamp, now time.Time) time.Time {
	if ts.IsZero() {
		return now.UTC()
	}
	return ts.UTC()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
