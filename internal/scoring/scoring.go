// Package scoring holds the platform-specific score formulas. Every function
// here is pure: identical raw platform data always yields the same result.
package scoring

import "math"

// Formula weights
const (
	leetCodePerSolved = 10

	codeforcesPerSolved     = 100
	codeforcesPerRatingStep = 50
	codeforcesRatingStep    = 100
	codeforcesPerContest    = 200

	codeChefPerSolved      = 2
	codeChefPerContest     = 50
	codeChefRatingBaseline = 1200
	codeChefRatingDivisor  = 10
)

// codeChefStarBreakpoints[i] is the exclusive upper rating bound for i+1 stars
var codeChefStarBreakpoints = []int{1400, 1600, 1800, 2000, 2200, 2500}

// LeetCode returns the total accepted count across difficulty buckets and the score
func LeetCode(acceptedByDifficulty []int) (solved int, score int64) {
	for _, c := range acceptedByDifficulty {
		solved += c
	}
	return solved, int64(solved) * leetCodePerSolved
}

// LeetCodeRating prefers the star rating, then reputation
func LeetCodeRating(starRating, reputation int) int {
	if starRating != 0 {
		return starRating
	}
	if reputation != 0 {
		return reputation
	}
	return 0
}

// Codeforces scores solved problems, rating steps and rated contest participation
func Codeforces(problemsSolved, rating, contests int) int64 {
	score := int64(problemsSolved) * codeforcesPerSolved
	if rating > 0 {
		score += int64(rating/codeforcesRatingStep) * codeforcesPerRatingStep
	}
	score += int64(contests) * codeforcesPerContest
	return score
}

// CodeforcesSubmission is the subset of a submission the formula needs
type CodeforcesSubmission struct {
	ContestID       int
	ProblemIndex    string
	Verdict         string
	ParticipantType string
}

// CodeforcesCounts derives the distinct solved problems and the distinct
// contests entered as a contestant.
func CodeforcesCounts(subs []CodeforcesSubmission) (solved, contests int) {
	type problemKey struct {
		contestID int
		index     string
	}
	problems := make(map[problemKey]struct{})
	contestIDs := make(map[int]struct{})
	for _, s := range subs {
		if s.Verdict == "OK" {
			problems[problemKey{s.ContestID, s.ProblemIndex}] = struct{}{}
		}
		if s.ParticipantType == "CONTESTANT" {
			contestIDs[s.ContestID] = struct{}{}
		}
	}
	return len(problems), len(contestIDs)
}

// CodeChef scores fully solved problems, the squared rating excess over 1200 and contests
func CodeChef(rating, solved, contests int) int64 {
	problemScore := float64(solved * codeChefPerSolved)
	ratingBonus := 0.0
	if rating > codeChefRatingBaseline {
		excess := float64(rating - codeChefRatingBaseline)
		ratingBonus = excess * excess / codeChefRatingDivisor
	}
	contestScore := float64(contests * codeChefPerContest)
	return int64(math.Floor(problemScore + ratingBonus + contestScore))
}

// CodeChefStars maps a rating onto the 1-7 star scale. An unset rating is one star.
func CodeChefStars(rating int) int {
	if rating <= 0 {
		return 1
	}
	for i, bound := range codeChefStarBreakpoints {
		if rating < bound {
			return i + 1
		}
	}
	return len(codeChefStarBreakpoints) + 1
}

// HackerRankTrack is one track's practice standing
type HackerRankTrack struct {
	Score float64
	Rank  int // 0 when the platform reports no rank
}

// HackerRank sums practice scores and picks the best (lowest) defined rank
func HackerRank(tracks []HackerRankTrack) (score int64, bestRank int) {
	total := 0.0
	for _, t := range tracks {
		total += t.Score
		if t.Rank > 0 && (bestRank == 0 || t.Rank < bestRank) {
			bestRank = t.Rank
		}
	}
	if total < 0 {
		total = 0
	}
	return int64(math.Floor(total)), bestRank
}

// HackerRankSolved sums the per-day submission history counts
func HackerRankSolved(history map[string]int) int {
	solved := 0
	for _, c := range history {
		solved += c
	}
	return solved
}
