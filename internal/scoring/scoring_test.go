package scoring_test

import (
	"testing"

	"github.com/profile-scores/internal/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLeetCode(t *testing.T) {
	Convey("Given accepted counts per difficulty", t, func() {
		Convey("When easy=50 medium=30 hard=5", func() {
			solved, score := scoring.LeetCode([]int{50, 30, 5})

			Convey("Then 85 problems are solved for 850 points", func() {
				So(solved, ShouldEqual, 85)
				So(score, ShouldEqual, 850)
			})
		})

		Convey("When no buckets are returned", func() {
			solved, score := scoring.LeetCode(nil)
			So(solved, ShouldEqual, 0)
			So(score, ShouldEqual, 0)
		})
	})

	Convey("Given rating sources", t, func() {
		So(scoring.LeetCodeRating(4, 120), ShouldEqual, 4)
		So(scoring.LeetCodeRating(0, 120), ShouldEqual, 120)
		So(scoring.LeetCodeRating(0, 0), ShouldEqual, 0)
	})
}

func TestCodeforces(t *testing.T) {
	Convey("Given 25 solved problems, rating 1450 and 3 contests", t, func() {
		score := scoring.Codeforces(25, 1450, 3)

		Convey("Then the score is 2500+700+600", func() {
			So(score, ShouldEqual, 3800)
		})
	})

	Convey("Given an unrated user", t, func() {
		So(scoring.Codeforces(10, 0, 0), ShouldEqual, 1000)
	})

	Convey("Given a submission history", t, func() {
		subs := []scoring.CodeforcesSubmission{
			{ContestID: 1, ProblemIndex: "A", Verdict: "OK", ParticipantType: "CONTESTANT"},
			{ContestID: 1, ProblemIndex: "A", Verdict: "OK", ParticipantType: "PRACTICE"},
			{ContestID: 1, ProblemIndex: "B", Verdict: "WRONG_ANSWER", ParticipantType: "CONTESTANT"},
			{ContestID: 2, ProblemIndex: "A", Verdict: "OK", ParticipantType: "PRACTICE"},
			{ContestID: 3, ProblemIndex: "C", Verdict: "TIME_LIMIT_EXCEEDED", ParticipantType: "CONTESTANT"},
		}

		Convey("Then solved counts distinct accepted (contest, index) pairs", func() {
			solved, contests := scoring.CodeforcesCounts(subs)
			So(solved, ShouldEqual, 2)
			So(contests, ShouldEqual, 2)
		})

		Convey("And the result does not depend on submission order", func() {
			reversed := make([]scoring.CodeforcesSubmission, len(subs))
			for i, s := range subs {
				reversed[len(subs)-1-i] = s
			}
			s1, c1 := scoring.CodeforcesCounts(subs)
			s2, c2 := scoring.CodeforcesCounts(reversed)
			So(s2, ShouldEqual, s1)
			So(c2, ShouldEqual, c1)
		})
	})
}

func TestCodeChef(t *testing.T) {
	Convey("Given rating 1500, 40 fully solved and 10 contests", t, func() {
		Convey("Then the score is floor(80+9000+500)", func() {
			So(scoring.CodeChef(1500, 40, 10), ShouldEqual, 9580)
		})

		Convey("And the user has 3 stars", func() {
			So(scoring.CodeChefStars(1500), ShouldEqual, 3)
		})
	})

	Convey("Given a rating at or below 1200", t, func() {
		So(scoring.CodeChef(1200, 10, 2), ShouldEqual, 120)
		So(scoring.CodeChef(0, 0, 0), ShouldEqual, 0)
	})

	Convey("Given a fractional rating bonus", t, func() {
		// (1201-1200)^2/10 = 0.1
		So(scoring.CodeChef(1201, 0, 0), ShouldEqual, 0)
		// (1205-1200)^2/10 = 2.5
		So(scoring.CodeChef(1205, 1, 0), ShouldEqual, 4)
	})

	Convey("Given the star breakpoints", t, func() {
		cases := map[int]int{
			0:    1,
			1399: 1,
			1400: 2,
			1599: 2,
			1600: 3,
			1800: 4,
			2000: 5,
			2199: 5,
			2200: 6,
			2499: 6,
			2500: 7,
			3100: 7,
		}
		for rating, stars := range cases {
			So(scoring.CodeChefStars(rating), ShouldEqual, stars)
		}
	})
}

func TestHackerRank(t *testing.T) {
	Convey("Given practice tracks", t, func() {
		tracks := []scoring.HackerRankTrack{
			{Score: 120.5, Rank: 5000},
			{Score: 300, Rank: 0},
			{Score: 79.75, Rank: 1200},
		}

		Convey("Then scores are summed and the lowest defined rank wins", func() {
			score, rank := scoring.HackerRank(tracks)
			So(score, ShouldEqual, 500)
			So(rank, ShouldEqual, 1200)
		})
	})

	Convey("Given no tracks", t, func() {
		score, rank := scoring.HackerRank(nil)
		So(score, ShouldEqual, 0)
		So(rank, ShouldEqual, 0)
	})

	Convey("Given a submission history", t, func() {
		So(scoring.HackerRankSolved(map[string]int{"2024-01-01": 3, "2024-01-02": 4}), ShouldEqual, 7)
		So(scoring.HackerRankSolved(nil), ShouldEqual, 0)
	})
}
