package platforms_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/profile-scores/internal/config"
	"github.com/profile-scores/internal/domain"
	"github.com/profile-scores/internal/platforms"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testClient(timeout time.Duration) *platforms.Client {
	cfg := config.DefaultConfig().Platforms
	cfg.Timeout = timeout
	return platforms.NewClient(cfg)
}

func TestLeetCode(t *testing.T) {
	Convey("Given a LeetCode GraphQL endpoint", t, func() {
		var body string
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.Header.Get("User-Agent"), "Mozilla/5.0") {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			if r.Method != http.MethodPost || r.URL.Path != "/graphql" {
				http.NotFound(w, r)
				return
			}
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
		}))
		defer srv.Close()
		adapter := platforms.NewLeetCode(testClient(time.Second), srv.URL)

		Convey("When the user exists", func() {
			body = `{"data":{"matchedUser":{
				"submitStats":{"acSubmissionNum":[
					{"difficulty":"All","count":85},
					{"difficulty":"Easy","count":50},
					{"difficulty":"Medium","count":30},
					{"difficulty":"Hard","count":5}]},
				"profile":{"ranking":12345,"reputation":7,"starRating":0}}}}`
			snap, err := adapter.Fetch(context.Background(), "alice")

			Convey("Then the snapshot is scored from the difficulty buckets", func() {
				So(err, ShouldBeNil)
				So(snap.ProblemsSolved, ShouldEqual, 85)
				So(snap.Score, ShouldEqual, 850)
				So(snap.Rating, ShouldEqual, 7)
				So(snap.Rank, ShouldEqual, "12345")
				So(snap.Platform, ShouldEqual, domain.PlatformLeetCode)
			})
		})

		Convey("When matchedUser is null", func() {
			body = `{"data":{"matchedUser":null}}`
			_, err := adapter.Fetch(context.Background(), "ghost")
			So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the profile block is missing", func() {
			body = `{"data":{"matchedUser":{"submitStats":{"acSubmissionNum":[]}}}}`
			_, err := adapter.Fetch(context.Background(), "alice")
			So(errors.Is(err, domain.ErrParseFailure), ShouldBeTrue)
		})

		Convey("When the body is not JSON", func() {
			body = `<html>maintenance</html>`
			_, err := adapter.Fetch(context.Background(), "alice")
			So(errors.Is(err, domain.ErrParseFailure), ShouldBeTrue)
		})

		Convey("When the platform returns a server error", func() {
			status = http.StatusServiceUnavailable
			_, err := adapter.Fetch(context.Background(), "alice")
			So(errors.Is(err, domain.ErrTransient), ShouldBeTrue)
		})

		Convey("When the platform throttles", func() {
			status = http.StatusTooManyRequests
			_, err := adapter.Fetch(context.Background(), "alice")
			So(errors.Is(err, domain.ErrTransient), ShouldBeTrue)
		})
	})
}

func TestCodeforces(t *testing.T) {
	Convey("Given the Codeforces REST API", t, func() {
		infoStatus, infoBody := http.StatusOK, ""
		statusStatus, statusBody := http.StatusOK, ""
		var infoDelay time.Duration
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/user.info":
				time.Sleep(infoDelay)
				w.WriteHeader(infoStatus)
				_, _ = io.WriteString(w, infoBody)
			case "/api/user.status":
				w.WriteHeader(statusStatus)
				_, _ = io.WriteString(w, statusBody)
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()
		adapter := platforms.NewCodeforces(testClient(time.Second), srv.URL)

		infoBody = `{"status":"OK","result":[{"handle":"tourist","rating":1450,"maxRating":1600,"rank":"specialist"}]}`
		statusBody = `{"status":"OK","result":[
			{"contestId":1,"verdict":"OK","problem":{"contestId":1,"index":"A"},"author":{"participantType":"CONTESTANT"}},
			{"contestId":1,"verdict":"OK","problem":{"contestId":1,"index":"A"},"author":{"participantType":"PRACTICE"}},
			{"contestId":2,"verdict":"OK","problem":{"contestId":2,"index":"B"},"author":{"participantType":"PRACTICE"}},
			{"contestId":3,"verdict":"WRONG_ANSWER","problem":{"contestId":3,"index":"C"},"author":{"participantType":"CONTESTANT"}}]}`

		Convey("When both calls succeed", func() {
			snap, err := adapter.Fetch(context.Background(), "tourist")

			Convey("Then solved problems, rating and contests are combined", func() {
				So(err, ShouldBeNil)
				So(snap.ProblemsSolved, ShouldEqual, 2)
				// 2*100 + 14*50 + 2*200
				So(snap.Score, ShouldEqual, 1300)
				So(snap.Rating, ShouldEqual, 1450)
				So(snap.MaxRating, ShouldEqual, 1600)
				So(snap.Rank, ShouldEqual, "specialist")
			})
		})

		Convey("When the user is unrated", func() {
			infoBody = `{"status":"OK","result":[{"handle":"newcomer"}]}`
			snap, err := adapter.Fetch(context.Background(), "newcomer")
			So(err, ShouldBeNil)
			So(snap.Rank, ShouldEqual, "newbie")
			So(snap.Rating, ShouldEqual, 0)
		})

		Convey("When the handle does not exist", func() {
			infoStatus, infoBody = http.StatusBadRequest, `{"status":"FAILED","comment":"handles: User with handle ghost not found"}`
			statusStatus, statusBody = http.StatusBadRequest, `{"status":"FAILED","comment":"handle: User with handle ghost not found"}`
			_, err := adapter.Fetch(context.Background(), "ghost")
			So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "not found")
		})

		Convey("When only the status call fails", func() {
			statusStatus = http.StatusBadGateway
			_, err := adapter.Fetch(context.Background(), "tourist")
			So(errors.Is(err, domain.ErrTransient), ShouldBeTrue)
		})

		Convey("When the info call fails and the status call also fails", func() {
			infoStatus, infoBody = http.StatusBadRequest, `{"status":"FAILED","comment":"not found"}`
			statusStatus = http.StatusInternalServerError
			_, err := adapter.Fetch(context.Background(), "ghost")

			Convey("Then the info failure takes priority", func() {
				So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the status call fails first and the info call fails later", func() {
			infoDelay = 50 * time.Millisecond
			infoStatus, infoBody = http.StatusBadRequest, `{"status":"FAILED","comment":"handle: User with handle ghost not found"}`
			statusStatus = http.StatusInternalServerError
			_, err := adapter.Fetch(context.Background(), "ghost")

			Convey("Then the info failure is still reported", func() {
				So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
				So(errors.Is(err, domain.ErrTransient), ShouldBeFalse)
			})
		})
	})
}

func codeChefPage(rating, highest string, solved string, contests int) string {
	var rows strings.Builder
	for i := 0; i < contests; i++ {
		fmt.Fprintf(&rows, "<tr><td>Contest %d</td></tr>", i)
	}
	ratingNode := ""
	if rating != "" {
		ratingNode = `<div class="rating-number">` + rating + `</div>`
	}
	return `<html><body>
		<div class="rating-header">` + ratingNode + `<small>(Highest Rating ` + highest + `)</small></div>
		<div class="rating-ranks"><ul>
			<li><a><strong>1234</strong></a> Global Rank</li>
			<li><a><strong>56</strong></a> Country Rank</li>
		</ul></div>
		<section class="rating-data-section"><h3>Fully Solved</h3><strong>` + solved + `</strong></section>
		<table class="rating-table"><tbody>` + rows.String() + `</tbody></table>
	</body></html>`
}

func TestCodeChef(t *testing.T) {
	Convey("Given a CodeChef profile page", t, func() {
		status, page := http.StatusOK, ""
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/users/") {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, page)
		}))
		defer srv.Close()
		adapter := platforms.NewCodeChef(testClient(time.Second), srv.URL)

		Convey("When the page carries rating 1500, 40 solved and 10 contests", func() {
			page = codeChefPage("1500", "1620", "40", 10)
			snap, err := adapter.Fetch(context.Background(), "chef")

			Convey("Then the CodeChef formula applies", func() {
				So(err, ShouldBeNil)
				So(snap.Score, ShouldEqual, 9580)
				So(snap.Stars, ShouldEqual, 3)
				So(snap.Rating, ShouldEqual, 1500)
				So(snap.MaxRating, ShouldEqual, 1620)
				So(snap.ProblemsSolved, ShouldEqual, 40)
				So(snap.ContestCount, ShouldEqual, 10)
				So(snap.Rank, ShouldEqual, "1234")
				So(snap.CountryRank, ShouldEqual, "56")
			})
		})

		Convey("When the platform answers 404", func() {
			status = http.StatusNotFound
			_, err := adapter.Fetch(context.Background(), "ghost")
			So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the page has no rating, solved problems or contests", func() {
			page = codeChefPage("0", "0", "0", 0)
			_, err := adapter.Fetch(context.Background(), "ghost")
			So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
		})

		Convey("When only contest history is present", func() {
			page = codeChefPage("0", "0", "0", 2)
			snap, err := adapter.Fetch(context.Background(), "newbie")
			So(err, ShouldBeNil)
			So(snap.Score, ShouldEqual, 100)
			So(snap.Stars, ShouldEqual, 1)
		})

		Convey("When the rating node disappeared but other data is present", func() {
			page = codeChefPage("", "1620", "40", 10)
			_, err := adapter.Fetch(context.Background(), "chef")
			So(errors.Is(err, domain.ErrParseFailure), ShouldBeTrue)
		})
	})
}

func TestHackerRank(t *testing.T) {
	Convey("Given the HackerRank REST endpoints", t, func() {
		profileStatus := http.StatusOK
		scoresStatus := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/rest/contests/master/hackers/coder":
				w.WriteHeader(profileStatus)
				_, _ = io.WriteString(w, `{"model":{"username":"coder","name":"Coder"}}`)
			case "/rest/contests/master/hackers/empty":
				_, _ = io.WriteString(w, `{}`)
			case "/rest/contests/master/hackers/challenged":
				w.Header().Set("Content-Type", "text/html")
				_, _ = io.WriteString(w, `<html><body>Checking your browser...</body></html>`)
			case "/rest/hackers/coder/scores_elo":
				w.WriteHeader(scoresStatus)
				_, _ = io.WriteString(w, `[
					{"name":"algorithms","practice":{"score":120.5,"rank":5000}},
					{"name":"python","practice":{"score":300,"rank":null}},
					{"name":"sql","practice":{"score":79.75,"rank":1200}},
					{"name":"contests"}]`)
			case "/rest/hackers/coder/submission_histories":
				_, _ = io.WriteString(w, `{"2024-01-01":"3","2024-01-02":4}`)
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()
		adapter := platforms.NewHackerRank(testClient(time.Second), srv.URL, discardLogger)

		Convey("When every endpoint answers", func() {
			snap, err := adapter.Fetch(context.Background(), "coder")

			Convey("Then practice scores and submission counts are summed", func() {
				So(err, ShouldBeNil)
				So(snap.Score, ShouldEqual, 500)
				So(snap.Rating, ShouldEqual, 500)
				So(snap.MaxRating, ShouldEqual, 500)
				So(snap.Rank, ShouldEqual, "1200")
				So(snap.ProblemsSolved, ShouldEqual, 7)
			})
		})

		Convey("When the scores endpoint fails", func() {
			scoresStatus = http.StatusInternalServerError
			snap, err := adapter.Fetch(context.Background(), "coder")

			Convey("Then the fetch still succeeds with an empty score", func() {
				So(err, ShouldBeNil)
				So(snap.Score, ShouldEqual, 0)
				So(snap.Rank, ShouldEqual, "0")
				So(snap.ProblemsSolved, ShouldEqual, 7)
			})
		})

		Convey("When the profile does not exist", func() {
			_, err := adapter.Fetch(context.Background(), "ghost")
			So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the profile has no model", func() {
			_, err := adapter.Fetch(context.Background(), "empty")
			So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the profile endpoint answers 200 with an HTML page", func() {
			_, err := adapter.Fetch(context.Background(), "challenged")

			Convey("Then it is a parse failure, not a missing user", func() {
				So(errors.Is(err, domain.ErrParseFailure), ShouldBeTrue)
				So(errors.Is(err, domain.ErrNotFound), ShouldBeFalse)
				So(domain.KindOf(err), ShouldEqual, "parse_failure")
			})
		})

		Convey("When the profile endpoint is down", func() {
			profileStatus = http.StatusServiceUnavailable
			_, err := adapter.Fetch(context.Background(), "coder")
			So(errors.Is(err, domain.ErrTransient), ShouldBeTrue)
		})
	})
}

func TestClientTimeout(t *testing.T) {
	Convey("Given a platform slower than the request timeout", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(500 * time.Millisecond):
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		adapter := platforms.NewLeetCode(testClient(50*time.Millisecond), srv.URL)

		Convey("Then the fetch fails as Transient", func() {
			_, err := adapter.Fetch(context.Background(), "alice")
			So(errors.Is(err, domain.ErrTransient), ShouldBeTrue)
		})
	})

	Convey("Given a cancelled context", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer srv.Close()
		adapter := platforms.NewCodeChef(testClient(time.Second), srv.URL)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Convey("Then the fetch is abandoned", func() {
			_, err := adapter.Fetch(ctx, "chef")
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(errors.Is(err, domain.ErrTransient), ShouldBeTrue)
		})
	})
}
