package selection

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dingleup-reward-service/internal/domain"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func video(id, creator string, platform domain.Platform, topics ...int) domain.SponsoredVideo {
	return domain.SponsoredVideo{
		ID:        id,
		CreatorID: creator,
		Platform:  platform,
		AssetPath: "creator/" + id + ".mp4",
		IsActive:  true,
		ExpiresAt: testNow.Add(24 * time.Hour),
		TopicIDs:  topics,
	}
}

func ids(videos []domain.SponsoredVideo) []string {
	out := make([]string, 0, len(videos))
	for _, v := range videos {
		out = append(out, v.ID)
	}
	return out
}

func TestActiveCreatorsKeepsServingStatuses(t *testing.T) {
	active := ActiveCreators(map[string]domain.SubscriptionStatus{
		"c1": domain.SubscriptionActive,
		"c2": domain.SubscriptionTrial,
		"c3": domain.SubscriptionActiveTrial,
		"c4": domain.SubscriptionCancelAtPeriodEnd,
		"c5": domain.SubscriptionInactive,
		"c6": "past_due",
	})
	assert.Len(t, active, 4)
	assert.NotContains(t, active, "c5")
	assert.NotContains(t, active, "c6")
}

func TestFilterEligible(t *testing.T) {
	expired := video("expired", "c1", domain.PlatformTikTok)
	expired.ExpiresAt = testNow.Add(-time.Second)
	inactive := video("inactive", "c1", domain.PlatformTikTok)
	inactive.IsActive = false
	noAsset := video("no-asset", "c1", domain.PlatformTikTok)
	noAsset.AssetPath = ""

	candidates := []domain.SponsoredVideo{
		video("ok", "c1", domain.PlatformTikTok),
		video("lapsed-creator", "c2", domain.PlatformYouTube),
		video("shown", "c1", domain.PlatformYouTube),
		expired, inactive, noAsset,
	}
	active := map[string]struct{}{"c1": {}}
	exclude := StringSet([]string{"shown"})

	got := FilterEligible(candidates, active, exclude, testNow)
	assert.Equal(t, []string{"ok"}, ids(got))
}

func TestFilterEligibleExpiryBoundary(t *testing.T) {
	v := video("edge", "c1", domain.PlatformTikTok)
	v.ExpiresAt = testNow
	got := FilterEligible([]domain.SponsoredVideo{v}, map[string]struct{}{"c1": {}}, nil, testNow)
	assert.Empty(t, got, "expires_at must be strictly in the future")
}

func TestTopInterestsRequiresHundredCorrect(t *testing.T) {
	topics := []domain.TopicAffinity{{TopicID: 3, CorrectCount: 20}, {TopicID: 7, CorrectCount: 50}, {TopicID: 12, CorrectCount: 29}, {TopicID: 1, CorrectCount: 1}}

	assert.Nil(t, TopInterests(domain.AffinityProfile{Topics: topics, TotalCorrect: 99}))
	assert.Equal(t, []int{7, 12, 3}, TopInterests(domain.AffinityProfile{Topics: topics, TotalCorrect: 100}))
	assert.Nil(t, TopInterests(domain.AffinityProfile{TotalCorrect: 500}))
}

func TestRankCountryFallback(t *testing.T) {
	eligible := []domain.SponsoredVideo{
		video("a", "c1", domain.PlatformTikTok),
		video("b", "c1", domain.PlatformYouTube),
	}

	ranked := Rank(eligible, map[string]struct{}{}, nil)
	assert.True(t, ranked.GlobalFallback)
	assert.ElementsMatch(t, []string{"a", "b"}, ids(ranked.Videos))

	ranked = Rank(eligible, map[string]struct{}{"b": {}}, nil)
	assert.False(t, ranked.GlobalFallback)
	assert.Equal(t, []string{"b"}, ids(ranked.Videos))

	ranked = Rank(eligible, nil, nil)
	assert.False(t, ranked.GlobalFallback, "no country is not a fallback")
	assert.Len(t, ranked.Videos, 2)
}

func TestRankPrefersTopTopics(t *testing.T) {
	profile := domain.AffinityProfile{
		TotalCorrect: 150,
		Topics: []domain.TopicAffinity{
			{TopicID: 7, CorrectCount: 80},
			{TopicID: 12, CorrectCount: 40},
			{TopicID: 3, CorrectCount: 30},
		},
	}
	eligible := []domain.SponsoredVideo{
		video("t1", "c1", domain.PlatformTikTok, 7),
		video("t2", "c1", domain.PlatformYouTube, 7),
		video("u1", "c1", domain.PlatformTikTok),
		video("u2", "c1", domain.PlatformInstagram),
		video("u3", "c1", domain.PlatformFacebook),
	}

	ranked := Rank(eligible, nil, TopInterests(profile))
	require.True(t, ranked.Relevant)
	assert.ElementsMatch(t, []string{"t1", "t2"}, ids(ranked.Videos))

	counts := map[string]int{}
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		picked := Sequence(ranked.Videos, 1, rnd)
		require.Len(t, picked, 1)
		counts[picked[0].ID]++
	}
	assert.Len(t, counts, 2)
	assert.InDelta(t, 1000, counts["t1"], 150)
	assert.InDelta(t, 1000, counts["t2"], 150)
}

func TestRankWithoutRelevantVideosKeepsWorkingPool(t *testing.T) {
	eligible := []domain.SponsoredVideo{
		video("a", "c1", domain.PlatformTikTok, 1),
		video("b", "c1", domain.PlatformYouTube, 2),
	}
	ranked := Rank(eligible, nil, []int{9})
	assert.False(t, ranked.Relevant)
	assert.Len(t, ranked.Videos, 2)
}

func TestRankSingleCandidate(t *testing.T) {
	eligible := []domain.SponsoredVideo{video("only", "c1", domain.PlatformTikTok)}
	ranked := Rank(eligible, nil, []int{9})
	assert.Equal(t, []string{"only"}, ids(ranked.Videos))
	assert.False(t, ranked.Relevant)
}

func TestSequencePadsSmallPool(t *testing.T) {
	pool := []domain.SponsoredVideo{video("v", "c1", domain.PlatformTikTok)}
	got := Sequence(pool, domain.EventRefill.VideosRequired(), rand.New(rand.NewSource(1)))
	assert.Equal(t, []string{"v", "v"}, ids(got))

	got = Sequence(pool, domain.EventDailyGift.VideosRequired(), rand.New(rand.NewSource(1)))
	assert.Equal(t, []string{"v"}, ids(got))
}

func TestSequenceEmptyPool(t *testing.T) {
	assert.Nil(t, Sequence(nil, 2, rand.New(rand.NewSource(1))))
}

func TestSequenceAvoidsThreeInARow(t *testing.T) {
	platforms := []domain.Platform{domain.PlatformTikTok, domain.PlatformYouTube, domain.PlatformInstagram, domain.PlatformFacebook}
	for seed := int64(0); seed < 200; seed++ {
		rnd := rand.New(rand.NewSource(seed))
		var pool []domain.SponsoredVideo
		distinct := 2 + rnd.Intn(3)
		for i := 0; i < 12; i++ {
			p := platforms[i%distinct]
			pool = append(pool, video(fmt.Sprintf("v%d", i), "c1", p))
		}
		n := 3 + rnd.Intn(len(pool)-2)

		got := Sequence(pool, n, rnd)
		require.Len(t, got, n)
		for i := 2; i < len(got); i++ {
			same := got[i].Platform == got[i-1].Platform && got[i-1].Platform == got[i-2].Platform
			require.Falsef(t, same, "seed %d: three %s in a row at %d", seed, got[i].Platform, i)
		}
	}
}

func TestSequenceMixesUnbalancedPools(t *testing.T) {
	var pool []domain.SponsoredVideo
	for i := 0; i < 4; i++ {
		pool = append(pool, video(fmt.Sprintf("t%d", i), "c1", domain.PlatformTikTok))
	}
	pool = append(pool, video("y0", "c2", domain.PlatformYouTube), video("y1", "c2", domain.PlatformYouTube))

	for seed := int64(0); seed < 200; seed++ {
		got := Sequence(pool, len(pool), rand.New(rand.NewSource(seed)))
		require.Len(t, got, len(pool))
		assert.ElementsMatch(t, ids(pool), ids(got), "seed %d", seed)
		require.LessOrEqualf(t, longestRun(got), 2, "seed %d: %v", seed, ids(got))
	}
}

func TestSequenceAvoidsThreeInARowWhenPossible(t *testing.T) {
	platforms := []domain.Platform{domain.PlatformTikTok, domain.PlatformYouTube, domain.PlatformInstagram}
	for seed := int64(0); seed < 300; seed++ {
		rnd := rand.New(rand.NewSource(seed))
		var pool []domain.SponsoredVideo
		counts := make([]int, 2+rnd.Intn(2))
		most, total := 0, 0
		for i := range counts {
			counts[i] = 1 + rnd.Intn(6)
			for j := 0; j < counts[i]; j++ {
				pool = append(pool, video(fmt.Sprintf("p%d-%d", i, j), "c1", platforms[i]))
			}
			total += counts[i]
			if counts[i] > most {
				most = counts[i]
			}
		}
		// a run of three is unavoidable once one platform outnumbers the gaps
		if most > 2*(total-most+1) {
			continue
		}

		n := 1 + rnd.Intn(len(pool))
		got := Sequence(pool, n, rnd)
		require.Len(t, got, n)
		require.LessOrEqualf(t, longestRun(got), 2, "seed %d: %v", seed, ids(got))
	}
}

func TestSequenceSinglePlatformAllowsRepeats(t *testing.T) {
	pool := []domain.SponsoredVideo{
		video("a", "c1", domain.PlatformTikTok),
		video("b", "c1", domain.PlatformTikTok),
		video("c", "c1", domain.PlatformTikTok),
	}
	got := Sequence(pool, 3, rand.New(rand.NewSource(7)))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids(got))
}

func TestSequenceDoesNotMutatePool(t *testing.T) {
	pool := []domain.SponsoredVideo{
		video("a", "c1", domain.PlatformTikTok),
		video("b", "c1", domain.PlatformYouTube),
		video("c", "c1", domain.PlatformTikTok),
	}
	_ = Sequence(pool, 3, rand.New(rand.NewSource(3)))
	assert.Equal(t, []string{"a", "b", "c"}, ids(pool))
}

func TestResolveVideoURL(t *testing.T) {
	assert.Equal(t,
		"https://proj.example.co/storage/v1/object/public/creator-videos/c1/clip.mp4",
		ResolveVideoURL("https://proj.example.co/", "c1/clip.mp4"))
	assert.Equal(t, "https://cdn.example.com/x.mp4", ResolveVideoURL("https://proj.example.co", "https://cdn.example.com/x.mp4"))
}

func TestBuildPlaylist(t *testing.T) {
	v := video("a", "c1", domain.PlatformYouTube)
	v.RedirectURL = "https://youtube.com/@creator"
	got := BuildPlaylist([]domain.SponsoredVideo{v}, "https://base")
	require.Len(t, got, 1)
	assert.Equal(t, domain.PlaylistVideo{
		ID:         "a",
		VideoURL:   "https://base/storage/v1/object/public/creator-videos/creator/a.mp4",
		ChannelURL: "https://youtube.com/@creator",
		Platform:   domain.PlatformYouTube,
	}, got[0])
}
