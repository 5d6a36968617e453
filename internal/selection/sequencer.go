package selection

import (
	"math/rand"
	"strings"

	"dingleup-reward-service/internal/domain"
)

// maxPlatformRun is the longest run of one platform allowed while another platform still has videos.
const maxPlatformRun = 2

// Sequence orders pool into exactly n videos, mixing platforms.
//
// Each platform partition is shuffled. The first pick is uniform over the
// pool; after that the allowed platform with the most videos left goes next,
// with ties broken round-robin. A platform that produced the last two picks
// is skipped while another platform still has videos. If the uniform first
// pick makes a run of three unavoidable, the order is rebuilt without it.
// When the pool holds fewer than n videos the produced sequence is repeated
// cyclically.
func Sequence(pool []domain.SponsoredVideo, n int, rnd *rand.Rand) []domain.SponsoredVideo {
	if n <= 0 || len(pool) == 0 {
		return nil
	}

	partitions := make(map[domain.Platform][]domain.SponsoredVideo)
	platforms := make([]domain.Platform, 0, 4)
	for _, v := range pool {
		if _, ok := partitions[v.Platform]; !ok {
			platforms = append(platforms, v.Platform)
		}
		partitions[v.Platform] = append(partitions[v.Platform], v)
	}
	rnd.Shuffle(len(platforms), func(i, j int) { platforms[i], platforms[j] = platforms[j], platforms[i] })
	for _, p := range platforms {
		part := partitions[p]
		rnd.Shuffle(len(part), func(i, j int) { part[i], part[j] = part[j], part[i] })
	}

	first := pool[rnd.Intn(len(pool))].Platform
	out := arrange(partitions, platforms, first, n)
	if len(platforms) > 1 && longestRun(out) > maxPlatformRun {
		out = arrange(partitions, platforms, "", n)
	}

	produced := len(out)
	for i := produced; i < n; i++ {
		out = append(out, out[i%produced])
	}
	return out
}

// arrange picks up to n videos from partitions without consuming them. A
// non-empty first forces the platform of the opening pick.
func arrange(partitions map[domain.Platform][]domain.SponsoredVideo, platforms []domain.Platform, first domain.Platform, n int) []domain.SponsoredVideo {
	left := make(map[domain.Platform][]domain.SponsoredVideo, len(partitions))
	remaining := 0
	for p, vids := range partitions {
		left[p] = vids
		remaining += len(vids)
	}

	pointer := 0
	out := make([]domain.SponsoredVideo, 0, n)
	var last domain.Platform
	run := 0
	for len(out) < n && remaining > 0 {
		picked := -1
		if len(out) == 0 && first != "" {
			for i, p := range platforms {
				if p == first {
					picked = i
					break
				}
			}
		}
		if picked < 0 {
			for step := 0; step < len(platforms); step++ {
				idx := (pointer + step) % len(platforms)
				p := platforms[idx]
				if len(left[p]) == 0 {
					continue
				}
				if p == last && run >= maxPlatformRun && othersHaveVideos(left, p) {
					continue
				}
				if picked < 0 || len(left[p]) > len(left[platforms[picked]]) {
					picked = idx
				}
			}
		}
		if picked < 0 {
			break
		}

		p := platforms[picked]
		out = append(out, left[p][0])
		left[p] = left[p][1:]
		remaining--

		if p == last {
			run++
		} else {
			last = p
			run = 1
		}
		pointer = (picked + 1) % len(platforms)
	}
	return out
}

func longestRun(videos []domain.SponsoredVideo) int {
	longest, run := 0, 0
	for i, v := range videos {
		if i > 0 && v.Platform == videos[i-1].Platform {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

func othersHaveVideos(partitions map[domain.Platform][]domain.SponsoredVideo, except domain.Platform) bool {
	for p, vids := range partitions {
		if p != except && len(vids) > 0 {
			return true
		}
	}
	return false
}

const storageObjectPrefix = "/storage/v1/object/public/creator-videos/"

// ResolveVideoURL turns a stored asset path into a playable URL. Absolute URLs pass through.
func ResolveVideoURL(storageBaseURL, assetPath string) string {
	if strings.HasPrefix(assetPath, "http://") || strings.HasPrefix(assetPath, "https://") {
		return assetPath
	}
	return strings.TrimRight(storageBaseURL, "/") + storageObjectPrefix + strings.TrimLeft(assetPath, "/")
}

// BuildPlaylist converts sequenced videos into client descriptors.
func BuildPlaylist(videos []domain.SponsoredVideo, storageBaseURL string) []domain.PlaylistVideo {
	out := make([]domain.PlaylistVideo, 0, len(videos))
	for _, v := range videos {
		out = append(out, domain.PlaylistVideo{
			ID:         v.ID,
			VideoURL:   ResolveVideoURL(storageBaseURL, v.AssetPath),
			ChannelURL: v.RedirectURL,
			Platform:   v.Platform,
		})
	}
	return out
}
