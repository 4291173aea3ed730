// Package movies proxies the third-party movie metadata API, augments
// payloads with an encyclopedia link and local reviews, and caches the
// results.
package movies

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reelcritic/reelcritic/apperr"
	"github.com/reelcritic/reelcritic/domain"
)

// randomPool is the fixed set of movies the "random movie" endpoint draws
// from.
var randomPool = []int64{550, 13, 680, 157336}

// Movie is the payload served for a movie, trimmed to what the client
// renders.
type Movie struct {
	ID         int64                `json:"id"`
	Title      string               `json:"title"`
	Tagline    string               `json:"tagline"`
	Genres     []string             `json:"genres"`
	PosterPath string               `json:"poster_path"`
	WikiLink   string               `json:"wiki_link"`
	Reviews    []domain.MovieReview `json:"reviews"`
}

// Service fetches movie metadata and assembles movie payloads.
type Service struct {
	apiKey   string
	baseURL  string
	wikiURL  string
	reviews  domain.ReviewRepository
	cache    *ResponseCache
	client   *http.Client
	randPick func(n int) int
}

func NewService(apiKey, baseURL string, reviews domain.ReviewRepository, cache *ResponseCache) *Service {
	return &Service{
		apiKey:   apiKey,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		wikiURL:  "https://en.wikipedia.org/w/api.php",
		reviews:  reviews,
		cache:    cache,
		client:   &http.Client{Timeout: 10 * time.Second},
		randPick: rand.Intn,
	}
}

// GetRandom serves one movie from the fixed pool, cached under a single key
// regardless of which movie was picked.
func (s *Service) GetRandom(ctx context.Context) (*Movie, error) {
	if raw, ok := s.cache.get(ctx, cacheKeyRandom); ok {
		var m Movie
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			return &m, nil
		}
	}

	id := randomPool[s.randPick(len(randomPool))]
	m, err := s.assemble(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(m); err == nil {
		s.cache.put(ctx, cacheKeyRandom, string(raw))
	}
	return m, nil
}

// GetByID serves a single movie, cached per identifier.
func (s *Service) GetByID(ctx context.Context, id int64) (*Movie, error) {
	key := cacheKeyMovie(id)
	if raw, ok := s.cache.get(ctx, key); ok {
		var m Movie
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			return &m, nil
		}
	}

	m, err := s.assemble(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(m); err == nil {
		s.cache.put(ctx, key, string(raw))
	}
	return m, nil
}

func (s *Service) assemble(ctx context.Context, id int64) (*Movie, error) {
	meta, err := s.fetchMetadata(ctx, id)
	if err != nil {
		return nil, err
	}

	reviews, err := s.reviews.ListByMovie(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}

	genres := make([]string, 0, len(meta.Genres))
	for _, g := range meta.Genres {
		genres = append(genres, g.Name)
	}

	return &Movie{
		ID:         id,
		Title:      meta.Title,
		Tagline:    meta.Tagline,
		Genres:     genres,
		PosterPath: meta.PosterPath,
		WikiLink:   s.wikiLink(ctx, meta.Title),
		Reviews:    reviews,
	}, nil
}

type tmdbMovie struct {
	Title   string `json:"title"`
	Tagline string `json:"tagline"`
	Genres  []struct {
		Name string `json:"name"`
	} `json:"genres"`
	PosterPath string `json:"poster_path"`
}

func (s *Service) fetchMetadata(ctx context.Context, id int64) (*tmdbMovie, error) {
	reqURL := fmt.Sprintf("%s/movie/%d?api_key=%s", s.baseURL, id, url.QueryEscape(s.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: metadata API returned %d", apperr.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var meta tmdbMovie
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
	}
	return &meta, nil
}

// wikiLink looks up an encyclopedia article for the title. Any failure
// degrades to the "#" placeholder.
func (s *Service) wikiLink(ctx context.Context, title string) string {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("list", "search")
	q.Set("srsearch", title)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.wikiURL+"?"+q.Encode(), nil)
	if err != nil {
		return "#"
	}
	resp, err := s.client.Do(req)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("title", title).Msg("wiki lookup failed")
		return "#"
	}
	defer resp.Body.Close()

	var result struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "#"
	}
	if len(result.Query.Search) == 0 {
		return "#"
	}
	article := result.Query.Search[0].Title
	return "https://en.wikipedia.org/wiki/" + strings.ReplaceAll(article, " ", "_")
}
