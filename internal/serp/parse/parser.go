// Package parse turns provider responses into canonical ranking records with
// position provenance and a confidence score.
package parse

import (
	"fmt"
	"time"

	"github.com/kitbuilder587/rankwatch/internal/domain"
	"github.com/kitbuilder587/rankwatch/internal/domainmatch"
	"github.com/kitbuilder587/rankwatch/internal/serp"
)

// discrepancy between a provider position and the array index beyond which
// the provider value is treated as suspicious
const positionDriftTolerance = 3

type bestMatch struct {
	index  int // zero-based
	result serp.OrganicResult
	match  domainmatch.Result
}

// Native parses the native-SERP provider shape.
func Native(keyword string, resp *serp.NativeResponse, opts domain.SearchOptions, meta domain.SearchMetadata) *domain.RankingRecord {
	rec := newRecord(keyword, opts, meta)
	rec.OrganicCount = len(resp.OrganicResults)
	if resp.SearchInformation != nil {
		rec.TotalResults = serp.ParseTotalResults(resp.SearchInformation.TotalResults)
	}

	features := detectFeatures(resp)
	rec.Validation.Features = features
	rec.Validation.TotalItems = totalItems(resp)
	rec.Competitors = competitors(resp.OrganicResults)

	best := findBestMatch(resp.OrganicResults, opts.Domain)
	if best == nil {
		finishNotFound(rec)
		return rec
	}

	rec.Found = true
	rec.URL = best.result.Link
	rec.Title = best.result.Title
	rec.Snippet = best.result.Snippet

	arrayPos := best.index + 1
	rec.Validation.ArrayIndex = arrayPos

	var warnings []string
	var position int
	if p := best.result.Position; p != nil && *p >= 1 {
		position = *p
		rec.Validation.Source = domain.SourceProviderField
		rec.Validation.Method = "provider_position"
		if drift := abs(position - arrayPos); drift > positionDriftTolerance {
			warnings = append(warnings, fmt.Sprintf(
				"provider position %d drifts %d from array index %d", position, drift, arrayPos))
		}
	} else {
		offset := featureOffset(resp, best.index)
		position = arrayPos + offset
		rec.Validation.Source = domain.SourceArrayIndexFallback
		rec.Validation.Method = "array_index_with_feature_offset"
		warnings = append(warnings, fmt.Sprintf(
			"no provider position, derived %d from array index %d + feature offset %d",
			position, arrayPos, offset))
	}

	rec.Validation.OriginalPosition = position

	if opts.Verify {
		warnings = verifyPosition(rec, resp, position, arrayPos, warnings)
	}

	rec.Position = &position
	rec.Validation.Warnings = warnings
	rec.Validation.OrganicCount = rec.OrganicCount
	rec.Validation.Confidence = confidence(rec.Validation.Source, len(features), rec.OrganicCount, len(warnings), true)
	rec.Reliability = domain.ReliabilityFor(rec.Validation.Confidence)
	return rec
}

// Custom parses the flat custom-search shape. Position is strictly the
// one-based array index; there are no SERP feature blocks.
func Custom(keyword string, resp *serp.CustomResponse, opts domain.SearchOptions, meta domain.SearchMetadata) *domain.RankingRecord {
	rec := newRecord(keyword, opts, meta)
	rec.OrganicCount = len(resp.Items)
	rec.TotalResults = serp.ParseTotalResults([]byte(resp.SearchInformation.TotalResults))
	rec.Validation.TotalItems = len(resp.Items)

	for i, item := range resp.Items {
		m := domainmatch.Match(domainmatch.ExtractDomain(item.Link), opts.Domain)
		if !m.Matched {
			continue
		}
		position := i + 1
		rec.Found = true
		rec.Position = &position
		rec.URL = item.Link
		rec.Title = item.Title
		rec.Snippet = item.Snippet
		rec.Validation.ArrayIndex = position
		rec.Validation.OriginalPosition = position
		rec.Validation.Source = domain.SourceArrayIndexFallback
		rec.Validation.Method = "array_index"
		break
	}

	if !rec.Found {
		finishNotFound(rec)
		return rec
	}

	rec.Validation.OrganicCount = rec.OrganicCount
	rec.Validation.Confidence = confidence(rec.Validation.Source, 0, rec.OrganicCount, 0, true)
	rec.Reliability = domain.ReliabilityFor(rec.Validation.Confidence)
	return rec
}

func newRecord(keyword string, opts domain.SearchOptions, meta domain.SearchMetadata) *domain.RankingRecord {
	return &domain.RankingRecord{
		Keyword:    keyword,
		Domain:     opts.Domain,
		Country:    opts.Country,
		Language:   opts.Language,
		City:       opts.City,
		State:      opts.State,
		PostalCode: opts.PostalCode,
		Device:     opts.Device,
		CheckedAt:  time.Now().UTC(),
		Metadata:   meta,
		Validation: domain.PositionValidation{Source: domain.SourceUnknown, Method: "none"},
	}
}

func finishNotFound(rec *domain.RankingRecord) {
	rec.Found = false
	rec.Position = nil
	rec.Validation.Source = domain.SourceUnknown
	rec.Validation.Method = "no_match"
	rec.Validation.OrganicCount = rec.OrganicCount
	rec.Validation.Confidence = 0
	rec.Reliability = domain.ReliabilityFor(0)
}

// findBestMatch scans organic results for the target domain. Highest
// confidence wins; ties prefer a result carrying a provider position, then
// the earliest index. An exact match that also carries a valid position
// short-circuits the scan.
func findBestMatch(results []serp.OrganicResult, target string) *bestMatch {
	var best *bestMatch
	for i, r := range results {
		if r.Link == "" {
			continue
		}
		m := domainmatch.Match(domainmatch.ExtractDomain(r.Link), target)
		if !m.Matched {
			continue
		}

		cand := &bestMatch{index: i, result: r, match: m}
		if better(cand, best) {
			best = cand
		}

		if m.Type == domainmatch.MatchExact && r.Position != nil && *r.Position >= 1 {
			break
		}
	}
	return best
}

func better(cand, cur *bestMatch) bool {
	if cur == nil {
		return true
	}
	if cand.match.Confidence != cur.match.Confidence {
		return cand.match.Confidence > cur.match.Confidence
	}
	candHasPos := cand.result.Position != nil
	curHasPos := cur.result.Position != nil
	if candHasPos != curHasPos {
		return candHasPos
	}
	return false // earlier index already held by cur
}

// featureOffset estimates how many non-organic blocks render above the
// matched organic entry.
func featureOffset(resp *serp.NativeResponse, matchIndex int) int {
	offset := len(resp.Ads)
	if resp.AnswerBox != nil {
		offset++
	}
	if resp.LocalResults != nil {
		offset += len(resp.LocalResults.Places)
	}
	for _, q := range resp.RelatedQuestions {
		if q.BlockPosition > 0 && q.BlockPosition <= matchIndex {
			offset++
		}
	}
	return offset
}

func verifyPosition(rec *domain.RankingRecord, resp *serp.NativeResponse, position, arrayPos int, warnings []string) []string {
	expected := len(resp.Ads)
	if resp.AnswerBox != nil {
		expected++
	}
	if resp.LocalResults != nil {
		expected++
	}

	drift := abs(position - arrayPos)
	verified := position
	rec.Validation.VerifiedPosition = &verified
	if drift <= expected+2 {
		if rec.Validation.Source == domain.SourceProviderField {
			rec.Validation.Source = domain.SourceCrossVerified
		}
		rec.Validation.Method = "cross_check"
		return warnings
	}

	return append(warnings, fmt.Sprintf(
		"verification failed: position %d vs array index %d, discrepancy %d exceeds expected %d",
		position, arrayPos, drift, expected))
}

func detectFeatures(resp *serp.NativeResponse) []domain.SerpFeature {
	var features []domain.SerpFeature
	if len(resp.Ads) > 0 {
		features = append(features, domain.SerpFeature{Type: domain.FeatureAds, Count: len(resp.Ads)})
	}
	if resp.AnswerBox != nil {
		features = append(features, domain.SerpFeature{Type: domain.FeatureFeaturedSnippet, Count: 1, Anchor: resp.AnswerBox.Title})
	}
	if len(resp.KnowledgeGraph) > 0 {
		features = append(features, domain.SerpFeature{Type: domain.FeatureKnowledgePanel, Count: 1})
	}
	if resp.LocalResults != nil && len(resp.LocalResults.Places) > 0 {
		features = append(features, domain.SerpFeature{Type: domain.FeatureLocalPack, Count: len(resp.LocalResults.Places)})
	}
	if len(resp.InlineImages) > 0 {
		features = append(features, domain.SerpFeature{Type: domain.FeatureImages, Count: len(resp.InlineImages)})
	}
	if len(resp.InlineVideos) > 0 {
		features = append(features, domain.SerpFeature{Type: domain.FeatureVideos, Count: len(resp.InlineVideos)})
	}
	if len(resp.RelatedSearches) > 0 {
		features = append(features, domain.SerpFeature{Type: domain.FeatureRelatedSearches, Count: len(resp.RelatedSearches)})
	}
	if len(resp.RelatedQuestions) > 0 {
		features = append(features, domain.SerpFeature{Type: domain.FeaturePeopleAlsoAsk, Count: len(resp.RelatedQuestions)})
	}
	return features
}

func totalItems(resp *serp.NativeResponse) int {
	total := len(resp.OrganicResults) + len(resp.Ads) + len(resp.RelatedQuestions)
	if resp.AnswerBox != nil {
		total++
	}
	if resp.LocalResults != nil {
		total += len(resp.LocalResults.Places)
	}
	return total
}

func competitors(results []serp.OrganicResult) []domain.Competitor {
	var comps []domain.Competitor
	for _, r := range results {
		if len(comps) == domain.MaxCompetitors {
			break
		}
		if r.Link == "" || r.Position == nil {
			continue
		}
		comps = append(comps, domain.Competitor{
			Position: *r.Position,
			URL:      r.Link,
			Domain:   domainmatch.ExtractDomain(r.Link),
			Title:    r.Title,
		})
	}
	return comps
}

// confidence starts at 100 and subtracts for weak provenance, crowded pages,
// thin result sets and accumulated warnings.
func confidence(source domain.PositionSource, featureCount, organicCount, warningCount int, found bool) int {
	if !found {
		return 0
	}
	c := 100
	switch source {
	case domain.SourceArrayIndexFallback:
		c -= 30
	case domain.SourceUnknown:
		c -= 50
	}
	c -= min(5*featureCount, 20)
	if organicCount < 10 {
		c -= 10
	}
	c -= min(5*warningCount, 15)
	if c < 0 {
		c = 0
	}
	if c > 100 {
		c = 100
	}
	return c
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
