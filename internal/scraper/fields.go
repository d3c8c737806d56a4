package scraper

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	yearRe     = regexp.MustCompile(`(\d{4})`)
	votesRe    = regexp.MustCompile(`(\d[\d,]*)\s*(?:人评价|votes?)`)
	directorRe = regexp.MustCompile(`(?:导演|Director)[:：]\s*([^/]+)`)
	// \s alone misses U+00A0, which these pages use liberally
	spaceRe = regexp.MustCompile(`[\s\x{00A0}]+`)
)

// genreVocabulary is the closed set of tokens treated as genres when
// partitioning a card's metadata line. Everything outside it is filed as a
// country/region. This is a deliberate, documented policy: the vocabulary
// is incomplete by construction and single-word regions can be
// misclassified; we accept that rather than guess.
var genreVocabulary = map[string]struct{}{
	"剧情": {}, "喜剧": {}, "动作": {}, "爱情": {}, "科幻": {}, "动画": {},
	"悬疑": {}, "惊悚": {}, "恐怖": {}, "纪录片": {}, "短片": {}, "情色": {},
	"同性": {}, "音乐": {}, "歌舞": {}, "传记": {}, "历史": {}, "战争": {},
	"西部": {}, "奇幻": {}, "冒险": {}, "灾难": {}, "武侠": {}, "古装": {},
	"犯罪": {}, "家庭": {}, "儿童": {}, "运动": {}, "真人秀": {}, "脱口秀": {},
}

// englishGenreRe covers the English equivalents of the vocabulary.
var englishGenreRe = regexp.MustCompile(`(?i)^(Animation|Comedy|Action|Romance|Sci[- ]?Fi|Mystery|Thriller|Horror|Documentary|Short|Biography|History|War|Western|Fantasy|Adventure|Crime|Family|Music|Musical)$`)

// parseYear returns the first 4-digit token in s, nil when there is none.
func parseYear(s string) *int {
	m := yearRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// parseRating parses a decimal score. Any failure yields nil, never an error.
func parseRating(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

// parseVotes extracts a localized vote count ("1,234,567人评价" or
// "1,234 votes"), with thousands separators stripped. nil when absent.
func parseVotes(s string) *int {
	m := votesRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	return &n
}

// parseDirector reads the director's name off the credits line. Cast
// information after the name is dropped.
func parseDirector(line string) string {
	d := line
	if m := directorRe.FindStringSubmatch(line); m != nil {
		d = m[1]
	}
	d, _, _ = strings.Cut(d, "主演")
	return strings.TrimSpace(spaceRe.ReplaceAllString(d, " "))
}

// splitMetaTokens breaks the "1994 / 美国 / 犯罪 剧情" line into the year and
// the remaining classification tokens. Slash-separated segments containing
// spaces are split further into individual words.
func splitMetaTokens(line string) (*int, []string) {
	year := parseYear(line)

	var tokens []string
	for _, seg := range strings.Split(line, "/") {
		seg = strings.TrimSpace(seg)
		if seg == "" || isFourDigit(seg) {
			continue
		}
		if strings.ContainsRune(seg, ' ') {
			tokens = append(tokens, strings.Fields(seg)...)
		} else {
			tokens = append(tokens, seg)
		}
	}
	return year, tokens
}

func isFourDigit(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// classifyTokens partitions metadata tokens into genres and
// countries/regions using the closed vocabulary above.
func classifyTokens(tokens []string) (genres, countries []string) {
	for _, t := range tokens {
		if _, ok := genreVocabulary[t]; ok || englishGenreRe.MatchString(t) {
			genres = append(genres, t)
		} else {
			countries = append(countries, t)
		}
	}
	return genres, countries
}
