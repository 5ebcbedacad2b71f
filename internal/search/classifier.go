package search

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Audience values as stored (unscrubbed) on works.
const (
	AudienceAdult      = "Adult"
	AudienceAdultsOnly = "Adults Only"
	AudienceYoungAdult = "Young Adult"
	AudienceChildren   = "Children"
	AudienceAllAges    = "All Ages"
	AudienceResearch   = "Research"
)

// Readers below this age are not expected to have the fluency needed
// for "All Ages" titles, so a query scoped entirely below the cutoff
// must not be widened to include them.
const AllAgesCutoff = 8

// Grade n corresponds to age n plus this offset; kindergarten is
// treated as grade zero.
const gradeToAgeOffset = 5

// When a query says "N and up" we cap the implied range a few years
// above N rather than leaving it unbounded.
const andUpSpan = 4

// genreKeyword associates a recognizable keyword with a canonical
// genre name. Keywords are matched with word boundaries on both ends.
type genreKeyword struct {
	keyword string
	genre   string
}

// Longer keywords are listed first so that "science fiction" wins over
// "science" and "historical fiction" wins over "fiction" extraction
// later in the parse.
var genreKeywords = []genreKeyword{
	{"comics & graphic novels", "Comics & Graphic Novels"},
	{"graphic novels?", "Comics & Graphic Novels"},
	{"historical fiction", "Historical Fiction"},
	{"science fiction", "Science Fiction"},
	{"literary fiction", "Literary Fiction"},
	{"urban fiction", "Urban Fiction"},
	{"short stories", "Short Stories"},
	{"fairy tales", "Folklore"},
	{"true crime", "True Crime"},
	{"self-help", "Self-Help"},
	{"sci-fi", "Science Fiction"},
	{"scifi", "Science Fiction"},
	{"dystopian", "Dystopian SF"},
	{"suspense", "Suspense/Thriller"},
	{"thrillers?", "Suspense/Thriller"},
	{"adventure", "Adventure"},
	{"biograph(?:y|ies)", "Biography & Memoir"},
	{"classics", "Classics"},
	{"cook(?:ing|ery|books?)", "Cooking"},
	{"detective stories", "Mystery"},
	{"myster(?:y|ies)", "Mystery"},
	{"westerns?", "Westerns"},
	{"erotica", "Erotica"},
	{"fantasy", "Fantasy"},
	{"histor(?:y|ies)", "History"},
	{"horror", "Horror"},
	{"humor(?:ous)?", "Humorous Fiction"},
	{"comedy", "Humorous Fiction"},
	{"poetry", "Poetry"},
	{"drama", "Drama"},
	{"religi(?:on|ous)", "Religion & Spirituality"},
	{"romances?", "Romance"},
	{"romantic", "Romance"},
	{"science", "Science"},
	{"sports", "Sports"},
	{"travel", "Travel"},
}

// genreFiction records fiction status for genres the parser can
// extract, for callers that want to distinguish.
var genreFiction = map[string]bool{
	"Science Fiction":    true,
	"Historical Fiction": true,
	"Literary Fiction":   true,
	"Urban Fiction":      true,
	"Romance":            true,
	"Fantasy":            true,
	"Horror":             true,
	"Mystery":            true,
	"Suspense/Thriller":  true,
	"Westerns":           true,
	"Dystopian SF":       true,
	"Humorous Fiction":   true,
	"Erotica":            true,
	"Adventure":          true,
	"Folklore":           true,
	"Short Stories":      true,
	"Classics":           true,
	"Drama":              true,
	"Poetry":             true,
}

var genreRes = compileGenreRes()

func compileGenreRes() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(genreKeywords))
	for i, gk := range genreKeywords {
		res[i] = regexp.MustCompile(`(?i)\b(` + gk.keyword + `)\b`)
	}
	return res
}

// GenreMatch looks for a known genre name in a query string. It
// returns the canonical genre name and the exact portion of the query
// string that matched, or empty strings if nothing matched. Keywords
// are tried longest-first so the most specific genre wins.
func GenreMatch(query string) (genre, matched string) {
	for i, re := range genreRes {
		if m := re.FindString(query); m != "" {
			return genreKeywords[i].genre, m
		}
	}
	return "", ""
}

var juvenileRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(for children)\b`),
	regexp.MustCompile(`(?i)\b(children's)`),
	regexp.MustCompile(`(?i)\b(children)\b`),
	regexp.MustCompile(`(?i)\b(juvenile)\b`),
	regexp.MustCompile(`(?i)\b(kids)\b`),
}

var youngAdultRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(young adult)\b`),
	regexp.MustCompile(`(?i)\b(ya)\b`),
	regexp.MustCompile(`(?i)\b(teen books)\b`),
}

// AudienceMatch looks for an audience keyword in a query string and
// returns the audience plus the matched portion. Only the juvenile
// audiences are recognizable from keywords; there is no reliable
// keyword for adult content.
func AudienceMatch(query string) (audience, matched string) {
	for _, re := range juvenileRes {
		if m := re.FindString(query); m != "" {
			return AudienceChildren, m
		}
	}
	for _, re := range youngAdultRes {
		if m := re.FindString(query); m != "" {
			return AudienceYoungAdult, m
		}
	}
	return "", ""
}

var (
	gradeRangeRe   = regexp.MustCompile(`(?i)\bgrades?\s+([0-9]+|k)(?:\s*(?:-|–|to)\s*([0-9]+))?\b`)
	ordinalGradeRe = regexp.MustCompile(`(?i)\b([0-9]+)(?:st|nd|rd|th)\s+grade\b`)
	ageRangeRe     = regexp.MustCompile(`(?i)\bages?\s+([0-9]+)(?:\s*(?:-|–|to)\s*([0-9]+))?\b`)
	andUpRe        = regexp.MustCompile(`(?i)^\s*and\s+up\b`)
)

// GradeMatch recognizes a grade-level phrase like "grade 5" or "grade
// 5-6" and converts it to a target age range. Kindergarten counts as
// grade zero.
func GradeMatch(query string) (*AgeRange, string) {
	if m := gradeRangeRe.FindStringSubmatch(query); m != nil {
		lower := gradeToAge(m[1])
		upper := lower
		if m[2] != "" {
			upper = gradeToAge(m[2])
		}
		return NewAgeRange(lower, upper), gradeRangeRe.FindString(query)
	}
	if m := ordinalGradeRe.FindStringSubmatch(query); m != nil {
		age := gradeToAge(m[1])
		return SingleAge(age), ordinalGradeRe.FindString(query)
	}
	return nil, ""
}

func gradeToAge(grade string) int {
	if strings.EqualFold(grade, "k") {
		return gradeToAgeOffset
	}
	n, _ := strconv.Atoi(grade)
	return n + gradeToAgeOffset
}

// AgeMatch recognizes an explicit age phrase like "age 10" or "ages
// 10-12". The matched portion never includes a trailing "and up", but
// its presence extends the upper bound a few years past the lower.
func AgeMatch(query string) (*AgeRange, string) {
	loc := ageRangeRe.FindStringSubmatchIndex(query)
	if loc == nil {
		return nil, ""
	}
	m := ageRangeRe.FindStringSubmatch(query)
	lower, _ := strconv.Atoi(m[1])
	upper := lower
	if m[2] != "" {
		upper, _ = strconv.Atoi(m[2])
	} else if andUpRe.MatchString(query[loc[1]:]) {
		upper = lower + andUpSpan
	}
	return NewAgeRange(lower, upper), query[loc[0]:loc[1]]
}

// FictionMatch recognizes a fiction or nonfiction keyword. Nonfiction
// is checked first so that "nonfiction" is not half-consumed by the
// fiction pattern. Returns the scrubbed fiction value and the matched
// portion.
func FictionMatch(query string) (fiction, matched string) {
	if m := nonfictionRe.FindString(query); m != "" {
		return "nonfiction", m
	}
	if m := fictionRe.FindString(query); m != "" {
		return "fiction", m
	}
	return "", ""
}

var (
	nonfictionRe = regexp.MustCompile(`(?i)\bnonfiction\b`)
	fictionRe    = regexp.MustCompile(`(?i)\bfiction\b`)
)

// FictionLabel converts a tri-state fiction flag to its stored value.
func FictionLabel(fiction bool) string {
	if fiction {
		return "fiction"
	}
	return "nonfiction"
}

func (r *AgeRange) String() string {
	lower, upper := "?", "?"
	if r.Lower != nil {
		lower = strconv.Itoa(*r.Lower)
	}
	if r.Upper != nil {
		upper = strconv.Itoa(*r.Upper)
	}
	return fmt.Sprintf("%s-%s", lower, upper)
}
