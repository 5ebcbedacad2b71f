package search

import "strings"

// englishStopwords is the standard analyzer's English stopword set.
var englishStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "but": true, "by": true, "for": true,
	"if": true, "in": true, "into": true, "is": true, "it": true,
	"no": true, "not": true, "of": true, "on": true, "or": true,
	"such": true, "that": true, "the": true, "their": true,
	"then": true, "there": true, "these": true, "they": true,
	"this": true, "to": true, "was": true, "will": true, "with": true,
}

// IsStopword reports whether a single word is an English stopword.
func IsStopword(word string) bool {
	return englishStopwords[strings.ToLower(word)]
}

// ContainsStopwords reports whether any word in the list is an
// English stopword.
func ContainsStopwords(words []string) bool {
	for _, w := range words {
		if IsStopword(w) {
			return true
		}
	}
	return false
}

// knownWords is a compact dictionary of very common English words,
// used only to decide how much weight fuzzy hypotheses deserve. If a
// query contains a word not found here, it is probably a name or a
// typo, and fuzzy matches get their full weight. The list does not
// need to be exhaustive; a false miss just makes fuzzy matching a
// little more eager.
var knownWords = buildKnownWords(`
a about above across after again against age ago air all almost alone
along already also always am among an and animal animals another answer
any anything are around art as ask at away baby back bad ball be bear
beautiful became because become bed been before began begin behind being
believe below best better between big bird birds black blue boat body
book books both boy boys bring brother brought build built burn busy but
buy by call called came can cannot car care carry case cat change
children city class clean close cold color come common complete could
country course cut dark day days dead dear deep did die different do
does dog dogs done door down draw dream dress drink drive dry duck
during each early earth easy eat eight either end enough even evening
ever every everyone everything eye eyes face fact fall family far farm
fast father feel feet fell felt few field find fine fire first fish five
fly follow food foot for found four free friend friends from front full
fun game garden gave get girl girls give go God goes going gold gone
good got great green grew ground group grow had hair half hand hands
happy hard has have he head hear heard heart help her here high hill him
his history hold home hope horse hot hour house how hundred ice idea if
important in indeed inside into is it its just keep kept kind king knew
know known land large last late laugh learn leave left less let letter
life light like line list listen little live long look looked lost lot
love low made make man many may me mean men might mile milk mind miss
moment money month moon more morning most mother mountain move much must
my name near need never new next nice night nine no north not note
nothing now number of off often oh old on once one only open or order
other our out over own page paper part party pass past people perhaps
person picture place plan plant play please point poor put question
quick quiet quite rain ran read ready real red remember rest rich ride
right river road rock room round run said same sat saw say school sea
second see seem seen sent set seven shall she ship short should show
side simple since sing sister sit six sky sleep small snow so some
someone something song soon sound south space speak spring stand star
start stay step still stood stop story street strong such summer sun
sure table take talk tall tell ten than thank that the their them then
there these they thing things think third this those though thought
three through time to today together told too took top town tree tried
true try turn two under until up upon us use used very voice wait walk
want warm was watch water way we week well went were what when where
which while white who whole why wide wild will wind winter wish with
without woman women wood word words work world would write year years
yellow yes yet you young your
`)

func buildKnownWords(raw string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.Fields(raw) {
		words[strings.ToLower(w)] = true
	}
	return words
}

// AllWordsKnown reports whether every word passes the dictionary
// check. An empty list counts as known.
func AllWordsKnown(words []string) bool {
	for _, w := range words {
		if !knownWords[strings.ToLower(strings.Trim(w, `.,!?;:'"`))] {
			return false
		}
	}
	return true
}
