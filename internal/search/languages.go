package search

import "strings"

// englishNameToAlpha3 maps lowercased English language names to their
// ISO-639-2 bibliographic codes. This is a working subset of the LOC
// table covering the languages that show up in practice; unknown names
// fall through unchanged.
var englishNameToAlpha3 = map[string]string{
	"afrikaans":  "afr",
	"albanian":   "alb",
	"amharic":    "amh",
	"arabic":     "ara",
	"armenian":   "arm",
	"bengali":    "ben",
	"bosnian":    "bos",
	"bulgarian":  "bul",
	"burmese":    "bur",
	"catalan":    "cat",
	"chinese":    "chi",
	"croatian":   "hrv",
	"czech":      "cze",
	"danish":     "dan",
	"dutch":      "dut",
	"english":    "eng",
	"estonian":   "est",
	"finnish":    "fin",
	"french":     "fre",
	"georgian":   "geo",
	"german":     "ger",
	"greek":      "gre",
	"gujarati":   "guj",
	"haitian":    "hat",
	"hebrew":     "heb",
	"hindi":      "hin",
	"hungarian":  "hun",
	"icelandic":  "ice",
	"indonesian": "ind",
	"italian":    "ita",
	"japanese":   "jpn",
	"khmer":      "khm",
	"korean":     "kor",
	"lao":        "lao",
	"latin":      "lat",
	"latvian":    "lav",
	"lithuanian": "lit",
	"malay":      "may",
	"nepali":     "nep",
	"norwegian":  "nor",
	"persian":    "per",
	"polish":     "pol",
	"portuguese": "por",
	"punjabi":    "pan",
	"romanian":   "rum",
	"russian":    "rus",
	"serbian":    "srp",
	"slovak":     "slo",
	"slovenian":  "slv",
	"somali":     "som",
	"spanish":    "spa",
	"swahili":    "swa",
	"swedish":    "swe",
	"tagalog":    "tgl",
	"tamil":      "tam",
	"telugu":     "tel",
	"thai":       "tha",
	"turkish":    "tur",
	"ukrainian":  "ukr",
	"urdu":       "urd",
	"vietnamese": "vie",
	"welsh":      "wel",
	"yiddish":    "yid",
}

// LanguageToAlpha3 converts an English language name to its ISO-639-2
// code, case-insensitively. Values that already look like codes, or
// names with no mapping, are returned unchanged.
func LanguageToAlpha3(value string) string {
	if code, ok := englishNameToAlpha3[strings.ToLower(value)]; ok {
		return code
	}
	return value
}
