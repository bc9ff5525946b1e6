package audio

import "strings"

var numberWords = map[string]string{
	"one": "100", "two": "200", "three": "300", "four": "400",
}

var bareNumberWords = map[string]string{
	"thirty": "30", "forty": "40", "fifty": "50",
	"sixty": "60", "seventy": "70", "eighty": "80",
}

var cornerNumberWords = map[string]bool{
	"two": true, "three": true, "four": true, "five": true, "six": true,
}

var severityWords = map[string]bool{
	"hairpin": true, "square": true, "flat": true,
}

var surfaceWords = map[string]bool{
	"gravel": true, "tarmac": true, "concrete": true,
}

var singleTokenDetails = map[string]bool{
	"tightens": true, "opens": true, "long": true, "caution": true,
	"junction": true, "tunnel": true, "water": true, "bump": true,
	"bumps": true, "narrows": true, "gate": true,
}

func isDirection(w string) bool { return w == "left" || w == "right" }

// SampleKeys parses text into the ordered list of sample keys its callout
// grammar recognizes, scanning left to right and preferring the longest
// match at each position. Unrecognized tokens are skipped.
func SampleKeys(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	var keys []string

	for i := 0; i < len(words); {
		if key, n := matchThree(words, i); n > 0 {
			keys = append(keys, key)
			i += n
			continue
		}
		if key, n := matchTwo(words, i); n > 0 {
			keys = append(keys, key)
			i += n
			continue
		}
		if key, n := matchOne(words, i); n > 0 {
			keys = append(keys, key)
			i += n
			continue
		}
		i++
	}

	return keys
}

func matchThree(words []string, i int) (string, int) {
	if i+3 > len(words) {
		return "", 0
	}
	w0, w1, w2 := words[i], words[i+1], words[i+2]
	if w0 == "chicane" && isDirection(w1) && isDirection(w2) {
		return w1 + "_entry_chicane", 3
	}
	return "", 0
}

func matchTwo(words []string, i int) (string, int) {
	if i+2 > len(words) {
		return "", 0
	}
	w0, w1 := words[i], words[i+1]

	switch {
	case w0 == "one" && w1 == "thousand":
		return "1000", 2
	case w0 == "five" && w1 == "hundred":
		return "500", 2
	case w1 == "hundred" && numberWords[w0] != "":
		return numberWords[w0], 2
	case w0 == "one" && w1 == "fifty":
		return "150", 2
	case isDirection(w0) && severityWords[w1]:
		return w0 + "_" + w1, 2
	case severityWords[w0] && isDirection(w1):
		return w1 + "_" + w0, 2
	case isDirection(w0) && cornerNumberWords[w1]:
		return w0 + "_" + w1, 2
	case w0 == "over" && w1 == "bridge":
		return "over_bridge", 2
	case w0 == "over" && w1 == "rails":
		return "over_rails", 2
	case w0 == "onto" && surfaceWords[w1]:
		return "onto_" + w1, 2
	case w0 == "cattle" && w1 == "grid":
		return "cattle_grid", 2
	}
	return "", 0
}

func matchOne(words []string, i int) (string, int) {
	w := words[i]
	if v, ok := bareNumberWords[w]; ok {
		return v, 1
	}
	if singleTokenDetails[w] {
		return w, 1
	}
	return "", 0
}

// cornerFolders maps a {dir}_{severity} sample key to the Janne
// Laahanen-style pack folder name that holds its WAVs.
var cornerFolders = map[string]string{
	"left_hairpin": "corner_hairpin_left", "right_hairpin": "corner_hairpin_right",
	"left_square": "corner_square_left_descriptive", "right_square": "corner_square_right_descriptive",
	"left_two": "corner_2_left", "right_two": "corner_2_right",
	"left_three": "corner_3_left", "right_three": "corner_3_right",
	"left_four": "corner_4_left", "right_four": "corner_4_right",
	"left_five": "corner_5_left", "right_five": "corner_5_right",
	"left_six": "corner_6_left", "right_six": "corner_6_right",
	"left_flat": "corner_flat_left", "right_flat": "corner_flat_right",
}

// detailFolders maps a non-corner, non-number sample key to its folder.
var detailFolders = map[string]string{
	"tightens": "detail_tightens", "opens": "detail_opens", "long": "detail_long",
	"caution": "detail_caution", "over_bridge": "detail_over_bridge",
	"into": "detail_into", "junction": "detail_junction",
	"left_entry_chicane": "detail_left_entry_chicane", "right_entry_chicane": "detail_right_entry_chicane",
	"tunnel": "detail_tunnel", "over_rails": "detail_over_rails",
	"water": "detail_water", "bump": "detail_bump", "bumps": "detail_bumps",
	"onto_gravel": "detail_onto_gravel", "onto_tarmac": "detail_onto_tarmac", "onto_concrete": "detail_onto_concrete",
	"cattle_grid": "detail_cattle_grid", "gate": "detail_gate", "narrows": "detail_narrows",
}

// numberFolders maps a numeric distance-callout key to its folder. Only the
// anchors a sample pack is expected to carry are listed; values produced by
// SampleKeys that fall outside this set simply miss, forcing a fallback.
var numberFolders = map[string]string{
	"30": "number_30", "40": "number_40", "50": "number_50",
	"60": "number_60", "70": "number_70", "80": "number_80",
	"100": "number_100", "120": "number_120", "140": "number_140",
	"150": "number_150", "160": "number_160", "180": "number_180",
	"200": "number_200", "250": "number_250", "300": "number_300",
	"350": "number_350", "400": "number_400", "500": "number_500",
	"1000": "number_1000",
}

// FolderForKey maps a sample key to its pack folder name, or "" if the key
// has no known folder (e.g. a key SampleKeys never actually produces).
func FolderForKey(key string) string {
	if folder, ok := cornerFolders[key]; ok {
		return folder
	}
	if folder, ok := detailFolders[key]; ok {
		return folder
	}
	if folder, ok := numberFolders[key]; ok {
		return folder
	}
	return ""
}
