package audio

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSampleKeysDistanceAndDetails(t *testing.T) {
	got := SampleKeys("one hundred left three tightens")
	want := []string{"100", "left_three", "tightens"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SampleKeys() mismatch (-want +got):\n%s", diff)
	}
}

func TestSampleKeysLargeDistanceAnchors(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"one thousand", []string{"1000"}},
		{"five hundred", []string{"500"}},
		{"two hundred", []string{"200"}},
		{"one fifty", []string{"150"}},
		{"thirty", []string{"30"}},
		{"eighty", []string{"80"}},
	}
	for _, c := range cases {
		got := SampleKeys(c.text)
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("SampleKeys(%q) mismatch (-want +got):\n%s", c.text, diff)
		}
	}
}

func TestSampleKeysHairpinBothWordOrders(t *testing.T) {
	if got := SampleKeys("left hairpin"); cmp.Diff([]string{"left_hairpin"}, got) != "" {
		t.Errorf("SampleKeys(left hairpin) = %v", got)
	}
	if got := SampleKeys("hairpin right"); cmp.Diff([]string{"right_hairpin"}, got) != "" {
		t.Errorf("SampleKeys(hairpin right) = %v", got)
	}
}

func TestSampleKeysSquareAndFlat(t *testing.T) {
	if got := SampleKeys("square left"); cmp.Diff([]string{"left_square"}, got) != "" {
		t.Errorf("SampleKeys(square left) = %v", got)
	}
	if got := SampleKeys("right flat"); cmp.Diff([]string{"right_flat"}, got) != "" {
		t.Errorf("SampleKeys(right flat) = %v", got)
	}
}

func TestSampleKeysChicane(t *testing.T) {
	got := SampleKeys("chicane left right")
	want := []string{"left_entry_chicane"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SampleKeys(chicane left right) mismatch (-want +got):\n%s", diff)
	}
}

func TestSampleKeysTwoTokenDetails(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"over bridge", []string{"over_bridge"}},
		{"over rails", []string{"over_rails"}},
		{"onto gravel", []string{"onto_gravel"}},
		{"onto tarmac", []string{"onto_tarmac"}},
		{"cattle grid", []string{"cattle_grid"}},
	}
	for _, c := range cases {
		got := SampleKeys(c.text)
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("SampleKeys(%q) mismatch (-want +got):\n%s", c.text, diff)
		}
	}
}

func TestSampleKeysUnknownTokensSkipped(t *testing.T) {
	got := SampleKeys("square corner ahead ok")
	if len(got) != 0 {
		t.Errorf("SampleKeys() = %v, want no keys for tokens with no grammar match", got)
	}
}

func TestSampleKeysFullPacenoteExample(t *testing.T) {
	got := SampleKeys("two hundred left four tightens")
	want := []string{"200", "left_four", "tightens"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SampleKeys() mismatch (-want +got):\n%s", diff)
	}
}

func TestFolderForKeyMapping(t *testing.T) {
	cases := map[string]string{
		"left_three":   "corner_3_left",
		"right_four":   "corner_4_right",
		"left_hairpin": "corner_hairpin_left",
		"100":          "number_100",
		"1000":         "number_1000",
		"tightens":     "detail_tightens",
		"over_bridge":  "detail_over_bridge",
	}
	for key, want := range cases {
		if got := FolderForKey(key); got != want {
			t.Errorf("FolderForKey(%q) = %q, want %q", key, got, want)
		}
	}
	if got := FolderForKey("nonsense"); got != "" {
		t.Errorf("FolderForKey(nonsense) = %q, want empty", got)
	}
}
