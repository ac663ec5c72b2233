package relay

import "strings"

// closingPhrases are fragments that, appearing in the model's transcript,
// suggest it is wrapping up the interview. Only consulted when
// EndOnClosingRemarks is enabled.
var closingPhrases = []string{
	"thank you for your time",
	"that concludes our interview",
	"this concludes the interview",
	"we'll be in touch",
	"best of luck",
	"goodbye",
}

func soundsLikeClosing(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range closingPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
