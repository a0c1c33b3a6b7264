package room

import (
	"crypto/rand"
	"math/big"
	"strings"
)

var wordLists = [][]string{
	{ // adjectives
		"quiet", "hidden", "silent", "faint", "hushed", "misty", "hazy", "pale", "fleeting", "secret",
		"gentle", "sleepy", "velvet", "lunar", "dusky", "amber", "silver", "frosty", "drifting", "soft",
	},
	{ // things that disappear
		"smoke", "mist", "fog", "ghost", "shadow", "echo", "ember", "ripple", "whisper", "vapor",
		"snowflake", "bubble", "spark", "dewdrop", "cloud", "breeze", "flicker", "ash", "haze", "glimmer",
	},
	{ // animals
		"otter", "fox", "owl", "moth", "heron", "lynx", "hare", "wren", "koala", "panda",
		"seal", "badger", "finch", "gecko", "raven", "marten", "crane", "ibis", "newt", "vole",
	},
	{ // places
		"harbor", "meadow", "canyon", "attic", "lantern", "garden", "orchard", "cellar", "lagoon", "valley",
		"alley", "tunnel", "island", "grove", "pier", "ridge", "marsh", "hollow", "cove", "dune",
	},
}

// NewID returns a random, readable room ID such as "misty-ember-otter-cove".
// One word is taken from each list, in order.
func NewID() string {
	words := make([]string, len(wordLists))
	for i, list := range wordLists {
		words[i] = list[randomIndex(len(list))]
	}
	return strings.Join(words, "-")
}

func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
