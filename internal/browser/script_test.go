package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallScript(t *testing.T) {
	got := CallScript("  (a, b) => a + b \n", "x\"y", 2)
	assert.Equal(t, `((a, b) => a + b)("x\"y", 2)`, got)
}

func TestEmbeddedScriptsArePresent(t *testing.T) {
	for name, src := range map[string]string{
		"exists":      existsScript,
		"set_value":   setValueScript,
		"check":       checkScript,
		"label_text":  labelTextScript,
		"tag_by_text": tagByTextScript,
	} {
		assert.NotEmpty(t, src, name)
	}
}
