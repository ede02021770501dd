package browser

import (
	"strings"

	json "github.com/json-iterator/go"
)

// CallScript renders `(fn)(args...)` so an embedded arrow function can be
// evaluated as one expression. Arguments are JSON-encoded; an argument that
// cannot be encoded is passed as null.
func CallScript(fn string, args ...interface{}) string {
	encoded := make([]string, len(args))
	for i, a := range args {
		s, err := json.MarshalToString(a)
		if err != nil {
			s = "null"
		}
		encoded[i] = s
	}
	return "(" + strings.TrimSpace(fn) + ")(" + strings.Join(encoded, ", ") + ")"
}
