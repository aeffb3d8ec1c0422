package console

import (
	"encoding/json"
	"math"
	"strconv"
)

// wrapperKeys are the container keys the query endpoint is known to wrap
// answers in. Only these are unwrapped from objects.
var wrapperKeys = []string{"result", "results", "answer", "answers", "value", "tuple"}

// FlattenAnswers decodes a query response body and returns every scalar leaf
// in traversal order. The endpoint does not type its responses: a single
// answer may arrive bare, wrapped in a result envelope, or nested inside
// arbitrarily deep tuple arrays, so the walk is fully recursive.
func FlattenAnswers(body []byte) ([]string, error) {
	var tree interface{}
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, err
	}
	leaves := []string{}
	walkAnswers(tree, &leaves)
	return leaves, nil
}

func walkAnswers(node interface{}, out *[]string) {
	switch v := node.(type) {
	case nil:
		// skip
	case string:
		*out = append(*out, v)
	case bool:
		*out = append(*out, strconv.FormatBool(v))
	case float64:
		*out = append(*out, formatNumber(v))
	case []interface{}:
		for _, item := range v {
			walkAnswers(item, out)
		}
	case map[string]interface{}:
		// Only recognized wrapper keys are unwrapped; envelope metadata such
		// as evaluation timings must not leak into the answer list.
		for _, k := range wrapperKeys {
			if child, ok := v[k]; ok {
				walkAnswers(child, out)
			}
		}
	}
}

// formatNumber renders JSON numbers the way the console printed them: whole
// values without a decimal point.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
