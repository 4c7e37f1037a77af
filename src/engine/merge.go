package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"
)

// normalizeValue passes a value through the bson codec so that values read from
// the database and values parsed from a manifest compare alike
func normalizeValue(value interface{}) interface{} {
	raw, err := bson.Marshal(bson.M{"v": value})
	if err != nil {
		return value
	}
	var wrapped bson.M
	if err := bson.Unmarshal(raw, &wrapped); err != nil {
		return value
	}
	return wrapped["v"]
}

// numberOf widens any integer or float, so equal numbers stored at different
// widths meet
func numberOf(value interface{}) (float64, int64, bool, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), int64(v), true, true
	case int32:
		return float64(v), int64(v), true, true
	case int64:
		return float64(v), v, true, true
	case float32:
		return float64(v), 0, false, true
	case float64:
		return v, 0, false, true
	}
	return 0, 0, false, false
}

var numericEquality = cmp.FilterValues(
	func(a, b interface{}) bool {
		_, _, _, aNumber := numberOf(a)
		_, _, _, bNumber := numberOf(b)
		return aNumber && bNumber
	},
	cmp.Comparer(func(a, b interface{}) bool {
		af, ai, aInteger, _ := numberOf(a)
		bf, bi, bInteger, _ := numberOf(b)
		if aInteger && bInteger {
			return ai == bi
		}
		return af == bf
	}),
)

// sameValue deep compares two metadata values
func sameValue(a, b interface{}) bool {
	return cmp.Equal(normalizeValue(a), normalizeValue(b), numericEquality)
}

// MergeMetadata folds incoming into previous key by key. New keys are added,
// equal values are left alone, and differing values are settled by policy or
// by asking the operator. It reports whether previous changed.
func MergeMetadata(ctx context.Context, previous, incoming bson.M, policy Policy, prompter Prompter) (bool, error) {
	if previous == nil {
		return false, Error.New("cannot merge into nil metadata")
	}

	keys := make([]string, 0, len(incoming))
	for key := range incoming {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	changed := false
	for _, key := range keys {
		value := incoming[key]
		current, exists := previous[key]
		if !exists {
			previous[key] = value
			changed = true
			continue
		}
		if sameValue(current, value) {
			continue
		}

		action := ResolveConflict(policy)
		if action == ActionPrompt {
			var err error
			question := fmt.Sprintf("Metadata %q is %v but the new value is %v.", key, current, value)
			if action, err = askConserveOverwrite(ctx, prompter, question); err != nil {
				return changed, err
			}
		}
		if action == ActionOverwrite {
			previous[key] = value
			changed = true
		}
	}
	return changed, nil
}
