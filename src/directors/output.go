package directors

import (
	"fmt"
	"io"
	"sort"

	"mddb/src/engine"

	"go.mongodb.org/mongo-driver/bson"
)

// WriteDocument prints a document as relaxed extended JSON under its collection key
func WriteDocument(out io.Writer, key string, document bson.M) error {
	data, err := bson.MarshalExtJSONIndent(document, false, false, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render document: %w", err)
	}
	_, err = fmt.Fprintf(out, "# %s\n%s\n", key, data)
	return err
}

func WriteInconsistencies(out io.Writer, reports []engine.InconsistencyReport) {
	if len(reports) == 0 {
		fmt.Fprintln(out, "No broken references")
		return
	}
	for _, report := range reports {
		scope := "project"
		if report.MD != nil {
			scope = fmt.Sprintf("md %d", *report.MD)
		}
		fmt.Fprintf(out, "%s %s (%s, %s): %s\n", report.Kind, report.Name, report.ID.Hex(), scope, report.Reason)
	}
}

// WriteOrphans prints one line per scan with the ids it found, keys sorted
func WriteOrphans(out io.Writer, orphans map[string][]bson.M) {
	keys := make([]string, 0, len(orphans))
	for key := range orphans {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fmt.Fprintf(out, "%s: %d\n", key, len(orphans[key]))
		for _, document := range orphans[key] {
			fmt.Fprintf(out, "  %v\n", document["_id"])
		}
	}
}
