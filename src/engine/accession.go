package engine

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"mddb/src/models"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	accessionWidth     = 5
	accessionBase      = 36
	accessionCounterID = "accessions"
)

var accessionPattern = regexp.MustCompile(`^[0-9A-Z]{5}$`)

// accessionOrigin is the counter value before the first issue, so the first code is A0001
var accessionOrigin = mustParseAccession("A0000")

func mustParseAccession(code string) int64 {
	value, err := ParseAccession(code)
	if err != nil {
		panic(err)
	}
	return value
}

// FormatAccession renders an ordinal as a zero padded upper case base 36 code
func FormatAccession(ordinal int64) (string, error) {
	if ordinal < 0 {
		return "", Error.New("negative accession ordinal %d", ordinal)
	}
	code := strings.ToUpper(strconv.FormatInt(ordinal, accessionBase))
	if len(code) > accessionWidth {
		return "", LimitExceeded.New("accession %s does not fit in %d characters", code, accessionWidth)
	}
	return strings.Repeat("0", accessionWidth-len(code)) + code, nil
}

// ParseAccession validates a code and returns its ordinal
func ParseAccession(code string) (int64, error) {
	if !accessionPattern.MatchString(code) {
		return 0, Error.New("invalid accession %q", code)
	}
	return strconv.ParseInt(code, accessionBase, 64)
}

// ensureCounter creates the accession counter if it is missing
func (d *Database) ensureCounter(ctx context.Context) error {
	counters := d.collections.get(CountersKey)
	var counter models.Counter
	found, err := counters.FindOne(ctx, bson.M{"_id": accessionCounterID}, &counter)
	if err != nil {
		return Error.Wrap(err)
	}
	if found {
		return nil
	}

	err = counters.InsertOne(ctx, models.Counter{ID: accessionCounterID, Last: accessionOrigin})
	if err != nil {
		// Another process may have bootstrapped concurrently
		found, findErr := counters.FindOne(ctx, bson.M{"_id": accessionCounterID}, &counter)
		if findErr == nil && found {
			return nil
		}
		return Error.Wrap(err)
	}
	d.logger.Infof("Initialized accession counter")
	return nil
}

func (d *Database) incrementCounter(ctx context.Context, delta int64) (int64, error) {
	var counter models.Counter
	found, err := d.collections.get(CountersKey).IncrementOne(ctx, bson.M{"_id": accessionCounterID}, "last", delta, &counter)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	if !found {
		return 0, Error.New("accession counter is missing, bootstrap the database first")
	}
	return counter.Last, nil
}

// IssueNewAccession atomically advances the counter and returns the new code.
// The code is recorded in the journal so a reverted run gives it back.
func (d *Database) IssueNewAccession(ctx context.Context) (string, error) {
	last, err := d.incrementCounter(ctx, 1)
	if err != nil {
		return "", err
	}

	code, err := FormatAccession(last)
	if err != nil {
		if _, rollbackErr := d.incrementCounter(ctx, -1); rollbackErr != nil {
			d.logger.Errorf("Failed to roll back accession counter: %v", rollbackErr)
		}
		return "", err
	}

	holders, err := d.collections.get(ProjectsKey).CountDocuments(ctx, bson.M{"accession": code})
	if err != nil {
		return "", Error.Wrap(err)
	}
	if holders > 0 {
		return "", Fatal.New("accession %s is already held by a project, the counter is out of sync", code)
	}

	if err := d.journal.SetIssuedAccession(code); err != nil {
		d.logger.Warnf("Failed to journal accession %s: %v", code, err)
	}
	d.logger.Infof("Issued accession %s", code)
	return code, nil
}

// GetLastAccession returns the most recently issued code, or empty when none was issued
func (d *Database) GetLastAccession(ctx context.Context) (string, error) {
	var counter models.Counter
	found, err := d.collections.get(CountersKey).FindOne(ctx, bson.M{"_id": accessionCounterID}, &counter)
	if err != nil {
		return "", Error.Wrap(err)
	}
	if !found {
		return "", Error.New("accession counter is missing, bootstrap the database first")
	}
	if counter.Last <= accessionOrigin {
		return "", nil
	}
	return FormatAccession(counter.Last)
}

// releaseAccession steps the counter back when code is the last one issued
func (d *Database) releaseAccession(ctx context.Context, code string) (bool, error) {
	last, err := d.GetLastAccession(ctx)
	if err != nil {
		return false, err
	}
	if last == "" || last != code {
		return false, nil
	}
	if _, err := d.incrementCounter(ctx, -1); err != nil {
		return false, err
	}
	d.logger.Infof("Released accession %s", code)
	return true, nil
}
