package helpers

import (
	"fmt"
	"os"
	"path/filepath"

	"mddb/src/settings"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// OpenDataFile opens a file of a project directory
func OpenDataFile(dataDirectory, fileName string) (*os.File, error) {
	filePath := filepath.Join(dataDirectory, fileName)
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("error opening data file %s: %w", fileName, err)
	}
	return file, nil
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string, logger *zap.SugaredLogger) bool {
	args := settings.GetSettings()

	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			if args.Debug && args.Verbose {
				logger.Infof("File does not exist: %s", filename)
			}
			return false
		}

		logger.Infof("Error checking file %s for existence: %s", filename, err)
		return false
	}

	return !info.IsDir()
}

// CloneDocument copies any bson encodable value into a fresh generic document
func CloneDocument(document interface{}) (bson.M, error) {
	bsonData, err := bson.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("error encoding BSON: %w", err)
	}

	var decoded bson.M
	if err := bson.Unmarshal(bsonData, &decoded); err != nil {
		return nil, fmt.Errorf("error decoding BSON: %w", err)
	}
	return decoded, nil
}

// DecodeDocument decodes a generic document into out
func DecodeDocument(document interface{}, out interface{}) error {
	bsonData, err := bson.Marshal(document)
	if err != nil {
		return fmt.Errorf("error encoding BSON: %w", err)
	}
	if err := bson.Unmarshal(bsonData, out); err != nil {
		return fmt.Errorf("error decoding BSON: %w", err)
	}
	return nil
}
