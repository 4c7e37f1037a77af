package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

type Arguments struct {
	// Connection string of the MongoDB deployment
	MongoURI string
	// Name of the database holding the projects
	Database string

	// Size in bytes of the chunks binary files are split into
	ChunkSize int

	// Where load journals are mirrored, empty disables the mirror
	JournalDir string
	LogDir     string

	// Default conflict policy for loads: "" or "ask", "conserve" or "overwrite"
	Policy string

	// Skip confirmations
	Force bool

	// Optional .env file read before the environment
	EnvFile string

	// Strongly verbose logging
	Verbose bool
	Debug   bool

	Version string
}

var (
	instance *Arguments
	once     sync.Once
)

// GetSettings returns the process wide settings
func GetSettings() *Arguments {
	once.Do(func() {
		instance = Defaults()
	})
	return instance
}

// Defaults returns the settings used when nothing else is configured
func Defaults() *Arguments {
	return &Arguments{
		MongoURI:   "mongodb://localhost:27017",
		Database:   "mddb",
		ChunkSize:  4 * 1024 * 1024,
		JournalDir: "./journals",
		Version:    "0.1.0",
	}
}

// Load reads the optional env file and then the MDDB_* environment
// variables into args. Flags parsed afterwards take precedence.
func Load(args *Arguments) error {
	if args.EnvFile != "" {
		if err := godotenv.Load(args.EnvFile); err != nil {
			return fmt.Errorf("failed to read env file %s: %w", args.EnvFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("failed to read .env: %w", err)
		}
	}

	args.MongoURI = getEnv("MDDB_MONGO_URI", args.MongoURI)
	args.Database = getEnv("MDDB_DATABASE", args.Database)
	args.JournalDir = getEnv("MDDB_JOURNAL_DIR", args.JournalDir)
	args.LogDir = getEnv("MDDB_LOG_DIR", args.LogDir)
	args.Policy = getEnv("MDDB_POLICY", args.Policy)

	var err error
	if args.ChunkSize, err = getEnvAsInt("MDDB_CHUNK_SIZE", args.ChunkSize); err != nil {
		return err
	}
	if args.Debug, err = getEnvAsBool("MDDB_DEBUG", args.Debug); err != nil {
		return err
	}
	if args.Verbose, err = getEnvAsBool("MDDB_VERBOSE", args.Verbose); err != nil {
		return err
	}
	if args.Force, err = getEnvAsBool("MDDB_FORCE", args.Force); err != nil {
		return err
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return parsed, nil
}

// Validate checks the arguments and creates the directories they name
func Validate(args *Arguments) error {
	if args.MongoURI == "" {
		return fmt.Errorf("a MongoDB connection string is required")
	}
	if !strings.HasPrefix(args.MongoURI, "mongodb://") && !strings.HasPrefix(args.MongoURI, "mongodb+srv://") {
		return fmt.Errorf("invalid MongoDB connection string: %s", args.MongoURI)
	}
	if args.Database == "" {
		return fmt.Errorf("a database name is required")
	}
	if args.ChunkSize < 1024 || args.ChunkSize > 16*1024*1024 {
		return fmt.Errorf("invalid chunk size: %d (must be between 1KiB and 16MiB)", args.ChunkSize)
	}

	switch strings.ToLower(strings.TrimSpace(args.Policy)) {
	case "", "ask", "conserve", "c", "overwrite", "o":
	default:
		return fmt.Errorf("invalid policy: %s (must be 'ask', 'conserve' or 'overwrite')", args.Policy)
	}

	for _, dir := range []string{args.JournalDir, args.LogDir} {
		if dir == "" {
			continue
		}
		info, err := os.Stat(dir)
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("could not create directory: %w", err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("error accessing directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("path exists but is not a directory: %s", filepath.Clean(dir))
		}
	}
	return nil
}
